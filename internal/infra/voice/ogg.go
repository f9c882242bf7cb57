package voice

import (
	"bufio"
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
)

const oggHeaderSize = 27

var (
	errOggCapture = errors.New("ogg: invalid capture pattern")
	errOggVersion = errors.New("ogg: unsupported version")

	opusHead = []byte("OpusHead")
	opusTags = []byte("OpusTags")
)

// oggOpusReader splits an Ogg Opus stream into Opus packets.
// Packets spanning page boundaries are reassembled.
type oggOpusReader struct {
	r       *bufio.Reader
	header  [oggHeaderSize]byte
	lacing  [255]byte
	packets [][]byte
	partial []byte
}

func newOggOpusReader(r io.Reader) *oggOpusReader {
	return &oggOpusReader{r: bufio.NewReader(r)}
}

// next returns the next audio packet. The OpusHead and OpusTags header
// packets are skipped. io.EOF marks the end of the stream.
func (o *oggOpusReader) next() ([]byte, error) {
	for {
		for len(o.packets) > 0 {
			p := o.packets[0]
			o.packets = o.packets[1:]
			if bytes.HasPrefix(p, opusHead) || bytes.HasPrefix(p, opusTags) {
				continue
			}
			return p, nil
		}
		if err := o.readPage(); err != nil {
			return nil, err
		}
	}
}

func (o *oggOpusReader) readPage() error {
	if _, err := io.ReadFull(o.r, o.header[:]); err != nil {
		return err
	}
	if !bytes.Equal(o.header[:4], []byte("OggS")) {
		return errOggCapture
	}
	if o.header[4] != 0 {
		return errOggVersion
	}

	lacing := o.lacing[:o.header[26]]
	if _, err := io.ReadFull(o.r, lacing); err != nil {
		return errors.Wrap(err, "ogg segment table")
	}
	size := 0
	for _, l := range lacing {
		size += int(l)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(o.r, body); err != nil {
		return errors.Wrap(err, "ogg page body")
	}

	off := 0
	for _, l := range lacing {
		o.partial = append(o.partial, body[off:off+int(l)]...)
		off += int(l)
		// A lacing value below 255 terminates the packet.
		if l < 255 {
			o.packets = append(o.packets, o.partial)
			o.partial = nil
		}
	}
	return nil
}
