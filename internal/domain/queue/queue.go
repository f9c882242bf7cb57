// Package queue provides the ordered track queue of one channel context.
package queue

import (
	"math/rand/v2"
	"time"

	"github.com/osa030/jukebot/internal/domain/track"
)

// Queue is an ordered sequence of tracks waiting to be played.
// Insertion order is play order until Shuffle is called.
//
// Queue is not safe for concurrent use; it is owned by a single
// playback controller and only touched from its worker.
type Queue struct {
	tracks []track.Track
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{tracks: make([]track.Track, 0)}
}

// Enqueue appends a track to the end of the queue.
func (q *Queue) Enqueue(t track.Track) {
	q.tracks = append(q.tracks, t)
}

// Dequeue removes and returns the head of the queue.
// The second result is false when the queue is empty.
func (q *Queue) Dequeue() (track.Track, bool) {
	if len(q.tracks) == 0 {
		return track.Track{}, false
	}
	t := q.tracks[0]
	q.tracks[0] = track.Track{}
	q.tracks = q.tracks[1:]
	return t, true
}

// Shuffle randomizes the order of the remaining tracks in place.
func (q *Queue) Shuffle() {
	if len(q.tracks) < 2 {
		return
	}
	rand.Shuffle(len(q.tracks), func(i, j int) {
		q.tracks[i], q.tracks[j] = q.tracks[j], q.tracks[i]
	})
}

// Clear empties the queue and returns how many tracks were removed.
func (q *Queue) Clear() int {
	n := len(q.tracks)
	q.tracks = make([]track.Track, 0)
	return n
}

// Snapshot returns a copy of the queued tracks in play order.
func (q *Queue) Snapshot() []track.Track {
	result := make([]track.Track, len(q.tracks))
	copy(result, q.tracks)
	return result
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// TotalDuration returns the summed duration of all queued tracks.
// Live tracks contribute nothing.
func (q *Queue) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range q.tracks {
		total += t.Duration
	}
	return total
}
