package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/app/notification"
	"github.com/osa030/jukebot/internal/app/playback"
	"github.com/osa030/jukebot/internal/app/session"
	"github.com/osa030/jukebot/internal/domain/track"
	"github.com/osa030/jukebot/internal/infra/config"
)

// Reactions used as success acknowledgements.
const (
	reactConnect    = "✅"
	reactDisconnect = "👋"
	reactPlay       = "▶️"
	reactSkip       = "⏭️"
	reactShuffle    = "🔀"
	reactPause      = "⏸️"
	reactResume     = "▶️"
	reactStop       = "⏹️"
)

// Responder sends replies into the channel a command came from.
type Responder interface {
	React(channelID, messageID, emoji string) error
	Reply(channelID, text string) error
}

// VoiceLookup returns the voice channel userID is connected to in guildID.
type VoiceLookup func(guildID, userID string) (channelID string, ok bool)

// Invocation is one parsed command message.
type Invocation struct {
	ID        string // Correlation ID for logs
	GuildID   string
	ChannelID string
	MessageID string
	Author    track.Requester
	Command   string
	Args      string
}

// Handler executes prefix commands against the session manager.
type Handler struct {
	session   *session.Manager
	config    *config.Config
	formatter *notification.Formatter
	responder Responder
	voice     VoiceLookup
	limiter   *userLimiter
	handlers  map[string]commandFunc
	now       func() time.Time
}

// NewHandler creates a new command handler.
func NewHandler(sm *session.Manager, cfg *config.Config, responder Responder, voice VoiceLookup) *Handler {
	h := &Handler{
		session:   sm,
		config:    cfg,
		formatter: sm.Formatter(),
		responder: responder,
		voice:     voice,
		limiter:   newUserLimiter(cfg.RateLimit.CommandsPerSecond, cfg.RateLimit.Burst),
		now:       time.Now,
	}
	h.handlers = map[string]commandFunc{
		"connect":    h.connect,
		"disconnect": h.disconnect,
		"play":       h.play,
		"list":       h.list,
		"skip":       h.skip,
		"shuffle":    h.shuffle,
		"pause":      h.pause,
		"resume":     h.resume,
		"stop":       h.stop,
		"help":       h.help,
		"status":     ownerOnly(cfg, h.status),
	}
	return h
}

// HandleMessage parses content and runs the command it names, if any.
// It reports whether content was a command.
func (h *Handler) HandleMessage(guildID, channelID, messageID string, author track.Requester, content string) bool {
	name, args, ok := parseCommand(content, h.config.Discord.Prefix)
	if !ok {
		return false
	}
	inv := Invocation{
		ID:        uuid.New().String(),
		GuildID:   guildID,
		ChannelID: channelID,
		MessageID: messageID,
		Author:    author,
		Command:   name,
		Args:      args,
	}
	h.Handle(inv)
	return true
}

// Handle runs one invocation and replies with the outcome.
func (h *Handler) Handle(inv Invocation) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("command panicked: cid=%s command=%s panic=%v", inv.ID, inv.Command, r)
			h.reply(inv, h.config.GetMessage("default_error"))
		}
	}()

	cmd, ok := lookupCommand(inv.Command)
	if !ok {
		zlog.Debug().Msgf("unknown command: cid=%s command=%s", inv.ID, inv.Command)
		h.reply(inv, h.config.GetMessage("unknown_command"))
		return
	}
	// "queue" without arguments lists the queue.
	if cmd.Name == "play" && inv.Command == "queue" && inv.Args == "" {
		cmd, _ = lookupCommand("list")
	}
	inv.Command = cmd.Name

	if !h.limiter.Allow(inv.Author.ID, h.now()) {
		zlog.Info().Msgf("command rate limited: cid=%s user=%s command=%s", inv.ID, inv.Author.ID, inv.Command)
		h.reply(inv, h.config.GetMessage("rate_limited"))
		return
	}

	zlog.Info().Msgf("command received: cid=%s guild=%s channel=%s user=%s command=%s args=%q",
		inv.ID, inv.GuildID, inv.ChannelID, inv.Author.ID, inv.Command, inv.Args)

	ctx, cancel := context.WithTimeout(context.Background(), h.config.CommandTimeout())
	defer cancel()

	start := time.Now()
	err := h.handlers[cmd.Name](ctx, inv)
	if err != nil {
		zlog.Info().Msgf("command failed: cid=%s command=%s code=%s error=%v", inv.ID, inv.Command, errorCode(err), err)
		h.reply(inv, h.config.GetMessage(errorCode(err)))
		return
	}
	zlog.Debug().Msgf("command done: cid=%s command=%s elapsed=%s", inv.ID, inv.Command, time.Since(start).Round(time.Millisecond))
}

func errorCode(err error) string {
	if errors.Is(err, ErrOwnerOnly) {
		return "owner_only"
	}
	return notification.ErrorCode(err)
}

func (h *Handler) connect(ctx context.Context, inv Invocation) error {
	channelID, _ := h.voice(inv.GuildID, inv.Author.ID)
	h.session.Touch(inv.GuildID, inv.ChannelID)
	if err := h.session.Connect(ctx, inv.GuildID, channelID); err != nil {
		return err
	}
	h.react(inv, reactConnect)
	return nil
}

func (h *Handler) disconnect(ctx context.Context, inv Invocation) error {
	if err := h.session.Disconnect(ctx, inv.GuildID); err != nil {
		return err
	}
	h.react(inv, reactDisconnect)
	return nil
}

func (h *Handler) play(ctx context.Context, inv Invocation) error {
	channelID, _ := h.voice(inv.GuildID, inv.Author.ID)
	res, err := h.session.Play(ctx, session.PlayRequest{
		GuildID:        inv.GuildID,
		TextChannelID:  inv.ChannelID,
		VoiceChannelID: channelID,
		Term:           inv.Args,
		Requester:      inv.Author,
	})
	if err != nil {
		return err
	}

	h.react(inv, reactPlay)
	if res.Started {
		h.reply(inv, h.formatter.NowPlaying(res.Track))
	} else {
		h.reply(inv, h.formatter.Queued(res.Track, res.Position))
	}
	return nil
}

func (h *Handler) list(ctx context.Context, inv Invocation) error {
	st, err := h.session.Status(ctx, inv.GuildID)
	if err != nil {
		return err
	}
	h.reply(inv, h.formatter.Listing(st))
	return nil
}

func (h *Handler) skip(ctx context.Context, inv Invocation) error {
	if _, err := h.session.Skip(ctx, inv.GuildID); err != nil {
		return err
	}
	h.react(inv, reactSkip)
	return nil
}

func (h *Handler) shuffle(ctx context.Context, inv Invocation) error {
	n, err := h.session.Shuffle(ctx, inv.GuildID)
	if err != nil {
		return err
	}
	h.react(inv, reactShuffle)
	h.reply(inv, h.formatter.Shuffled(n))
	return nil
}

func (h *Handler) pause(ctx context.Context, inv Invocation) error {
	if err := h.session.Pause(ctx, inv.GuildID); err != nil {
		return err
	}
	h.react(inv, reactPause)
	return nil
}

func (h *Handler) resume(ctx context.Context, inv Invocation) error {
	if err := h.session.Resume(ctx, inv.GuildID); err != nil {
		return err
	}
	h.react(inv, reactResume)
	return nil
}

func (h *Handler) stop(ctx context.Context, inv Invocation) error {
	cleared, err := h.session.Stop(ctx, inv.GuildID)
	if err != nil {
		return err
	}
	h.react(inv, reactStop)
	h.reply(inv, h.formatter.Stopped(cleared))
	return nil
}

func (h *Handler) help(_ context.Context, inv Invocation) error {
	h.reply(inv, helpText(h.config.Discord.Prefix, h.config.IsOwner(inv.Author.ID)))
	return nil
}

func (h *Handler) status(ctx context.Context, inv Invocation) error {
	statuses, err := h.session.Statuses(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		h.reply(inv, "No active voice sessions.")
		return nil
	}

	lines := make([]string, 0, len(statuses))
	for _, st := range statuses {
		line := fmt.Sprintf("guild=%s channel=%s state=%s queued=%d queued_time=%s",
			st.GuildID, st.ChannelID, st.State, len(st.Queue), st.QueueDuration.Round(time.Second))
		if st.Current != nil {
			line += " current=" + st.Current.Title
		}
		if st.State == playback.StateIdle && !st.IdleDeadline.IsZero() {
			line += " idle_until=" + st.IdleDeadline.Format(time.RFC3339)
		}
		lines = append(lines, line)
	}
	h.reply(inv, "```\n"+strings.Join(lines, "\n")+"\n```")
	return nil
}

// HandleGuildRemoved releases everything held for a guild the bot left.
func (h *Handler) HandleGuildRemoved(guildID string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.CommandTimeout())
	defer cancel()
	if err := h.session.Forget(ctx, guildID); err != nil {
		zlog.Warn().Msgf("failed to release guild: guild=%s error=%v", guildID, err)
	}
}

func (h *Handler) react(inv Invocation, emoji string) {
	if inv.MessageID == "" {
		return
	}
	if err := h.responder.React(inv.ChannelID, inv.MessageID, emoji); err != nil {
		zlog.Warn().Msgf("failed to react: cid=%s emoji=%s error=%v", inv.ID, emoji, err)
	}
}

func (h *Handler) reply(inv Invocation, text string) {
	if err := h.responder.Reply(inv.ChannelID, text); err != nil {
		zlog.Warn().Msgf("failed to reply: cid=%s error=%v", inv.ID, err)
	}
}
