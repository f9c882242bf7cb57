// Package discord binds chat commands from Discord to the session manager.
package discord

import (
	"fmt"
	"strings"
)

// command describes a prefix command.
type command struct {
	Name      string
	Aliases   []string
	Usage     string
	Brief     string
	OwnerOnly bool
}

// commands lists the supported commands in help order.
var commands = []command{
	{Name: "connect", Brief: "Join your voice channel"},
	{Name: "disconnect", Brief: "Leave the voice channel and clear the queue"},
	{Name: "play", Aliases: []string{"queue"}, Usage: "<search terms or URL>", Brief: "Play a track, or queue it if something is playing"},
	{Name: "list", Brief: "Show the current track and the queue"},
	{Name: "skip", Aliases: []string{"next"}, Brief: "Skip the current track"},
	{Name: "shuffle", Brief: "Shuffle the queue"},
	{Name: "pause", Brief: "Pause playback"},
	{Name: "resume", Brief: "Resume playback"},
	{Name: "stop", Brief: "Stop playback and clear the queue"},
	{Name: "help", Brief: "Show this help"},
	{Name: "status", Brief: "Show every active voice session", OwnerOnly: true},
}

// lookupCommand resolves a name or alias, case-insensitively.
func lookupCommand(name string) (command, bool) {
	name = strings.ToLower(name)
	for _, c := range commands {
		if c.Name == name {
			return c, true
		}
		for _, a := range c.Aliases {
			if a == name {
				return c, true
			}
		}
	}
	return command{}, false
}

// parseCommand splits "<prefix><name> <args>" into its parts.
// ok is false when content does not start with prefix followed by a name.
func parseCommand(content, prefix string) (name, args string, ok bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	rest := strings.TrimSpace(content[len(prefix):])
	if rest == "" {
		return "", "", false
	}

	name, args, _ = strings.Cut(rest, " ")
	if i := strings.IndexAny(name, "\n\t"); i >= 0 {
		args = name[i+1:] + " " + args
		name = name[:i]
	}
	return strings.ToLower(name), strings.TrimSpace(args), true
}

// helpText renders the command list. Owner-only commands are shown to owners.
func helpText(prefix string, owner bool) string {
	var b strings.Builder
	b.WriteString("**Commands**")
	for _, c := range commands {
		if c.OwnerOnly && !owner {
			continue
		}
		usage := prefix + c.Name
		if c.Usage != "" {
			usage += " " + c.Usage
		}
		fmt.Fprintf(&b, "\n`%s` %s", usage, c.Brief)
		if len(c.Aliases) > 0 {
			fmt.Fprintf(&b, " (alias: %s)", strings.Join(c.Aliases, ", "))
		}
	}
	return b.String()
}
