// Package media forwards device-media commands to the Apple TV bridge over
// the hub protocol.
package media

import (
	"context"
	"fmt"
	"strings"

	"lcars/internal/intent"
	"lcars/pkg/protocol"
)

// Bridge is the hub shard that owns the media device.
const Bridge = "ATV"

// Commander translates device-media intents into hub frames.
type Commander struct {
	ptcl *protocol.Protocol
}

func NewCommander(ptcl *protocol.Protocol) *Commander {
	return &Commander{ptcl: ptcl}
}

// Execute sends one media command and waits for the bridge's reply.
func (c *Commander) Execute(ctx context.Context, it intent.Intent) (string, error) {
	msg, ack, err := translate(it)
	if err != nil {
		return "", err
	}

	resp, err := c.ptcl.TransmitReceive(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("media bridge: %w", err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("media bridge refused: %s", resp.String())
	}
	return ack, nil
}

func translate(it intent.Intent) (protocol.Message, string, error) {
	action := it.Parameters["action"]
	app := it.Parameters["app"]

	switch action {
	case "play":
		return msg("PLAYBACK", "PLAY"), "Playing.", nil
	case "pause":
		return msg("PLAYBACK", "PAUSE"), "Paused.", nil
	case "stop":
		return msg("PLAYBACK", "STOP"), "Stopped.", nil
	case "volume_up":
		return msg("VOLUME", "UP"), "Volume up.", nil
	case "volume_down":
		return msg("VOLUME", "DOWN"), "Volume down.", nil
	case "launch":
		if app == "" {
			return protocol.Message{}, "", fmt.Errorf("launch without app")
		}
		m := msg("APP", "LAUNCH")
		m.Args = []string{token(app)}
		return m, fmt.Sprintf("Opening %s.", app), nil
	default:
		return protocol.Message{}, "", fmt.Errorf("unsupported media action %q", action)
	}
}

func msg(noun, verb string) protocol.Message {
	return protocol.Message{To: Bridge, Verb: verb, Noun: noun}
}

// token squeezes free text into the hub token alphabet.
func token(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, s)
}
