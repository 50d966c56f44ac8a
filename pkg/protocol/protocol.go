// Package protocol implements the colon-delimited hub message grammar used
// by the device bridges, over a reconnecting websocket.
//
// Wire form: TO:VERB:NOUN[:ARG...]:FROM — single line, no whitespace.
package protocol

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ErrReceiveTimeout is returned when no reply arrives within the deadline.
var ErrReceiveTimeout = errors.New("no reply from hub")

// Config for a hub connection.
type Config struct {
	Shard   string // our identity on the hub
	URL     string
	Reconn  uint          // seconds between reconnect attempts
	Timeout time.Duration // reply deadline for TransmitReceive
	EmitOut func(*Message)
}

// Protocol is a hub endpoint: it transmits messages and routes replies
// addressed to this shard either to a pending waiter or to EmitOut.
type Protocol struct {
	ws      *WebSocket
	shard   string
	timeout time.Duration

	waiterMu sync.Mutex
	waiter   chan *Message

	emitOut func(*Message)
}

func New(cfg Config) (*Protocol, error) {
	ws, err := NewWebSocket(cfg.URL, cfg.Reconn)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Protocol{
		ws:      ws,
		shard:   cfg.Shard,
		timeout: timeout,
		emitOut: cfg.EmitOut,
	}, nil
}

// TransmitReceive sends a message and waits for the next reply addressed to
// this shard, bounded by the configured timeout and ctx.
func (p *Protocol) TransmitReceive(ctx context.Context, m Message) (*Message, error) {
	w := p.installWaiter()
	defer p.clearWaiter()

	if err := p.Transmit(m); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-w:
		if !ok || resp == nil {
			return nil, ErrReceiveTimeout
		}
		return resp, nil
	case <-time.After(p.timeout):
		return nil, ErrReceiveTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Transmit sends a message, stamping this shard as the sender.
func (p *Protocol) Transmit(m Message) error {
	m.From = p.shard
	if err := p.ws.Write([]byte(m.String())); err != nil {
		return fmt.Errorf("transmit %s: %w", m.String(), err)
	}
	return nil
}

// Run reads the connection forever, reconnecting on close. Inbound messages
// for this shard go to the pending waiter if one is installed, otherwise to
// EmitOut.
func (p *Protocol) Run() {
	for {
		in := p.ws.Read()
		switch in.kind {
		case connClose:
			log.Warn("hub connection lost, reconnecting", "url", p.ws.url)
			p.ws.TryReconn()
			log.Info("hub reconnected")

		case readFailure:
			log.Error("hub read failed", "err", in.err)

		case readOK:
			if !p.isForUs(in.msg) {
				continue
			}
			msg, err := Parse(string(in.msg))
			if err != nil {
				log.Warn("unparseable hub message", "msg", string(in.msg), "err", err)
				continue
			}
			if w := p.currentWaiter(); w != nil {
				w <- msg
			} else if p.emitOut != nil {
				p.emitOut(msg)
			}
		}
	}
}

func (p *Protocol) installWaiter() chan *Message {
	p.waiterMu.Lock()
	defer p.waiterMu.Unlock()
	p.waiter = make(chan *Message, 1)
	return p.waiter
}

func (p *Protocol) clearWaiter() {
	p.waiterMu.Lock()
	defer p.waiterMu.Unlock()
	if p.waiter != nil {
		close(p.waiter)
		p.waiter = nil
	}
}

func (p *Protocol) currentWaiter() chan *Message {
	p.waiterMu.Lock()
	defer p.waiterMu.Unlock()
	return p.waiter
}

func (p *Protocol) isForUs(msg []byte) bool {
	to, _, _ := strings.Cut(string(msg), ":")
	return to == p.shard || to == "ALL"
}

// Message is one hub frame.
type Message struct {
	To   string
	Verb string
	Noun string
	Args []string
	From string
}

func (m Message) String() string {
	parts := make([]string, 0, 4+len(m.Args))
	parts = append(parts, m.To, m.Verb, m.Noun)
	parts = append(parts, m.Args...)
	parts = append(parts, m.From)
	return strings.Join(parts, ":")
}

// OK reports whether the reply verb is OK.
func (m *Message) OK() bool { return m.Verb == "OK" }

var tokenRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Parse validates and decodes one wire line.
func Parse(line string) (*Message, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, errors.New("empty message")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return nil, errors.New("whitespace not allowed in hub frames")
	}

	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return nil, fmt.Errorf("too few fields: got %d, want >= 4", len(parts))
	}

	m := &Message{
		To:   parts[0],
		Verb: strings.ToUpper(parts[1]),
		Noun: strings.ToUpper(parts[2]),
		Args: append([]string(nil), parts[3:len(parts)-1]...),
		From: parts[len(parts)-1],
	}

	if !tokenRe.MatchString(m.To) && m.To != "ALL" {
		return nil, fmt.Errorf("invalid TO token: %q", m.To)
	}
	if !tokenRe.MatchString(m.From) {
		return nil, fmt.Errorf("invalid FROM token: %q", m.From)
	}
	if !tokenRe.MatchString(m.Verb) || !tokenRe.MatchString(m.Noun) {
		return nil, fmt.Errorf("invalid VERB/NOUN: %q %q", m.Verb, m.Noun)
	}
	for i, a := range m.Args {
		if !tokenRe.MatchString(a) {
			return nil, fmt.Errorf("invalid ARG[%d]: %q", i, a)
		}
	}
	return m, nil
}
