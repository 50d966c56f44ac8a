package intent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"lcars/internal/memory"
)

// Speaker is the response synthesizer surface the router needs.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// AlertTrigger starts the alert protocol.
type AlertTrigger interface {
	Trigger(ctx context.Context) error
}

// RouterConfig wires the router's collaborators. Commanders maps categories
// to device collaborators; missing categories degrade to a spoken notice.
type RouterConfig struct {
	Classifier   Classifier
	Memory       *memory.Memory
	Speaker      Speaker
	Alert        AlertTrigger
	Commanders   map[Category]DeviceCommander
	ContextTurns int           // turns of context handed to the classifier
	CallTimeout  time.Duration // classification deadline
}

// Router produces exactly one Intent per transcript and dispatches it. It is
// the single writer of conversation turns: the user's turn and the system's
// reply are appended here after dispatch, preserving a total order of writes.
type Router struct {
	cfg RouterConfig
	now func() time.Time
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = 10
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	return &Router{cfg: cfg, now: time.Now}
}

// SetClock overrides the wall clock. Tests only.
func (r *Router) SetClock(now func() time.Time) { r.now = now }

// Built-in command patterns checked before classification, so a "stop" never
// waits on a network round trip.
var (
	stopRe   = regexp.MustCompile(`(?i)^(stop|be quiet|silence|cancel that)[.!]?$`)
	statusRe = regexp.MustCompile(`(?i)^status report[.!]?$`)
)

// Handle runs one full turn: classify, dispatch, speak the reply, record
// both turns. Every failure path still yields a spoken response.
func (r *Router) Handle(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	if stopRe.MatchString(text) {
		slog.Info("stop command")
		r.cfg.Speaker.Stop()
		r.record(text, "", "stop")
		return
	}
	if statusRe.MatchString(text) {
		reply := fmt.Sprintf("All systems nominal. %d turns this session.", r.cfg.Memory.TurnCount())
		r.speak(ctx, reply)
		r.record(text, reply, "status")
		return
	}

	it := r.classify(ctx, text)
	slog.Info("intent", "category", it.Category, "confidence", it.Confidence)

	reply := r.dispatch(ctx, text, it)
	if reply != "" {
		r.speak(ctx, reply)
	}
	r.record(text, reply, string(it.Category))
}

// classify calls the external capability; any failure or unrecognized
// category falls back to conversation with the raw transcript, guaranteeing
// the user gets a response rather than silence.
func (r *Router) classify(ctx context.Context, text string) Intent {
	cctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	turns := r.cfg.Memory.Recent(r.cfg.ContextTurns)
	it, err := r.cfg.Classifier.Classify(cctx, text, turns)
	if err != nil {
		slog.Warn("classification failed, defaulting to conversation", "err", err)
		return Intent{
			Category:   Conversation,
			Parameters: map[string]string{},
			Reply:      "I did not quite catch that. Could you repeat it?",
		}
	}
	if it.Category == Unknown {
		it.Category = Conversation
		if it.Reply == "" {
			it.Reply = "I am not sure how to help with that."
		}
	}
	return it
}

func (r *Router) dispatch(ctx context.Context, text string, it Intent) string {
	switch it.Category {
	case Alert:
		if err := r.cfg.Alert.Trigger(ctx); err != nil {
			slog.Warn("alert trigger refused", "err", err)
			return "Red alert is already in progress."
		}
		return "Red alert. All hands to battle stations."

	case Conversation:
		if it.Reply == "" {
			return "I am not sure how to help with that."
		}
		return it.Reply

	case DeviceMedia, HomeAutomation:
		cmd, ok := r.cfg.Commanders[it.Category]
		if !ok {
			slog.Warn("no commander for category", "category", it.Category)
			return "That system is not connected."
		}
		ack, err := cmd.Execute(ctx, it)
		if err != nil {
			slog.Error("device command failed", "category", it.Category, "err", err)
			return "I was unable to complete that command."
		}
		return ack

	default:
		return "I am not sure how to help with that."
	}
}

func (r *Router) speak(ctx context.Context, reply string) {
	if err := r.cfg.Speaker.Speak(ctx, reply); err != nil {
		slog.Error("reply playback failed", "err", err)
	}
}

func (r *Router) record(userText, reply, category string) {
	now := r.now()
	r.cfg.Memory.Append(memory.Turn{
		Timestamp: now,
		Role:      memory.RoleUser,
		Text:      userText,
		Intent:    category,
	})
	if reply != "" {
		r.cfg.Memory.Append(memory.Turn{
			Timestamp: now,
			Role:      memory.RoleSystem,
			Text:      reply,
		})
	}
}
