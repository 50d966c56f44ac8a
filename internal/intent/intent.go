// Package intent classifies transcripts and routes them to command
// collaborators.
package intent

import (
	"context"

	"lcars/internal/memory"
)

// Category is the fixed intent enumeration. Anything the classifier cannot
// place lands in Conversation so the user always gets a response.
type Category string

const (
	DeviceMedia    Category = "device-media"
	HomeAutomation Category = "home-automation"
	Conversation   Category = "conversation"
	Alert          Category = "alert"
	Unknown        Category = "unknown"
)

// Intent is the classified purpose of one utterance. Consumed once by the
// routing step.
type Intent struct {
	Category   Category
	Parameters map[string]string
	Confidence float64
	// Reply is the conversational answer, produced in the same classifier
	// call for Conversation intents.
	Reply string
}

// Classifier is the external classification capability.
type Classifier interface {
	Classify(ctx context.Context, text string, context []memory.Turn) (Intent, error)
}

// DeviceCommander executes a device command and returns the spoken
// acknowledgment.
type DeviceCommander interface {
	Execute(ctx context.Context, it Intent) (string, error)
}

func validCategory(c Category) bool {
	switch c {
	case DeviceMedia, HomeAutomation, Conversation, Alert, Unknown:
		return true
	default:
		return false
	}
}
