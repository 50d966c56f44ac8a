package media

import (
	"testing"

	"lcars/internal/intent"
)

func TestTranslatePlayback(t *testing.T) {
	m, ack, err := translate(intent.Intent{
		Category:   intent.DeviceMedia,
		Parameters: map[string]string{"action": "pause"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if m.To != Bridge || m.Verb != "PAUSE" || m.Noun != "PLAYBACK" {
		t.Fatalf("translated %+v", m)
	}
	if ack != "Paused." {
		t.Fatalf("ack %q", ack)
	}
}

func TestTranslateLaunchSanitizesApp(t *testing.T) {
	m, _, err := translate(intent.Intent{
		Parameters: map[string]string{"action": "launch", "app": "Prime Video!"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Args) != 1 || m.Args[0] != "prime_video" {
		t.Fatalf("args %v", m.Args)
	}
}

func TestTranslateRejectsUnknownAction(t *testing.T) {
	if _, _, err := translate(intent.Intent{
		Parameters: map[string]string{"action": "rewind"},
	}); err == nil {
		t.Fatal("expected error for unsupported action")
	}

	if _, _, err := translate(intent.Intent{
		Parameters: map[string]string{"action": "launch"},
	}); err == nil {
		t.Fatal("expected error for launch without app")
	}
}
