package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.WakePhrase != "computer" {
		t.Fatalf("wake phrase %q", cfg.WakePhrase)
	}
	if cfg.FollowUpWindow != 8*time.Second {
		t.Fatalf("follow-up window %v", cfg.FollowUpWindow)
	}
	if cfg.SampleRate != 16000 || cfg.FrameSize != 320 {
		t.Fatalf("capture defaults %d/%d", cfg.SampleRate, cfg.FrameSize)
	}
}

func TestFrameDuration(t *testing.T) {
	cfg := Default()
	if d := cfg.FrameDuration(); d != 20*time.Millisecond {
		t.Fatalf("frame duration %v", d)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LCARS_WAKE_PHRASE", "majel")
	t.Setenv("LCARS_FOLLOW_UP_WINDOW", "12s")
	t.Setenv("LCARS_DEBOUNCE_FRAMES", "5")
	t.Setenv("LCARS_ENERGY_THRESHOLD", "0.02")
	t.Setenv("HOMEBRIDGE_URL", "http://bridge.local:8581")

	cfg := FromEnv(Default())
	if cfg.WakePhrase != "majel" {
		t.Fatalf("wake phrase %q", cfg.WakePhrase)
	}
	if cfg.FollowUpWindow != 12*time.Second {
		t.Fatalf("follow-up window %v", cfg.FollowUpWindow)
	}
	if cfg.DebounceFrames != 5 {
		t.Fatalf("debounce %d", cfg.DebounceFrames)
	}
	if cfg.EnergyThreshold != 0.02 {
		t.Fatalf("threshold %v", cfg.EnergyThreshold)
	}
	if cfg.HomebridgeURL != "http://bridge.local:8581" {
		t.Fatalf("homebridge url %q", cfg.HomebridgeURL)
	}
}

func TestFromEnvIgnoresMalformed(t *testing.T) {
	t.Setenv("LCARS_FOLLOW_UP_WINDOW", "not-a-duration")
	t.Setenv("LCARS_DEBOUNCE_FRAMES", "three")

	cfg := FromEnv(Default())
	if cfg.FollowUpWindow != 8*time.Second {
		t.Fatalf("malformed duration must keep default, got %v", cfg.FollowUpWindow)
	}
	if cfg.DebounceFrames != 3 {
		t.Fatalf("malformed int must keep default, got %d", cfg.DebounceFrames)
	}
}
