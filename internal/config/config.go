package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries every tunable of the voice pipeline. Defaults suit a USB
// microphone at 16 kHz in a normal room; override via environment variables
// (loaded from the env file by the daemon) or flags.
type Config struct {
	// Wake gating.
	WakePhrase     string        // trigger word, matched case-insensitively
	FollowUpWindow time.Duration // wake phrase optional for this long after a turn
	AckWindow      time.Duration // immediate-follow window after a bare wake phrase

	// Capture.
	SampleRate  int
	FrameSize   int // samples per frame; 320 = 20ms at 16kHz
	FrameBuffer int // bounded frame channel, drop-oldest on overflow

	// Voice activity detection.
	EnergyThreshold float64 // RMS floor for speech
	DebounceFrames  int     // consecutive loud frames before Speaking
	GracePeriod     time.Duration
	MinUtterance    time.Duration
	LivenessTimeout time.Duration // no frames for this long => capture fault
	NoiseFloorRatio float64       // speech threshold = noise floor * ratio
	NoiseFloorAlpha float64       // rolling noise floor smoothing
	UtteranceBuffer int

	// Conversation memory.
	MemoryPath    string
	MemoryBound   int
	ContextTurns  int // turns handed to the classifier
	FlushInterval time.Duration

	// External calls.
	CallTimeout  time.Duration // per transcription/classification/TTS/device call
	RetryBackoff time.Duration

	// Alert protocol.
	AlertSound          string // path to the alert tone (mp3/wav/ogg)
	AlertActive         time.Duration
	AlertLightingWait   time.Duration
	AlertCoolingTimeout time.Duration
	AlertLamp           string // Homebridge accessory name to flash

	// Collaborators.
	HomebridgeURL  string
	HomebridgeUser string
	HomebridgePass string
	HubURL         string // websocket hub for device-media commands
	WhisperModel   string
	ElevenKey      string
	ElevenVoice    string
	OpenAIKey      string

	// Playback.
	AckSound   string  // short chime played on a bare wake phrase, optional
	DuckFactor float64 // 0 disables ducking of other audio streams
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		WakePhrase:     "computer",
		FollowUpWindow: 8 * time.Second,
		AckWindow:      5 * time.Second,

		SampleRate:  16000,
		FrameSize:   320,
		FrameBuffer: 256,

		EnergyThreshold: 0.015,
		DebounceFrames:  3,
		GracePeriod:     600 * time.Millisecond,
		MinUtterance:    300 * time.Millisecond,
		LivenessTimeout: 5 * time.Second,
		NoiseFloorRatio: 2.5,
		NoiseFloorAlpha: 0.95,
		UtteranceBuffer: 8,

		MemoryPath:    defaultMemoryPath(),
		MemoryBound:   50,
		ContextTurns:  10,
		FlushInterval: 30 * time.Second,

		CallTimeout:  15 * time.Second,
		RetryBackoff: 500 * time.Millisecond,

		AlertSound:          "assets/red_alert.mp3",
		AlertActive:         10 * time.Second,
		AlertLightingWait:   3 * time.Second,
		AlertCoolingTimeout: 3 * time.Second,
		AlertLamp:           "govee",

		HomebridgeURL: "http://pi1.local:8581",
		WhisperModel:  "third_party/whisper.cpp/models/ggml-tiny.en.bin",
		ElevenVoice:   "lUulk3Wn1LKnTO5A2A4U",

		DuckFactor: 0.3,
	}
}

// FromEnv applies environment overrides on top of cfg.
func FromEnv(cfg Config) Config {
	envStr(&cfg.WakePhrase, "LCARS_WAKE_PHRASE")
	envDur(&cfg.FollowUpWindow, "LCARS_FOLLOW_UP_WINDOW")
	envDur(&cfg.AckWindow, "LCARS_ACK_WINDOW")
	envFloat(&cfg.EnergyThreshold, "LCARS_ENERGY_THRESHOLD")
	envInt(&cfg.DebounceFrames, "LCARS_DEBOUNCE_FRAMES")
	envDur(&cfg.GracePeriod, "LCARS_GRACE_PERIOD")
	envDur(&cfg.MinUtterance, "LCARS_MIN_UTTERANCE")
	envDur(&cfg.LivenessTimeout, "LCARS_LIVENESS_TIMEOUT")
	envStr(&cfg.MemoryPath, "LCARS_MEMORY_PATH")
	envInt(&cfg.MemoryBound, "LCARS_MEMORY_BOUND")
	envDur(&cfg.CallTimeout, "LCARS_CALL_TIMEOUT")
	envStr(&cfg.AlertSound, "LCARS_ALERT_SOUND")
	envDur(&cfg.AlertActive, "LCARS_ALERT_ACTIVE")
	envStr(&cfg.AlertLamp, "LCARS_ALERT_LAMP")
	envStr(&cfg.HomebridgeURL, "HOMEBRIDGE_URL")
	envStr(&cfg.HomebridgeUser, "HOMEBRIDGE_USER")
	envStr(&cfg.HomebridgePass, "HOMEBRIDGE_PASS")
	envStr(&cfg.HubURL, "LCARS_HUB_URL")
	envStr(&cfg.WhisperModel, "WHISPER_MODEL")
	envStr(&cfg.ElevenKey, "ELEVENLABS_API_KEY")
	envStr(&cfg.ElevenVoice, "ELEVENLABS_VOICE_ID")
	envStr(&cfg.OpenAIKey, "OPENAI_API_KEY")
	envStr(&cfg.AckSound, "LCARS_ACK_SOUND")
	envFloat(&cfg.DuckFactor, "LCARS_DUCK_FACTOR")
	return cfg
}

// FrameDuration is the wall-clock span of one capture frame.
func (c Config) FrameDuration() time.Duration {
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

func defaultMemoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "conversation.jsonl"
	}
	return home + "/.lcars/conversation.jsonl"
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDur(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
