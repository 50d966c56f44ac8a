package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"lcars/internal/alert"
	"lcars/internal/audio"
	"lcars/internal/config"
	"lcars/internal/home"
	"lcars/internal/intent"
	"lcars/internal/ipc"
	"lcars/internal/media"
	"lcars/internal/memory"
	"lcars/internal/pipeline"
	"lcars/internal/proxy"
	"lcars/internal/speech"
	"lcars/internal/stt"
	"lcars/internal/tts"
	"lcars/internal/wake"
	"lcars/pkg/protocol"
	whispercpp "lcars/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// playbackRate is the speaker rate; cloud TTS returns 44.1 kHz MP3.
const playbackRate = 44100

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address (empty = direct)")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	replay := cli.StringP("replay", "r", "", "Audio file to replay instead of the microphone")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)
	cfg := config.FromEnv(config.Default())

	if cfg.OpenAIKey == "" {
		log.Error("OPENAI_API_KEY not set")
		os.Exit(1)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIKey)}
	if *proxyAddr != "" {
		httpClient, err := proxy.NewSocksClient(*proxyAddr)
		if err != nil {
			log.Error("Failed to dial socks proxy", "proxy", *proxyAddr, "err", err)
			os.Exit(1)
		}
		opts = append(opts, option.WithHTTPClient(httpClient))
		log.Debug("Loaded proxy")
	}
	client := openai.NewClient(opts...)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Capture.
	var source audio.FrameSource
	if *replay != "" {
		source = audio.NewReplaySource(*replay, cfg.SampleRate, cfg.FrameSize, cfg.FrameBuffer)
		log.Info("Replaying audio file", "path", *replay)
	} else {
		mic := audio.NewSource(cfg.SampleRate, cfg.FrameSize, cfg.FrameBuffer)
		if err := mic.Init(); err != nil {
			log.Error("Failed to init audio", "err", err)
			os.Exit(1)
		}
		defer mic.Close()
		source = mic
	}

	detector := audio.NewDetector(audio.DetectorConfig{
		SampleRate:      cfg.SampleRate,
		EnergyThreshold: cfg.EnergyThreshold,
		DebounceFrames:  cfg.DebounceFrames,
		GracePeriod:     cfg.GracePeriod,
		MinUtterance:    cfg.MinUtterance,
		LivenessTimeout: cfg.LivenessTimeout,
		NoiseFloorRatio: cfg.NoiseFloorRatio,
		NoiseFloorAlpha: cfg.NoiseFloorAlpha,
		UtteranceBuffer: cfg.UtteranceBuffer,
	})

	// Transcription.
	whisper, err := whispercpp.NewTranscriber(cfg.WhisperModel, whispercpp.Options{
		Language:      "en",
		InitialPrompt: "computer, red alert, status report, " + cfg.AlertLamp,
	})
	if err != nil {
		log.Error("Failed to init whisper", "err", err)
		os.Exit(1)
	}
	defer whisper.Close()
	log.Debug("Loaded whisper")

	dispatcher := stt.NewDispatcher(&whisperEngine{tr: whisper}, stt.DispatcherConfig{
		CallTimeout:  cfg.CallTimeout,
		RetryBackoff: cfg.RetryBackoff,
		Buffer:       cfg.UtteranceBuffer,
	})

	// Conversation memory.
	mem, err := memoryStore(cfg)
	if err != nil {
		log.Error("Failed to load conversation history", "err", err)
		os.Exit(1)
	}
	flusherDone := make(chan struct{})
	go func() {
		mem.RunFlusher(ctx, cfg.FlushInterval)
		close(flusherDone)
	}()

	// Speech output.
	engines := []tts.Engine{}
	if cfg.ElevenKey != "" {
		engines = append(engines, tts.NewElevenLabs(tts.ElevenLabsConfig{
			APIKey:  cfg.ElevenKey,
			VoiceID: cfg.ElevenVoice,
		}))
	} else {
		log.Warn("ELEVENLABS_API_KEY not set, primary voice disabled")
	}
	engines = append(engines, tts.NewOpenAI(client), tts.NewEspeak("en"))
	chain := tts.NewChain(cfg.CallTimeout, engines...)

	player := speech.NewBeepPlayer(playbackRate)
	var ducker speech.Ducker
	if cfg.DuckFactor > 0 {
		ducker = audio.NewDucker([]string{"lcars-daemon"}, 10)
	}
	synth := speech.NewSynthesizer(chain, player, ducker, cfg.DuckFactor)
	go synth.Run(ctx)

	// Alert protocol.
	tone, err := loadClip(cfg.AlertSound)
	if err != nil {
		log.Warn("Alert tone unavailable, rendering one offline", "err", err)
		tone, err = tts.NewEspeak("en").Synthesize(ctx, "Red alert! Red alert!")
		if err != nil {
			log.Error("Failed to render fallback alert tone", "err", err)
			os.Exit(1)
		}
	}

	homeClient := home.NewClient(home.Config{
		BaseURL:   cfg.HomebridgeURL,
		Username:  cfg.HomebridgeUser,
		Password:  cfg.HomebridgePass,
		AlertLamp: cfg.AlertLamp,
	})

	alerts := alert.New(alert.Config{
		ActiveDuration: cfg.AlertActive,
		LightingWait:   cfg.AlertLightingWait,
		CoolingTimeout: cfg.AlertCoolingTimeout,
	}, synth, homeClient, tone)

	// Intent routing.
	commanders := map[intent.Category]intent.DeviceCommander{
		intent.HomeAutomation: homeClient,
	}
	if cfg.HubURL != "" {
		ptcl, err := protocol.New(protocol.Config{
			Shard:   "LCARS",
			URL:     cfg.HubURL,
			Reconn:  2,
			Timeout: cfg.CallTimeout,
		})
		if err != nil {
			log.Error("Failed to dial hub", "url", cfg.HubURL, "err", err)
			os.Exit(1)
		}
		go ptcl.Run()
		commanders[intent.DeviceMedia] = media.NewCommander(ptcl)
		log.Debug("Loaded hub")
	} else {
		log.Warn("LCARS_HUB_URL not set, media commands disabled")
	}

	router := intent.NewRouter(intent.RouterConfig{
		Classifier:   intent.NewOpenAIClassifier(client),
		Memory:       mem,
		Speaker:      synth,
		Alert:        alerts,
		Commanders:   commanders,
		ContextTurns: cfg.ContextTurns,
		CallTimeout:  cfg.CallTimeout,
	})

	gate := wake.New(cfg.WakePhrase, cfg.FollowUpWindow, cfg.AckWindow, mem)

	var ackClip *tts.Clip
	if cfg.AckSound != "" {
		if clip, err := loadClip(cfg.AckSound); err != nil {
			log.Warn("Ack chime unavailable", "err", err)
		} else {
			ackClip = &clip
		}
	}

	pipe := pipeline.New(pipeline.Config{
		Gate:    gate,
		Router:  router,
		Speaker: synth,
		AckClip: ackClip,
	})

	// Control socket.
	if err := ipc.StartServer(func(msg ipc.ControlMessage) ipc.Reply {
		return control(ctx, msg, synth, alerts, mem)
	}); err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}

	log.Info("Boot up - successful", "wake", cfg.WakePhrase)

	go dispatcher.Run(ctx, detector.Utterances())
	go pipe.Run(ctx, dispatcher.Transcripts())

	err = audio.RunCapture(ctx, source, detector)

	// Stop background stages and wait for the final history flush before the
	// process goes away.
	cancel()
	<-flusherDone

	switch {
	case errors.Is(err, audio.ErrCaptureStalled):
		log.Error("Audio capture stalled, shutting down")
		os.Exit(1)
	case err != nil && !errors.Is(err, context.Canceled):
		log.Error("Audio capture failed", "err", err)
		os.Exit(1)
	}
	log.Info("Shut down")
}

func control(ctx context.Context, msg ipc.ControlMessage, synth *speech.Synthesizer, alerts *alert.Protocol, mem interface{ TurnCount() uint64 }) ipc.Reply {
	switch msg.Cmd {
	case "stop":
		synth.Stop()
		return ipc.Reply{OK: true, Detail: "playback stopped"}
	case "say":
		if msg.Arg == "" {
			return ipc.Reply{Detail: "nothing to say"}
		}
		if err := synth.Speak(ctx, msg.Arg); err != nil {
			return ipc.Reply{Detail: err.Error()}
		}
		return ipc.Reply{OK: true}
	case "alert":
		if err := alerts.Trigger(ctx); err != nil {
			return ipc.Reply{Detail: err.Error()}
		}
		return ipc.Reply{OK: true, Detail: "red alert"}
	case "status":
		return ipc.Reply{OK: true, Detail: fmt.Sprintf("alert=%s turns=%d",
			alerts.State(), mem.TurnCount())}
	default:
		log.Warn("Unknown command", "cmd", msg.Cmd)
		return ipc.Reply{Detail: "unknown command " + msg.Cmd}
	}
}

// whisperEngine adapts the whisper.cpp transcriber to the pipeline engine.
type whisperEngine struct {
	tr *whispercpp.Transcriber
}

func (w *whisperEngine) Transcribe(ctx context.Context, pcm []float32) (stt.Result, error) {
	res, err := w.tr.TranscribePCM(ctx, pcm)
	if err != nil {
		return stt.Result{}, err
	}
	return stt.Result{Text: res.Text, Confidence: 1, Language: res.Language}, nil
}

func memoryStore(cfg config.Config) (*memory.Memory, error) {
	return memory.New(afero.NewOsFs(), cfg.MemoryPath, cfg.MemoryBound)
}

// loadClip reads an audio file; the container format follows the extension.
func loadClip(path string) (tts.Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tts.Clip{}, err
	}
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch format {
	case "mp3", "wav", "ogg":
		return tts.Clip{Audio: data, Format: format}, nil
	default:
		return tts.Clip{}, fmt.Errorf("unsupported audio format %q", format)
	}
}
