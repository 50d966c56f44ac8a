package tts

import (
	"context"
	"fmt"
	"io"

	openai "github.com/openai/openai-go/v3"
)

// OpenAI is the fallback synthesis engine using the speech endpoint.
type OpenAI struct {
	client openai.Client
	voice  openai.AudioSpeechNewParamsVoice
}

func NewOpenAI(client openai.Client) *OpenAI {
	return &OpenAI{
		client: client,
		voice:  openai.AudioSpeechNewParamsVoice("nova"),
	}
}

func (o *OpenAI) Name() string { return "openai" }

// Synthesize returns MP3 audio for text.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (Clip, error) {
	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModelTTS1,
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return Clip{}, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return Clip{}, fmt.Errorf("read audio: %w", err)
	}
	return Clip{Audio: audio, Format: "mp3"}, nil
}
