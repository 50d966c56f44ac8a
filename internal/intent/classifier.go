package intent

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"lcars/internal/memory"
)

const systemPrompt = `
You are the intent classifier for a voice-controlled ship computer.
Convert the user's utterance into minimal structured JSON.

RULES:
1. Output ONLY JSON. No markdown, no explanations.
2. Never invent devices or parameters.
3. For "conversation", also answer the user briefly in "reply"
   (one or two sentences, spoken aloud).

OUTPUT FORMAT:
{
  "category": "<string>",
  "parameters": { "<string>": "<string>", ... },
  "confidence": <0.0-1.0>,
  "reply": "<string, conversation only>"
}

CATEGORIES:
- "device-media"     media playback and apps: play, pause, open netflix, volume
- "home-automation"  lights, switches, thermostat, locks
- "conversation"     questions, chat, anything not a device command
- "alert"            red alert / battle stations
- "unknown"          unclassifiable

PARAMETERS (strict):
- device-media:     "action" (play|pause|stop|launch|volume_up|volume_down),
                    "app" (lowercase app name, optional)
- home-automation:  "device" (lowercase accessory name),
                    "action" (on|off|brightness),
                    "brightness" (0-100, optional)
- alert:            none

The recent conversation is provided for context; classify only the
final user utterance.
`

// OpenAIClassifier resolves categories with a chat completion. One call
// yields category, parameters, and the conversational reply.
type OpenAIClassifier struct {
	client openai.Client
	model  openai.ChatModel
}

func NewOpenAIClassifier(client openai.Client) *OpenAIClassifier {
	return &OpenAIClassifier{client: client, model: openai.ChatModelGPT5Nano}
}

func (c *OpenAIClassifier) Classify(ctx context.Context, text string, turns []memory.Turn) (Intent, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+2)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, t := range turns {
		if t.Role == memory.RoleSystem {
			messages = append(messages, openai.AssistantMessage(t.Text))
		} else {
			messages = append(messages, openai.UserMessage(t.Text))
		}
	}
	messages = append(messages, openai.UserMessage(text))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    c.model,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Intent{}, fmt.Errorf("no choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return Intent{}, fmt.Errorf("empty message content")
	}

	log.Debug("classified", "raw", content)

	var out struct {
		Category   string            `json:"category"`
		Parameters map[string]string `json:"parameters"`
		Confidence float64           `json:"confidence"`
		Reply      string            `json:"reply"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Intent{}, fmt.Errorf("unmarshal classification: %w (raw: %s)", err, content)
	}

	it := Intent{
		Category:   Category(out.Category),
		Parameters: out.Parameters,
		Confidence: out.Confidence,
		Reply:      out.Reply,
	}
	if it.Parameters == nil {
		it.Parameters = map[string]string{}
	}
	if !validCategory(it.Category) {
		return Intent{}, fmt.Errorf("unrecognized category %q", out.Category)
	}
	return it, nil
}
