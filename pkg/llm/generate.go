package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/nightjarlabs/nightjar/pkg/rubric"
)

// HistoryItem is one prior conversation message as received from the caller.
type HistoryItem struct {
	Sender string
	Text   string
}

// GenRequest carries everything the generator needs for one decoy reply.
type GenRequest struct {
	IncomingText string
	History      []HistoryItem
	Hint         string
	Turn         int
	Deficits     rubric.Deficits
}

// Generator produces the decoy's next reply.
type Generator interface {
	Reply(ctx context.Context, req GenRequest) (string, error)
}

// historyWindow is how many trailing history messages are sent to the model.
const historyWindow = 8

const (
	replyTemperature = 0.8
	replyMaxTokens   = 90
)

// ChatGenerator generates replies through the chat client, steering the model
// with the probe hint and the session's unmet rubric targets.
type ChatGenerator struct {
	client *Client
}

// NewChatGenerator wraps a chat client as a Generator.
func NewChatGenerator(client *Client) *ChatGenerator {
	return &ChatGenerator{client: client}
}

// Reply implements Generator. One attempt, no retries: the caller substitutes
// a fixed fallback on failure.
func (g *ChatGenerator) Reply(ctx context.Context, req GenRequest) (string, error) {
	messages := []Message{{Role: "system", Content: systemPrompt(req)}}

	history := req.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for _, item := range history {
		if item.Text == "" {
			continue
		}
		role := "assistant"
		if strings.EqualFold(item.Sender, "scammer") {
			role = "user"
		}
		messages = append(messages, Message{Role: role, Content: item.Text})
	}
	messages = append(messages, Message{Role: "user", Content: req.IncomingText})

	return g.client.Chat(ctx, messages, replyTemperature, replyMaxTokens)
}

func systemPrompt(req GenRequest) string {
	d := req.Deficits
	return strings.TrimSpace(fmt.Sprintf(`
You are a normal middle-class person chatting naturally in English.

STRICT RULES:
- Never share OTP/PIN/CVV/password.
- Never accuse anyone or say the words: scam, fraud, AI, bot, honeypot.
- 1-2 short sentences.
- Ask at most ONE question.

GOAL:
- Keep the conversation going naturally.
- Sound slightly worried/confused but cooperative.
- Gradually get details.

PREFERRED QUESTION TOPIC (use if relevant): %s

CONVERSATION TARGETS (by turn ~8):
- total questions >= 5 (still needed now: %t)
- investigative/verification wording >= 3 (still needed now: %t)
- mention pressure words sometimes (urgent/OTP/link/transfer/blocked) (still needed now: %t)
- ask for details (account/email/phone/link/upi/reference) (still needed now: %t)

Important: Do NOT ask multiple questions. Do NOT end the conversation.
`, req.Hint, d.Question, d.Investigative, d.RedFlag, d.Elicitation))
}
