// Package chat builds model contexts for the voice chatbot and generates
// replies with a primary → fallback → degraded policy.
package chat

import (
	"fmt"
	"time"

	"github.com/haivivi/emochat/pkg/genx"
)

// Turn roles as stored in history. Anything other than RoleUser is treated as
// the assistant.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxHistory is the number of most recent turns sent to the model.
const MaxHistory = 10

// DefaultEmotion is used when no emotion is known for the utterance.
const DefaultEmotion = "neutral"

// Turn is one message of a conversation.
type Turn struct {
	Role       string    `json:"role" yaml:"role"`
	Content    string    `json:"content" yaml:"content"`
	Emotion    string    `json:"emotion,omitempty" yaml:"emotion,omitempty"`
	Confidence *float64  `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// Prompts holds the persona and templates used to build contexts.
type Prompts struct {
	// System is the persona prompt of the primary model.
	System string `yaml:"system,omitempty"`
	// User formats the final user turn; verbs receive emotion then text.
	User string `yaml:"user,omitempty"`
	// Fallback formats the short-form system prompt of the fallback model;
	// its verb receives the emotion.
	Fallback string `yaml:"fallback,omitempty"`
}

// DefaultPrompts returns the Vietnamese voice persona.
func DefaultPrompts() Prompts {
	return Prompts{
		System: "Bạn là chatbot giao tiếp bằng giọng nói. " +
			"Trả lời hoàn toàn bằng tiếng Việt, ngắn gọn, tự nhiên, thân thiện. " +
			"Điều chỉnh giọng điệu phù hợp với trạng thái người dùng. " +
			"KHÔNG nói tên cảm xúc, KHÔNG phán xét.",
		User: "Ngữ cảnh cảm xúc (ẩn, không được nhắc): %s\nNgười dùng nói: \"%s\"",
		Fallback: "Bạn là chatbot giao tiếp bằng giọng nói tiếng Việt. " +
			"Quy tắc: Trả lời cực ngắn (dưới 2 câu), không emoji. " +
			"Người dùng đang cảm thấy: '%s'. Điều chỉnh giọng điệu phù hợp.",
	}
}

// withDefaults fills empty templates from DefaultPrompts.
func (p Prompts) withDefaults() Prompts {
	d := DefaultPrompts()
	if p.System == "" {
		p.System = d.System
	}
	if p.User == "" {
		p.User = d.User
	}
	if p.Fallback == "" {
		p.Fallback = d.Fallback
	}
	return p
}

// BuildContext assembles the primary model context: the system prompt, the
// last MaxHistory turns in chronological order, then the current utterance
// annotated with its hidden emotion context.
func BuildContext(history []Turn, text, emotion string, p Prompts) genx.ModelContext {
	return contextBuilder(history, text, emotion, p).Build()
}

func contextBuilder(history []Turn, text, emotion string, p Prompts) *genx.ModelContextBuilder {
	p = p.withDefaults()
	if emotion == "" {
		emotion = DefaultEmotion
	}
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}

	mcb := &genx.ModelContextBuilder{}
	mcb.PromptText("system", p.System)
	for _, t := range history {
		if t.Role == RoleUser {
			mcb.UserText("", t.Content)
		} else {
			mcb.ModelText("", t.Content)
		}
	}
	mcb.UserText("", fmt.Sprintf(p.User, emotion, text))
	return mcb
}

// fallbackBuilder assembles the short-form fallback context: an instruction
// naming the emotion and only the current utterance.
func fallbackBuilder(text, emotion string, p Prompts) *genx.ModelContextBuilder {
	p = p.withDefaults()
	if emotion == "" {
		emotion = DefaultEmotion
	}
	mcb := &genx.ModelContextBuilder{}
	mcb.PromptText("system", fmt.Sprintf(p.Fallback, emotion))
	mcb.UserText("", text)
	return mcb
}
