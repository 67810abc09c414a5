package genx

import "iter"

var _ ModelContext = (*modelContext)(nil)

// ModelContextBuilder accumulates prompts and messages. Unlike a chat
// transcript merger it never joins consecutive messages of the same role.
type ModelContextBuilder struct {
	Prompts  []*Prompt
	Messages []*Message

	Params *ModelParams
}

// Build returns an immutable snapshot of the builder.
func (mcb *ModelContextBuilder) Build() ModelContext {
	mctx := &modelContext{
		prompts:  make([]*Prompt, len(mcb.Prompts)),
		messages: make([]*Message, len(mcb.Messages)),
	}
	for i, p := range mcb.Prompts {
		cp := *p
		mctx.prompts[i] = &cp
	}
	for i, m := range mcb.Messages {
		cm := *m
		mctx.messages[i] = &cm
	}
	if mcb.Params != nil {
		p := *mcb.Params
		mctx.params = &p
	}
	return mctx
}

func (mcb *ModelContextBuilder) lastPrompt() (*Prompt, bool) {
	if len(mcb.Prompts) == 0 {
		return nil, false
	}
	return mcb.Prompts[len(mcb.Prompts)-1], true
}

// AddPrompt appends prompt, joining it with the previous prompt when both
// carry the same name.
func (mcb *ModelContextBuilder) AddPrompt(prompt *Prompt) {
	if p, ok := mcb.lastPrompt(); ok && p.Name == prompt.Name {
		if p.Text != "" {
			p.Text += "\n" + prompt.Text
		} else {
			p.Text = prompt.Text
		}
		return
	}
	mcb.Prompts = append(mcb.Prompts, prompt)
}

func (mcb *ModelContextBuilder) AddMessage(msg *Message) {
	mcb.Messages = append(mcb.Messages, msg)
}

func (mcb *ModelContextBuilder) PromptText(name, text string) {
	mcb.AddPrompt(&Prompt{
		Name: name,
		Text: text,
	})
}

func (mcb *ModelContextBuilder) UserText(name, text string) {
	mcb.AddMessage(&Message{
		Role: RoleUser,
		Name: name,
		Text: text,
	})
}

func (mcb *ModelContextBuilder) ModelText(name, text string) {
	mcb.AddMessage(&Message{
		Role: RoleModel,
		Name: name,
		Text: text,
	})
}

type modelContext struct {
	prompts  []*Prompt
	messages []*Message
	params   *ModelParams
}

// Prompts, Messages and Params hand out copies so a built context cannot be
// changed by its consumers.

func (mctx *modelContext) Prompts() iter.Seq[*Prompt] {
	return func(yield func(*Prompt) bool) {
		for _, p := range mctx.prompts {
			cp := *p
			if !yield(&cp) {
				return
			}
		}
	}
}

func (mctx *modelContext) Messages() iter.Seq[*Message] {
	return func(yield func(*Message) bool) {
		for _, m := range mctx.messages {
			cm := *m
			if !yield(&cm) {
				return
			}
		}
	}
}

func (mctx *modelContext) Params() *ModelParams {
	if mctx.params == nil {
		return nil
	}
	p := *mctx.params
	return &p
}
