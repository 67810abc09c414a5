package genx

import (
	"context"
	"iter"

	"github.com/goccy/go-yaml"
)

type ModelParams struct {
	MaxTokens        int     `json:"max_tokens,omitzero" yaml:"max_tokens,omitzero"`
	FrequencyPenalty float32 `json:"frequency_penalty,omitzero" yaml:"frequency_penalty,omitzero"`
	Temperature      float32 `json:"temperature,omitzero" yaml:"temperature,omitzero"`
	TopP             float32 `json:"top_p,omitzero" yaml:"top_p,omitzero"`
	PresencePenalty  float32 `json:"presence_penalty,omitzero" yaml:"presence_penalty,omitzero"`
	TopK             float32 `json:"top_k,omitzero" yaml:"top_k,omitzero"`
}

// merge returns p with every zero field filled from base.
func (p *ModelParams) merge(base *ModelParams) *ModelParams {
	switch {
	case p == nil:
		return base
	case base == nil:
		return p
	}
	out := *p
	if out.MaxTokens == 0 {
		out.MaxTokens = base.MaxTokens
	}
	if out.FrequencyPenalty == 0 {
		out.FrequencyPenalty = base.FrequencyPenalty
	}
	if out.Temperature == 0 {
		out.Temperature = base.Temperature
	}
	if out.TopP == 0 {
		out.TopP = base.TopP
	}
	if out.PresencePenalty == 0 {
		out.PresencePenalty = base.PresencePenalty
	}
	if out.TopK == 0 {
		out.TopK = base.TopK
	}
	return &out
}

type Prompt struct {
	Name string
	Text string
}

type ModelContext interface {
	Prompts() iter.Seq[*Prompt]
	Messages() iter.Seq[*Message]

	Params() *ModelParams
}

// Generator produces one completion for a model context. model is the name
// the generator was registered under; single-model generators ignore it.
type Generator interface {
	Generate(ctx context.Context, model string, mctx ModelContext) (*Result, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, model string, mctx ModelContext) (*Result, error)

func (f GeneratorFunc) Generate(ctx context.Context, model string, mctx ModelContext) (*Result, error) {
	return f(ctx, model, mctx)
}

// Result is a finished completion. Status is StatusDone or StatusTruncated;
// blocked and failed generations are returned as errors.
type Result struct {
	Text   string
	Status Status
	Usage  Usage
}

type Usage struct {
	// Number of tokens in the prompt. When cached_content is set, this is still
	// the total effective prompt size. I.e. this includes the number of tokens
	// in the cached content.
	PromptTokenCount int64

	// Number of tokens in the cached part of the prompt, i.e. in the cached
	// content.
	CachedContentTokenCount int64

	// Number of tokens generated.
	GeneratedTokenCount int64
}

func (u Usage) String() string {
	b, _ := yaml.Marshal(map[string]map[string]any{
		"Usage": {
			"Prompt":    u.PromptTokenCount,
			"Cached":    u.CachedContentTokenCount,
			"Generated": u.GeneratedTokenCount,
		},
	})
	return string(b)
}

// InspectModelContext renders mctx as YAML for debugging.
func InspectModelContext(mctx ModelContext) (string, error) {
	type message struct {
		Role string `yaml:"role"`
		Name string `yaml:"name,omitempty"`
		Text string `yaml:"text"`
	}
	doc := struct {
		Prompts  []Prompt     `yaml:"prompts,omitempty"`
		Messages []message    `yaml:"messages,omitempty"`
		Params   *ModelParams `yaml:"params,omitempty"`
	}{Params: mctx.Params()}
	for p := range mctx.Prompts() {
		doc.Prompts = append(doc.Prompts, *p)
	}
	for m := range mctx.Messages() {
		doc.Messages = append(doc.Messages, message{Role: m.Role.String(), Name: m.Name, Text: m.Text})
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
