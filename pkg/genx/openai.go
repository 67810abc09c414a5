package genx

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
)

var _ Generator = (*OpenAIGenerator)(nil)

const (
	oaiFinishReasonStop          string = "stop"
	oaiFinishReasonLength        string = "length"
	oaiFinishReasonContentFilter string = "content_filter"

	oaiMaxTextContentLength = 1048576
)

// OpenAIGenerator implements Generator using the OpenAI chat completions API.
// Any OpenAI-compatible endpoint (Groq, vLLM, ...) works through the
// client's base URL.
type OpenAIGenerator struct {
	Client *openai.Client `json:"-"`

	Model string `json:"model"`

	GenerateParams *ModelParams `json:"generate_params,omitzero"`

	UseSystemRole bool `json:"use_system_role,omitzero"`

	ExtraFields map[string]any `json:"extra_fields,omitzero"`
}

func (g *OpenAIGenerator) Generate(ctx context.Context, _ string, mctx ModelContext) (*Result, error) {
	params, err := g.chatCompletion(mctx)
	if err != nil {
		return nil, err
	}
	resp, err := g.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, Error(Usage{}, err)
	}
	usage := oaiConvUsage(&resp.Usage)
	if len(resp.Choices) == 0 {
		return nil, Error(usage, ErrNoCandidates)
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, Blocked(usage, choice.Message.Refusal)
	}
	res := &Result{Text: choice.Message.Content, Status: StatusDone, Usage: usage}
	switch choice.FinishReason {
	case oaiFinishReasonStop, "":
	case oaiFinishReasonLength:
		res.Status = StatusTruncated
	case oaiFinishReasonContentFilter:
		return nil, Blocked(usage, "content filter")
	default:
		return nil, Error(usage, fmt.Errorf("unexpected finish reason: %s", choice.FinishReason))
	}
	return res, nil
}

func (g *OpenAIGenerator) chatCompletion(mctx ModelContext) (openai.ChatCompletionNewParams, error) {
	msgs, err := g.convModelContext(mctx)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    g.Model,
	}
	if mp := mctx.Params().merge(g.GenerateParams); mp != nil {
		if mp.FrequencyPenalty > 0 {
			params.FrequencyPenalty = param.NewOpt(float64(mp.FrequencyPenalty))
		}
		if mp.MaxTokens > 0 {
			params.MaxCompletionTokens = param.NewOpt(int64(mp.MaxTokens))
		}
		if mp.Temperature > 0 {
			params.Temperature = param.NewOpt(float64(mp.Temperature))
		}
		if mp.TopP > 0 {
			params.TopP = param.NewOpt(float64(mp.TopP))
		}
		if mp.PresencePenalty > 0 {
			params.PresencePenalty = param.NewOpt(float64(mp.PresencePenalty))
		}
	}
	if len(g.ExtraFields) > 0 {
		params.SetExtraFields(g.ExtraFields)
	}
	return params, nil
}

func (g *OpenAIGenerator) convModelContext(mctx ModelContext) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := []openai.ChatCompletionMessageParamUnion{}
	for p := range mctx.Prompts() {
		out = append(out, g.convPrompt(p)...)
	}
	for msg := range mctx.Messages() {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		mp, err := g.convMessage(msg)
		if err != nil {
			return nil, err
		}
		out = append(out, mp)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("genx: empty model context")
	}
	return out, nil
}

func (g *OpenAIGenerator) convPrompt(p *Prompt) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(p.Text)/oaiMaxTextContentLength+1)
	t := p.Text
	for len(t) > 0 {
		v := t
		if len(v) > oaiMaxTextContentLength {
			v, t = t[:oaiMaxTextContentLength], t[oaiMaxTextContentLength:]
		} else {
			t = ""
		}
		if g.UseSystemRole {
			mp := openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: param.NewOpt(v),
					},
				},
			}
			if p.Name != "" {
				mp.OfSystem.Name = param.NewOpt(p.Name)
			}
			out = append(out, mp)
		} else {
			mp := openai.ChatCompletionMessageParamUnion{
				OfDeveloper: &openai.ChatCompletionDeveloperMessageParam{
					Content: openai.ChatCompletionDeveloperMessageParamContentUnion{
						OfString: param.NewOpt(v),
					},
				},
			}
			if p.Name != "" {
				mp.OfDeveloper.Name = param.NewOpt(p.Name)
			}
			out = append(out, mp)
		}
	}
	return out
}

func (g *OpenAIGenerator) convMessage(msg *Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case RoleUser:
		mp := openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: param.NewOpt(msg.Text),
			},
		}
		if msg.Name != "" {
			mp.Name = param.NewOpt(msg.Name)
		}
		return openai.ChatCompletionMessageParamUnion{OfUser: &mp}, nil
	case RoleModel:
		mp := openai.ChatCompletionAssistantMessageParam{
			Content: openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: param.NewOpt(msg.Text),
			},
		}
		if msg.Name != "" {
			mp.Name = param.NewOpt(msg.Name)
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &mp}, nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf(
			"unexpected message role: %s, a message must be a user or model message",
			msg.Role,
		)
	}
}

func oaiConvUsage(usage *openai.CompletionUsage) Usage {
	return Usage{
		PromptTokenCount:        usage.PromptTokens,
		CachedContentTokenCount: usage.PromptTokensDetails.CachedTokens,
		GeneratedTokenCount:     usage.CompletionTokens,
	}
}
