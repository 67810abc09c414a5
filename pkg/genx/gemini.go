package genx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

var _ Generator = (*GeminiGenerator)(nil)

// GeminiGenerator implements Generator using Google Gemini API.
type GeminiGenerator struct {
	Client *genai.Client `json:"-"`

	GenerateParams *ModelParams `json:"generate_params,omitzero"`

	// Model should not start with "models/"
	Model string `json:"model"`
}

func (g *GeminiGenerator) Generate(ctx context.Context, _ string, mctx ModelContext) (*Result, error) {
	cfg, contents, err := g.convModelContext(mctx)
	if err != nil {
		return nil, err
	}
	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		var ae *apierror.APIError
		if errors.As(err, &ae) {
			err = ae.Unwrap()
		}
		return nil, Error(Usage{}, err)
	}
	var usage Usage
	if resp.UsageMetadata != nil {
		usage = geminiConvUsage(resp.UsageMetadata)
	}
	if len(resp.Candidates) == 0 {
		if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
			return nil, Blocked(usage, string(fb.BlockReason))
		}
		return nil, Error(usage, ErrNoCandidates)
	}

	c := resp.Candidates[0]
	res := &Result{Status: StatusDone, Usage: usage}
	switch c.FinishReason {
	case genai.FinishReasonUnspecified, "", genai.FinishReasonStop:
	case genai.FinishReasonMaxTokens:
		res.Status = StatusTruncated
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent,
		genai.FinishReasonBlocklist, genai.FinishReasonSPII, genai.FinishReasonRecitation:
		return nil, Blocked(usage, string(c.FinishReason))
	default:
		return nil, Error(usage, fmt.Errorf("unexpected finish reason: %s", c.FinishReason))
	}
	if c.Content != nil {
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if p.Text != "" && !p.Thought {
				sb.WriteString(p.Text)
			}
		}
		res.Text = sb.String()
	}
	return res, nil
}

func geminiConvMessage(msg *Message) (*genai.Content, error) {
	var role genai.Role
	switch msg.Role {
	default:
		return nil, fmt.Errorf("unexpected message role: %s", msg.Role)
	case RoleUser:
		role = genai.RoleUser
	case RoleModel:
		role = genai.RoleModel
	}
	return genai.NewContentFromText(msg.Text, role), nil
}

func (g *GeminiGenerator) convModelContext(mctx ModelContext) (*genai.GenerateContentConfig, []*genai.Content, error) {
	cfg := genai.GenerateContentConfig{}
	prompts := []*genai.Part{}
	for p := range mctx.Prompts() {
		prompts = append(prompts, genai.NewPartFromText(p.Text))
	}
	if len(prompts) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: prompts}
	}
	if mp := mctx.Params().merge(g.GenerateParams); mp != nil {
		if mp.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(mp.MaxTokens)
		}
		if mp.Temperature > 0 {
			cfg.Temperature = genai.Ptr(mp.Temperature)
		}
		if mp.TopP > 0 {
			cfg.TopP = genai.Ptr(mp.TopP)
		}
		if mp.TopK > 0 {
			cfg.TopK = genai.Ptr(mp.TopK)
		}
		if mp.PresencePenalty > 0 {
			cfg.PresencePenalty = genai.Ptr(mp.PresencePenalty)
		}
		if mp.FrequencyPenalty > 0 {
			cfg.FrequencyPenalty = genai.Ptr(mp.FrequencyPenalty)
		}
	}

	var contents []*genai.Content
	for msg := range mctx.Messages() {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		c, err := geminiConvMessage(msg)
		if err != nil {
			return nil, nil, err
		}
		contents = append(contents, c)
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("no contents")
	}

	return &cfg, contents, nil
}

func geminiConvUsage(usage *genai.GenerateContentResponseUsageMetadata) Usage {
	return Usage{
		PromptTokenCount:        int64(usage.PromptTokenCount),
		CachedContentTokenCount: int64(usage.CachedContentTokenCount),
		GeneratedTokenCount:     int64(usage.CandidatesTokenCount),
	}
}
