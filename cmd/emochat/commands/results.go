package commands

import (
	"fmt"
	"strconv"

	"github.com/haivivi/emochat/pkg/chat"
	"github.com/haivivi/emochat/pkg/chatbot"
	"github.com/haivivi/emochat/pkg/cli"
	"github.com/haivivi/emochat/pkg/emotion"
)

type predictResult struct {
	File       string                    `json:"file" yaml:"file"`
	Emotion    emotion.Label             `json:"emotion" yaml:"emotion"`
	Confidence float64                   `json:"confidence" yaml:"confidence"`
	Probs      map[emotion.Label]float64 `json:"probs" yaml:"probs"`
	Elapsed    string                    `json:"elapsed" yaml:"elapsed"`
}

func (r predictResult) Card() cli.Card {
	c := cli.Card{Title: "Emotion · " + r.File}
	c.Rows = append(c.Rows,
		cli.Row{Label: "emotion", Value: string(r.Emotion), Bar: -1},
		cli.Row{Label: "confidence", Value: cli.FormatPercent(r.Confidence), Bar: r.Confidence, Warn: r.Confidence < 0.5},
	)
	for _, l := range emotion.Labels {
		p, ok := r.Probs[l]
		if !ok {
			continue
		}
		c.Rows = append(c.Rows, cli.Row{Label: "  " + string(l), Value: cli.FormatPercent(p), Bar: p})
	}
	c.Rows = append(c.Rows, cli.Row{Label: "elapsed", Value: r.Elapsed, Bar: -1})
	return c
}

type replyResult struct {
	Text    string    `json:"text" yaml:"text"`
	Tier    chat.Tier `json:"tier" yaml:"tier"`
	Model   string    `json:"model,omitempty" yaml:"model,omitempty"`
	Tokens  int64     `json:"tokens,omitempty" yaml:"tokens,omitempty"`
	Elapsed string    `json:"elapsed" yaml:"elapsed"`
}

func (r replyResult) Card() cli.Card {
	model := r.Model
	if model == "" {
		model = "-"
	}
	return cli.Card{
		Title: "Reply",
		Rows: []cli.Row{
			{Label: "text", Value: r.Text, Bar: -1},
			{Label: "tier", Value: r.Tier.String(), Bar: -1, Warn: r.Tier != chat.TierPrimary},
			{Label: "model", Value: model, Bar: -1},
			{Label: "tokens", Value: strconv.FormatInt(r.Tokens, 10), Bar: -1},
			{Label: "elapsed", Value: r.Elapsed, Bar: -1},
		},
	}
}

type chatResult struct {
	UserText   string    `json:"user_text" yaml:"user_text"`
	ReplyText  string    `json:"reply_text" yaml:"reply_text"`
	Emotion    string    `json:"emotion" yaml:"emotion"`
	Confidence float64   `json:"confidence" yaml:"confidence"`
	Tier       chat.Tier `json:"tier" yaml:"tier"`
	User       string    `json:"user,omitempty" yaml:"user,omitempty"`
}

func newChatResult(r *chatbot.Response) chatResult {
	return chatResult{
		UserText:   r.UserText,
		ReplyText:  r.ReplyText,
		Emotion:    r.Emotion,
		Confidence: r.Confidence,
		Tier:       r.Tier,
		User:       r.UserID,
	}
}

func (r chatResult) Card() cli.Card {
	return cli.Card{
		Title: "Chat",
		Rows: []cli.Row{
			{Label: "you", Value: r.UserText, Bar: -1},
			{Label: "emotion", Value: r.Emotion, Bar: -1},
			{Label: "confidence", Value: cli.FormatPercent(r.Confidence), Bar: r.Confidence},
			{Label: "reply", Value: r.ReplyText, Bar: -1},
			{Label: "tier", Value: r.Tier.String(), Bar: -1, Warn: r.Tier != chat.TierPrimary},
		},
	}
}

type statsResult struct {
	User   string         `json:"user" yaml:"user"`
	Date   string         `json:"date" yaml:"date"`
	Counts map[string]int `json:"counts" yaml:"counts"`
}

func (r statsResult) total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

func (r statsResult) Card() cli.Card {
	total := r.total()
	c := cli.Card{Title: fmt.Sprintf("Emotions · %s · %s", r.User, r.Date)}
	for _, l := range emotion.Labels {
		n := r.Counts[string(l)]
		share := 0.0
		if total > 0 {
			share = float64(n) / float64(total)
		}
		c.Rows = append(c.Rows, cli.Row{Label: string(l), Value: strconv.Itoa(n), Bar: share})
	}
	c.Rows = append(c.Rows, cli.Row{Label: "total", Value: strconv.Itoa(total), Bar: -1})
	return c
}
