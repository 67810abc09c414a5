package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/emochat/pkg/chat"
	"github.com/haivivi/emochat/pkg/cli"
	"github.com/haivivi/emochat/pkg/emotion"
)

var (
	replyText    string
	replyEmotion string
	replyFile    string
)

// replyRequest is the -f file format.
type replyRequest struct {
	Text    string      `json:"text" yaml:"text"`
	Emotion string      `json:"emotion" yaml:"emotion"`
	History []chat.Turn `json:"history" yaml:"history"`
}

var replyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Generate a reply for a transcript and an emotion",
	Long: `Generate a reply without audio. The request comes from flags or from a
YAML/JSON file ('-' reads stdin):

  text: hôm nay mệt quá
  emotion: sad
  history:
    - role: user
      content: chào bạn
    - role: assistant
      content: Chào bạn, hôm nay thế nào?

Flags override the file. The reply never fails; when every provider fails
the degraded message is returned with tier "degraded".

Examples:
  emochat reply --text "hôm nay mệt quá" --emotion sad
  emochat reply -f request.yaml --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}

		var req replyRequest
		if replyFile != "" {
			if err := cli.LoadRequest(replyFile, &req); err != nil {
				return err
			}
		}
		if replyText != "" {
			req.Text = replyText
		}
		if replyEmotion != "" {
			req.Emotion = replyEmotion
		}
		if req.Text == "" {
			return fmt.Errorf("--text or a request file with text is required")
		}
		if req.Emotion == "" {
			req.Emotion = chat.DefaultEmotion
		} else if _, ok := emotion.ParseLabel(req.Emotion); !ok {
			cli.PrintWarning("unknown emotion %q, passing it through", req.Emotion)
		}

		svc := newServices(cfg)
		defer svc.Close()
		r, err := svc.openReplier(cmd.Context())
		if err != nil {
			return err
		}

		start := time.Now()
		rep := r.Reply(cmd.Context(), chat.Request{
			Text:    req.Text,
			Emotion: req.Emotion,
			History: req.History,
		})
		return output(replyResult{
			Text:    rep.Text,
			Tier:    rep.Tier,
			Model:   rep.Model,
			Tokens:  rep.Usage.PromptTokenCount + rep.Usage.GeneratedTokenCount,
			Elapsed: cli.FormatDuration(time.Since(start)),
		})
	},
}

func init() {
	replyCmd.Flags().StringVar(&replyText, "text", "", "user utterance")
	replyCmd.Flags().StringVar(&replyEmotion, "emotion", "", "detected emotion (default neutral)")
	replyCmd.Flags().StringVarP(&replyFile, "file", "f", "", "request file (YAML or JSON, '-' for stdin)")
	rootCmd.AddCommand(replyCmd)
}
