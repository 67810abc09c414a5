package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/emochat/pkg/chatbot"
)

var (
	chatText  string
	chatToken string
)

var chatCmd = &cobra.Command{
	Use:   "chat <file.wav>",
	Short: "Run one voice turn through the full pipeline",
	Long: `Run one voice turn exactly as POST /chat does: emotion prediction,
history lookup, reply generation and persistence.

Examples:
  emochat chat clip.wav --text "hôm nay mệt quá"
  emochat chat clip.wav --text "xin chào" --token $TOKEN --format card`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if chatText == "" {
			return fmt.Errorf("--text is required")
		}
		audio, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}

		svc := newServices(cfg)
		defer svc.Close()
		pipeline, err := svc.openPipeline(cmd.Context())
		if err != nil {
			return err
		}

		resp, err := pipeline.Chat(cmd.Context(), chatbot.Request{
			Audio:      audio,
			Text:       chatText,
			Credential: chatToken,
		})
		if err != nil {
			return err
		}
		return output(newChatResult(resp))
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatText, "text", "", "transcript of the recording")
	chatCmd.Flags().StringVar(&chatToken, "token", "", "bearer token identifying the user")
	rootCmd.AddCommand(chatCmd)
}
