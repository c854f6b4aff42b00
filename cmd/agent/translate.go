package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/algovids/algovids-agent/internal/translate"
)

var translateFlags struct {
	text     string
	language string
	key      string
}

var translateCmd = &cobra.Command{
	Use:   "translate [text]",
	Short: "Translate narration text and print the result",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := translateFlags.text
		if len(args) == 1 {
			text = args[0]
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("text is required (argument or --text)")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		key := translateFlags.key
		if key == "" {
			key = a.cfg.DefaultCredential()
		}

		res, err := a.translator.Translate(cmd.Context(), translate.Request{
			Text:       text,
			Language:   translateFlags.language,
			Credential: key,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, res.Translated)
		return nil
	},
}

func init() {
	f := translateCmd.Flags()
	f.StringVar(&translateFlags.text, "text", "", "text to translate")
	f.StringVar(&translateFlags.language, "language", translate.DefaultLanguage, "target language")
	f.StringVar(&translateFlags.key, "key", "", "Gemini API key (defaults to GEMINI_API_KEY)")
}
