package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/timewise-games/content-cli/internal/kb"
	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/quality"
)

var (
	validateText       string
	validateTitle      string
	validateGeo        string
	validateDifficulty int
	validateMeta       []string
)

var validateCmd = &cobra.Command{
	Use:   "validate [text]",
	Short: "Score a single clue against the knowledge base",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := validateText
		if len(args) > 0 {
			text = args[0]
		}
		if strings.TrimSpace(text) == "" {
			return eris.New("clue text is required, pass it as an argument or via --text")
		}

		validator, err := quality.NewValidator(kb.NewFileStore(cfg.KB.Path))
		if err != nil {
			return err
		}

		meta, err := parseMeta(validateMeta)
		if err != nil {
			return err
		}

		event := model.CandidateEvent{
			CanonicalTitle:  validateTitle,
			EventText:       text,
			Geo:             validateGeo,
			DifficultyGuess: validateDifficulty,
			Metadata:        meta,
		}

		return printJSON(validator.ValidateEvent(event))
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateText, "text", "", "clue text to score")
	validateCmd.Flags().StringVar(&validateTitle, "title", "", "canonical event title")
	validateCmd.Flags().StringVar(&validateGeo, "geo", "", "geographic region")
	validateCmd.Flags().IntVar(&validateDifficulty, "difficulty", 3, "difficulty guess (1-5)")
	validateCmd.Flags().StringArrayVar(&validateMeta, "meta", nil, "metadata field as key=value (repeatable)")
	rootCmd.AddCommand(validateCmd)
}

// parseMeta splits repeated key=value flags into a metadata map.
func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, eris.Errorf("invalid --meta value %q, expected key=value", pair)
		}
		meta[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return meta, nil
}
