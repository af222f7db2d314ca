package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/timewise-games/content-cli/internal/kb"
	"github.com/timewise-games/content-cli/internal/model"
	"github.com/timewise-games/content-cli/internal/quality"
)

var (
	kbLearnText string
	kbLearnYear int
	kbLearnEra  string
	kbSeedForce bool
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the leaky-phrase knowledge base",
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known leaky phrases",
	RunE: func(cmd *cobra.Command, args []string) error {
		phrases, err := kb.NewFileStore(cfg.KB.Path).Load()
		if err != nil {
			return err
		}

		type entry struct {
			Phrase    string `json:"phrase"`
			YearRange [2]int `json:"year_range"`
		}
		entries := make([]entry, 0, len(phrases))
		for _, p := range phrases {
			entries = append(entries, entry{Phrase: p.Phrase, YearRange: p.YearRange})
		}

		zap.L().Info("knowledge base", zap.String("path", cfg.KB.Path), zap.Int("phrases", len(entries)))
		return printJSON(entries)
	},
}

var kbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write the starter phrase set to an empty knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := kb.NewFileStore(cfg.KB.Path)

		existing, err := fs.Load()
		if err != nil {
			return err
		}
		if len(existing) > 0 && !kbSeedForce {
			return eris.Errorf("knowledge base %s already has %d phrases, use --force to overwrite", cfg.KB.Path, len(existing))
		}

		phrases := seedPhrases()
		if err := fs.ReplaceAll(phrases); err != nil {
			return err
		}

		zap.L().Info("knowledge base seeded",
			zap.String("path", cfg.KB.Path),
			zap.Int("phrases", len(phrases)),
		)
		return nil
	},
}

var kbLearnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Append a leaky phrase to the knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		era, err := parseEra(kbLearnEra)
		if err != nil {
			return err
		}

		validator, err := quality.NewValidator(kb.NewFileStore(cfg.KB.Path))
		if err != nil {
			return err
		}

		before := validator.PhraseCount()
		validator.LearnFromRejected(model.CandidateEvent{EventText: kbLearnText}, kbLearnYear, era)

		zap.L().Info("phrase learned",
			zap.Int("year", kbLearnYear),
			zap.String("era", string(era)),
			zap.Int("phrases", validator.PhraseCount()),
			zap.Int("added", validator.PhraseCount()-before),
		)
		return nil
	},
}

func init() {
	kbLearnCmd.Flags().StringVar(&kbLearnText, "text", "", "leaky phrase text (required)")
	kbLearnCmd.Flags().IntVar(&kbLearnYear, "year", 0, "year the phrase gives away (required)")
	kbLearnCmd.Flags().StringVar(&kbLearnEra, "era", "CE", "era of the year (BCE or CE)")
	_ = kbLearnCmd.MarkFlagRequired("text")
	_ = kbLearnCmd.MarkFlagRequired("year")
	kbSeedCmd.Flags().BoolVar(&kbSeedForce, "force", false, "overwrite an existing knowledge base")
	kbCmd.AddCommand(kbListCmd)
	kbCmd.AddCommand(kbLearnCmd)
	kbCmd.AddCommand(kbSeedCmd)
	rootCmd.AddCommand(kbCmd)
}

// seedPhrases returns the built-in starter set of known-leaky phrasings with
// the year ranges they give away.
func seedPhrases() []kb.Phrase {
	starters := []struct {
		text      string
		yearRange [2]int
	}{
		{"shortly after the wall falls in berlin", [2]int{1989, 1992}},
		{"during the moon landing era", [2]int{1968, 1973}},
		{"as the black death sweeps across europe", [2]int{1346, 1353}},
		{"in the days of the newly crowned queen victoria", [2]int{1837, 1845}},
		{"while the french storm the bastille", [2]int{1789, 1790}},
		{"as columbus returns from his first voyage", [2]int{1493, 1494}},
		{"during the reign of the first roman emperor", [2]int{-27, 14}},
		{"while the great war rages in the trenches", [2]int{1914, 1918}},
		{"in the founding year of the american republic", [2]int{1776, 1783}},
		{"as the millennium turns and computers survive", [2]int{1999, 2001}},
	}

	phrases := make([]kb.Phrase, 0, len(starters))
	for _, s := range starters {
		phrases = append(phrases, kb.Phrase{
			Phrase:    s.text,
			YearRange: s.yearRange,
			Embedding: quality.Embed(s.text),
		})
	}
	return phrases
}

// parseEra normalizes an era flag value.
func parseEra(s string) (model.Era, error) {
	era := model.Era(strings.ToUpper(strings.TrimSpace(s)))
	if !era.Valid() {
		return "", eris.Errorf("invalid era %q, expected BCE or CE", s)
	}
	return era, nil
}
