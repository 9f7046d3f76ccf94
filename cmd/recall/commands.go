package main

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-recall/internal/report"
	"github.com/p-n-ai/pai-recall/internal/store"
	"github.com/p-n-ai/pai-recall/internal/study"
)

//go:embed samples
var samples embed.FS

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "recall",
		Short: "A spaced repetition flashcard trainer",
		Long: `Recall loads quiz decks (JSON, YAML or Markdown-style text) from a
directory and quizzes you on them, scheduling reviews with the SM-2 algorithm.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "read settings from this .env file")
	root.PersistentFlags().StringVar(&a.decksDir, "decks", "", "deck directory (overrides LEARN_DECKS_DIR)")

	root.AddCommand(
		newInitCmd(a),
		newDecksCmd(a),
		newStudyCmd(a),
		newStatsCmd(a),
		newExportCmd(a),
		newResetCmd(a),
	)
	return root
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write sample decks into the deck directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.DecksDir, 0o755); err != nil {
				return fmt.Errorf("creating deck directory: %w", err)
			}

			entries, err := fs.ReadDir(samples, "samples")
			if err != nil {
				return err
			}
			for _, e := range entries {
				dst := filepath.Join(cfg.DecksDir, e.Name())
				if _, err := os.Stat(dst); err == nil {
					fmt.Fprintf(a.out, "exists   %s\n", dst)
					continue
				}
				data, err := samples.ReadFile("samples/" + e.Name())
				if err != nil {
					return err
				}
				if err := os.WriteFile(dst, data, 0o644); err != nil {
					return fmt.Errorf("writing sample deck: %w", err)
				}
				fmt.Fprintf(a.out, "created  %s\n", dst)
			}
			return nil
		},
	}
}

func newDecksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decks",
		Short: "List loaded decks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.open(cmd.Context())
			if err != nil {
				return err
			}

			decks := eng.Decks()
			if len(decks) == 0 {
				fmt.Fprintf(a.out, "No decks found in %s. Run \"recall init\" to create samples.\n", a.cfg.DecksDir)
			} else {
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DECK\tNAME\tFORMAT\tQUESTIONS\tWARNINGS")
				for _, d := range decks {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", d.ID, d.Name, d.Format, len(d.Questions), len(d.Warnings))
				}
				tw.Flush()
			}
			for _, f := range a.report.Failures {
				fmt.Fprintf(a.out, "not loaded: %v\n", f)
			}
			return nil
		},
	}
}

func newStudyCmd(a *app) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "study [deck]",
		Short: "Start a study session",
		Long: `Start a study session over one deck, or all decks when none is given.
Review mode asks due questions and reschedules them. Random mode asks a
random sample and leaves the schedule untouched. Enter :q to stop early.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := study.ParseMode(mode)
			if err != nil {
				return err
			}
			eng, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			return runSession(cmd.Context(), eng, deckArg(args), m, a.in, a.out)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(study.ModeReview), "review or random")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "stats [deck]",
		Short: "Show performance statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			scope := store.Scope{DeckID: deckArg(args), Category: category}
			if scope.DeckID != "" {
				if _, err := eng.Deck(scope.DeckID); err != nil {
					return err
				}
			}
			an, err := eng.Analytics(cmd.Context(), scope)
			if err != nil {
				return err
			}
			printAnalytics(a.out, an)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "only questions in this category")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var out, category string
	cmd := &cobra.Command{
		Use:   "export [deck]",
		Short: "Export statistics and history to an XLSX workbook",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			r, err := eng.Report(cmd.Context(), store.Scope{DeckID: deckArg(args), Category: category})
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating export file: %w", err)
			}
			if err := report.WriteWorkbook(f, r); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("writing export file: %w", err)
			}
			fmt.Fprintf(a.out, "Exported %d questions and %d attempts to %s\n", len(r.Schedule), len(r.Attempts), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output .xlsx file")
	cmd.Flags().StringVarP(&category, "category", "c", "", "only questions in this category")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all review history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("reset deletes all review history; pass --force to confirm")
			}
			eng, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := eng.ResetProgress(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Review history deleted.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm deleting all review history")
	return cmd
}

func deckArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return filepath.ToSlash(strings.TrimSpace(args[0]))
}

func printAnalytics(w io.Writer, an study.Analytics) {
	s := an.Summary
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Questions:\t%d\n", s.Questions)
	fmt.Fprintf(tw, "Learned:\t%d\n", s.Learned)
	fmt.Fprintf(tw, "Due today:\t%d\n", an.Due)
	fmt.Fprintf(tw, "Attempts:\t%d\n", s.Attempts)
	fmt.Fprintf(tw, "Accuracy:\t%.1f%%\n", s.Accuracy*100)
	fmt.Fprintf(tw, "Avg response:\t%s\n", s.AvgResponseTime.Round(100*time.Millisecond))
	fmt.Fprintf(tw, "Avg easiness:\t%.2f\n", s.AvgEasiness)
	tw.Flush()

	if len(an.Problems) == 0 {
		return
	}
	fmt.Fprintln(w, "\nProblem questions:")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range an.Problems {
		fmt.Fprintf(tw, "  %.0f%%\t%d/%d\t%s\t%s\n", p.Accuracy*100, p.Correct, p.Attempts, p.DeckID, p.Text)
	}
	tw.Flush()
}
