package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-seed/internal/curriculum"
	"github.com/p-n-ai/pai-seed/internal/seed"
)

var (
	skipUnchanged bool
	resyncTypes   string
)

var runCmd = &cobra.Command{
	Use:   "run <routine>",
	Short: "Run a population routine",
	Long: `Run one of the named population routines:

  templates     replace every learning-path template by slug
  languages     replace every exercise bank and recount exercise_count
  translations  delete and rebuild translation rows of every allow-listed type
  all           templates, languages, translations in that order

Reruns over the same content leave the database unchanged.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: seed.Routines(),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer e.Close()

		sum, err := e.runner.Run(cmd.Context(), args[0], seed.RunOptions{SkipUnchanged: skipUnchanged})
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), sum)
		return nil
	},
}

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Delete and rebuild translation rows",
	Long: `Delete every translation row owned by the given entity types with one
statement, then rebuild them from content. An empty --types means all of:
` + kindList(seed.AllowList),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := seed.ParseKinds(resyncTypes)
		if err != nil {
			return err
		}
		e, err := setup(cmd.Context(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer e.Close()

		sum, err := e.runner.Resync(cmd.Context(), kinds)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), sum)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List routines and the content they would write",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun = true
		e, err := setup(cmd.Context(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer e.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "routines: %s\n", strings.Join(seed.Routines(), ", "))
		cat := e.loader.Catalog()
		fmt.Fprintf(out, "templates (%d):\n", len(cat.Templates))
		for _, t := range cat.Templates {
			fmt.Fprintf(out, "  %s  %d milestones\n", t.Slug, len(t.Milestones))
		}
		fmt.Fprintf(out, "languages (%d):\n", len(cat.Languages))
		for _, l := range cat.Languages {
			fmt.Fprintf(out, "  %s  %d exercises\n", l.Slug, len(l.Exercises))
		}
		return nil
	},
}

var exportWorkbookCmd = &cobra.Command{
	Use:   "export-workbook <language> <file.xlsx>",
	Short: "Write a language's exercise bank to a workbook",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun = true
		e, err := setup(cmd.Context(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer e.Close()

		lang, ok := e.loader.GetLanguage(args[0])
		if !ok {
			return fmt.Errorf("language %q not found in %s", args[0], e.cfg.CurriculumPath)
		}
		if err := curriculum.WriteExerciseWorkbook(args[1], lang); err != nil {
			return fmt.Errorf("export %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d exercises to %s\n", len(lang.Exercises), args[1])
		return nil
	},
}

func kindList(kinds []curriculum.EntityKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func init() {
	runCmd.Flags().BoolVar(&skipUnchanged, "skip-unchanged", false, "skip routines whose content did not change since their last successful run")
	resyncCmd.Flags().StringVar(&resyncTypes, "types", "", "comma-separated entity types, e.g. task,knowledge_item")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resyncCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportWorkbookCmd)
}
