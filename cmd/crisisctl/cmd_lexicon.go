package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/lexicon"
)

func newLexiconCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexicon",
		Short: "Inspect and validate crisis lexicons",
	}
	cmd.AddCommand(newLexiconValidateCmd(root))
	cmd.AddCommand(newLexiconShowCmd(root))
	return cmd
}

func newLexiconValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Validate every lexicon file in a directory",
		Long: "Validate parses each *.yaml file strictly, rejects duplicate and reserved\n" +
			"phrases and checks that the default language (--lang) is present.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lexicons, err := lexicon.LoadDir(args[0])
			if err != nil {
				return err
			}
			if len(lexicons) == 0 {
				return fmt.Errorf("no lexicon files in %s", args[0])
			}
			if _, err := lexicon.NewRegistry(root.lang, lexicons...); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, l := range lexicons {
				fmt.Fprintf(out, "%-6s version=%s high_priority=%d general=%d\n",
					l.Language(), l.Version(), len(l.HighPriority()), len(l.General()))
			}
			fmt.Fprintf(out, "ok: %d lexicon(s)\n", len(lexicons))
			return nil
		},
	}
}

func newLexiconShowCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the normalized phrases of the selected lexicon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := root.registry(cmd)
			if err != nil {
				return err
			}
			l := registry.Get(root.lang)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "language: %s\nversion: %s\n", l.Language(), l.Version())
			fmt.Fprintf(out, "high_priority:\n  %s\n", strings.Join(l.HighPriority(), "\n  "))
			fmt.Fprintf(out, "general:\n  %s\n", strings.Join(l.General(), "\n  "))
			return nil
		},
	}
}
