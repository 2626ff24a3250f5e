package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	appconfig "github.com/wolfman30/mentalcare-crisis-engine/internal/config"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/crisis"
)

type classifyResult struct {
	Text string `json:"text"`
	crisis.Verdict
}

func newClassifyCmd(root *rootOptions, cfg *appconfig.Config) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify [text...]",
		Short: "Classify utterances against a lexicon",
		Long: "Classify joins its arguments into one utterance. With no arguments it reads\n" +
			"stdin and classifies every non-empty line.",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := root.registry(cmd)
			if err != nil {
				return err
			}
			classifier := crisis.NewClassifier(registry.Get(root.lang), cfg.MaxUtteranceRunes)

			var utterances []string
			if len(args) > 0 {
				utterances = []string{strings.Join(args, " ")}
			} else {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					if line := strings.TrimSpace(scanner.Text()); line != "" {
						utterances = append(utterances, line)
					}
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			for _, u := range utterances {
				verdict := classifier.Classify(u)
				if asJSON {
					if err := enc.Encode(classifyResult{Text: u, Verdict: verdict}); err != nil {
						return err
					}
					continue
				}
				if verdict.IsCrisis() {
					fmt.Fprintf(out, "%-15s %q  (matched %q)\n", verdict.Tier, u, verdict.MatchedPhrase)
				} else {
					fmt.Fprintf(out, "%-15s %q\n", verdict.Tier, u)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit one JSON verdict per line")
	return cmd
}
