package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	appconfig "github.com/wolfman30/mentalcare-crisis-engine/internal/config"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/crisis"
)

func newReplayCmd(root *rootOptions, cfg *appconfig.Config) *cobra.Command {
	var (
		threshold int
		resume    bool
	)

	cmd := &cobra.Command{
		Use:   "replay <transcript|->",
		Short: "Replay a transcript through the escalation state machine",
		Long: "Replay feeds each non-empty line of a transcript, one user utterance per line,\n" +
			"through the classifier and the escalation rules and prints every decision.\n" +
			"Lines starting with # are comments.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := root.registry(cmd)
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open transcript: %w", err)
				}
				defer f.Close()
				in = f
			}

			classifier := crisis.NewClassifier(registry.Get(root.lang), cfg.MaxUtteranceRunes)
			policy := crisis.Policy{EscalationThreshold: threshold}
			out := cmd.OutOrStdout()

			var (
				state       crisis.State
				activations int
				lineNo      int
			)
			scanner := bufio.NewScanner(in)
			for scanner.Scan() {
				lineNo++
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}

				verdict := classifier.Classify(line)
				next, decision := crisis.Transition(state, verdict, line, policy)
				fmt.Fprintf(out, "%4d  %-15s %-19s count=%d  %q\n",
					lineNo, verdict.Tier, decision, next.ConsecutiveGeneralCrisisCount, line)

				if decision == crisis.DecisionActivateEmergency {
					activations++
					fmt.Fprintf(out, "      emergency: %s\n", next.TriggerReason)
					if resume {
						next = next.Deactivate()
					}
				}
				state = next
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}

			fmt.Fprintf(out, "activations: %d\n", activations)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&threshold, "threshold", cfg.EscalationThreshold, "Consecutive general-crisis utterances needed to activate")
	f.BoolVar(&resume, "resume", false, "Reset the state after each activation, as if the user cancelled")
	return cmd
}
