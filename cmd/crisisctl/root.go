package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/app/bootstrap"
	appconfig "github.com/wolfman30/mentalcare-crisis-engine/internal/config"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/lexicon"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootOptions struct {
	lexiconDir string
	lang       string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	cfg := appconfig.Load()
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "crisisctl",
		Short: "Offline tooling for the crisis lexicons and escalation rules",
		Long: "crisisctl classifies utterances, replays transcripts through the escalation\n" +
			"state machine and validates lexicon directories before they are deployed.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.lexiconDir, "lexicon-dir", cfg.LexiconDir, "Lexicon directory (default: embedded lexicons, env LEXICON_DIR)")
	f.StringVar(&opts.lang, "lang", cfg.DefaultLanguage, "Language code used to pick the lexicon")
	f.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(newClassifyCmd(opts, cfg))
	root.AddCommand(newReplayCmd(opts, cfg))
	root.AddCommand(newLexiconCmd(opts))
	return root
}

// logger writes to stderr so command output stays machine readable.
func (o *rootOptions) logger(cmd *cobra.Command) *logging.Logger {
	return logging.NewWithWriter(o.logLevel, cmd.ErrOrStderr())
}

// registry loads the lexicons the API would load for the same settings.
func (o *rootOptions) registry(cmd *cobra.Command) (*lexicon.Registry, error) {
	registry, _, err := bootstrap.BuildLexicons(&appconfig.Config{
		LexiconDir:      o.lexiconDir,
		DefaultLanguage: o.lang,
	}, o.logger(cmd))
	if err != nil {
		return nil, fmt.Errorf("load lexicons: %w", err)
	}
	return registry, nil
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
