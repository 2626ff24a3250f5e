// Package crisis decides whether an utterance expresses an acute self-harm crisis and
// whether the conversation should enter the emergency protocol.
package crisis

import (
	"strings"
	"unicode/utf8"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/lexicon"
)

// DefaultMaxUtteranceRunes bounds matching cost at O(n*m).
const DefaultMaxUtteranceRunes = 10000

// Tier is the severity bucket of a verdict.
type Tier string

const (
	TierNone          Tier = "none"
	TierHighPriority  Tier = "high_priority"
	TierGeneralCrisis Tier = "general_crisis"
)

// Verdict is the classifier output for a single utterance.
type Verdict struct {
	Tier           Tier   `json:"tier"`
	MatchedPhrase  string `json:"matched_phrase,omitempty"`
	LexiconVersion string `json:"lexicon_version,omitempty"`
}

// IsCrisis reports whether the verdict carries any crisis signal.
func (v Verdict) IsCrisis() bool {
	return v.Tier == TierHighPriority || v.Tier == TierGeneralCrisis
}

// Classifier matches utterances against one lexicon. It holds no mutable state and is
// safe for concurrent use.
type Classifier struct {
	lex      *lexicon.Lexicon
	maxRunes int
}

// NewClassifier creates a classifier. maxRunes <= 0 uses DefaultMaxUtteranceRunes.
func NewClassifier(lex *lexicon.Lexicon, maxRunes int) *Classifier {
	if lex == nil {
		lex = lexicon.Default()
	}
	if maxRunes <= 0 {
		maxRunes = DefaultMaxUtteranceRunes
	}
	return &Classifier{lex: lex, maxRunes: maxRunes}
}

// Lexicon returns the lexicon this classifier matches against.
func (c *Classifier) Lexicon() *lexicon.Lexicon {
	return c.lex
}

// Classify returns the most severe tier matched by utterance. High-priority phrases are
// checked first and the first matching phrase wins. The "911" shortcut, in any casing
// and surrounding whitespace, is never a crisis.
func (c *Classifier) Classify(utterance string) Verdict {
	normalized := c.lex.Normalize(truncateRunes(utterance, c.maxRunes))
	none := Verdict{Tier: TierNone, LexiconVersion: c.lex.Version()}

	if normalized == "" || IsShortcut(normalized) {
		return none
	}
	if phrase, ok := c.lex.FirstHighPriority(normalized); ok {
		return Verdict{Tier: TierHighPriority, MatchedPhrase: phrase, LexiconVersion: c.lex.Version()}
	}
	if phrase, ok := c.lex.FirstGeneral(normalized); ok {
		return Verdict{Tier: TierGeneralCrisis, MatchedPhrase: phrase, LexiconVersion: c.lex.Version()}
	}
	return none
}

// IsShortcut reports whether text is exactly the direct-call shortcut once trimmed.
func IsShortcut(text string) bool {
	return strings.TrimSpace(text) == lexicon.ReservedShortcut
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	i := 0
	for pos := range s {
		if i == max {
			return s[:pos]
		}
		i++
	}
	return s
}
