package answers

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/lexicon"
)

//go:embed data/predefined.yaml
var bankFS embed.FS

type bankFile struct {
	Language  string      `yaml:"language"`
	Questions []bankEntry `yaml:"questions"`
}

type bankEntry struct {
	Answer `yaml:",inline"`
	Hints  [][]string `yaml:"hints"`
}

type bankItem struct {
	answer   Answer
	question string
	hints    [][]string
}

// Bank is the ordered, read-only predefined question bank.
type Bank struct {
	tag   language.Tag
	items []bankItem
	byID  map[string]int
}

// LoadBank parses a YAML question bank.
func LoadBank(r io.Reader) (*Bank, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f bankFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("answers: decode bank: %w", err)
	}
	tag, err := language.Parse(f.Language)
	if err != nil {
		return nil, fmt.Errorf("answers: bank language %q: %w", f.Language, err)
	}

	b := &Bank{tag: tag, byID: make(map[string]int, len(f.Questions))}
	for _, q := range f.Questions {
		if q.ID == "" || strings.TrimSpace(q.Question) == "" || strings.TrimSpace(q.Answer.Answer) == "" {
			return nil, fmt.Errorf("answers: bank entry %q: %w", q.ID, ErrInvalidQuestion)
		}
		if _, dup := b.byID[q.ID]; dup {
			return nil, fmt.Errorf("answers: duplicate bank entry %q", q.ID)
		}
		item := bankItem{
			answer:   q.Answer,
			question: lexicon.Normalize(tag, q.Question),
		}
		item.answer.Source = SourcePredefined
		for _, group := range q.Hints {
			words := make([]string, 0, len(group))
			for _, w := range group {
				if w = lexicon.Normalize(tag, w); w != "" {
					words = append(words, w)
				}
			}
			if len(words) > 0 {
				item.hints = append(item.hints, words)
			}
		}
		b.byID[q.ID] = len(b.items)
		b.items = append(b.items, item)
	}
	return b, nil
}

// DefaultBank returns the embedded Spanish bank. It panics if the embedded file is invalid.
func DefaultBank() *Bank {
	data, err := bankFS.ReadFile("data/predefined.yaml")
	if err != nil {
		panic(fmt.Sprintf("answers: embedded bank missing: %v", err))
	}
	b, err := LoadBank(bytes.NewReader(data))
	if err != nil {
		panic(err)
	}
	return b
}

// Get returns the entry with id.
func (b *Bank) Get(id string) (Answer, bool) {
	i, ok := b.byID[id]
	if !ok {
		return Answer{}, false
	}
	return b.items[i].answer, true
}

// All returns the entries in display order.
func (b *Bank) All() []Answer {
	out := make([]Answer, len(b.items))
	for i, item := range b.items {
		out[i] = item.answer
	}
	return out
}

// Tag is the language used for normalization.
func (b *Bank) Tag() language.Tag { return b.tag }

// match returns the first entry whose question overlaps normalized in either
// direction or whose hint words all appear in it.
func (b *Bank) match(normalized string) (Answer, bool) {
	for _, item := range b.items {
		if item.answer.Action == ActionPlaceCall {
			continue
		}
		if overlaps(normalized, item.question) || item.hinted(normalized) {
			return item.answer, true
		}
	}
	return Answer{}, false
}

func (i bankItem) hinted(normalized string) bool {
	for _, group := range i.hints {
		all := true
		for _, w := range group {
			if !strings.Contains(normalized, w) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func overlaps(input, question string) bool {
	if input == "" || question == "" {
		return false
	}
	return strings.Contains(input, question) || strings.Contains(question, input)
}
