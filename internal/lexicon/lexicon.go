// Package lexicon holds the crisis trigger phrases, partitioned into severity tiers
// and keyed by language. Lexicons are immutable once built.
package lexicon

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// ReservedShortcut is the direct-call shortcut. It can never be a crisis phrase.
const ReservedShortcut = "911"

var (
	ErrReservedPhrase  = errors.New("lexicon: reserved phrase")
	ErrEmptyPhrase     = errors.New("lexicon: empty phrase")
	ErrInvalidLanguage = errors.New("lexicon: invalid language")
	ErrNoPhrases       = errors.New("lexicon: no phrases")
)

//go:embed data/*.yaml
var embedded embed.FS

// Lexicon is an immutable, case-normalized pair of ordered phrase lists.
type Lexicon struct {
	language     string
	version      string
	tag          language.Tag
	highPriority []string
	general      []string
}

type document struct {
	Language     string   `yaml:"language"`
	Version      string   `yaml:"version"`
	HighPriority []string `yaml:"high_priority"`
	General      []string `yaml:"general"`
}

// New builds a lexicon. Phrases are normalized with the language's lower-case
// mapping; duplicates are dropped keeping the first occurrence, and a general
// keyword that repeats a high-priority phrase is dropped from the general tier.
func New(lang, version string, highPriority, general []string) (*Lexicon, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	tag, err := language.Parse(lang)
	if err != nil || lang == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLanguage, lang)
	}

	l := &Lexicon{language: lang, version: strings.TrimSpace(version), tag: tag}
	seen := make(map[string]struct{}, len(highPriority)+len(general))

	l.highPriority, err = l.normalizeTier(highPriority, seen)
	if err != nil {
		return nil, err
	}
	l.general, err = l.normalizeTier(general, seen)
	if err != nil {
		return nil, err
	}
	if len(l.highPriority) == 0 && len(l.general) == 0 {
		return nil, fmt.Errorf("%w: language %s", ErrNoPhrases, lang)
	}
	return l, nil
}

func (l *Lexicon) normalizeTier(phrases []string, seen map[string]struct{}) ([]string, error) {
	out := make([]string, 0, len(phrases))
	for _, raw := range phrases {
		phrase := l.Normalize(raw)
		if phrase == "" {
			return nil, ErrEmptyPhrase
		}
		if phrase == ReservedShortcut {
			return nil, fmt.Errorf("%w: %q", ErrReservedPhrase, raw)
		}
		if _, dup := seen[phrase]; dup {
			continue
		}
		seen[phrase] = struct{}{}
		out = append(out, phrase)
	}
	return out, nil
}

// Normalize trims and lower-cases s using the lexicon's language. Accents are kept.
func (l *Lexicon) Normalize(s string) string {
	return Normalize(l.tag, s)
}

// Normalize trims and lower-cases s for the given language tag.
func Normalize(tag language.Tag, s string) string {
	// Casers carry state and are not safe to share between goroutines.
	return cases.Lower(tag).String(strings.TrimSpace(s))
}

func (l *Lexicon) Language() string  { return l.language }
func (l *Lexicon) Version() string   { return l.version }
func (l *Lexicon) Tag() language.Tag { return l.tag }
func (l *Lexicon) Size() int         { return len(l.highPriority) + len(l.general) }

// HighPriority returns a copy of the direct-statement tier in match order.
func (l *Lexicon) HighPriority() []string {
	return append([]string(nil), l.highPriority...)
}

// General returns a copy of the general crisis keyword tier in match order.
func (l *Lexicon) General() []string {
	return append([]string(nil), l.general...)
}

// FirstHighPriority returns the first high-priority phrase contained in normalized.
func (l *Lexicon) FirstHighPriority(normalized string) (string, bool) {
	return firstContained(l.highPriority, normalized)
}

// FirstGeneral returns the first general keyword contained in normalized.
func (l *Lexicon) FirstGeneral(normalized string) (string, bool) {
	return firstContained(l.general, normalized)
}

func firstContained(phrases []string, normalized string) (string, bool) {
	for _, phrase := range phrases {
		if strings.Contains(normalized, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// Load parses a YAML lexicon document.
func Load(r io.Reader) (*Lexicon, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("lexicon: decode: %w", err)
	}
	return New(doc.Language, doc.Version, doc.HighPriority, doc.General)
}

// LoadFile parses a single YAML lexicon file.
func LoadFile(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lexicon: open %s: %w", path, err)
	}
	defer f.Close()

	l, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return l, nil
}

// LoadDir loads every *.yaml / *.yml file in dir, sorted by file name.
func LoadDir(dir string) ([]*Lexicon, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("lexicon: read dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsLexiconFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]*Lexicon, 0, len(names))
	for _, name := range names {
		l, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// IsLexiconFile reports whether name has a lexicon file extension.
func IsLexiconFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Embedded returns the lexicons compiled into the binary.
func Embedded() ([]*Lexicon, error) {
	entries, err := embedded.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("lexicon: read embedded: %w", err)
	}
	var out []*Lexicon
	for _, e := range entries {
		f, err := embedded.Open("data/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("lexicon: open embedded %s: %w", e.Name(), err)
		}
		l, err := Load(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, l)
	}
	return out, nil
}

// Default returns the embedded Spanish lexicon.
func Default() *Lexicon {
	all, err := Embedded()
	if err != nil {
		panic(err)
	}
	for _, l := range all {
		if l.Language() == "es" {
			return l
		}
	}
	panic("lexicon: embedded es lexicon missing")
}
