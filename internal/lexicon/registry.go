package lexicon

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// Registry maps language codes to lexicons. Lookups return immutable snapshots, so
// a reload never changes the lexicon an in-flight classification is using.
type Registry struct {
	mu          sync.RWMutex
	byLanguage  map[string]*Lexicon
	defaultLang string
}

// NewRegistry builds a registry that must contain defaultLang.
func NewRegistry(defaultLang string, lexicons ...*Lexicon) (*Registry, error) {
	r := &Registry{defaultLang: strings.ToLower(strings.TrimSpace(defaultLang))}
	if err := r.Replace(lexicons); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace swaps the whole set of lexicons. The previous set stays active on error.
func (r *Registry) Replace(lexicons []*Lexicon) error {
	next := make(map[string]*Lexicon, len(lexicons))
	for _, l := range lexicons {
		if l == nil {
			continue
		}
		if _, dup := next[l.Language()]; dup {
			return fmt.Errorf("lexicon: duplicate language %s", l.Language())
		}
		next[l.Language()] = l
	}
	if _, ok := next[r.defaultLang]; !ok {
		return fmt.Errorf("lexicon: default language %q not loaded", r.defaultLang)
	}

	r.mu.Lock()
	r.byLanguage = next
	r.mu.Unlock()
	return nil
}

// Get resolves lang exactly, then by its base language ("es-MX" -> "es"), then
// falls back to the default language. It never returns nil.
func (r *Registry) Get(lang string) *Lexicon {
	lang = strings.ToLower(strings.TrimSpace(lang))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if l, ok := r.byLanguage[lang]; ok {
		return l
	}
	if tag, err := language.Parse(lang); err == nil {
		base, _ := tag.Base()
		if l, ok := r.byLanguage[base.String()]; ok {
			return l
		}
	}
	return r.byLanguage[r.defaultLang]
}

// DefaultLanguage returns the fallback language code.
func (r *Registry) DefaultLanguage() string {
	return r.defaultLang
}

// Languages lists loaded language codes in sorted order.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
