package languages

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrLanguageNotFound = errors.New("language not found")
)

// Registry is an ordered, read-only table of languages. It is built once at
// startup and safe for concurrent use without locking.
type Registry struct {
	languages []Language
	index     map[string]int
}

func NewRegistry(langs ...Language) (*Registry, error) {
	if len(langs) == 0 {
		return nil, fmt.Errorf("at least one language must be registered")
	}

	r := &Registry{
		languages: make([]Language, 0, len(langs)),
		index:     make(map[string]int, len(langs)),
	}
	for _, lang := range langs {
		if lang.Code == "" {
			return nil, fmt.Errorf("language %q missing code", lang.Name)
		}
		if lang.Extension == "" && lang.SourceFile == "" {
			return nil, fmt.Errorf("language %q missing file extension", lang.Code)
		}
		if lang.Run.Program == "" {
			return nil, fmt.Errorf("language %q missing run command", lang.Code)
		}
		if _, exists := r.index[lang.Code]; exists {
			return nil, fmt.Errorf("duplicate language code %q", lang.Code)
		}
		r.index[lang.Code] = len(r.languages)
		r.languages = append(r.languages, lang)
	}
	return r, nil
}

// Default returns a registry holding the built-in language table.
func Default() *Registry {
	r, err := NewRegistry(DefaultLanguages()...)
	if err != nil {
		panic(fmt.Sprintf("languages: invalid built-in table: %v", err))
	}
	return r
}

// Find looks a language up by its exact code.
func (r *Registry) Find(code string) (Language, error) {
	i, ok := r.index[code]
	if !ok {
		return Language{}, fmt.Errorf("%w: %q", ErrLanguageNotFound, code)
	}
	return r.languages[i], nil
}

func (r *Registry) List() []Language {
	langs := make([]Language, len(r.languages))
	copy(langs, r.languages)
	return langs
}

func (r *Registry) Codes() []string {
	codes := make([]string, len(r.languages))
	for i, l := range r.languages {
		codes[i] = l.Code
	}
	return codes
}

// Available renders the listing shown when a request names no language or an
// unknown one.
func (r *Registry) Available() string {
	return "Available languages:\n" + strings.Join(r.Codes(), ", ")
}
