// Package i18n provides the translated user-facing strings.
package i18n

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fallback is the language used when a requested one cannot be loaded.
const Fallback = "en"

// ErrUnknownLanguage is returned when no catalogue exists for a language.
var ErrUnknownLanguage = errors.New("unknown language")

//go:embed translations/*.yaml
var translations embed.FS

type catalogueFile struct {
	Language string            `yaml:"language"`
	Strings  map[string]string `yaml:"strings"`
}

// Catalog maps message keys to translated text.
type Catalog struct {
	language string
	strings  map[string]string
}

// Load returns the catalogue for lang. If lang cannot be loaded the English
// catalogue is returned together with the error, so callers can log it and
// carry on.
func Load(lang string) (*Catalog, error) {
	lang = normalise(lang)
	c, err := load(lang)
	if err == nil {
		return c, nil
	}
	fallback, ferr := load(Fallback)
	if ferr != nil {
		return &Catalog{language: Fallback, strings: map[string]string{}}, errors.Join(err, ferr)
	}
	return fallback, err
}

func load(lang string) (*Catalog, error) {
	data, err := translations.ReadFile(path.Join("translations", lang+".yaml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
		}
		return nil, err
	}
	var f catalogueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s catalogue: %w", lang, err)
	}
	if f.Strings == nil {
		f.Strings = map[string]string{}
	}
	return &Catalog{language: lang, strings: f.Strings}, nil
}

// normalise reduces "de_DE.UTF-8" or "de-DE" to "de".
func normalise(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "_-."); i >= 0 {
		lang = lang[:i]
	}
	if lang == "" {
		return Fallback
	}
	return lang
}

// Available lists the languages with an embedded catalogue.
func Available() []string {
	entries, err := translations.ReadDir("translations")
	if err != nil {
		return []string{Fallback}
	}
	var langs []string
	for _, e := range entries {
		langs = append(langs, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(langs)
	return langs
}

// Language returns the catalogue language code.
func (c *Catalog) Language() string {
	return c.language
}

// T translates key. Unknown keys are returned unchanged.
func (c *Catalog) T(key string) string {
	if c == nil {
		return key
	}
	if s, ok := c.strings[key]; ok {
		return s
	}
	return key
}
