// Package commands is the catalogue of host commands a control can be mapped
// to.
package commands

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalogue []byte

// ErrEmptyCatalogue is returned when a catalogue defines no commands.
var ErrEmptyCatalogue = errors.New("command catalogue is empty")

// Command is one mappable host command.
type Command struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}

// Category groups commands for presentation.
type Category struct {
	Name     string    `yaml:"name"`
	Commands []Command `yaml:"commands"`
}

type catalogue struct {
	Language   string     `yaml:"language"`
	Categories []Category `yaml:"categories"`
}

// Set is a loaded command catalogue. It is immutable after loading.
type Set struct {
	language   string
	categories []Category
	labels     map[string]string
	keys       []string
}

// Default returns the built-in catalogue.
func Default() (*Set, error) {
	return Parse(defaultCatalogue)
}

// Load reads a catalogue from a YAML file.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML catalogue.
func Parse(data []byte) (*Set, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse command catalogue: %w", err)
	}

	s := &Set{
		language:   c.Language,
		categories: c.Categories,
		labels:     make(map[string]string),
	}
	if s.language == "" {
		s.language = "en"
	}
	for _, cat := range c.Categories {
		for _, cmd := range cat.Commands {
			if cmd.Key == "" {
				return nil, fmt.Errorf("parse command catalogue: empty key in %q", cat.Name)
			}
			if _, dup := s.labels[cmd.Key]; dup {
				return nil, fmt.Errorf("parse command catalogue: duplicate key %q", cmd.Key)
			}
			label := cmd.Label
			if label == "" {
				label = cmd.Key
			}
			s.labels[cmd.Key] = label
			s.keys = append(s.keys, cmd.Key)
		}
	}
	if len(s.keys) == 0 {
		return nil, ErrEmptyCatalogue
	}
	return s, nil
}

// Language returns the catalogue language code.
func (s *Set) Language() string {
	return s.language
}

// Contains reports whether key is a known command.
func (s *Set) Contains(key string) bool {
	_, ok := s.labels[key]
	return ok
}

// Label returns the display label of key, or key itself if unknown.
func (s *Set) Label(key string) string {
	if l, ok := s.labels[key]; ok {
		return l
	}
	return key
}

// Keys returns every command key in catalogue order.
func (s *Set) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Categories returns the categories in catalogue order.
func (s *Set) Categories() []Category {
	return append([]Category(nil), s.categories...)
}
