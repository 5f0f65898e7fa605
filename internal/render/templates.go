package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jmehdipour/wallet-notifier/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// TemplateSet is one localized message for one kind. HTML is optional.
type TemplateSet struct {
	Subject string `yaml:"subject"`
	Text    string `yaml:"text"`
	HTML    string `yaml:"html"`
}

// TemplateSource resolves templates by (kind, language).
type TemplateSource interface {
	Lookup(kind model.Kind, language string) (TemplateSet, bool)
	Languages() []string
}

// YAMLSource holds templates keyed by language then kind:
//
//	en:
//	  NewIncomingTx:
//	    subject: "New payment received"
//	    text: "..."
type YAMLSource struct {
	sets map[string]map[model.Kind]TemplateSet
}

var _ TemplateSource = (*YAMLSource)(nil)

func LoadTemplates(r io.Reader) (*YAMLSource, error) {
	var raw map[string]map[string]TemplateSet
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}

	src := &YAMLSource{sets: make(map[string]map[model.Kind]TemplateSet, len(raw))}
	for lang, kinds := range raw {
		lang = strings.ToLower(strings.TrimSpace(lang))
		m := make(map[model.Kind]TemplateSet, len(kinds))
		for k, set := range kinds {
			kind, ok := model.ParseKind(k)
			if !ok {
				return nil, fmt.Errorf("templates: language %s: unknown kind %q", lang, k)
			}
			m[kind] = set
		}
		src.sets[lang] = m
	}
	return src, nil
}

// LoadTemplatesFile reads a YAML template file; an empty path yields the built-in templates.
func LoadTemplatesFile(path string) (*YAMLSource, error) {
	if path == "" {
		return LoadTemplates(bytes.NewReader(defaultTemplates))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open templates %s: %w", path, err)
	}
	defer f.Close()
	return LoadTemplates(f)
}

// DefaultTemplates returns the built-in English and Spanish templates.
func DefaultTemplates() *YAMLSource {
	src, err := LoadTemplates(bytes.NewReader(defaultTemplates))
	if err != nil {
		panic(err)
	}
	return src
}

func (s *YAMLSource) Lookup(kind model.Kind, language string) (TemplateSet, bool) {
	set, ok := s.sets[language][kind]
	return set, ok
}

func (s *YAMLSource) Languages() []string {
	out := make([]string, 0, len(s.sets))
	for l := range s.sets {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
