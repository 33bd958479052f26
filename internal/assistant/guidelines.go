package assistant

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed guidelines.yaml
var defaultGuidelines []byte

// Style is the coach's voice.
type Style struct {
	Voice   string   `yaml:"voice"`
	Avoid   []string `yaml:"avoid"`
	Closing string   `yaml:"closing"`
}

// Guidelines configure the assistant persona and the suggestion list.
type Guidelines struct {
	Language         string   `yaml:"language"`
	Domain           string   `yaml:"domain"`
	Persona          string   `yaml:"persona"`
	Rules            []string `yaml:"rules"`
	Style            Style    `yaml:"style"`
	BestPractice     string   `yaml:"best_practice"`
	SuggestedPrompts []string `yaml:"suggested_prompts"`
}

// DefaultGuidelines returns the built-in document.
func DefaultGuidelines() Guidelines {
	g, err := ParseGuidelines(defaultGuidelines)
	if err != nil {
		panic(fmt.Sprintf("embedded guidelines: %v", err))
	}
	return g
}

// LoadGuidelines reads a YAML file, or the built-in document when path is empty.
func LoadGuidelines(path string) (Guidelines, error) {
	if path == "" {
		return DefaultGuidelines(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Guidelines{}, fmt.Errorf("read guidelines: %w", err)
	}
	return ParseGuidelines(data)
}

func ParseGuidelines(data []byte) (Guidelines, error) {
	var g Guidelines
	if err := yaml.Unmarshal(data, &g); err != nil {
		return Guidelines{}, fmt.Errorf("parse guidelines: %w", err)
	}
	if err := g.Validate(); err != nil {
		return Guidelines{}, err
	}
	return g, nil
}

func (g Guidelines) Validate() error {
	switch {
	case g.Persona == "":
		return errors.New("guidelines: missing persona")
	case len(g.Rules) == 0:
		return errors.New("guidelines: missing rules")
	case g.Style.Voice == "":
		return errors.New("guidelines: missing style.voice")
	}
	return nil
}

// Suggestions samples n prompts without repetition. The same seed always
// gives the same sample.
func (g Guidelines) Suggestions(n int, seed int64) []string {
	if n <= 0 || n > len(g.SuggestedPrompts) {
		n = len(g.SuggestedPrompts)
	}
	idx := rand.New(rand.NewSource(seed)).Perm(len(g.SuggestedPrompts))[:n]
	out := make([]string, 0, n)
	for _, i := range idx {
		out = append(out, g.SuggestedPrompts[i])
	}
	return out
}
