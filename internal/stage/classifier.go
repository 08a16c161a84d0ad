// Package stage places sessions into the three-stage treatment model and
// derives each student's stage progress from the sessions counted so far.
package stage

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vytor/simclinic/internal/models"
)

//go:embed keywords.yaml
var defaultKeywords []byte

// Classifier decides which stage a finished session belongs to.
type Classifier interface {
	Classify(transcript string, memory *models.Memory) int
}

// KeywordSet is one stage's signal vocabulary.
type KeywordSet struct {
	MaxPriorSessions *int     `yaml:"max_prior_sessions"`
	Keywords         []string `yaml:"keywords"`
}

// Keywords holds the three stage vocabularies in rule order.
type Keywords struct {
	Preparation KeywordSet `yaml:"preparation"`
	Processing  KeywordSet `yaml:"processing"`
	Integration KeywordSet `yaml:"integration"`
}

// ParseKeywords decodes a YAML keyword document.
func ParseKeywords(data []byte) (Keywords, error) {
	var kw Keywords
	if err := yaml.Unmarshal(data, &kw); err != nil {
		return Keywords{}, fmt.Errorf("parse stage keywords: %w", err)
	}
	if len(kw.Preparation.Keywords) == 0 || len(kw.Processing.Keywords) == 0 || len(kw.Integration.Keywords) == 0 {
		return Keywords{}, fmt.Errorf("parse stage keywords: every stage needs at least one keyword")
	}
	kw.Preparation.normalize()
	kw.Processing.normalize()
	kw.Integration.normalize()
	return kw, nil
}

// LoadKeywords reads keywords from path, or the built-in set when path is empty.
func LoadKeywords(path string) (Keywords, error) {
	if path == "" {
		return ParseKeywords(defaultKeywords)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Keywords{}, fmt.Errorf("read stage keywords: %w", err)
	}
	return ParseKeywords(data)
}

// DefaultKeywords returns the built-in keyword sets.
func DefaultKeywords() Keywords {
	kw, err := ParseKeywords(defaultKeywords)
	if err != nil {
		panic(err)
	}
	return kw
}

func (k *KeywordSet) normalize() {
	out := k.Keywords[:0]
	for _, w := range k.Keywords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out = append(out, w)
		}
	}
	k.Keywords = out
}

func (k KeywordSet) matches(text string) bool {
	for _, w := range k.Keywords {
		if containsWord(text, w) {
			return true
		}
	}
	return false
}

// containsWord matches w only on word boundaries so "sud" does not hit "sudden".
func containsWord(text, w string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], w)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(w)
		if (i == 0 || !isWordByte(text[i-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		start = i + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 0x80
}

// KeywordClassifier applies the stage rules in order: preparation (only early
// in the treatment), processing, integration. Anything else is stage 1.
type KeywordClassifier struct {
	keywords Keywords
}

func NewKeywordClassifier(kw Keywords) *KeywordClassifier {
	return &KeywordClassifier{keywords: kw}
}

var _ Classifier = (*KeywordClassifier)(nil)

func (c *KeywordClassifier) Classify(transcript string, memory *models.Memory) int {
	text := strings.ToLower(transcript)

	prep := c.keywords.Preparation
	if (prep.matches(text) || prep.matches(memoryTopics(memory))) &&
		(prep.MaxPriorSessions == nil || memory.PriorSessions() <= *prep.MaxPriorSessions) {
		return 1
	}
	if c.keywords.Processing.matches(text) {
		return 2
	}
	if c.keywords.Integration.matches(text) {
		return 3
	}
	return 1
}

// memoryTopics joins the topics the continuity store has recorded.
func memoryTopics(memory *models.Memory) string {
	if memory == nil || len(memory.Topics) == 0 {
		return ""
	}
	return strings.ToLower(strings.Join(memory.Topics, "\n"))
}
