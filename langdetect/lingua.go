// Package langdetect classifies article text as the primary or secondary
// language of the deployment.
package langdetect

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"

	"daily-news-bot/article"
)

const minLetters = 6

// Detector maps detected languages onto article.Primary and article.Secondary.
type Detector struct {
	primary   lingua.Language
	secondary lingua.Language

	once     sync.Once
	detector lingua.LanguageDetector
}

// New returns a Detector restricted to the two ISO 639-1 codes, e.g. "ja" and "en".
func New(primaryCode, secondaryCode string) (*Detector, error) {
	primary, err := languageFromCode(primaryCode)
	if err != nil {
		return nil, err
	}
	secondary, err := languageFromCode(secondaryCode)
	if err != nil {
		return nil, err
	}
	if primary == secondary {
		return nil, fmt.Errorf("primary and secondary language are both %q", primaryCode)
	}
	return &Detector{primary: primary, secondary: secondary}, nil
}

func languageFromCode(code string) (lingua.Language, error) {
	iso := lingua.GetIsoCode639_1FromValue(strings.ToLower(strings.TrimSpace(code)))
	lang := lingua.GetLanguageFromIsoCode639_1(iso)
	if lang == lingua.Unknown {
		return lingua.Unknown, fmt.Errorf("unsupported language code %q", code)
	}
	return lang, nil
}

// Classify returns the language of text. Text too short to judge, or not
// confidently either language, is reported as primary.
func (d *Detector) Classify(text string) article.Language {
	sample := strings.TrimSpace(text)
	letters := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < minLetters {
		return article.Primary
	}

	lang, ok := d.get().DetectLanguageOf(sample)
	if ok && lang == d.secondary {
		return article.Secondary
	}
	return article.Primary
}

func (d *Detector) get() lingua.LanguageDetector {
	d.once.Do(func() {
		d.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(d.primary, d.secondary).
			Build()
	})
	return d.detector
}
