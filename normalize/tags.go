package normalize

import (
	"strings"
)

type compiledRule struct {
	tag      string
	keywords []keyword
}

type keyword struct {
	text  string
	ascii bool
}

func compileRule(r TagRule) compiledRule {
	c := compiledRule{tag: r.Tag}
	for _, kw := range r.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		c.keywords = append(c.keywords, keyword{text: kw, ascii: isASCII(kw)})
	}
	return c
}

// matches reports whether lowered text contains any keyword. ASCII keywords
// must stand alone as words, so "x" does not match inside "next".
func (r compiledRule) matches(text string) bool {
	for _, kw := range r.keywords {
		if kw.ascii {
			if containsWord(text, kw.text) {
				return true
			}
			continue
		}
		if strings.Contains(text, kw.text) {
			return true
		}
	}
	return false
}

func containsWord(text, word string) bool {
	for start := 0; start <= len(text)-len(word); {
		i := strings.Index(text[start:], word)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(word)
		if (i == 0 || !isWordByte(text[i-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		start = i + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
