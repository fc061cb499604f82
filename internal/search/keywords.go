package search

import (
	"strings"
	"unicode/utf8"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/config"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

// DefaultMinKeywordLength drops single-character tokens.
const DefaultMinKeywordLength = 2

// KeywordExtractor turns a natural-language question into lexical terms.
type KeywordExtractor struct {
	stopWords map[string]struct{}
	minLength int
	disabled  bool
}

// NewKeywordExtractor builds an extractor from the search config. An empty
// stop-word list selects the built-in Chinese and English list.
func NewKeywordExtractor(cfg config.SearchConfig) *KeywordExtractor {
	words := cfg.StopWords
	if len(words) == 0 {
		words = store.DefaultStopWords
	}
	minLength := cfg.MinKeywordLength
	if minLength <= 0 {
		minLength = DefaultMinKeywordLength
	}
	return &KeywordExtractor{
		stopWords: store.BuildStopWordMap(words),
		minLength: minLength,
		disabled:  cfg.DisableStopWords,
	}
}

// Extract splits query on whitespace and drops stop words and tokens
// shorter than the minimum length in runes. With filtering disabled every
// token is kept.
func (k *KeywordExtractor) Extract(query string) []string {
	fields := strings.Fields(query)
	if k.disabled {
		return fields
	}
	return ExtractKeywords(fields, k.stopWords, k.minLength)
}

// Query returns the extracted keywords joined for the lexical index.
func (k *KeywordExtractor) Query(query string) string {
	return strings.Join(k.Extract(query), " ")
}

// ExtractKeywords filters tokens against a lowercase stop-word set.
func ExtractKeywords(tokens []string, stopWords map[string]struct{}, minLength int) []string {
	keywords := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < minLength {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, stop := stopWords[strings.ToLower(tok)]; stop {
			continue
		}
		keywords = append(keywords, tok)
	}
	return keywords
}
