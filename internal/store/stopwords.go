package store

import "strings"

// DefaultStopWords are dropped from queries and from the lexical index.
var DefaultStopWords = []string{
	// English
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "if", "in",
	"into", "is", "it", "no", "not", "of", "on", "or", "such", "that", "the",
	"their", "then", "there", "these", "they", "this", "to", "was", "will",
	"with", "what", "which", "who", "how", "why", "when", "where", "do", "does",
	// Chinese
	"的", "了", "和", "是", "在", "我", "有", "就", "不", "人", "都", "一", "一个",
	"上", "也", "很", "到", "说", "要", "去", "你", "会", "着", "没有", "看",
	"好", "自己", "这", "那", "什么", "怎么", "如何", "吗", "呢", "吧", "啊",
}

// BuildStopWordMap converts a slice of stop words to a set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
