package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ReviewAnalyzer/internal/scanner"
)

// Built-in strategy names, most specific first.
const (
	StrategyReviewBody       = "review-body"
	StrategyDescription      = "description"
	StrategyKeywordContainer = "keyword-container"
	StrategyParagraph        = "paragraph"
)

const containerTags = "div, section, article, li"

var containerKeywords = []string{"review", "comment", "text"}

// DefaultStrategyOrder is the fallback chain used when config does not name one.
var DefaultStrategyOrder = []string{
	StrategyReviewBody,
	StrategyDescription,
	StrategyKeywordContainer,
	StrategyParagraph,
}

// NewRegistry registers every built-in review discovery strategy.
func NewRegistry() *scanner.Registry {
	reg := scanner.NewRegistry()
	reg.Register(selectorStrategy(StrategyReviewBody, `[itemprop="reviewBody"]`))
	reg.Register(selectorStrategy(StrategyDescription, "div.description, .reviewText"))
	reg.Register(scanner.Func{ID: StrategyKeywordContainer, Find: scanKeywordContainers})
	reg.Register(selectorStrategy(StrategyParagraph, "p"))
	return reg
}

func selectorStrategy(name, selector string) scanner.Strategy {
	return scanner.Func{
		ID: name,
		Find: func(doc *goquery.Document) []string {
			return texts(doc.Find(selector))
		},
	}
}

// scanKeywordContainers returns leaf-most containers whose class mentions a review keyword.
func scanKeywordContainers(doc *goquery.Document) []string {
	matches := doc.Find(containerTags).FilterFunction(hasReviewClass)
	leaves := matches.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find(containerTags).FilterFunction(hasReviewClass).Length() == 0
	})
	return texts(leaves)
}

func hasReviewClass(_ int, s *goquery.Selection) bool {
	class := strings.ToLower(s.AttrOr("class", ""))
	if class == "" {
		return false
	}
	for _, kw := range containerKeywords {
		if strings.Contains(class, kw) {
			return true
		}
	}
	return false
}

func texts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := selectionText(s); t != "" {
			out = append(out, t)
		}
	})
	return out
}
