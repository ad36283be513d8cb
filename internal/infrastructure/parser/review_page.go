package parser

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ReviewAnalyzer/internal/config"
	"ReviewAnalyzer/internal/domain"
	"ReviewAnalyzer/internal/ports"
	"ReviewAnalyzer/internal/scanner"
)

// ErrUnparsable is returned when a fetched body cannot be parsed as HTML.
var ErrUnparsable = errors.New("unparsable html")

// Options configures the review page extractor.
type Options struct {
	ProductNameSelectors []string
	UnknownProduct       string
	Strategies           []string
	MinCandidates        int
	LinkContainer        string
	ReviewPathPrefix     string
	MaxReviews           int
	Filter               FilterRules
}

// OptionsFromConfig maps extractor settings onto Options.
func OptionsFromConfig(cfg config.ExtractorConfig) Options {
	return Options{
		ProductNameSelectors: cfg.ProductNameSelectors,
		UnknownProduct:       cfg.UnknownProduct,
		Strategies:           cfg.Strategies,
		MinCandidates:        cfg.MinCandidates,
		LinkContainer:        cfg.LinkContainer,
		ReviewPathPrefix:     cfg.ReviewPathPrefix,
		MaxReviews:           cfg.MaxReviews,
		Filter: FilterRules{
			MinChars:    cfg.MinChars,
			MaxChars:    cfg.MaxChars,
			MinWords:    cfg.MinWords,
			Boilerplate: cfg.Boilerplate,
		},
	}
}

// Extractor pulls the product name, review text and review links out of site pages.
type Extractor struct {
	opts        Options
	chain       []scanner.Strategy
	boilerplate *boilerplateMatcher
	logger      *slog.Logger
}

var _ ports.ReviewExtractor = (*Extractor)(nil)

// NewExtractor resolves the strategy chain from reg; a nil reg uses the built-in strategies.
func NewExtractor(opts Options, reg *scanner.Registry, log *slog.Logger) (*Extractor, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	if len(opts.Strategies) == 0 {
		opts.Strategies = DefaultStrategyOrder
	}
	if opts.UnknownProduct == "" {
		opts.UnknownProduct = domain.UnknownProduct
	}
	if opts.MinCandidates < 1 {
		opts.MinCandidates = 1
	}

	chain, err := reg.Chain(opts.Strategies)
	if err != nil {
		return nil, fmt.Errorf("resolve strategies: %w", err)
	}

	return &Extractor{
		opts:        opts,
		chain:       chain,
		boilerplate: newBoilerplateMatcher(opts.Filter.Boilerplate),
		logger:      log,
	}, nil
}

// ExtractProduct parses a product page into its name, inline review candidates and review links.
// No qualifying text is a valid outcome and yields an empty candidate list.
func (e *Extractor) ExtractProduct(pageURL string, body []byte) (domain.ProductPage, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return domain.ProductPage{}, err
	}

	page := domain.ProductPage{
		Name:       e.productName(doc),
		Candidates: e.discover(doc, e.opts.MinCandidates),
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return page, fmt.Errorf("parse page url: %w", err)
	}
	page.ReviewLinks = e.reviewLinks(doc, base)

	e.debug("product page extracted",
		"product", page.Name,
		"candidates", len(page.Candidates),
		"links", len(page.ReviewLinks))
	return page, nil
}

// ExtractReview parses a single review page; the first strategy yielding text wins.
func (e *Extractor) ExtractReview(body []byte) ([]domain.ReviewCandidate, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}
	return e.discover(doc, 1), nil
}

// discover walks the strategy chain until at least sufficient candidates are accepted.
func (e *Extractor) discover(doc *goquery.Document, sufficient int) []domain.ReviewCandidate {
	filter := newCandidateFilter(e.opts.Filter, e.boilerplate)
	candidates := make([]domain.ReviewCandidate, 0)

	for _, strategy := range e.chain {
		if len(candidates) >= sufficient {
			break
		}

		before := len(candidates)
		for _, raw := range strategy.Scan(doc) {
			if c, ok := filter.accept(raw, strategy.Name()); ok {
				candidates = append(candidates, c)
			}
		}
		e.debug("strategy applied", "strategy", strategy.Name(), "accepted", len(candidates)-before)
	}

	if e.opts.MaxReviews > 0 && len(candidates) > e.opts.MaxReviews {
		candidates = candidates[:e.opts.MaxReviews]
	}
	return candidates
}

func (e *Extractor) productName(doc *goquery.Document) string {
	for _, selector := range e.opts.ProductNameSelectors {
		if name := selectionText(doc.Find(selector).First()); name != "" {
			return name
		}
	}
	return e.opts.UnknownProduct
}

// reviewLinks collects same-site relative review links under the review path prefix.
func (e *Extractor) reviewLinks(doc *goquery.Document, base *url.URL) []string {
	if e.opts.LinkContainer == "" || e.opts.ReviewPathPrefix == "" {
		return nil
	}

	container := doc.Find(e.opts.LinkContainer)
	if container.Length() == 0 {
		e.debug("review link container not found", "selector", e.opts.LinkContainer)
		return nil
	}

	ownPath := strings.TrimSuffix(base.EscapedPath(), "/")
	links := make([]string, 0)
	seen := map[string]struct{}{}

	container.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if e.opts.MaxReviews > 0 && len(links) >= e.opts.MaxReviews {
			return false
		}

		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !strings.HasPrefix(href, e.opts.ReviewPathPrefix) || strings.HasPrefix(href, "//") {
			return true
		}

		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		ref.Fragment = ""
		if strings.TrimSuffix(ref.EscapedPath(), "/") == ownPath {
			return true
		}

		full := base.ResolveReference(ref).String()
		if _, dup := seen[full]; dup {
			return true
		}
		seen[full] = struct{}{}
		links = append(links, full)
		return true
	})

	return links
}

func parseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	return doc, nil
}

func (e *Extractor) debug(msg string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
