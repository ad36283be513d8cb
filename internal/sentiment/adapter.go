package sentiment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/text/cases"

	"ReviewAnalyzer/internal/config"
	"ReviewAnalyzer/internal/domain"
	"ReviewAnalyzer/internal/ports"
)

// matchOrder is the order classes are tested against a folded label.
var matchOrder = []domain.Label{domain.LabelNeutral, domain.LabelNegative, domain.LabelPositive}

// Options controls truncation, thresholds and the label vocabulary.
type Options struct {
	MaxInputRunes int
	PositiveAbove float64
	NegativeBelow float64
	Synonyms      map[domain.Label][]string
}

// OptionsFromConfig maps classifier settings onto Options.
func OptionsFromConfig(cfg config.ClassifierConfig) Options {
	synonyms := make(map[domain.Label][]string, len(cfg.Synonyms))
	for label, words := range cfg.Synonyms {
		synonyms[domain.Label(strings.ToLower(label))] = words
	}
	return Options{
		MaxInputRunes: cfg.MaxInputRunes,
		PositiveAbove: cfg.PositiveAbove,
		NegativeBelow: cfg.NegativeBelow,
		Synonyms:      synonyms,
	}
}

// Adapter turns raw model predictions into the canonical three-way label.
type Adapter struct {
	model    ports.SentimentModel
	opts     Options
	synonyms map[domain.Label][]string
	logger   *slog.Logger
}

var _ ports.SentimentClassifier = (*Adapter)(nil)

// NewAdapter case-folds the synonym table.
func NewAdapter(model ports.SentimentModel, opts Options, log *slog.Logger) *Adapter {
	folded := make(map[domain.Label][]string, len(opts.Synonyms))
	for label, words := range opts.Synonyms {
		for _, w := range words {
			if w = strings.TrimSpace(fold(w)); w != "" {
				folded[label] = append(folded[label], w)
			}
		}
	}
	return &Adapter{
		model:    model,
		opts:     opts,
		synonyms: folded,
		logger:   log,
	}
}

// Ready reports whether the model backend can serve predictions.
func (a *Adapter) Ready(ctx context.Context) error {
	if a.model == nil {
		return fmt.Errorf("sentiment model is not configured")
	}
	return a.model.Health(ctx)
}

// Classify labels one review. Inference errors degrade to a neutral label instead of failing.
func (a *Adapter) Classify(ctx context.Context, text string) domain.Sentiment {
	pred, err := a.model.Predict(ctx, Truncate(text, a.opts.MaxInputRunes))
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("inference failed, defaulting to neutral", "error", err)
		}
		return domain.Sentiment{Label: domain.LabelNeutral, Degraded: true}
	}

	return domain.Sentiment{
		Label:      a.Normalize(pred),
		Confidence: clamp(pred.Score),
	}
}

// Normalize maps a raw prediction onto positive, neutral or negative.
func (a *Adapter) Normalize(pred ports.Prediction) domain.Label {
	label := fold(strings.TrimSpace(pred.Label))
	if label != "" {
		for _, class := range matchOrder {
			for _, synonym := range a.synonyms[class] {
				if strings.Contains(label, synonym) {
					return class
				}
			}
		}
	}

	switch {
	case pred.Score > a.opts.PositiveAbove:
		return domain.LabelPositive
	case pred.Score < a.opts.NegativeBelow:
		return domain.LabelNegative
	default:
		return domain.LabelNeutral
	}
}

// Truncate cuts text to at most limit runes; limit <= 0 disables truncation.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}

func fold(s string) string {
	return cases.Fold().String(s)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
