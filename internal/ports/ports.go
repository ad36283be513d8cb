package ports

import (
	"context"

	"ReviewAnalyzer/internal/domain"
)

// PageFetcher downloads HTML pages from the review site under one session identity.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (domain.Page, error)
}

// FetcherFactory hands out a fresh fetcher per pipeline run; sessions are never shared.
type FetcherFactory interface {
	New() PageFetcher
}

// ReviewExtractor parses product and review pages.
type ReviewExtractor interface {
	ExtractProduct(pageURL string, html []byte) (domain.ProductPage, error)
	ExtractReview(html []byte) ([]domain.ReviewCandidate, error)
}

// Prediction is the raw, unnormalized output of a sentiment model.
type Prediction struct {
	Label string
	Score float64
}

// SentimentModel runs inference for one text.
type SentimentModel interface {
	Predict(ctx context.Context, text string) (Prediction, error)
	Health(ctx context.Context) error
}

// SentimentClassifier maps review text to a normalized label. It never fails per review.
type SentimentClassifier interface {
	Ready(ctx context.Context) error
	Classify(ctx context.Context, text string) domain.Sentiment
}

// AnalysisRepository persists analysis results into the user's history.
type AnalysisRepository interface {
	Save(ctx context.Context, analysis domain.Analysis) (int64, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]domain.Analysis, error)
}
