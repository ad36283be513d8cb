package domain

import (
	"math"
	"time"
)

// RatingWeights maps each label to its contribution to the overall rating.
type RatingWeights struct {
	Positive float64 `yaml:"positive"`
	Neutral  float64 `yaml:"neutral"`
	Negative float64 `yaml:"negative"`
}

// DefaultRatingWeights are the 5/3/1 weights.
func DefaultRatingWeights() RatingWeights {
	return RatingWeights{Positive: 5, Neutral: 3, Negative: 1}
}

// AggregateResult is the per-product sentiment breakdown.
// The zero value (ReviewsConsidered == 0) is the null result.
type AggregateResult struct {
	ProductName       string
	PositivePercent   float64
	NeutralPercent    float64
	NegativePercent   float64
	OverallRating     float64
	ReviewsConsidered int
}

// Valid reports whether the result carries classified reviews.
func (r AggregateResult) Valid() bool {
	return r.ReviewsConsidered > 0
}

// DisplayResult is AggregateResult rounded for presentation.
type DisplayResult struct {
	ProductName       string
	PositivePercent   float64
	NeutralPercent    float64
	NegativePercent   float64
	OverallRating     float64
	ReviewsConsidered int
}

// Display rounds percentages to one decimal and the rating to two.
func (r AggregateResult) Display() DisplayResult {
	return DisplayResult{
		ProductName:       r.ProductName,
		PositivePercent:   round(r.PositivePercent, 1),
		NeutralPercent:    round(r.NeutralPercent, 1),
		NegativePercent:   round(r.NegativePercent, 1),
		OverallRating:     round(r.OverallRating, 2),
		ReviewsConsidered: r.ReviewsConsidered,
	}
}

// Record converts the result into a history record.
func (r AggregateResult) Record(userID int64, sourceURL string, at time.Time) Analysis {
	return Analysis{
		UserID:            userID,
		SourceURL:         sourceURL,
		ProductName:       r.ProductName,
		PositivePercent:   r.PositivePercent,
		NeutralPercent:    r.NeutralPercent,
		NegativePercent:   r.NegativePercent,
		OverallRating:     r.OverallRating,
		ReviewsConsidered: r.ReviewsConsidered,
		CreatedAt:         at.UTC(),
	}
}

// LabelCounts tallies labels by class.
type LabelCounts struct {
	Positive int
	Neutral  int
	Negative int
}

// Total is the number of counted labels.
func (c LabelCounts) Total() int {
	return c.Positive + c.Neutral + c.Negative
}

// CountLabels tallies sentiments; labels outside the three classes count as neutral.
func CountLabels(sentiments []Sentiment) LabelCounts {
	var counts LabelCounts
	for _, s := range sentiments {
		switch s.Label {
		case LabelPositive:
			counts.Positive++
		case LabelNegative:
			counts.Negative++
		default:
			counts.Neutral++
		}
	}
	return counts
}

// Aggregate turns per-review sentiments into percentages and a weighted rating.
// An empty input yields the null result. Values are not rounded.
func Aggregate(sentiments []Sentiment, weights RatingWeights) AggregateResult {
	return AggregateCounts(CountLabels(sentiments), weights)
}

// AggregateCounts is Aggregate over precomputed counts.
func AggregateCounts(counts LabelCounts, weights RatingWeights) AggregateResult {
	total := counts.Total()
	if total == 0 {
		return AggregateResult{}
	}

	t := float64(total)
	score := float64(counts.Positive)*weights.Positive +
		float64(counts.Neutral)*weights.Neutral +
		float64(counts.Negative)*weights.Negative

	return AggregateResult{
		PositivePercent:   float64(counts.Positive) / t * 100,
		NeutralPercent:    float64(counts.Neutral) / t * 100,
		NegativePercent:   float64(counts.Negative) / t * 100,
		OverallRating:     score / t,
		ReviewsConsidered: total,
	}
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
