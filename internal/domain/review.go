package domain

import (
	"net/url"
	"time"
)

// UnknownProduct is used when no product-name selector matches.
const UnknownProduct = "Unknown product"

// ReviewPageRequest is a validated product review page URL.
type ReviewPageRequest struct {
	URL *url.URL
}

// String returns the absolute URL.
func (r ReviewPageRequest) String() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Page is a successfully fetched HTML document.
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// ReviewCandidate is a block of page text provisionally treated as one review.
type ReviewCandidate struct {
	Text     string
	Strategy string
}

// ProductPage is what the extractor finds on a product page.
type ProductPage struct {
	Name        string
	Candidates  []ReviewCandidate
	ReviewLinks []string
}

// Label is the three-way sentiment class.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNeutral  Label = "neutral"
	LabelNegative Label = "negative"
)

// Sentiment is the classifier outcome for one review.
type Sentiment struct {
	Label      Label
	Confidence float64
	// Degraded marks a label defaulted after an inference failure.
	Degraded bool
}

// Analysis is the history record handed to the persistence layer.
type Analysis struct {
	ID                int64
	UserID            int64
	SourceURL         string
	ProductName       string
	PositivePercent   float64
	NeutralPercent    float64
	NegativePercent   float64
	OverallRating     float64
	ReviewsConsidered int
	CreatedAt         time.Time
}
