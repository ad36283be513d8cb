package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReviewAnalyzer/internal/config"
	"ReviewAnalyzer/internal/domain"
	"ReviewAnalyzer/internal/infrastructure/fetcher"
	"ReviewAnalyzer/internal/infrastructure/parser"
	"ReviewAnalyzer/internal/ports"
)

const productURL = "https://irecommend.ru/content/phone-x"

// fakeFetcher serves canned pages keyed by URL. Blocked URLs hang until the context ends.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fails   map[string]error
	blocked map[string]bool
	hits    []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, u string) (domain.Page, error) {
	f.mu.Lock()
	f.hits = append(f.hits, u)
	blocked := f.blocked[u]
	failure, failed := f.fails[u]
	body, found := f.pages[u]
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return domain.Page{}, &domain.FetchError{Kind: domain.FetchTimeout, URL: u, Attempts: 1, Err: ctx.Err()}
	}
	if failed {
		return domain.Page{}, failure
	}
	if !found {
		return domain.Page{}, &domain.FetchError{Kind: domain.FetchHTTPStatus, URL: u, StatusCode: 404, Attempts: 1}
	}
	return domain.Page{URL: u, StatusCode: 200, ContentType: "text/html", Body: []byte(body)}, nil
}

type fakeFactory struct {
	fetcher *fakeFetcher
	created int
}

func (f *fakeFactory) New() ports.PageFetcher {
	f.created++
	return f.fetcher
}

// keywordClassifier labels by the first sentiment keyword it finds in the text.
type keywordClassifier struct {
	readyErr error
	calls    atomic.Int32
}

func (c *keywordClassifier) Ready(context.Context) error {
	return c.readyErr
}

func (c *keywordClassifier) Classify(_ context.Context, text string) domain.Sentiment {
	c.calls.Add(1)
	switch {
	case strings.Contains(text, "delighted"):
		return domain.Sentiment{Label: domain.LabelPositive, Confidence: 0.9}
	case strings.Contains(text, "indifferent"):
		return domain.Sentiment{Label: domain.LabelNeutral, Confidence: 0.6}
	case strings.Contains(text, "furious"):
		return domain.Sentiment{Label: domain.LabelNegative, Confidence: 0.8}
	default:
		return domain.Sentiment{Label: domain.LabelNeutral, Degraded: true}
	}
}

func reviewText(i int, mood string) string {
	return fmt.Sprintf("Review number %d: the phone works as described and I am %s with the purchase.", i, mood)
}

// stallingClassifier is ready but never answers before the context ends.
type stallingClassifier struct {
	calls atomic.Int32
}

func (c *stallingClassifier) Ready(context.Context) error {
	return nil
}

func (c *stallingClassifier) Classify(ctx context.Context, _ string) domain.Sentiment {
	c.calls.Add(1)
	<-ctx.Done()
	return domain.Sentiment{Label: domain.LabelNeutral, Degraded: true}
}

func descriptionText(i int) string {
	return fmt.Sprintf("Specification block %d: the phone ships with a large display, a fast processor and a metal body.", i)
}

func productPage(reviews []string, links []string) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Phone X reviews</title></head><body><h1>Phone X</h1>`)
	for _, r := range reviews {
		b.WriteString(`<div itemprop="reviewBody">` + r + `</div>`)
	}
	if len(links) > 0 {
		b.WriteString(`<ul class="list-comments">`)
		for _, l := range links {
			b.WriteString(`<li><a href="` + l + `">review</a></li>`)
		}
		b.WriteString(`</ul>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func reviewPage(text string) string {
	return `<html><body><div itemprop="reviewBody">` + text + `</div></body></html>`
}

func newExtractor(t *testing.T) *parser.Extractor {
	t.Helper()
	ex, err := parser.NewExtractor(parser.OptionsFromConfig(config.Default().Extractor), nil, nil)
	require.NoError(t, err)
	return ex
}

func mustRequest(t *testing.T, raw string) domain.ReviewPageRequest {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return domain.ReviewPageRequest{URL: u}
}

func failureReason(t *testing.T, err error) domain.FailureReason {
	t.Helper()
	var f *Failure
	require.True(t, errors.As(err, &f), "expected *Failure, got %T: %v", err, err)
	return f.Reason
}

func TestAnalyzeAggregatesTenReviews(t *testing.T) {
	t.Parallel()

	var reviews []string
	for i := 0; i < 7; i++ {
		reviews = append(reviews, reviewText(i, "delighted"))
	}
	reviews = append(reviews, reviewText(7, "indifferent"), reviewText(8, "indifferent"), reviewText(9, "furious"))

	factory := &fakeFactory{fetcher: &fakeFetcher{pages: map[string]string{productURL: productPage(reviews, nil)}}}
	classifier := &keywordClassifier{}

	p := NewPipeline(PipelineDeps{
		Fetchers:   factory,
		Extractor:  newExtractor(t),
		Classifier: classifier,
		Weights:    domain.DefaultRatingWeights(),
		MaxReviews: 20,
	})

	res, err := p.Analyze(context.Background(), mustRequest(t, productURL))
	require.NoError(t, err)

	assert.Equal(t, "Phone X", res.ProductName)
	assert.Equal(t, 10, res.ReviewsConsidered)
	assert.InDelta(t, 70.0, res.Aggregate.PositivePercent, 1e-9)
	assert.InDelta(t, 20.0, res.Aggregate.NeutralPercent, 1e-9)
	assert.InDelta(t, 10.0, res.Aggregate.NegativePercent, 1e-9)
	assert.InDelta(t, 4.2, res.Aggregate.OverallRating, 1e-9)
	assert.Equal(t, 0, res.Degraded)
	assert.EqualValues(t, 10, classifier.calls.Load())
	assert.Equal(t, []State{StateIdle, StateFetching, StateExtracting, StateClassifying, StateAggregating, StateDone}, res.States)

	display := res.Aggregate.Display()
	assert.Equal(t, 4.2, display.OverallRating)
	assert.Equal(t, "Phone X", display.ProductName)

	record := res.Record(42, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.Equal(t, int64(42), record.UserID)
	assert.Equal(t, productURL, record.SourceURL)
	assert.Equal(t, 10, record.ReviewsConsidered)
}

func TestAnalyzeAccessDeniedAfterRepeatedBlocks(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	factory := fetcher.NewFactory(fetcher.Options{
		MaxAttempts:     3,
		DelayMin:        time.Millisecond,
		DelayMax:        time.Millisecond,
		BlockedStatuses: []int{http.StatusForbidden},
		BlockedBackoff:  time.Millisecond,
		NetworkBackoff:  time.Millisecond,
		RequestTimeout:  time.Second,
	}, nil)
	classifier := &keywordClassifier{}

	p := NewPipeline(PipelineDeps{
		Fetchers:   factory,
		Extractor:  newExtractor(t),
		Classifier: classifier,
		MaxReviews: 20,
	})

	res, err := p.Analyze(context.Background(), mustRequest(t, srv.URL+"/content/phone-x"))
	require.Error(t, err)
	assert.Equal(t, domain.ReasonAccessDenied, failureReason(t, err))
	assert.Equal(t, "access_denied", err.Error())
	assert.Equal(t, domain.FetchAccessDenied, domain.FetchKind(err))
	assert.EqualValues(t, 3, hits.Load())
	assert.Zero(t, classifier.calls.Load())
	assert.Equal(t, []State{StateIdle, StateFetching, StateError}, res.States)
}

func TestAnalyzeNoReviewsFound(t *testing.T) {
	t.Parallel()

	page := `<html><body><h1>Phone X</h1><p>Short.</p></body></html>`
	factory := &fakeFactory{fetcher: &fakeFetcher{pages: map[string]string{productURL: page}}}

	p := NewPipeline(PipelineDeps{
		Fetchers:   factory,
		Extractor:  newExtractor(t),
		Classifier: &keywordClassifier{},
		MaxReviews: 20,
	})

	res, err := p.Analyze(context.Background(), mustRequest(t, productURL))
	require.Error(t, err)
	assert.Equal(t, domain.ReasonNoReviewsFound, failureReason(t, err))
	assert.Equal(t, "Phone X", res.ProductName)
	assert.Equal(t, []State{StateIdle, StateFetching, StateExtracting, StateError}, res.States)
}

func TestAnalyzeClassifierUnavailableMakesNoRequests(t *testing.T) {
	t.Parallel()

	fetch := &fakeFetcher{pages: map[string]string{productURL: productPage([]string{reviewText(1, "delighted")}, nil)}}
	factory := &fakeFactory{fetcher: fetch}
	down := errors.New("model not loaded")

	p := NewPipeline(PipelineDeps{
		Fetchers:   factory,
		Extractor:  newExtractor(t),
		Classifier: &keywordClassifier{readyErr: down},
		MaxReviews: 20,
	})

	_, err := p.Analyze(context.Background(), mustRequest(t, productURL))
	require.Error(t, err)
	assert.Equal(t, domain.ReasonClassifierUnavailable, failureReason(t, err))
	assert.ErrorIs(t, err, down)
	assert.Empty(t, fetch.hits)
	assert.Zero(t, factory.created)
}

func TestAnalyzeFollowsReviewLinks(t *testing.T) {
	t.Parallel()

	inline := reviewText(1, "delighted")
	fromLink := reviewText(2, "furious")
	fetch := &fakeFetcher{
		pages: map[string]string{
			productURL:                         productPage([]string{inline}, []string{"/content/r1", "/content/r2", "/content/r3"}),
			"https://irecommend.ru/content/r1": reviewPage(fromLink),
			"https://irecommend.ru/content/r2": reviewPage(inline),
		},
		fails: map[string]error{
			"https://irecommend.ru/content/r3": &domain.FetchError{Kind: domain.FetchAccessDenied, Attempts: 3},
		},
	}
	factory := &fakeFactory{fetcher: fetch}

	p := NewPipeline(PipelineDeps{
		Fetchers:   factory,
		Extractor:  newExtractor(t),
		Classifier: &keywordClassifier{},
		MaxReviews: 20,
	})

	res, err := p.Analyze(context.Background(), mustRequest(t, productURL))
	require.NoError(t, err)

	assert.Equal(t, 2, res.ReviewsConsidered, "duplicate and failed links are not counted")
	assert.InDelta(t, 50.0, res.Aggregate.PositivePercent, 1e-9)
	assert.InDelta(t, 50.0, res.Aggregate.NegativePercent, 1e-9)
	assert.InDelta(t, 3.0, res.Aggregate.OverallRating, 1e-9)
	assert.Equal(t, 1, factory.created, "one session per run")
	assert.Len(t, fetch.hits, 4)
}

func TestAnalyzeCapsReviews(t *testing.T) {
	t.Parallel()

	t.Run("linked pages", func(t *testing.T) {
		t.Parallel()

		var inline, links []string
		pages := map[string]string{}
		for i := 0; i < 8; i++ {
			inline = append(inline, reviewText(i, "delighted"))
			link := fmt.Sprintf("/content/r%d", i)
			links = append(links, link)
			pages["https://irecommend.ru"+link] = reviewPage(reviewText(100+i, "furious"))
		}
		pages[productURL] = productPage(inline, links)
		fetch := &fakeFetcher{pages: pages}

		p := NewPipeline(PipelineDeps{
			Fetchers:   &fakeFactory{fetcher: fetch},
			Extractor:  newExtractor(t),
			Classifier: &keywordClassifier{},
			MaxReviews: 5,
		})

		res, err := p.Analyze(context.Background(), mustRequest(t, productURL))
		require.NoError(t, err)
		assert.Equal(t, 5, res.ReviewsConsidered)
		assert.InDelta(t, 100.0, res.Aggregate.NegativePercent, 1e-9, "product page text is not mixed in")
		assert.Len(t, fetch.hits, 6, "links stop being followed once the cap is reached")
	})

	t.Run("product page only", func(t *testing.T) {
		t.Parallel()

		var reviews []string
		for i := 0; i < 8; i++ {
			reviews = append(reviews, reviewText(i, "delighted"))
		}
		fetch := &fakeFetcher{pages: map[string]string{productURL: productPage(reviews, nil)}}

		p := NewPipeline(PipelineDeps{
			Fetchers:   &fakeFactory{fetcher: fetch},
			Extractor:  newExtractor(t),
			Classifier: &keywordClassifier{},
			MaxReviews: 5,
		})

		res, err := p.Analyze(context.Background(), mustRequest(t, productURL))
		require.NoError(t, err)
		assert.Equal(t, 5, res.ReviewsConsidered)
		assert.Len(t, fetch.hits, 1)
	})
}

func TestAnalyzePrefersLinkedReviewsOverPageText(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString(`<html><body><h1>Phone X</h1>`)
	for i := 0; i < 20; i++ {
		b.WriteString(`<p>` + descriptionText(i) + `</p>`)
	}
	b.WriteString(`<ul class="list-comments"><li><a href="/content/r1">one</a></li><li><a href="/content/r2">two</a></li></ul>`)
	b.WriteString(`</body></html>`)

	fetch := &fakeFetcher{pages: map[string]string{
		productURL:                         b.String(),
		"https://irecommend.ru/content/r1": reviewPage(reviewText(1, "furious")),
		"https://irecommend.ru/content/r2": reviewPage(reviewText(2, "furious")),
	}}

	p := NewPipeline(PipelineDeps{
		Fetchers:   &fakeFactory{fetcher: fetch},
		Extractor:  newExtractor(t),
		Classifier: &keywordClassifier{},
		MaxReviews: 20,
	})

	res, err := p.Analyze(context.Background(), mustRequest(t, productURL))
	require.NoError(t, err)
	assert.Equal(t, 2, res.ReviewsConsidered)
	assert.InDelta(t, 100.0, res.Aggregate.NegativePercent, 1e-9)
	assert.Equal(t, 0, res.Degraded)
	assert.Equal(t, []string{
		productURL,
		"https://irecommend.ru/content/r1",
		"https://irecommend.ru/content/r2",
	}, fetch.hits)
}

func TestAnalyzeFallsBackToPageTextWhenLinksYieldNothing(t *testing.T) {
	t.Parallel()

	inline := reviewText(1, "delighted")
	fetch := &fakeFetcher{
		pages: map[string]string{
			productURL:                         productPage([]string{inline}, []string{"/content/r1", "/content/r2"}),
			"https://irecommend.ru/content/r2": `<html><body><p>Short.</p></body></html>`,
		},
		fails: map[string]error{
			"https://irecommend.ru/content/r1": &domain.FetchError{Kind: domain.FetchAccessDenied, Attempts: 3},
		},
	}

	p := NewPipeline(PipelineDeps{
		Fetchers:   &fakeFactory{fetcher: fetch},
		Extractor:  newExtractor(t),
		Classifier: &keywordClassifier{},
		MaxReviews: 20,
	})

	res, err := p.Analyze(context.Background(), mustRequest(t, productURL))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ReviewsConsidered)
	assert.InDelta(t, 100.0, res.Aggregate.PositivePercent, 1e-9)
	assert.Len(t, fetch.hits, 3)
}

func TestAnalyzeTimeoutPerPhase(t *testing.T) {
	t.Parallel()

	review := reviewText(1, "delighted")
	cases := []struct {
		name       string
		fetch      *fakeFetcher
		classifier ports.SentimentClassifier
		reason     domain.FailureReason
		states     []State
	}{
		{
			name:       "product page fetch",
			fetch:      &fakeFetcher{blocked: map[string]bool{productURL: true}},
			classifier: &keywordClassifier{},
			reason:     domain.ReasonAccessDenied,
			states:     []State{StateIdle, StateFetching, StateError},
		},
		{
			name: "review link collection",
			fetch: &fakeFetcher{
				pages:   map[string]string{productURL: productPage([]string{review}, []string{"/content/r1", "/content/r2"})},
				blocked: map[string]bool{"https://irecommend.ru/content/r1": true},
			},
			classifier: &keywordClassifier{},
			reason:     domain.ReasonInternalError,
			states:     []State{StateIdle, StateFetching, StateExtracting, StateError},
		},
		{
			name:       "classification",
			fetch:      &fakeFetcher{pages: map[string]string{productURL: productPage([]string{review}, nil)}},
			classifier: &stallingClassifier{},
			reason:     domain.ReasonInternalError,
			states:     []State{StateIdle, StateFetching, StateExtracting, StateClassifying, StateError},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := NewPipeline(PipelineDeps{
				Fetchers:   &fakeFactory{fetcher: tc.fetch},
				Extractor:  newExtractor(t),
				Classifier: tc.classifier,
				MaxReviews: 20,
				Timeout:    30 * time.Millisecond,
			})

			start := time.Now()
			res, err := p.Analyze(context.Background(), mustRequest(t, productURL))
			require.Error(t, err)
			assert.Equal(t, tc.reason, failureReason(t, err))
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Equal(t, tc.states, res.States)
			assert.Less(t, time.Since(start), 5*time.Second)
		})
	}

	t.Run("link collection stops at the deadline", func(t *testing.T) {
		t.Parallel()

		fetch := &fakeFetcher{
			pages:   map[string]string{productURL: productPage(nil, []string{"/content/r1", "/content/r2"})},
			blocked: map[string]bool{"https://irecommend.ru/content/r1": true},
		}
		p := NewPipeline(PipelineDeps{
			Fetchers:   &fakeFactory{fetcher: fetch},
			Extractor:  newExtractor(t),
			Classifier: &keywordClassifier{},
			Timeout:    30 * time.Millisecond,
		})

		_, err := p.Analyze(context.Background(), mustRequest(t, productURL))
		require.Error(t, err)
		assert.NotContains(t, fetch.hits, "https://irecommend.ru/content/r2")
	})
}

func TestAnalyzeParallelClassificationMatchesSequential(t *testing.T) {
	t.Parallel()

	var reviews []string
	moods := []string{"delighted", "furious", "indifferent", "delighted", "delighted", "furious"}
	for i, m := range moods {
		reviews = append(reviews, reviewText(i, m))
	}
	pages := map[string]string{productURL: productPage(reviews, nil)}

	analyze := func(workers int) Result {
		p := NewPipeline(PipelineDeps{
			Fetchers:   &fakeFactory{fetcher: &fakeFetcher{pages: pages}},
			Extractor:  newExtractor(t),
			Classifier: &keywordClassifier{},
			MaxReviews: 20,
			Workers:    workers,
		})
		res, err := p.Analyze(context.Background(), mustRequest(t, productURL))
		require.NoError(t, err)
		return res
	}

	assert.Equal(t, analyze(1).Aggregate, analyze(4).Aggregate)
}

func TestAnalyzeCountsDegradedReviews(t *testing.T) {
	t.Parallel()

	reviews := []string{
		reviewText(1, "delighted"),
		reviewText(2, "unsure what to think"),
	}
	p := NewPipeline(PipelineDeps{
		Fetchers:   &fakeFactory{fetcher: &fakeFetcher{pages: map[string]string{productURL: productPage(reviews, nil)}}},
		Extractor:  newExtractor(t),
		Classifier: &keywordClassifier{},
		MaxReviews: 20,
	})

	res, err := p.Analyze(context.Background(), mustRequest(t, productURL))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Degraded)
	assert.Equal(t, 2, res.ReviewsConsidered)
	assert.InDelta(t, 50.0, res.Aggregate.NeutralPercent, 1e-9)
}

func TestAnalyzeMalformedProductPage(t *testing.T) {
	t.Parallel()

	fetch := &fakeFetcher{fails: map[string]error{
		productURL: &domain.FetchError{Kind: domain.FetchMalformedContent, URL: productURL, Attempts: 1},
	}}
	p := NewPipeline(PipelineDeps{
		Fetchers:   &fakeFactory{fetcher: fetch},
		Extractor:  newExtractor(t),
		Classifier: &keywordClassifier{},
	})

	_, err := p.Analyze(context.Background(), mustRequest(t, productURL))
	assert.Equal(t, domain.ReasonAccessDenied, failureReason(t, err))
	assert.Equal(t, domain.FetchMalformedContent, domain.FetchKind(err))
}
