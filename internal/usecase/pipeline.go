package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ReviewAnalyzer/internal/domain"
	"ReviewAnalyzer/internal/ports"
	"ReviewAnalyzer/internal/telemetry"
)

var tracer = telemetry.Tracer("ReviewAnalyzer/usecase")

// State is a step of one analysis run.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateExtracting  State = "extracting"
	StateClassifying State = "classifying"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
	StateError       State = "error"
)

// Failure is the error returned by Analyze. Its message is the bare reason;
// the underlying cause is only reachable through errors.Unwrap.
type Failure struct {
	Reason domain.FailureReason
	State  State
	cause  error
}

func (f *Failure) Error() string {
	return string(f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.cause
}

// Result is a successful analysis run.
type Result struct {
	SourceURL         string
	ProductName       string
	Aggregate         domain.AggregateResult
	ReviewsConsidered int
	Degraded          int
	States            []State
}

// Record converts the result into a history entry for userID.
func (r Result) Record(userID int64, at time.Time) domain.Analysis {
	return r.Aggregate.Record(userID, r.SourceURL, at)
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Fetchers   ports.FetcherFactory
	Extractor  ports.ReviewExtractor
	Classifier ports.SentimentClassifier
	Weights    domain.RatingWeights
	MaxReviews int
	Workers    int
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Pipeline implements the fetch, extract, classify, aggregate workflow.
type Pipeline struct {
	fetchers   ports.FetcherFactory
	extractor  ports.ReviewExtractor
	classifier ports.SentimentClassifier
	weights    domain.RatingWeights
	maxReviews int
	workers    int
	timeout    time.Duration
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deps.Weights == (domain.RatingWeights{}) {
		deps.Weights = domain.DefaultRatingWeights()
	}
	if deps.Workers < 1 {
		deps.Workers = 1
	}
	return &Pipeline{
		fetchers:   deps.Fetchers,
		extractor:  deps.Extractor,
		classifier: deps.Classifier,
		weights:    deps.Weights,
		maxReviews: deps.MaxReviews,
		workers:    deps.Workers,
		timeout:    deps.Timeout,
		logger:     logger,
	}
}

// run carries the per-invocation state trace.
type run struct {
	url    string
	states []State
	logger *slog.Logger
}

func (r *run) enter(next State) {
	prev := r.states[len(r.states)-1]
	r.states = append(r.states, next)
	r.logger.Info("pipeline state", "from", prev, "to", next)
}

func (r *run) fail(reason domain.FailureReason, cause error) *Failure {
	at := r.states[len(r.states)-1]
	r.enter(StateError)
	r.logger.Warn("analysis failed", "reason", reason, "state", at, "error", cause)
	return &Failure{Reason: reason, State: at, cause: cause}
}

// Analyze runs the whole pipeline for one product review page.
// Every failure is a *Failure carrying one of the closed set of reasons.
func (p *Pipeline) Analyze(ctx context.Context, req domain.ReviewPageRequest) (result Result, err error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	ctx, span := telemetry.StartSpan(ctx, tracer, "pipeline.analyze", "url", req.String())
	defer func() { telemetry.EndSpan(span, err) }()

	r := &run{
		url:    req.String(),
		states: []State{StateIdle},
		logger: p.logger.With("url", req.String()),
	}
	result.SourceURL = r.url
	defer func() { result.States = r.states }()

	if err := p.classifier.Ready(ctx); err != nil {
		return result, r.fail(domain.ReasonClassifierUnavailable, err)
	}

	r.enter(StateFetching)
	fetcher := p.fetchers.New()
	page, err := fetcher.Fetch(ctx, r.url)
	if err != nil {
		return result, r.fail(domain.ReasonAccessDenied, err)
	}

	r.enter(StateExtracting)
	product, err := p.extractor.ExtractProduct(r.url, page.Body)
	if err != nil {
		return result, r.fail(domain.ReasonInternalError, err)
	}
	result.ProductName = product.Name

	candidates, err := p.collect(ctx, r, fetcher, product)
	if err != nil {
		return result, r.fail(domain.ReasonInternalError, err)
	}
	if len(candidates) == 0 {
		return result, r.fail(domain.ReasonNoReviewsFound, nil)
	}

	r.enter(StateClassifying)
	sentiments, degraded := p.classify(ctx, r, candidates)
	if err := ctx.Err(); err != nil {
		return result, r.fail(domain.ReasonInternalError, err)
	}

	r.enter(StateAggregating)
	aggregate := domain.Aggregate(sentiments, p.weights)
	if !aggregate.Valid() {
		return result, r.fail(domain.ReasonInternalError, nil)
	}
	aggregate.ProductName = product.Name

	result.Aggregate = aggregate
	result.ReviewsConsidered = aggregate.ReviewsConsidered
	result.Degraded = degraded

	r.enter(StateDone)
	r.logger.Info("analysis completed",
		"product", product.Name,
		"reviews", aggregate.ReviewsConsidered,
		"degraded", degraded,
		"rating", aggregate.OverallRating)
	return result, nil
}

// collect gathers review texts from the linked review pages first, deduplicated
// across the run and capped at maxReviews. Link failures are skipped. Text found
// on the product page itself is used only when the links yield nothing.
func (p *Pipeline) collect(ctx context.Context, r *run, fetcher ports.PageFetcher, product domain.ProductPage) ([]domain.ReviewCandidate, error) {
	seen := make(map[string]struct{})
	out := make([]domain.ReviewCandidate, 0, len(product.ReviewLinks))

	add := func(cs []domain.ReviewCandidate) {
		for _, c := range cs {
			if p.full(out) {
				return
			}
			if _, dup := seen[c.Text]; dup {
				continue
			}
			seen[c.Text] = struct{}{}
			out = append(out, c)
		}
	}

	for _, link := range product.ReviewLinks {
		if p.full(out) {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := fetcher.Fetch(ctx, link)
		if err != nil {
			r.logger.Warn("review page skipped", "link", link, "kind", domain.FetchKind(err), "error", err)
			continue
		}
		found, err := p.extractor.ExtractReview(page.Body)
		if err != nil {
			r.logger.Warn("review page unparsable", "link", link, "error", err)
			continue
		}
		add(found)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	linked := len(out)
	if linked == 0 {
		add(product.Candidates)
	}

	r.logger.Debug("candidates collected",
		"links", len(product.ReviewLinks),
		"linked", linked,
		"inline", len(product.Candidates),
		"total", len(out))
	return out, nil
}

func (p *Pipeline) full(cs []domain.ReviewCandidate) bool {
	return p.maxReviews > 0 && len(cs) >= p.maxReviews
}

// classify labels every candidate. With more than one worker the calls fan out;
// label counts do not depend on completion order.
func (p *Pipeline) classify(ctx context.Context, r *run, candidates []domain.ReviewCandidate) ([]domain.Sentiment, int) {
	sentiments := make([]domain.Sentiment, len(candidates))

	if p.workers <= 1 {
		for i, c := range candidates {
			sentiments[i] = p.classifier.Classify(ctx, c.Text)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.workers)
		for i, c := range candidates {
			g.Go(func() error {
				sentiments[i] = p.classifier.Classify(gctx, c.Text)
				return nil
			})
		}
		_ = g.Wait()
	}

	degraded := 0
	for i, s := range sentiments {
		if s.Degraded {
			degraded++
			r.logger.Warn("review classified with default label", "index", i, "strategy", candidates[i].Strategy)
		}
	}
	return sentiments, degraded
}
