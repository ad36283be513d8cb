package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"slices"
	"syscall"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"

	"ReviewAnalyzer/internal/config"
	"ReviewAnalyzer/internal/domain"
	"ReviewAnalyzer/internal/ports"
	"ReviewAnalyzer/internal/telemetry"
)

const maxRedirects = 10

// transientStatuses are retried on the same session.
var transientStatuses = []int{
	http.StatusRequestTimeout,
	http.StatusTooEarly,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Options configures politeness, retries and the browser identity.
type Options struct {
	MaxAttempts     int
	DelayMin        time.Duration
	DelayMax        time.Duration
	BlockedStatuses []int
	BlockedBackoff  time.Duration
	NetworkBackoff  time.Duration
	RequestTimeout  time.Duration
	UserAgents      []string
	AcceptLanguage  string
	Accept          string
	AllowedDomains  []string
}

// OptionsFromConfig maps fetcher settings and the target allow-list onto Options.
func OptionsFromConfig(cfg config.FetcherConfig, target config.TargetConfig) Options {
	return Options{
		MaxAttempts:     cfg.MaxAttempts,
		DelayMin:        cfg.DelayMin,
		DelayMax:        cfg.DelayMax,
		BlockedStatuses: cfg.BlockedStatuses,
		BlockedBackoff:  cfg.BlockedBackoff,
		NetworkBackoff:  cfg.NetworkBackoff,
		RequestTimeout:  cfg.RequestTimeout,
		UserAgents:      cfg.UserAgents,
		AcceptLanguage:  cfg.AcceptLanguage,
		Accept:          cfg.Accept,
		AllowedDomains:  target.AllowedDomains,
	}
}

// waitFunc blocks for d or until ctx is done.
type waitFunc func(ctx context.Context, d time.Duration) error

// Factory creates one Fetcher, and therefore one session lineage, per pipeline run.
type Factory struct {
	opts   Options
	logger *slog.Logger
	wait   waitFunc
}

var _ ports.FetcherFactory = (*Factory)(nil)

// NewFactory applies defaults to opts.
func NewFactory(opts Options, log *slog.Logger) *Factory {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.DelayMax < opts.DelayMin {
		opts.DelayMax = opts.DelayMin
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = config.Default().Fetcher.UserAgents
	}
	return &Factory{opts: opts, logger: log, wait: sleepContext}
}

// New returns a fetcher with its own session.
func (f *Factory) New() ports.PageFetcher {
	return &Fetcher{
		opts:   f.opts,
		logger: f.logger,
		wait:   f.wait,
	}
}

// Fetcher issues browser-like GET requests and rotates its session when blocked.
// It is not safe for concurrent use; each pipeline run owns one.
type Fetcher struct {
	opts     Options
	logger   *slog.Logger
	wait     waitFunc
	session  *resty.Client
	sessions int
}

// outcome is the classification of one attempt.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeBlocked
	outcomeTransient
	outcomeTerminal
)

// attemptState is the retry state machine for one Fetch call.
type attemptState struct {
	attempt    int
	lastStatus int
	lastErr    error
	blocked    int
}

// Fetch downloads url. Failures are returned as *domain.FetchError; exhausting the attempt
// budget yields domain.FetchAccessDenied. Blocked responses and transient errors share the budget.
func (f *Fetcher) Fetch(ctx context.Context, target string) (domain.Page, error) {
	var st attemptState

	for st.attempt = 1; st.attempt <= f.opts.MaxAttempts; st.attempt++ {
		if err := f.wait(ctx, f.jitter()); err != nil {
			return domain.Page{}, f.failure(domain.FetchTimeout, target, st, err)
		}

		session, err := f.currentSession()
		if err != nil {
			return domain.Page{}, f.failure(domain.FetchNetworkError, target, st, err)
		}

		res, reqErr := session.R().SetContext(ctx).Get(target)
		page, kind, result := f.evaluate(ctx, target, res, reqErr, &st)

		switch result {
		case outcomeSuccess:
			f.debug("page fetched", "url", target, "attempt", st.attempt, "bytes", len(page.Body))
			return page, nil
		case outcomeTerminal:
			return domain.Page{}, f.failure(kind, target, st, st.lastErr)
		case outcomeBlocked:
			st.blocked++
			f.warn("access blocked, rotating session",
				"url", target, "status", st.lastStatus, "attempt", st.attempt, "max_attempts", f.opts.MaxAttempts)
			f.rotate()
			if err := f.backoff(ctx, st, f.opts.BlockedBackoff); err != nil {
				return domain.Page{}, f.failure(domain.FetchTimeout, target, st, err)
			}
		case outcomeTransient:
			f.warn("transient fetch failure",
				"url", target, "status", st.lastStatus, "error", st.lastErr, "attempt", st.attempt)
			if err := f.backoff(ctx, st, f.opts.NetworkBackoff); err != nil {
				return domain.Page{}, f.failure(domain.FetchTimeout, target, st, err)
			}
		}
	}

	st.attempt = f.opts.MaxAttempts
	f.warn("giving up after all attempts", "url", target, "attempts", st.attempt, "blocked", st.blocked)
	return domain.Page{}, f.failure(domain.FetchAccessDenied, target, st, st.lastErr)
}

// evaluate classifies one response or transport error.
func (f *Fetcher) evaluate(ctx context.Context, target string, res *resty.Response, reqErr error, st *attemptState) (domain.Page, domain.FetchFailureKind, outcome) {
	if reqErr != nil {
		st.lastErr = reqErr
		st.lastStatus = 0
		if ctx.Err() != nil {
			st.lastErr = ctx.Err()
			return domain.Page{}, domain.FetchTimeout, outcomeTerminal
		}
		if isTransient(reqErr) {
			return domain.Page{}, domain.FetchNetworkError, outcomeTransient
		}
		return domain.Page{}, domain.FetchNetworkError, outcomeTerminal
	}

	status := res.StatusCode()
	st.lastStatus = status
	st.lastErr = nil

	switch {
	case status == http.StatusOK:
		contentType := res.Header().Get("Content-Type")
		body := res.Body()
		if !isHTML(contentType, body) {
			st.lastErr = fmt.Errorf("unexpected content type %q", contentType)
			return domain.Page{}, domain.FetchMalformedContent, outcomeTerminal
		}
		return domain.Page{
			URL:         target,
			StatusCode:  status,
			ContentType: contentType,
			Body:        body,
		}, "", outcomeSuccess
	case slices.Contains(f.opts.BlockedStatuses, status):
		return domain.Page{}, domain.FetchBlocked, outcomeBlocked
	case slices.Contains(transientStatuses, status):
		return domain.Page{}, domain.FetchNetworkError, outcomeTransient
	default:
		st.lastErr = fmt.Errorf("unexpected status %s", res.Status())
		return domain.Page{}, domain.FetchHTTPStatus, outcomeTerminal
	}
}

// backoff waits base × attempt before the next attempt; nothing is awaited after the last one.
func (f *Fetcher) backoff(ctx context.Context, st attemptState, base time.Duration) error {
	if st.attempt >= f.opts.MaxAttempts {
		return nil
	}
	return f.wait(ctx, base*time.Duration(st.attempt))
}

func (f *Fetcher) failure(kind domain.FetchFailureKind, target string, st attemptState, err error) error {
	return &domain.FetchError{
		Kind:       kind,
		URL:        target,
		StatusCode: st.lastStatus,
		Attempts:   st.attempt,
		Err:        err,
	}
}

func (f *Fetcher) currentSession() (*resty.Client, error) {
	if f.session != nil {
		return f.session, nil
	}
	session, err := f.newSession()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	f.session = session
	f.sessions++
	return session, nil
}

// rotate drops the current session; the next attempt builds a fresh identity.
func (f *Fetcher) rotate() {
	f.session = nil
}

// newSession builds a client with a fresh cookie jar, anti-bot transport and browser headers.
func (f *Fetcher) newSession() (*resty.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetCookieJar(jar)

	transport := client.GetClient().Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	client.SetTransport(cloudflarebp.AddCloudFlareByPass(transport))

	client.SetHeader("User-Agent", f.opts.UserAgents[f.sessions%len(f.opts.UserAgents)])
	if f.opts.AcceptLanguage != "" {
		client.SetHeader("Accept-Language", f.opts.AcceptLanguage)
	}
	if f.opts.Accept != "" {
		client.SetHeader("Accept", f.opts.Accept)
	}
	client.SetTimeout(f.opts.RequestTimeout)
	client.SetRedirectPolicy(f.redirectPolicy())

	telemetry.InstrumentResty(client, "ReviewAnalyzer/fetcher")
	return client, nil
}

// redirectPolicy keeps redirects on the allow-listed review site.
func (f *Fetcher) redirectPolicy() resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if len(f.opts.AllowedDomains) > 0 && !domain.HostAllowed(req.URL.Hostname(), f.opts.AllowedDomains) {
			return fmt.Errorf("redirect to %s is outside the allowed domains", req.URL.Hostname())
		}
		return nil
	})
}

func (f *Fetcher) jitter() time.Duration {
	spread := f.opts.DelayMax - f.opts.DelayMin
	if spread <= 0 {
		return f.opts.DelayMin
	}
	return f.opts.DelayMin + rand.N(spread+1)
}

func isHTML(contentType string, body []byte) bool {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// isTransient reports timeouts, resets and refused connections.
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (f *Fetcher) debug(msg string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}

func (f *Fetcher) warn(msg string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}
