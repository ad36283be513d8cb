package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ReviewAnalyzer/internal/config"
	"ReviewAnalyzer/internal/domain"
	"ReviewAnalyzer/internal/infrastructure/fetcher"
	"ReviewAnalyzer/internal/infrastructure/llm"
	"ReviewAnalyzer/internal/infrastructure/ml"
	"ReviewAnalyzer/internal/infrastructure/parser"
	"ReviewAnalyzer/internal/infrastructure/storage"
	"ReviewAnalyzer/internal/logging"
	"ReviewAnalyzer/internal/ports"
	"ReviewAnalyzer/internal/sentiment"
	"ReviewAnalyzer/internal/usecase"
)

// Analyzer runs one analysis; *usecase.Pipeline is the production implementation.
type Analyzer interface {
	Analyze(ctx context.Context, req domain.ReviewPageRequest) (usecase.Result, error)
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	analyzer   Analyzer
	classifier ports.SentimentClassifier
	repository ports.AnalysisRepository
	db         *sql.DB
	logger     *slog.Logger
	now        func() time.Time
}

// New builds the application from configuration and opens the history database.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	extractor, err := parser.NewExtractor(
		parser.OptionsFromConfig(cfg.Extractor),
		parser.NewRegistry(),
		baseLogger.With("component", "extractor"),
	)
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}

	var model ports.SentimentModel
	switch cfg.Classifier.Backend {
	case config.BackendChatGPT:
		model = llm.NewChatGPTClient(cfg.ChatGPT, cfg.Classifier.Timeout)
	default:
		model = ml.NewClient(cfg.Classifier.Endpoint, cfg.Classifier.APIKey, cfg.Classifier.Timeout)
	}
	classifier := sentiment.NewAdapter(model, sentiment.OptionsFromConfig(cfg.Classifier),
		baseLogger.With("component", "classifier", "backend", cfg.Classifier.Backend))

	fetchers := fetcher.NewFactory(fetcher.OptionsFromConfig(cfg.Fetcher, cfg.Target),
		baseLogger.With("component", "fetcher"))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Fetchers:   fetchers,
		Extractor:  extractor,
		Classifier: classifier,
		Weights:    cfg.Scoring.Weights,
		MaxReviews: cfg.Extractor.MaxReviews,
		Workers:    cfg.Classifier.Workers,
		Timeout:    cfg.Pipeline.Timeout,
		Logger:     baseLogger.With("component", "pipeline"),
	})

	db, dialect, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	application := newApplication(cfg, pipeline, storage.NewSQLRepository(db, dialect), baseLogger)
	application.classifier = classifier
	application.db = db
	return application, nil
}

func newApplication(cfg config.Config, analyzer Analyzer, repo ports.AnalysisRepository, logger *slog.Logger) *Application {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Application{
		cfg:        cfg,
		analyzer:   analyzer,
		repository: repo,
		logger:     logger,
		now:        time.Now,
	}
}

// Start prepares the history schema and reports classifier readiness.
// An unavailable classifier is not fatal here; each analysis re-checks it.
func (a *Application) Start(ctx context.Context) error {
	if err := a.Migrate(ctx); err != nil {
		return err
	}
	if a.classifier != nil {
		if err := a.classifier.Ready(ctx); err != nil {
			a.logger.Warn("sentiment classifier is not ready", "error", err)
		} else {
			a.logger.Info("sentiment classifier ready", "backend", a.cfg.Classifier.Backend)
		}
	}
	return nil
}

// Migrate creates the history schema when the repository supports it.
func (a *Application) Migrate(ctx context.Context) error {
	m, ok := a.repository.(migrator)
	if !ok {
		return nil
	}
	if err := m.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate history store: %w", err)
	}
	return nil
}

// Analyze validates rawURL, runs the pipeline and stores the result in the user's history.
// Nothing is stored when the pipeline fails.
func (a *Application) Analyze(ctx context.Context, rawURL string, userID int64) (usecase.Result, error) {
	req, err := domain.NewReviewPageRequest(rawURL, a.cfg.Target.AllowedDomains)
	if err != nil {
		return usecase.Result{}, err
	}

	result, err := a.analyzer.Analyze(ctx, req)
	if err != nil {
		return result, err
	}

	if a.repository == nil {
		return result, nil
	}
	id, err := a.repository.Save(ctx, result.Record(userID, a.now()))
	if err != nil {
		a.logger.Error("history not saved", "url", result.SourceURL, "error", err)
		return result, fmt.Errorf("save analysis: %w", err)
	}
	a.logger.Info("analysis saved", "id", id, "user_id", userID, "product", result.ProductName)
	return result, nil
}

// History lists the user's past analyses, newest first.
func (a *Application) History(ctx context.Context, userID int64, limit int) ([]domain.Analysis, error) {
	if a.repository == nil {
		return nil, nil
	}
	items, err := a.repository.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return items, nil
}

// Close releases the history database.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Message turns an Analyze error into text for the user.
func Message(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, domain.ErrInvalidURL) || errors.Is(err, domain.ErrDomainNotAllowed) {
		return "Введите корректную ссылку на irecommend.ru"
	}

	var failure *usecase.Failure
	if !errors.As(err, &failure) {
		return "Не удалось сохранить результат анализа. Попробуйте позже."
	}

	switch failure.Reason {
	case domain.ReasonAccessDenied:
		return "Сайт не пускает: защита от ботов заблокировала запрос. Попробуйте позже."
	case domain.ReasonNoReviewsFound:
		return "Не удалось найти отзывы на странице."
	case domain.ReasonClassifierUnavailable:
		return "Нейросеть не загружена. Проверьте консоль."
	default:
		return "Внутренняя ошибка анализа. Попробуйте позже."
	}
}
