// Package pipeline собирает хранилище, Wrapper, переводчик и источники
// в один запуск по YAML конфигурации.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/admtranslator"
	"github.com/ruslano69/epibridge/pkg/archive"
	"github.com/ruslano69/epibridge/pkg/fetchers"
	"github.com/ruslano69/epibridge/pkg/httpclient"
	"github.com/ruslano69/epibridge/pkg/metrics"
	"github.com/ruslano69/epibridge/pkg/resultlog"
	"github.com/ruslano69/epibridge/pkg/retry"
	"github.com/ruslano69/epibridge/pkg/state"
)

var errNotOpen = errors.New("runner is not open")

// Publisher публикует итог запуска источника (resultlog.RedisPublisher)
type Publisher interface {
	Publish(ctx context.Context, result resultlog.RunResult) error
	Close() error
}

var _ Publisher = (*resultlog.RedisPublisher)(nil)

// Runner выполняет источники из конфигурации
type Runner struct {
	cfg *Config
	log zerolog.Logger
	now func() time.Time

	storage       adapters.Adapter
	ownsStorage   bool
	retriever     httpclient.Retriever
	client        *httpclient.Client
	publisher     Publisher
	ownsPublisher bool

	wrapper    *adapters.Wrapper
	translator *admtranslator.Table
	state      *state.Manager
	dlq        *retry.DLQ
	archiver   *archive.Archiver
}

// Option настраивает Runner
type Option func(*Runner)

// WithStorage задает уже подключенное хранилище вместо создания по storage.type
func WithStorage(a adapters.Adapter) Option {
	return func(r *Runner) { r.storage = a }
}

// WithRetriever заменяет HTTP клиент
func WithRetriever(rt httpclient.Retriever) Option {
	return func(r *Runner) { r.retriever = rt }
}

// WithPublisher заменяет публикацию результатов в Redis
func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithClock подменяет часы (окно Wrapper и время запуска)
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner создает Runner. Ресурсы создаются в Open.
func NewRunner(cfg *Config, log zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg: cfg,
		log: log,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Wrapper возвращает Wrapper после Open
func (r *Runner) Wrapper() *adapters.Wrapper {
	return r.wrapper
}

// State возвращает менеджер состояния после Open
func (r *Runner) State() *state.Manager {
	return r.state
}

// Open подключает хранилище и создает зависимости источников.
// Если Open не удался, уже открытые ресурсы закрываются.
func (r *Runner) Open(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			if cerr := r.Close(ctx); cerr != nil {
				r.log.Warn().Err(cerr).Msg("close after failed open")
			}
			r.wrapper = nil
		}
	}()

	if r.storage == nil {
		sc := r.cfg.Storage
		sc.Logger = r.log
		storage, err := adapters.New(ctx, sc)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		r.storage = storage
		r.ownsStorage = true
	}

	r.wrapper = adapters.NewWrapper(r.storage, r.cfg.Wrapper,
		adapters.WithLogger(r.log),
		adapters.WithClock(r.now),
	)

	desc, err := adapters.Describe(ctx, r.storage)
	if err != nil {
		return err
	}
	r.log.Info().
		Str("backend", desc.Type).
		Str("version", desc.Version).
		Int("sliding_window_days", r.cfg.Wrapper.SlidingWindowDays).
		Bool("staging", r.cfg.Wrapper.Staging).
		Str("capabilities", desc.Capabilities.String()).
		Msg("storage opened")

	if err := r.openTranslator(ctx); err != nil {
		return err
	}

	if r.retriever == nil {
		client, err := httpclient.New(r.cfg.HTTP, r.log)
		if err != nil {
			return fmt.Errorf("failed to create http client: %w", err)
		}
		r.retriever = client
		r.client = client
	}

	st, err := state.NewManager(r.cfg.State.File, true)
	if err != nil {
		return err
	}
	r.state = st

	if r.cfg.ErrorHandling.DLQ.Enabled {
		dlq, err := retry.NewDLQ(r.cfg.ErrorHandling.DLQ)
		if err != nil {
			return fmt.Errorf("failed to open DLQ: %w", err)
		}
		if removed := dlq.CleanupOld(); removed > 0 {
			r.log.Info().Int("removed", removed).Msg("old DLQ entries removed")
		}
		r.dlq = dlq
	}

	if r.cfg.Archive.Enabled {
		arch, err := archive.New(ctx, r.cfg.Archive, r.log)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		r.archiver = arch
	}

	if r.publisher == nil && r.cfg.ResultLog.Enabled() {
		r.publisher = resultlog.NewRedisPublisher(r.cfg.ResultLog)
		r.ownsPublisher = true
	}
	return nil
}

func (r *Runner) openTranslator(ctx context.Context) error {
	tc := r.cfg.Translations

	opts := []admtranslator.Option{admtranslator.WithLogger(r.log)}
	if tc.UseStorage {
		opts = append(opts, admtranslator.WithResolver(r.wrapper))
	}
	r.translator = admtranslator.New(opts...)

	if tc.File != "" {
		n, err := r.translator.LoadFile(tc.File)
		if err != nil {
			return fmt.Errorf("failed to load translations: %w", err)
		}
		r.log.Info().Str("file", tc.File).Int("entries", n).Msg("translations loaded")
	}

	if tc.DivisionsFile != "" {
		ds, ok := r.storage.(adapters.DivisionStore)
		if !ok {
			return fmt.Errorf("storage %s cannot store administrative divisions", r.storage.GetDatabaseType())
		}
		f, err := os.Open(tc.DivisionsFile)
		if err != nil {
			return fmt.Errorf("failed to open divisions file: %w", err)
		}
		defer f.Close()

		n, err := admtranslator.LoadDivisions(ctx, f, ds)
		if err != nil {
			return fmt.Errorf("failed to load divisions: %w", err)
		}
		r.log.Info().Str("file", tc.DivisionsFile).Int("rows", n).Msg("administrative divisions loaded")
	}
	return nil
}

// Ping проверяет хранилище (для /readyz)
func (r *Runner) Ping(ctx context.Context) error {
	if r.storage == nil {
		return errNotOpen
	}
	return r.storage.Ping(ctx)
}

// Close закрывает созданные Runner ресурсы. Повторный вызов ничего не делает.
func (r *Runner) Close(ctx context.Context) error {
	var errs []error
	if r.ownsPublisher && r.publisher != nil {
		errs = append(errs, r.publisher.Close())
		r.publisher, r.ownsPublisher = nil, false
	}
	if r.ownsStorage && r.storage != nil {
		errs = append(errs, r.storage.Close(ctx))
		r.storage, r.ownsStorage = nil, false
	}
	return errors.Join(errs...)
}

// selectSources возвращает источники конфигурации, отфильтрованные по именам
func (r *Runner) selectSources(names []string) ([]SourceConfig, error) {
	if len(names) == 0 {
		return r.cfg.Sources, nil
	}

	byName := make(map[string]SourceConfig, len(r.cfg.Sources))
	for _, src := range r.cfg.Sources {
		byName[src.Name] = src
	}

	selected := make([]SourceConfig, 0, len(names))
	for _, name := range names {
		if src, ok := byName[name]; ok {
			selected = append(selected, src)
			continue
		}
		if !fetchers.IsRegistered(name) {
			return nil, fmt.Errorf("unknown source %q (available: %v)", name, fetchers.Sources())
		}
		selected = append(selected, SourceConfig{Name: name})
	}
	return selected, nil
}

// Run выполняет источники по порядку. Без names выполняются все источники
// конфигурации. При on_source_error=fail запуск останавливается на первом
// сбое, при continue сбои собираются и возвращаются вместе.
func (r *Runner) Run(ctx context.Context, names ...string) ([]resultlog.RunResult, error) {
	if r.wrapper == nil {
		return nil, errNotOpen
	}

	sources, err := r.selectSources(names)
	if err != nil {
		return nil, err
	}

	if r.cfg.Wrapper.Staging {
		if err := r.wrapper.TruncateStaging(ctx); err != nil {
			return nil, fmt.Errorf("failed to truncate staging: %w", err)
		}
	}

	results := make([]resultlog.RunResult, 0, len(sources))
	var failures []error
	for _, src := range sources {
		result, runErr := r.runSource(ctx, src)
		results = append(results, result)
		if runErr == nil {
			continue
		}

		failures = append(failures, fmt.Errorf("%s: %w", src.Name, runErr))
		if r.cfg.ErrorHandling.OnSourceError != "continue" || ctx.Err() != nil {
			break
		}
	}

	if err := r.wrapper.Flush(ctx); err != nil {
		failures = append(failures, fmt.Errorf("failed to flush storage: %w", err))
	}
	r.observeHealth()
	return results, errors.Join(failures...)
}

// observeHealth обновляет метрики DLQ и circuit breaker после запуска
func (r *Runner) observeHealth() {
	if r.dlq != nil {
		stats := r.dlq.GetStats()
		metrics.SetDLQEntries(stats.Sources)
		if stats.TotalEntries > 0 {
			r.log.Warn().
				Int("entries", stats.TotalEntries).
				Time("oldest", stats.OldestEntry).
				Interface("failure_types", stats.FailureTypes).
				Msg("dead letter queue is not empty")
		}
	}
	if r.client != nil {
		for host, st := range r.client.Breakers() {
			metrics.SetBreakerState(host, int(st))
		}
	}
}

func (r *Runner) runSource(ctx context.Context, src SourceConfig) (resultlog.RunResult, error) {
	log := r.log.With().Str("source", src.Name).Logger()
	result := resultlog.RunResult{
		Source:    src.Name,
		Status:    resultlog.StatusSuccess,
		Backend:   r.storage.GetDatabaseType(),
		Staging:   r.cfg.Wrapper.Staging,
		StartedAt: r.now(),
	}

	fetcher, err := fetchers.New(src.Name, fetchers.Deps{
		Sink:          r.wrapper,
		Translator:    r.translator,
		Retriever:     r.retrieverFor(src),
		Logger:        r.log,
		Policy:        r.cfg.ErrorHandling.OnStorageError,
		DLQ:           r.dlq,
		State:         r.state,
		SkipUnchanged: r.cfg.State.SkipUnchanged,
		Archive:       r.archiver,
		URL:           src.URL,
	})
	if err != nil {
		result.SetError(err)
		r.finish(ctx, &result, "")
		return result, err
	}

	runErr := fetcher.Run(ctx)

	var fingerprint string
	if rep, ok := fetcher.(fetchers.Reporter); ok {
		stats := rep.Stats()
		fingerprint = rep.Fingerprint()
		result.RecordsWritten = stats.Written
		result.RecordsSkipped = stats.SkippedWindow
		result.RecordsFailed = stats.Failed
		result.Untranslated = stats.Untranslated
		result.Rejected = stats.Rejected
	}

	switch {
	case errors.Is(runErr, state.ErrPayloadUnchanged):
		result.Status = resultlog.StatusUnchanged
		runErr = nil
		log.Info().Msg("payload unchanged, source skipped")
	case runErr != nil:
		result.SetError(runErr)
	case r.cfg.Wrapper.Staging:
		runErr = r.promote(ctx, &result)
	}

	if runErr != nil {
		if err := r.state.RecordError(src.Name, runErr); err != nil {
			log.Warn().Err(err).Msg("failed to save source state")
		}
	} else if result.Status == resultlog.StatusSuccess {
		if err := r.state.RecordSuccess(src.Name, fingerprint,
			result.RecordsWritten, result.RecordsSkipped, result.RecordsFailed); err != nil {
			log.Warn().Err(err).Msg("failed to save source state")
		}
	}

	r.finish(ctx, &result, fingerprint)
	return result, runErr
}

// retrieverFor применяет к HTTP клиенту пределы источника.
// Переданный через WithRetriever Retriever используется как есть.
func (r *Runner) retrieverFor(src SourceConfig) httpclient.Retriever {
	if r.client == nil {
		return r.retriever
	}
	client := r.client.WithLimits(r.cfg.MaxBodySize(src.Name), src.Timeout)
	r.log.Debug().
		Str("source", src.Name).
		Int64("max_body_size", client.MaxBodySize()).
		Dur("timeout", src.Timeout).
		Msg("http limits")
	return client
}

// promote сверяет staging строки источника и переносит их в production,
// только если сверка прошла
func (r *Runner) promote(ctx context.Context, result *resultlog.RunResult) error {
	ok, err := r.wrapper.CallDBFunctionCompare(ctx, result.Source)
	if err != nil {
		err = fmt.Errorf("failed to compare staging data: %w", err)
		result.SetError(err)
		return err
	}
	if !ok {
		r.log.Warn().Str("source", result.Source).Msg("staging data did not pass comparison, not sent")
		return nil
	}

	if err := r.wrapper.CallDBFunctionSendData(ctx, result.Source); err != nil {
		err = fmt.Errorf("failed to send staging data: %w", err)
		result.SetError(err)
		return err
	}
	result.Sent = true
	return nil
}

// finish пишет метрики, лог и публикует результат
func (r *Runner) finish(ctx context.Context, result *resultlog.RunResult, fingerprint string) {
	result.FinishedAt = r.now()
	duration := result.FinishedAt.Sub(result.StartedAt)
	result.DurationMs = duration.Milliseconds()

	metrics.ObserveRun(result.Source, result.Status, duration)
	metrics.ObserveUntranslated(result.Source, result.Untranslated)

	event := r.log.Info()
	if result.Status == resultlog.StatusFailed {
		event = r.log.Error().Str("error", *result.Error)
	}
	event.
		Str("source", result.Source).
		Str("status", result.Status).
		Str("fingerprint", fingerprint).
		Int64("written", result.RecordsWritten).
		Int64("skipped_window", result.RecordsSkipped).
		Int64("failed", result.RecordsFailed).
		Int64("untranslated", result.Untranslated).
		Int64("rejected", result.Rejected).
		Bool("sent", result.Sent).
		Dur("duration", duration).
		Msg("source finished")

	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, *result); err != nil {
		r.log.Warn().Err(err).Str("source", result.Source).Msg("failed to publish run result")
	}
}
