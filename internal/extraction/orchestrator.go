// Package extraction runs the document pipeline end to end: routing,
// table detection, entity scanning, consensus, and result caching,
// tracked through a per-job state machine.
package extraction

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/doculens/extraction-engine/internal/cache"
	"github.com/doculens/extraction-engine/internal/config"
	"github.com/doculens/extraction-engine/internal/consensus"
	"github.com/doculens/extraction-engine/internal/domain"
	"github.com/doculens/extraction-engine/internal/entities"
	"github.com/doculens/extraction-engine/internal/observability"
	"github.com/doculens/extraction-engine/internal/router"
	"github.com/doculens/extraction-engine/internal/source"
	"github.com/doculens/extraction-engine/internal/tabledetect"
)

// Engine coordinates the full extraction pipeline.
type Engine struct {
	cfg      *config.Config
	log      *observability.Logger
	sources  *source.Registry
	router   *router.Router
	detector *tabledetect.Detector
	registry *entities.Registry
	cache    *ResultCache
	ocr      domain.OCRClient

	// jobSlots bounds concurrent pipeline runs; submitted jobs queue
	// here until a worker slot frees up.
	jobSlots chan struct{}

	mu   sync.Mutex
	jobs map[string]*Job
}

// Option customizes engine construction.
type Option func(*Engine)

// WithCacheClient supplies the result cache backend.
func WithCacheClient(client cache.Client) Option {
	return func(e *Engine) {
		e.cache = NewResultCache(client, e.cfg.Cache.TTL, e.log)
	}
}

// WithOCRClient supplies the external OCR collaborator.
func WithOCRClient(client domain.OCRClient) Option {
	return func(e *Engine) {
		e.ocr = client
	}
}

// WithSourceRegistry replaces the default text-run source registry.
func WithSourceRegistry(registry *source.Registry) Option {
	return func(e *Engine) {
		e.sources = registry
	}
}

// WithEntityRegistry replaces the default entity engine registry.
func WithEntityRegistry(registry *entities.Registry) Option {
	return func(e *Engine) {
		e.registry = registry
	}
}

// New builds an engine from configuration. Without options the engine
// runs with an in-memory result cache and no OCR collaborator.
func New(cfg *config.Config, log *observability.Logger, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = observability.Nop()
	}

	e := &Engine{
		cfg:     cfg,
		log:     log,
		sources: source.NewRegistry(),
		router: router.New(router.Config{
			NativeTextMaxBytes: cfg.Router.NativeTextMaxBytes,
			MachineReadableMin: cfg.Router.MachineReadableMin,
			TableKeywordMin:    cfg.Router.TableKeywordMin,
		}),
		detector: tabledetect.New(tabledetect.Config{
			RowToleranceY:    cfg.Tables.RowToleranceY,
			ColToleranceX:    cfg.Tables.ColToleranceX,
			MinColumnSupport: cfg.Tables.MinColumnSupport,
			MinRegionRows:    cfg.Tables.MinRegionRows,
			BaseConfidence:   cfg.Tables.BaseConfidence,
			HeaderBonus:      cfg.Tables.HeaderBonus,
			UniformRowBonus:  cfg.Tables.UniformRowBonus,
			NumericColBonus:  cfg.Tables.NumericColBonus,
			KeywordBonus:     cfg.Tables.KeywordBonus,
		}),
		registry: entities.NewRegistry(cfg.Entities.KnownPeople, cfg.Entities.KnownOrganizations),
		jobs:     make(map[string]*Job),
	}

	workers := cfg.Pipeline.JobWorkers
	if workers < 1 {
		workers = 2
	}
	e.jobSlots = make(chan struct{}, workers)

	for _, opt := range opts {
		opt(e)
	}

	if e.cache == nil {
		e.cache = NewResultCache(cache.NewMemoryClient(cfg.Cache.MaxEntries, cfg.Cache.TTL), cfg.Cache.TTL, log)
	}
	if e.ocr == nil && cfg.OCR.Enabled {
		e.ocr = source.NewTesseractClient(cfg.OCR.Binary, cfg.OCR.Timeout)
	}

	return e
}

// CacheStats exposes result cache statistics.
func (e *Engine) CacheStats(ctx context.Context) (cache.Stats, error) {
	return e.cache.Stats(ctx)
}

// Job returns a tracked job by ID.
func (e *Engine) Job(id string) (*Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[id]
	return job, ok
}

// Submit starts an asynchronous extraction. Validation failures are
// returned immediately; everything after submission is reported through
// the job itself.
func (e *Engine) Submit(ctx context.Context, doc domain.Document, opts domain.Options) (*Job, error) {
	if len(doc.Content) == 0 {
		return nil, domain.InputError("document is empty", nil)
	}
	if doc.Size == 0 {
		doc.Size = int64(len(doc.Content))
	}
	if doc.MediaType == "" {
		doc.MediaType = source.SniffMediaType(doc.Content)
	}
	if opts.ConfidenceFloor <= 0 {
		opts.ConfidenceFloor = e.cfg.Consensus.ConfidenceFloor
	}
	if len(opts.EngineAllowlist) == 0 {
		opts.EngineAllowlist = e.cfg.Entities.EngineAllowlist
	}

	job := newJob(doc, opts, e.cfg.Pipeline.ProgressBuffer)

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job.cancel = cancel

	e.mu.Lock()
	e.jobs[job.ID] = job
	e.mu.Unlock()

	go func() {
		defer e.evictAfterRetention(job.ID)

		select {
		case e.jobSlots <- struct{}{}:
		case <-jobCtx.Done():
			job.finish(domain.StateCancelled, &domain.ExtractionResult{}, nil)
			return
		}
		defer func() { <-e.jobSlots }()
		e.run(jobCtx, job)
	}()
	return job, nil
}

// evictAfterRetention drops a finished job from the job table once the
// retention window passes, releasing its result for collection.
func (e *Engine) evictAfterRetention(id string) {
	retention := e.cfg.Pipeline.JobRetention
	if retention <= 0 {
		retention = 15 * time.Minute
	}
	time.AfterFunc(retention, func() {
		e.mu.Lock()
		delete(e.jobs, id)
		e.mu.Unlock()
	})
}

// Extract runs one extraction synchronously. Cancelling ctx cancels
// the job and returns its partial result.
func (e *Engine) Extract(ctx context.Context, doc domain.Document, opts domain.Options) (*domain.ExtractionResult, error) {
	job, err := e.Submit(ctx, doc, opts)
	if err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			job.Cancel()
		case <-job.done:
		}
	}()

	return job.Wait(context.WithoutCancel(ctx))
}

// run drives one job through the pipeline. Only input errors fail the
// job; page, engine, timeout, and cache failures degrade the result and
// land in diagnostics.
func (e *Engine) run(ctx context.Context, job *Job) {
	log := e.log.WithJob(job.ID)
	started := time.Now()

	result := &domain.ExtractionResult{}
	var diagnostics []domain.Diagnostic

	// Cache lookup happens before any pipeline work.
	cacheKey := Key(job.doc, job.opts)
	if job.opts.UseCache {
		if cached := e.cache.Lookup(ctx, cacheKey); cached != nil {
			log.Info().Str("key", cacheKey).Msg("result served from cache")
			job.transition(domain.StateFinalizing, domain.ProgressUpdate{Percent: 0.95})
			job.finish(domain.StateCompleted, cached, nil)
			return
		}
	}

	// Routing.
	if !job.transition(domain.StateRouting, domain.ProgressUpdate{Percent: 0.05}) {
		return
	}

	routingStart := time.Now()
	pages, err := e.sources.Pages(ctx, job.doc)
	if err != nil {
		log.Error().Err(err).Msg("document could not be decoded")
		job.finish(domain.StateFailed, nil, err)
		return
	}

	meta := router.BuildMeta(job.doc, pages)
	plan := e.router.Route(meta)
	result.Strategy = plan
	result.Timings.Routing = time.Since(routingStart)

	log.Info().
		Str("strategy", string(plan.Primary)).
		Int("pages", len(pages)).
		Bool("low_confidence", plan.LowConfidence).
		Msg("strategy selected")

	// The primary strategy runs first; a fallback-chain OCR pass picks
	// up the image-only pages the primary could not read.
	if plan.Primary == domain.StrategyOCR || (chainHasOCR(plan) && hasUnreadPages(pages)) {
		diagnostics = append(diagnostics, e.runOCRPass(ctx, log, job.doc, pages)...)
	}

	failedPages := make(map[int]bool)
	for _, page := range pages {
		if len(page.Runs) == 0 && page.RawText == "" {
			failedPages[page.Index] = true
			diagnostics = append(diagnostics, domain.Diagnostic{
				Stage:     "decode",
				PageIndex: page.Index,
				Message:   "no extractable text on page",
			})
		}
	}

	if e.cancelled(ctx, job, result, diagnostics, started) {
		return
	}

	// Table detection, page-parallel with page-order reassembly.
	if job.opts.EnableTables {
		if !job.transition(domain.StateTableDetection, domain.ProgressUpdate{
			Percent:    0.25,
			TotalPages: len(pages),
		}) {
			return
		}

		tableStart := time.Now()
		result.Tables = e.detectTables(ctx, job, pages)
		result.Timings.TableDetection = time.Since(tableStart)
	}

	if e.cancelled(ctx, job, result, diagnostics, started) {
		return
	}

	text := assembleText(pages)
	result.Text = text

	// Entity scanning, engine-parallel.
	var votes []domain.EngineVote
	if job.opts.EnableEntities {
		engines := e.registry.Engines(job.opts.EngineAllowlist)
		if !job.transition(domain.StateEntityScanning, domain.ProgressUpdate{
			Percent:      0.55,
			TotalPages:   len(pages),
			TableCount:   len(result.Tables),
			TotalEngines: len(engines),
		}) {
			return
		}

		scanStart := time.Now()
		var engineDiags []domain.Diagnostic
		votes, engineDiags = e.scanEntities(ctx, job, engines, text)
		diagnostics = append(diagnostics, engineDiags...)
		result.Timings.EntityScanning = time.Since(scanStart)
	}

	if e.cancelledWithVotes(ctx, job, result, diagnostics, votes, started) {
		return
	}

	// Aggregation.
	if !job.transition(domain.StateAggregating, domain.ProgressUpdate{Percent: 0.85}) {
		return
	}

	aggStart := time.Now()
	result.Entities = e.aggregate(votes, job.opts)
	result.Timings.Aggregation = time.Since(aggStart)

	// Finalization.
	if !job.transition(domain.StateFinalizing, domain.ProgressUpdate{
		Percent:     0.95,
		TableCount:  len(result.Tables),
		EntityCount: len(result.Entities),
	}) {
		return
	}

	result.Diagnostics = diagnostics
	result.Quality = computeQuality(pages, failedPages, result.Tables, result.Entities, plan, job.opts.ConfidenceFloor)
	result.Timings.Total = time.Since(started)

	if job.opts.UseCache {
		e.cache.Store(ctx, cacheKey, result)
	}

	log.Info().
		Int("tables", len(result.Tables)).
		Int("entities", len(result.Entities)).
		Int("diagnostics", len(diagnostics)).
		Dur("total", result.Timings.Total).
		Msg("extraction completed")

	job.finish(domain.StateCompleted, result, nil)
}

// cancelled finalizes the job with its partial result when the job
// context is cancelled at a stage boundary.
func (e *Engine) cancelled(ctx context.Context, job *Job, result *domain.ExtractionResult, diagnostics []domain.Diagnostic, started time.Time) bool {
	return e.cancelledWithVotes(ctx, job, result, diagnostics, nil, started)
}

func (e *Engine) cancelledWithVotes(ctx context.Context, job *Job, result *domain.ExtractionResult, diagnostics []domain.Diagnostic, votes []domain.EngineVote, started time.Time) bool {
	if ctx.Err() == nil {
		return false
	}

	if len(votes) > 0 {
		result.Entities = e.aggregate(votes, job.opts)
	}
	result.Diagnostics = diagnostics
	result.Timings.Total = time.Since(started)

	e.log.WithJob(job.ID).Warn().Str("stage", string(job.State())).Msg("job cancelled")
	job.finish(domain.StateCancelled, result, nil)
	return true
}

// aggregate runs consensus with the job's floor settings.
func (e *Engine) aggregate(votes []domain.EngineVote, opts domain.Options) []domain.ConsensusEntity {
	agg := consensus.New(consensus.Config{
		ConfidenceFloor:      opts.ConfidenceFloor,
		IncludeLowConfidence: opts.IncludeLowConfidence,
	})
	return agg.Aggregate(votes)
}

// detectTables runs the detector over pages concurrently and stitches
// the regions back together in ascending page order.
func (e *Engine) detectTables(ctx context.Context, job *Job, pages []domain.Page) []domain.TableRegion {
	workers := e.cfg.Pipeline.PageWorkers
	if workers < 1 {
		workers = 1
	}

	perPage := make([][]domain.TableRegion, len(pages))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var done int64
	var doneMu sync.Mutex

	for i := range pages {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			regions := e.detector.Detect(pages[i].Runs)
			for r := range regions {
				regions[r].PageIndex = pages[i].Index
			}
			perPage[i] = regions

			doneMu.Lock()
			done++
			current := done
			doneMu.Unlock()

			job.emit(domain.ProgressUpdate{
				JobID:       job.ID,
				Stage:       domain.StateTableDetection,
				Percent:     0.25 + 0.30*float64(current)/float64(len(pages)),
				CurrentPage: pages[i].Index,
				TotalPages:  len(pages),
			})
		}(i)
	}
	wg.Wait()

	var tables []domain.TableRegion
	for _, regions := range perPage {
		tables = append(tables, regions...)
	}
	return tables
}

// scanEntities fans votes in from every engine. A failed engine is a
// diagnostic, not a job failure; cancellation stops waiting and keeps
// the votes already collected.
func (e *Engine) scanEntities(ctx context.Context, job *Job, engines []domain.EntityEngine, text string) ([]domain.EngineVote, []domain.Diagnostic) {
	type scanResult struct {
		engineID string
		votes    []domain.EngineVote
		err      error
	}

	results := make(chan scanResult, len(engines))
	timeout := e.cfg.Entities.EngineTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	for _, engine := range engines {
		go func(engine domain.EntityEngine) {
			scanCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			// A panicking engine yields zero votes, like an error return.
			defer func() {
				if r := recover(); r != nil {
					results <- scanResult{
						engineID: engine.ID(),
						err:      domain.EngineError("engine panicked", fmt.Errorf("%v", r)),
					}
				}
			}()

			votes, err := engine.Scan(scanCtx, text)
			results <- scanResult{engineID: engine.ID(), votes: votes, err: err}
		}(engine)
	}

	var votes []domain.EngineVote
	var diagnostics []domain.Diagnostic
	for done := 0; done < len(engines); done++ {
		select {
		case res := <-results:
			// Engines woken by job cancellation do not count as done;
			// the progress stream stops at the last real completion.
			if ctx.Err() != nil {
				return votes, diagnostics
			}
			if res.err != nil {
				diagnostics = append(diagnostics, domain.Diagnostic{
					Stage:    "entity_scanning",
					EngineID: res.engineID,
					Message:  res.err.Error(),
				})
			} else {
				votes = append(votes, res.votes...)
			}

			job.emit(domain.ProgressUpdate{
				JobID:        job.ID,
				Stage:        domain.StateEntityScanning,
				Percent:      0.55 + 0.30*float64(done+1)/float64(len(engines)),
				EnginesDone:  done + 1,
				TotalEngines: len(engines),
			})
		case <-ctx.Done():
			return votes, diagnostics
		}
	}

	return votes, diagnostics
}

// runOCRPass recognizes image-only pages through the external OCR
// collaborator. Every failure stays page-local.
// chainHasOCR reports whether the plan's fallback chain lists the OCR
// strategy.
func chainHasOCR(plan domain.StrategyPlan) bool {
	for _, s := range plan.FallbackChain {
		if s == domain.StrategyOCR {
			return true
		}
	}
	return false
}

// hasUnreadPages reports whether any page came back image-only with no
// text for the primary strategy to work with.
func hasUnreadPages(pages []domain.Page) bool {
	for _, page := range pages {
		if page.ImageOnly && len(page.Runs) == 0 && page.RawText == "" {
			return true
		}
	}
	return false
}

func (e *Engine) runOCRPass(ctx context.Context, log *observability.Logger, doc domain.Document, pages []domain.Page) []domain.Diagnostic {
	if e.ocr == nil {
		return []domain.Diagnostic{{
			Stage:   "ocr",
			Message: "ocr strategy selected but no ocr collaborator is configured",
		}}
	}

	// The whole pass shares one external-collaborator budget on top of
	// the client's per-invocation timeout.
	if budget := e.cfg.Pipeline.ExternalTimeout; budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	var diagnostics []domain.Diagnostic
	for i := range pages {
		if !pages[i].ImageOnly {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		text, err := e.ocr.Recognize(ctx, doc, pages[i].Index)
		if err != nil {
			log.Warn().Err(err).Int("page", pages[i].Index).Msg("ocr failed for page")
			diagnostics = append(diagnostics, domain.Diagnostic{
				Stage:     "ocr",
				PageIndex: pages[i].Index,
				Message:   fmt.Sprintf("ocr failed: %v", err),
			})
			continue
		}
		pages[i].RawText = entities.Normalize(text)
	}
	return diagnostics
}

// assembleText builds the normalized full-document text in page order.
func assembleText(pages []domain.Page) string {
	ordered := make([]domain.Page, len(pages))
	copy(ordered, pages)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var parts []string
	for _, page := range ordered {
		text := page.RawText
		if text == "" && len(page.Runs) > 0 {
			text = runsText(page.Runs)
		}
		if text == "" {
			continue
		}
		parts = append(parts, entities.Normalize(text))
	}
	return strings.Join(parts, "\n\n")
}

// runsText flattens positioned runs into reading order, top to bottom
// then left to right.
func runsText(runs []domain.TextRun) string {
	ordered := make([]domain.TextRun, len(runs))
	copy(ordered, runs)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Y != ordered[j].Y {
			return ordered[i].Y < ordered[j].Y
		}
		return ordered[i].X < ordered[j].X
	})

	var b strings.Builder
	lastY := ordered[0].Y
	for i, run := range ordered {
		if i > 0 {
			if run.Y != lastY {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(run.Text)
		lastY = run.Y
	}
	return b.String()
}
