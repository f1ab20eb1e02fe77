package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doculens/extraction-engine/internal/config"
	"github.com/doculens/extraction-engine/internal/domain"
	"github.com/doculens/extraction-engine/internal/entities"
	"github.com/doculens/extraction-engine/internal/observability"
	"github.com/doculens/extraction-engine/internal/source"
)

func testEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return New(config.DefaultConfig(), observability.Nop(), opts...)
}

func textDoc(text string) domain.Document {
	return domain.Document{
		Content:   []byte(text),
		MediaType: domain.MediaTypeText,
		Size:      int64(len(text)),
	}
}

func TestEngine_Extract_PlainTextEndToEnd(t *testing.T) {
	e := testEngine(t)

	doc := textDoc("Payment of $50,000 to Acme Holdings LLC is due 03/15/2024.")
	opts := domain.DefaultOptions()
	opts.UseCache = false

	result, err := e.Extract(context.Background(), doc, opts)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, domain.StrategyNativeText, result.Strategy.Primary)
	assert.NotEmpty(t, result.Entities)

	types := make(map[domain.EntityType]bool)
	for _, entity := range result.Entities {
		types[entity.EntityType] = true
	}
	assert.True(t, types[domain.EntityMoney])
	assert.True(t, types[domain.EntityDate])

	assert.InDelta(t, 1.0, result.Quality.Completeness, 0.0001)
}

func TestEngine_Submit_EmptyDocumentIsInputError(t *testing.T) {
	e := testEngine(t)

	_, err := e.Submit(context.Background(), domain.Document{}, domain.DefaultOptions())
	require.Error(t, err)
	assert.True(t, domain.IsInput(err))
}

func TestEngine_Extract_UnreadableContentFailsJob(t *testing.T) {
	e := testEngine(t)

	doc := domain.Document{
		Content:   []byte{0xff, 0xfe, 0xfd},
		MediaType: domain.MediaTypeText,
		Size:      3,
	}

	job, err := e.Submit(context.Background(), doc, domain.DefaultOptions())
	require.NoError(t, err)

	result, err := job.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsInput(err))
	assert.Nil(t, result)
	assert.Equal(t, domain.StateFailed, job.State())
}

func TestEngine_Extract_PartialPageFailureStillCompletes(t *testing.T) {
	e := testEngine(t)

	// Five form-feed pages; the third carries nothing extractable.
	doc := textDoc("Page one text.\fPage two text.\f\fPage four text.\fPage five text.")
	opts := domain.DefaultOptions()
	opts.UseCache = false

	job, err := e.Submit(context.Background(), doc, opts)
	require.NoError(t, err)

	result, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, job.State(), "page failures never fail the job")

	// 4 of 5 pages usable.
	assert.InDelta(t, 0.8, result.Quality.Completeness, 0.0001)
	assert.Less(t, result.Quality.Completeness, 1.0)

	require.NotEmpty(t, result.Diagnostics)
	assert.Equal(t, 2, result.Diagnostics[0].PageIndex)
}

func TestEngine_Extract_Deterministic(t *testing.T) {
	e := testEngine(t)

	doc := textDoc("Dr. Jane Doe and Mr. John Smith met with Acme Corp about the $1,200 invoice.")
	opts := domain.DefaultOptions()
	opts.UseCache = false

	first, err := e.Extract(context.Background(), doc, opts)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		next, err := e.Extract(context.Background(), doc, opts)
		require.NoError(t, err)

		assert.Equal(t, first.Entities, next.Entities, "entity output must not depend on engine completion order")
		assert.Equal(t, first.Tables, next.Tables)
		assert.Equal(t, first.Quality, next.Quality)
	}
}

func TestEngine_Extract_ResultCacheRoundTrip(t *testing.T) {
	e := testEngine(t)

	doc := textDoc("Scheduled payment of $400 due 06/01/2024.")
	opts := domain.DefaultOptions()

	first, err := e.Extract(context.Background(), doc, opts)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := e.Extract(context.Background(), doc, opts)
	require.NoError(t, err)
	assert.True(t, second.FromCache, "identical content and options must hit the cache")

	assert.Equal(t, first.Entities, second.Entities)

	stats, err := e.CacheStats(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.Hits, int64(1))
}

func TestEngine_Extract_OptionsChangeMissesCache(t *testing.T) {
	e := testEngine(t)

	doc := textDoc("Payment of $400 due 06/01/2024.")

	optsA := domain.DefaultOptions()
	_, err := e.Extract(context.Background(), doc, optsA)
	require.NoError(t, err)

	optsB := domain.DefaultOptions()
	optsB.ConfidenceFloor = 0.9

	second, err := e.Extract(context.Background(), doc, optsB)
	require.NoError(t, err)
	assert.False(t, second.FromCache, "different options form a different cache key")
}

func TestKey_ContentAndOptionsBound(t *testing.T) {
	docA := textDoc("same bytes")
	docB := textDoc("same bytes")
	docC := textDoc("other bytes")
	opts := domain.DefaultOptions()

	assert.Equal(t, Key(docA, opts), Key(docB, opts), "key depends on content, not identity")
	assert.NotEqual(t, Key(docA, opts), Key(docC, opts))

	other := opts
	other.EnableTables = false
	assert.NotEqual(t, Key(docA, opts), Key(docA, other))
}

// fixedEngine emits one canned vote immediately.
type fixedEngine struct {
	id   string
	vote domain.EngineVote
}

func (e *fixedEngine) ID() string { return e.id }

func (e *fixedEngine) Scan(ctx context.Context, text string) ([]domain.EngineVote, error) {
	vote := e.vote
	vote.EngineID = e.id
	return []domain.EngineVote{vote}, nil
}

// blockedEngine never returns until its context is cancelled.
type blockedEngine struct {
	id string
}

func (e *blockedEngine) ID() string { return e.id }

func (e *blockedEngine) Scan(ctx context.Context, text string) ([]domain.EngineVote, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// failingEngine always errors.
type failingEngine struct{}

func (e *failingEngine) ID() string { return "failing" }

func (e *failingEngine) Scan(ctx context.Context, text string) ([]domain.EngineVote, error) {
	return nil, errors.New("engine exploded")
}

func TestEngine_Extract_EngineFailureBecomesDiagnostic(t *testing.T) {
	registry := entities.NewRegistry(nil, nil)
	registry.Register(&failingEngine{})
	e := testEngine(t, WithEntityRegistry(registry))

	doc := textDoc("Payment of $400 to Acme Corp.")
	opts := domain.DefaultOptions()
	opts.UseCache = false

	job, err := e.Submit(context.Background(), doc, opts)
	require.NoError(t, err)

	result, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, job.State())

	found := false
	for _, diag := range result.Diagnostics {
		if diag.EngineID == "failing" {
			found = true
			assert.Equal(t, "entity_scanning", diag.Stage)
		}
	}
	assert.True(t, found, "failing engine lands in diagnostics")
	assert.NotEmpty(t, result.Entities, "remaining engines still contribute")
}

// panickingEngine panics inside Scan.
type panickingEngine struct{}

func (e *panickingEngine) ID() string { return "panicking" }

func (e *panickingEngine) Scan(ctx context.Context, text string) ([]domain.EngineVote, error) {
	panic("model backend unavailable")
}

func TestEngine_Extract_EnginePanicBecomesDiagnostic(t *testing.T) {
	registry := entities.NewRegistry(nil, nil)
	registry.Register(&panickingEngine{})
	e := testEngine(t, WithEntityRegistry(registry))

	doc := textDoc("Payment of $400 to Acme Corp.")
	opts := domain.DefaultOptions()
	opts.UseCache = false

	job, err := e.Submit(context.Background(), doc, opts)
	require.NoError(t, err)

	result, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, job.State())

	found := false
	for _, diag := range result.Diagnostics {
		if diag.EngineID == "panicking" {
			found = true
			assert.Equal(t, "entity_scanning", diag.Stage)
			assert.Contains(t, diag.Message, "model backend unavailable")
		}
	}
	assert.True(t, found, "panicking engine lands in diagnostics")
	assert.NotEmpty(t, result.Entities, "remaining engines still contribute")
}

func TestEngine_Cancel_MidScanKeepsPartialResult(t *testing.T) {
	e := testEngine(t, WithEntityRegistry(newStubRegistry()))

	doc := textDoc("Some document text.")
	opts := domain.DefaultOptions()
	opts.UseCache = false
	opts.ConfidenceFloor = 0.1

	job, err := e.Submit(context.Background(), doc, opts)
	require.NoError(t, err)

	// Cancel only after both fast engines have reported, then drain the
	// stream to capture the terminal update.
	lastCh := make(chan domain.ProgressUpdate, 1)
	go func() {
		var last domain.ProgressUpdate
		for update := range job.Progress() {
			last = update
			if update.Stage == domain.StateEntityScanning && update.EnginesDone >= 2 {
				job.Cancel()
			}
		}
		lastCh <- last
	}()

	result, err := job.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StateCancelled, job.State())
	require.NotNil(t, result, "cancellation keeps the partial result")
	assert.Len(t, result.Entities, 2, "votes collected before cancellation survive")

	// The terminal update keeps the counters from the last completion:
	// 2 of 4 engines done, percent 0.55 + 0.30*2/4 = 0.70.
	last := <-lastCh
	assert.Equal(t, domain.StateCancelled, last.Stage)
	assert.Equal(t, 2, last.EnginesDone)
	assert.InDelta(t, 0.70, last.Percent, 1e-9)
}

// newStubRegistry builds a registry with two instant engines and two
// that block until cancelled.
func newStubRegistry() *entities.Registry {
	r := &entities.Registry{}
	r.Register(&fixedEngine{id: "fast-a", vote: domain.EngineVote{
		EntityText: "Acme Corp", EntityType: domain.EntityOrganization,
		Span: domain.Span{Start: 0, End: 9}, Confidence: 0.9,
	}})
	r.Register(&fixedEngine{id: "fast-b", vote: domain.EngineVote{
		EntityText: "Jane Doe", EntityType: domain.EntityPerson,
		Span: domain.Span{Start: 20, End: 28}, Confidence: 0.8,
	}})
	r.Register(&blockedEngine{id: "slow-a"})
	r.Register(&blockedEngine{id: "slow-b"})
	return r
}

// stubSource returns a fixed page set for any document.
type stubSource struct {
	pages []domain.Page
}

func (s *stubSource) Pages(ctx context.Context, doc domain.Document) ([]domain.Page, error) {
	out := make([]domain.Page, len(s.pages))
	copy(out, s.pages)
	return out, nil
}

// stubOCRClient recognizes canned text per page index.
type stubOCRClient struct {
	text map[int]string
}

func (c *stubOCRClient) Recognize(ctx context.Context, doc domain.Document, pageIndex int) (string, error) {
	return c.text[pageIndex], nil
}

func TestEngine_Extract_FallbackChainRecognizesImageOnlyPages(t *testing.T) {
	// One readable page and one image-only page route native-text with
	// ocr on the fallback chain; the chain must fill in the second page.
	registry := source.NewRegistry()
	registry.Register(domain.MediaTypeText, &stubSource{pages: []domain.Page{
		{Index: 0, RawText: "Payment of $50,000 is due 03/15/2024."},
		{Index: 1, ImageOnly: true},
	}})

	e := testEngine(t,
		WithSourceRegistry(registry),
		WithOCRClient(&stubOCRClient{text: map[int]string{1: "Wire funds to Acme Holdings LLC."}}),
	)

	opts := domain.DefaultOptions()
	opts.UseCache = false

	result, err := e.Extract(context.Background(), textDoc("ignored by the stub source"), opts)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, domain.StrategyNativeText, result.Strategy.Primary)
	assert.Contains(t, result.Text, "Acme Holdings LLC", "recognized text joins the document")
	assert.InDelta(t, 1.0, result.Quality.Completeness, 0.0001, "the recognized page no longer counts as failed")

	types := make(map[domain.EntityType]bool)
	for _, entity := range result.Entities {
		types[entity.EntityType] = true
	}
	assert.True(t, types[domain.EntityOrganization], "entities come from the recognized page too")
}

func TestEngine_Submit_WorkerPoolBoundsConcurrency(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pipeline.JobWorkers = 1
	e := New(cfg, observability.Nop(), WithEntityRegistry(newStubRegistry()))

	opts := domain.DefaultOptions()
	opts.UseCache = false

	// The first job parks in entity scanning on the blocked engines and
	// holds the only worker slot.
	first, err := e.Submit(context.Background(), textDoc("first document"), opts)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return first.State() == domain.StateEntityScanning
	}, 2*time.Second, 5*time.Millisecond)

	second, err := e.Submit(context.Background(), textDoc("second document"), opts)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, domain.StateQueued, second.State(), "second job waits for a worker slot")

	first.Cancel()
	_, err = first.Wait(context.Background())
	require.NoError(t, err)

	second.Cancel()
	_, err = second.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, second.State().Terminal())
}

func TestEngine_Finish_ReleasesDocumentBytes(t *testing.T) {
	e := testEngine(t)

	opts := domain.DefaultOptions()
	opts.UseCache = false

	job, err := e.Submit(context.Background(), textDoc("Invoice total $75 due 04/01/2024."), opts)
	require.NoError(t, err)

	_, err = job.Wait(context.Background())
	require.NoError(t, err)

	job.mu.Lock()
	content := job.doc.Content
	job.mu.Unlock()
	assert.Empty(t, content, "finished jobs do not retain the uploaded bytes")
}

func TestEngine_Job_EvictedAfterRetention(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pipeline.JobRetention = 10 * time.Millisecond
	e := New(cfg, observability.Nop())

	opts := domain.DefaultOptions()
	opts.UseCache = false

	job, err := e.Submit(context.Background(), textDoc("short document"), opts)
	require.NoError(t, err)
	_, err = job.Wait(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := e.Job(job.ID)
		return !ok
	}, 2*time.Second, 5*time.Millisecond, "terminal jobs leave the job table")
}

func TestEngine_Extract_ProgressStagesInOrder(t *testing.T) {
	e := testEngine(t)

	doc := textDoc("Payment of $400 due 06/01/2024.")
	opts := domain.DefaultOptions()
	opts.UseCache = false

	job, err := e.Submit(context.Background(), doc, opts)
	require.NoError(t, err)

	order := map[domain.JobState]int{
		domain.StateQueued:         0,
		domain.StateRouting:        1,
		domain.StateTableDetection: 2,
		domain.StateEntityScanning: 3,
		domain.StateAggregating:    4,
		domain.StateFinalizing:     5,
		domain.StateCompleted:      6,
	}

	last := -1
	for update := range job.Progress() {
		rank, known := order[update.Stage]
		require.True(t, known, "unexpected stage %s", update.Stage)
		assert.GreaterOrEqual(t, rank, last, "stages never move backward")
		last = rank
	}

	_, err = job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, job.State())
}

func TestEngine_Extract_ContextCancelPropagates(t *testing.T) {
	registry := newStubRegistry()
	e := testEngine(t, WithEntityRegistry(registry))

	ctx, cancel := context.WithCancel(context.Background())
	doc := textDoc("Some document text.")
	opts := domain.DefaultOptions()
	opts.UseCache = false

	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err := e.Extract(ctx, doc, opts)
		assert.NoError(t, err)
		assert.NotNil(t, result)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled extraction did not finish")
	}
}
