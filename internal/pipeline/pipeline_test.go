package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/openclaw-sentinel/internal/alert"
	"github.com/ajitpratap0/openclaw-sentinel/internal/detector"
	"github.com/ajitpratap0/openclaw-sentinel/internal/digest"
	"github.com/ajitpratap0/openclaw-sentinel/internal/ingest"
	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
	"github.com/ajitpratap0/openclaw-sentinel/internal/scoring"
	"github.com/ajitpratap0/openclaw-sentinel/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedSource returns the next scripted batch on every fetch.
type scriptedSource struct {
	mu      sync.Mutex
	batches [][]models.Entity
	err     error
	calls   int
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Fetch(context.Context, time.Time) (ingest.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return ingest.Batch{}, s.err
	}
	if len(s.batches) == 0 {
		return ingest.Batch{}, nil
	}
	b := s.batches[0]
	if len(s.batches) > 1 {
		s.batches = s.batches[1:]
	}
	return ingest.Batch{Items: len(b), Entities: b}, nil
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (d *fakeDispatcher) Send(_ context.Context, channel, text string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return "", errors.New("channel_not_found")
	}
	d.sent = append(d.sent, channel+": "+text)
	return "1712.0001", nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

type recordingSink struct {
	cycles  []string
	changes int
	err     error
}

func (r *recordingSink) Emit(_ context.Context, cycle models.Cycle, _ []models.Entity, changes []models.ChangeRecord) error {
	r.cycles = append(r.cycles, cycle.ID)
	r.changes += len(changes)
	return r.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	alerts []string
}

func (r *recordingPublisher) PublishAlert(_ context.Context, a *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a.ChangeID)
	return nil
}

// steppingClock advances one minute per call so cycles order by start time.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

func stakeholder(id, role string) models.Entity {
	return models.Entity{Type: models.EntityTypeStakeholder, ID: id, Data: models.Fields{"name": id, "role": role}}
}

type fixture struct {
	p          *Pipeline
	store      *store.MemoryStore
	source     *scriptedSource
	dispatcher *fakeDispatcher
	sink       *recordingSink
	publisher  *recordingPublisher
}

func newFixture(t *testing.T, channel string, batches ...[]models.Entity) *fixture {
	t.Helper()
	logger := testLogger()
	clock := steppingClock()
	f := &fixture{
		store:      store.NewMemoryStore(),
		source:     &scriptedSource{batches: batches},
		dispatcher: &fakeDispatcher{},
		sink:       &recordingSink{},
		publisher:  &recordingPublisher{},
	}
	runner := ingest.NewRunner([]ingest.Source{f.source}, time.Second, logger)
	det := detector.New(scoring.NewScorer(scoring.DefaultTables(), "Acme"), logger, detector.WithClock(clock))
	alertCfg := alert.DefaultConfig()
	alertCfg.Account = "Acme"
	alertCfg.Channel = channel
	gen := digest.NewGenerator(digest.Config{Account: "Acme"}, logger)

	f.p = New(runner, f.store, det, alertCfg, gen, f.dispatcher, logger,
		WithSinks(f.sink),
		WithAlertPublisher(f.publisher),
		WithClock(clock),
	)
	return f
}

func TestRunCycle_FirstCycleHasNothingToCompare(t *testing.T) {
	f := newFixture(t, "C1", []models.Entity{stakeholder("jane", "Engineer")})
	report, err := f.p.RunCycle(context.Background(), time.Time{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, report.Cycle.Status)
	assert.Equal(t, 1, report.Cycle.EntityCount)
	assert.Empty(t, report.Changes)
	assert.Empty(t, report.Alerts)
	assert.Len(t, f.sink.cycles, 1)
}

func TestRunCycle_DetectsAndAlerts(t *testing.T) {
	f := newFixture(t, "C1",
		[]models.Entity{stakeholder("jane", "Engineer")},
		[]models.Entity{stakeholder("jane", "Engineer"), stakeholder("sam", "CEO")},
	)
	ctx := context.Background()

	_, err := f.p.RunCycle(ctx, time.Time{})
	require.NoError(t, err)
	report, err := f.p.RunCycle(ctx, time.Time{})
	require.NoError(t, err)

	require.Len(t, report.Changes, 1)
	c := report.Changes[0]
	assert.Equal(t, "sam", c.EntityID)
	assert.Equal(t, models.ChangeAdded, c.ChangeType)
	assert.Equal(t, 85, c.SignificanceScore)
	assert.Equal(t, report.Cycle.ID, c.CycleID)

	require.Len(t, report.Alerts, 1)
	assert.Equal(t, c.ChangeID, report.Alerts[0].ChangeID)
	assert.Equal(t, "1712.0001", report.Alerts[0].DeliveryID)
	assert.Equal(t, 1, f.dispatcher.count())
	assert.Equal(t, []string{c.ChangeID}, f.publisher.alerts)
	assert.Equal(t, 1, f.sink.changes)

	stored, err := f.store.GetChange(ctx, c.ChangeID)
	require.NoError(t, err)
	assert.True(t, stored.AlertSent)
	assert.NotNil(t, stored.AlertTimestamp)

	history, err := f.store.ListAlertHistory(ctx, store.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "C1", history[0].Channel)

	again, err := f.p.ProcessAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Equal(t, 1, f.dispatcher.count())
}

func TestDetect_ReturnsExistingChanges(t *testing.T) {
	f := newFixture(t, "",
		[]models.Entity{stakeholder("jane", "Engineer")},
		[]models.Entity{stakeholder("jane", "CTO")},
	)
	ctx := context.Background()
	_, err := f.p.RunCycle(ctx, time.Time{})
	require.NoError(t, err)
	report, err := f.p.RunCycle(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, report.Changes, 1)

	again, err := f.p.Detect(ctx)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, report.Changes[0].ChangeID, again[0].ChangeID)

	all, err := f.store.ListChanges(ctx, store.ChangeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// slowSnapshots widens the window between the existing-changes check and the
// append in Detect.
type slowSnapshots struct {
	*store.MemoryStore
	delay time.Duration
}

func (s *slowSnapshots) EntitiesForCycle(ctx context.Context, cycleID string) ([]models.Entity, error) {
	time.Sleep(s.delay)
	return s.MemoryStore.EntitiesForCycle(ctx, cycleID)
}

func TestDetect_ConcurrentCallsRecordOnce(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()
	mem := store.NewMemoryStore()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, mem.SaveCycle(ctx, models.Cycle{ID: "c1", StartedAt: start, Status: models.StatusSuccess},
		[]models.Entity{stakeholder("jane", "Engineer")}))
	require.NoError(t, mem.SaveCycle(ctx, models.Cycle{ID: "c2", StartedAt: start.Add(time.Hour), Status: models.StatusSuccess},
		[]models.Entity{stakeholder("jane", "Engineer"), stakeholder("sam", "CEO")}))

	st := &slowSnapshots{MemoryStore: mem, delay: 20 * time.Millisecond}
	det := detector.New(scoring.NewScorer(scoring.DefaultTables(), "Acme"), logger)
	p := New(nil, st, det, alert.DefaultConfig(), digest.NewGenerator(digest.Config{Account: "Acme"}, logger), &fakeDispatcher{}, logger)

	var wg sync.WaitGroup
	results := make([][]models.ChangeRecord, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Detect(ctx)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Len(t, results[i], 1)
	}
	assert.Equal(t, results[0][0].ChangeID, results[1][0].ChangeID)

	stored, err := mem.ListChanges(ctx, store.ChangeFilter{CycleID: "c2"})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestRunCycle_AllSourcesFailed(t *testing.T) {
	f := newFixture(t, "C1")
	f.source.err = errors.New("mcp unavailable")

	report, err := f.p.RunCycle(context.Background(), time.Time{})
	require.ErrorIs(t, err, ErrAllSourcesFailed)
	require.NotNil(t, report)
	assert.Equal(t, models.StatusFailed, report.Cycle.Status)
	assert.Empty(t, f.sink.cycles)

	cycles, err := f.store.ListCycles(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, "mcp unavailable", cycles[0].Runs[0].Error)
}

func TestRunCycle_SinkFailureDoesNotFailCycle(t *testing.T) {
	f := newFixture(t, "", []models.Entity{stakeholder("jane", "Engineer")})
	f.sink.err = errors.New("nats: no servers available")

	_, err := f.p.RunCycle(context.Background(), time.Time{})
	assert.NoError(t, err)
}

func TestProcessAlerts_FailedDeliveryRetried(t *testing.T) {
	f := newFixture(t, "C1",
		[]models.Entity{},
		[]models.Entity{stakeholder("sam", "CFO")},
	)
	ctx := context.Background()
	f.dispatcher.fail = true

	_, err := f.p.RunCycle(ctx, time.Time{})
	require.NoError(t, err)
	report, err := f.p.RunCycle(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, report.Changes, 1)
	assert.Empty(t, report.Alerts)

	unsent, err := f.store.ListChanges(ctx, store.ChangeFilter{UnsentOnly: true})
	require.NoError(t, err)
	assert.Len(t, unsent, 1)

	f.dispatcher.fail = false
	sent, err := f.p.ProcessAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, sent, 1)
}

func TestLedger_SeenByKey(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.AppendAlertHistory(ctx, models.AlertHistoryRecord{
		ID: "h1", ChangeID: "old", EntityType: models.EntityTypeRisk, EntityID: "r1",
		ChangeType: models.ChangeAdded, AlertTimestamp: now.Add(-2 * time.Hour),
	}))
	l := &ledger{store: st, logger: testLogger()}

	c := &models.ChangeRecord{ChangeID: "new", EntityType: models.EntityTypeRisk, EntityID: "r1", ChangeType: models.ChangeAdded}
	seen, err := l.Seen(ctx, c, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = l.Seen(ctx, c, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, seen)

	c.ChangeID = "old"
	seen, err = l.Seen(ctx, c, now)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestSendDigest(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, "")
	out, err := f.p.SendDigest(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, out.Sent)
	assert.Contains(t, out.Digest.Text, "ACME WEEKLY EXECUTIVE DIGEST")
	assert.Zero(t, f.dispatcher.count())

	f = newFixture(t, "C9")
	out, err = f.p.SendDigest(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, out.Sent)
	assert.Equal(t, "1712.0001", out.DeliveryID)
	assert.Equal(t, 1, f.dispatcher.count())

	f.dispatcher.fail = true
	_, err = f.p.SendDigest(ctx, time.Now().UTC())
	assert.ErrorContains(t, err, "sending digest")
}

func TestAnnounceAndStatus(t *testing.T) {
	f := newFixture(t, "C1", []models.Entity{stakeholder("jane", "Engineer")})
	ctx := context.Background()

	f.p.Announce(ctx, "v1.0.0")
	require.Equal(t, 1, f.dispatcher.count())
	assert.Contains(t, f.dispatcher.sent[0], "Monitoring Acme")

	_, err := f.p.RunCycle(ctx, time.Time{})
	require.NoError(t, err)
	st, err := f.p.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Acme", st.Account)
	assert.Equal(t, []string{"scripted"}, st.Sources)
	require.NotNil(t, st.LastCycle)
	assert.Equal(t, int64(1), st.Stats.Cycles)
}

func TestScheduler_RunsOnStartAndStops(t *testing.T) {
	f := newFixture(t, "", []models.Entity{stakeholder("jane", "Engineer")})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	s := NewScheduler(f.p, time.Hour, 0, true, testLogger())
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return f.source.Calls() >= 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, DefaultDigestInterval, s.digestInterval)
}
