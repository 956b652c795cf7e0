package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vrsandeep/beatvault/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeFetcher returns canned outcomes per reference and records every call.
type fakeFetcher struct {
	mu       sync.Mutex
	outcomes map[string][]models.Outcome
	panics   map[string]bool
	calls    []string
	// block, when set, is waited on before every fetch returns.
	block chan struct{}
	// started receives the reference when a fetch begins.
	started chan string

	inFlight    int
	maxInFlight int
}

func newFetcher() *fakeFetcher {
	return &fakeFetcher{outcomes: map[string][]models.Outcome{}, panics: map[string]bool{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string, kind models.FetchKind) []models.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, ref)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	out := f.outcomes[ref]
	shouldPanic := f.panics[ref]
	block, started := f.block, f.started
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if started != nil {
		started <- ref
	}
	if block != nil {
		<-block
	}
	if shouldPanic {
		panic("boom")
	}
	return out
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type memLedger struct {
	mu      sync.Mutex
	records []*models.HistoryRecord
	err     error
}

func (l *memLedger) RecordHistory(ctx context.Context, rec *models.HistoryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *memLedger) Records() []*models.HistoryRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*models.HistoryRecord(nil), l.records...)
}

func (l *memLedger) byStatus(status models.HistoryStatus) int {
	n := 0
	for _, r := range l.Records() {
		if r.Status == status {
			n++
		}
	}
	return n
}

type memPersister struct {
	mu    sync.Mutex
	saves int
	last  models.SchedulerState
	key   string
	err   error
}

var errSaveFailed = errors.New("bucket unreachable")

func (p *memPersister) Save(ctx context.Context, key string, doc any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.saves++
	p.key = key
	p.last = doc.(models.SchedulerState).Clone()
	return nil
}

func (p *memPersister) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}

func (p *memPersister) Last() models.SchedulerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last.Clone()
}

func (p *memPersister) Fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

type recordingNotifier struct {
	mu      sync.Mutex
	entries []models.LogEntry
}

func (n *recordingNotifier) Publish(entry models.LogEntry) {
	n.mu.Lock()
	n.entries = append(n.entries, entry)
	n.mu.Unlock()
}

func (n *recordingNotifier) Entries() []models.LogEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.LogEntry(nil), n.entries...)
}

type fakeLock struct {
	mu       sync.Mutex
	held     bool
	busy     bool
	unlocked int
}

func (l *fakeLock) TryLock() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy || l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.unlocked++
	return nil
}

type harness struct {
	sched     *Scheduler
	clock     *fakeClock
	fetcher   *fakeFetcher
	ledger    *memLedger
	persister *memPersister
	notifier  *recordingNotifier
}

func newHarness(opts Options) *harness {
	h := &harness{
		clock:     newClock(),
		fetcher:   newFetcher(),
		ledger:    &memLedger{},
		persister: &memPersister{},
		notifier:  &recordingNotifier{},
	}
	opts.Now = h.clock.Now
	if opts.Notifier == nil {
		opts.Notifier = h.notifier
	}
	h.sched = New(DefaultState(24), h.fetcher, h.ledger, h.persister, opts)
	return h
}

func (h *harness) addSource(ref string) models.Source {
	src, err := h.sched.AddSource(context.Background(), ref, models.SourceTypeChannel)
	if err != nil {
		panic(err)
	}
	return src
}
