package etl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTracker mirrors the check-and-set semantics of the postgres tracker.
type fakeTracker struct {
	mu   sync.Mutex
	rows map[string]*domain.LoadStatus
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{rows: make(map[string]*domain.LoadStatus)}
}

func (f *fakeTracker) StartRun(ctx context.Context, table string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[table]
	if !ok {
		row = &domain.LoadStatus{TableName: table, Status: domain.RunNeverRun}
		f.rows[table] = row
	}
	if row.Status == domain.RunRunning {
		return fmt.Errorf("start %s: %w", table, domain.ErrRunInProgress)
	}
	attempt := at
	row.Status = domain.RunRunning
	row.LastAttemptedLoad = &attempt
	row.ErrorMessage = ""
	return nil
}

func (f *fakeTracker) FinishRun(ctx context.Context, table string, outcome domain.LoadOutcome, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[table]
	if !ok || row.Status != domain.RunRunning {
		return fmt.Errorf("finish %s: table not running", table)
	}
	row.Status = outcome.Status
	row.RecordsProcessed = outcome.SuccessCount
	row.ProcessingTime = outcome.Duration
	row.ErrorMessage = errMsg
	if outcome.Status == domain.RunSuccess || outcome.Status == domain.RunPartial {
		row.LastSuccessfulLoad = row.LastAttemptedLoad
	}
	return nil
}

func (f *fakeTracker) Get(ctx context.Context, table string) (domain.LoadStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if row, ok := f.rows[table]; ok {
		return *row, nil
	}
	return domain.LoadStatus{TableName: table, Status: domain.RunNeverRun}, nil
}

func (f *fakeTracker) List(ctx context.Context) ([]domain.LoadStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.LoadStatus, 0, len(f.rows))
	for _, row := range f.rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableName < out[j].TableName })
	return out, nil
}

// set seeds a tracker row for precondition tests.
func (f *fakeTracker) set(table string, status domain.RunStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[table] = &domain.LoadStatus{TableName: table, Status: status}
}

var _ domain.LoadStatusStore = (*fakeTracker)(nil)

// fakeRawStore is an in-memory bronze store. failInserts injects a write
// failure for specific record ids.
type fakeRawStore struct {
	mu          sync.Mutex
	rows        map[domain.EntityType][]domain.RawRecord
	failInserts map[string]error
}

func newFakeRawStore() *fakeRawStore {
	return &fakeRawStore{rows: make(map[domain.EntityType][]domain.RawRecord)}
}

func (f *fakeRawStore) Insert(ctx context.Context, entity domain.EntityType, rec domain.RawRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failInserts[rec.RecordID]; ok {
		return err
	}
	f.rows[entity] = append(f.rows[entity], rec)
	return nil
}

func (f *fakeRawStore) ListSuccessfulSince(ctx context.Context, entity domain.EntityType, affiliateID int64, watermark time.Time) ([]domain.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.RawRecord
	for _, rec := range f.rows[entity] {
		if rec.AffiliateID == affiliateID && rec.LoadStatus == domain.RecordSuccess && rec.LoadTimestamp.After(watermark) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoadTimestamp.Before(out[j].LoadTimestamp) })
	return out, nil
}

func (f *fakeRawStore) LatestRetryCount(ctx context.Context, entity domain.EntityType, affiliateID int64, recordID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	var latest time.Time
	for _, rec := range f.rows[entity] {
		if rec.AffiliateID == affiliateID && rec.RecordID == recordID && rec.LoadStatus == domain.RecordError {
			if rec.LoadTimestamp.After(latest) || latest.IsZero() {
				latest = rec.LoadTimestamp
				count = rec.RetryCount
			}
		}
	}
	return count, nil
}

func (f *fakeRawStore) ListFailed(ctx context.Context, entity domain.EntityType, maxRetries int) ([]domain.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.RawRecord
	for _, rec := range f.rows[entity] {
		if rec.LoadStatus == domain.RecordError && rec.RetryCount >= maxRetries {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRawStore) Counts(ctx context.Context, entity domain.EntityType) (domain.RawCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var c domain.RawCounts
	for _, rec := range f.rows[entity] {
		c.Total++
		switch rec.LoadStatus {
		case domain.RecordSuccess:
			c.Success++
		case domain.RecordError:
			c.Error++
		case domain.RecordPartial:
			c.Partial++
		}
	}
	return c, nil
}

func (f *fakeRawStore) ListOlderThan(ctx context.Context, entity domain.EntityType, before time.Time) ([]domain.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.RawRecord
	for _, rec := range f.rows[entity] {
		if rec.LoadTimestamp.Before(before) {
			out = append(out, rec)
		}
	}
	return out, nil
}

var _ domain.RawStore = (*fakeRawStore)(nil)

// fakeConnector returns canned payloads per (affiliate, entity).
type fakeConnector struct {
	mu       sync.Mutex
	payloads map[string][]domain.RawPayload
	err      error
	calls    int
}

func connectorKey(affiliateID int64, entity domain.EntityType) string {
	return fmt.Sprintf("%d/%s", affiliateID, entity)
}

func (f *fakeConnector) Fetch(ctx context.Context, affiliateID int64, entity domain.EntityType, window domain.TimeWindow) ([]domain.RawPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.payloads[connectorKey(affiliateID, entity)], nil
}

func (f *fakeConnector) Name() string { return "fake" }

// fakeCustomerStore records upserted batches keyed by natural key.
type fakeCustomerStore struct {
	mu        sync.Mutex
	rows      map[string]domain.Customer
	batches   int
	upsertErr error
}

func newFakeCustomerStore() *fakeCustomerStore {
	return &fakeCustomerStore{rows: make(map[string]domain.Customer)}
}

func (f *fakeCustomerStore) UpsertBatch(ctx context.Context, customers []domain.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.batches++
	for _, c := range customers {
		f.rows[fmt.Sprintf("%d:%s", c.AffiliateID, c.ClientID)] = c
	}
	return nil
}

func (f *fakeCustomerStore) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rows)), nil
}

// fakeDepositStore records upserted deposits keyed by order id.
type fakeDepositStore struct {
	mu        sync.Mutex
	rows      map[string]domain.Deposit
	upsertErr error
}

func newFakeDepositStore() *fakeDepositStore {
	return &fakeDepositStore{rows: make(map[string]domain.Deposit)}
}

func (f *fakeDepositStore) UpsertBatch(ctx context.Context, deposits []domain.Deposit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, d := range deposits {
		f.rows[d.OrderID] = d
	}
	return nil
}

func (f *fakeDepositStore) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rows)), nil
}

// fakeTradeStore records upserted trades.
type fakeTradeStore struct {
	mu   sync.Mutex
	rows map[string]domain.Trade
}

func newFakeTradeStore() *fakeTradeStore {
	return &fakeTradeStore{rows: make(map[string]domain.Trade)}
}

func (f *fakeTradeStore) UpsertBatch(ctx context.Context, trades []domain.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range trades {
		key := fmt.Sprintf("%d:%s:%d:%g", t.AffiliateID, t.ClientID, t.TradeTime.UnixMilli(), t.Volume)
		f.rows[key] = t
	}
	return nil
}

func (f *fakeTradeStore) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rows)), nil
}

// fakeAssetStore records upserted asset snapshots.
type fakeAssetStore struct {
	mu   sync.Mutex
	rows map[string]domain.Asset
}

func newFakeAssetStore() *fakeAssetStore {
	return &fakeAssetStore{rows: make(map[string]domain.Asset)}
}

func (f *fakeAssetStore) UpsertBatch(ctx context.Context, assets []domain.Asset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range assets {
		key := fmt.Sprintf("%d:%s:%d", a.AffiliateID, a.ClientID, a.UpdateTime.UnixMilli())
		f.rows[key] = a
	}
	return nil
}

func (f *fakeAssetStore) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rows)), nil
}

// fakeQualityStore upserts metrics by (table, date).
type fakeQualityStore struct {
	mu   sync.Mutex
	rows map[string]domain.QualityMetric
}

func newFakeQualityStore() *fakeQualityStore {
	return &fakeQualityStore{rows: make(map[string]domain.QualityMetric)}
}

func qualityKey(table string, date time.Time) string {
	return table + "/" + date.Format("2006-01-02")
}

func (f *fakeQualityStore) Upsert(ctx context.Context, m domain.QualityMetric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[qualityKey(m.TableName, m.MetricDate)] = m
	return nil
}

func (f *fakeQualityStore) Get(ctx context.Context, table string, date time.Time) (domain.QualityMetric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.rows[qualityKey(table, date)]; ok {
		return m, nil
	}
	return domain.QualityMetric{}, domain.ErrNotFound
}

func (f *fakeQualityStore) ListSince(ctx context.Context, since time.Time) ([]domain.QualityMetric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.QualityMetric
	for _, m := range f.rows {
		if !m.MetricDate.Before(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

var _ domain.QualityStore = (*fakeQualityStore)(nil)

// fakeEngine records refresh calls.
type fakeEngine struct {
	mu     sync.Mutex
	scopes []domain.RefreshScope
	err    error
}

func (f *fakeEngine) Refresh(ctx context.Context, scope domain.RefreshScope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.scopes = append(f.scopes, scope)
	return nil
}

// fakeLocks hands out at most one lock per key.
type fakeLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired int
	released int
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: make(map[string]bool)}
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.held[key] = true
	f.acquired++
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.held[key] = false
		f.released++
	}, nil
}

var _ domain.LockManager = (*fakeLocks)(nil)

// fakeBus records published payloads and stream appends.
type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: make(map[string][][]byte),
		streams:   make(map[string][][]byte),
	}
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[stream] = append(f.streams[stream], payload)
	return nil
}

func (f *fakeBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StreamMessage
	for i, p := range f.streams[stream] {
		out = append(out, domain.StreamMessage{ID: fmt.Sprintf("%d-0", i), Payload: p})
	}
	return out, nil
}

var _ domain.EventBus = (*fakeBus)(nil)

// fakeAlerter records alert messages.
type fakeAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeAlerter) Alert(ctx context.Context, subject, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, subject+": "+message)
	return nil
}
