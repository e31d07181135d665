package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

type runnerFixture struct {
	connector *fakeConnector
	raw       *fakeRawStore
	tracker   *fakeTracker
	customers *fakeCustomerStore
	quality   *fakeQualityStore
	engine    *fakeEngine
	locks     *fakeLocks
	bus       *fakeBus
	alerter   *fakeAlerter
	runner    *Runner
}

func newRunnerFixture() *runnerFixture {
	f := &runnerFixture{
		connector: &fakeConnector{payloads: map[string][]domain.RawPayload{}},
		raw:       newFakeRawStore(),
		tracker:   newFakeTracker(),
		customers: newFakeCustomerStore(),
		quality:   newFakeQualityStore(),
		engine:    &fakeEngine{},
		locks:     newFakeLocks(),
		bus:       newFakeBus(),
		alerter:   &fakeAlerter{},
	}
	logger := discardLogger()
	scorer := NewScorer(f.quality, logger)
	ingestor := NewIngestor(f.connector, f.raw, f.tracker, []int64{1}, 3, logger)
	transformer := NewTransformer(f.raw, f.tracker, f.customers, newFakeDepositStore(),
		newFakeTradeStore(), newFakeAssetStore(), scorer, []int64{1}, 24*time.Hour, logger)
	refresher := NewRefresher(f.tracker, f.engine, f.locks, 5*time.Minute, logger)
	f.runner = NewRunner(ingestor, ingestor, transformer, refresher, f.bus, f.alerter, 2, time.Minute, logger)
	return f
}

func TestParseLayer(t *testing.T) {
	for _, valid := range []string{"bitget", "bronze", "silver", "gold", "all"} {
		if _, err := ParseLayer(valid); err != nil {
			t.Errorf("ParseLayer(%q): %v", valid, err)
		}
	}
	if _, err := ParseLayer("platinum"); err == nil {
		t.Error("ParseLayer accepted unknown layer")
	}
}

func TestRunnerFullPipeline(t *testing.T) {
	f := newRunnerFixture()
	now := time.Now().UTC()
	for i := 1; i <= 3; i++ {
		f.connector.payloads[connectorKey(1, domain.EntityCustomers)] = append(
			f.connector.payloads[connectorKey(1, domain.EntityCustomers)],
			domain.RawPayload{
				RecordID: fmt.Sprintf("u%d", i),
				Data:     json.RawMessage(fmt.Sprintf(`{"uid":"u%d","registerTime":"%d"}`, i, now.Add(-time.Hour).UnixMilli())),
			},
		)
	}

	summary, err := f.runner.Run(context.Background(), LayerAll, 7)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 4 bronze + 4 silver + 1 gold.
	if len(summary.Results) != 9 {
		t.Fatalf("got %d results, want 9", len(summary.Results))
	}
	if summary.Failed() {
		t.Errorf("summary reports failure: %+v", summary.Results)
	}

	n, _ := f.customers.Count(context.Background())
	if n != 3 {
		t.Errorf("silver customers = %d, want 3", n)
	}
	if len(f.engine.scopes) != 1 {
		t.Errorf("gold refreshed %d times, want 1", len(f.engine.scopes))
	}

	// Every job published one event to the live channel and the stream.
	if got := len(f.bus.published[statusChannel]); got != 9 {
		t.Errorf("published %d status events, want 9", got)
	}
	if got := len(f.bus.streams[eventStream]); got != 9 {
		t.Errorf("appended %d stream events, want 9", got)
	}
	if len(f.alerter.messages) != 0 {
		t.Errorf("unexpected alerts: %v", f.alerter.messages)
	}
}

func TestRunnerSkipsBusyTable(t *testing.T) {
	f := newRunnerFixture()
	f.tracker.set("bronze_customers", domain.RunRunning)

	summary, err := f.runner.Run(context.Background(), LayerBitget, 7)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var skipped int
	for _, r := range summary.Results {
		if r.Skipped {
			skipped++
			if r.Table != "bronze_customers" {
				t.Errorf("skipped table = %s, want bronze_customers", r.Table)
			}
		}
	}
	if skipped != 1 {
		t.Errorf("skipped %d jobs, want 1", skipped)
	}
	// A busy table is not a failure.
	if summary.Failed() {
		t.Error("summary reports failure for a busy-table skip")
	}
	if len(f.alerter.messages) != 0 {
		t.Errorf("alerts sent for skips: %v", f.alerter.messages)
	}
}

func TestRunnerAlertsOnFailure(t *testing.T) {
	f := newRunnerFixture()
	f.connector.err = fmt.Errorf("api down")

	summary, err := f.runner.Run(context.Background(), LayerBitget, 7)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Failed() {
		t.Error("summary does not report failure")
	}
	if len(f.alerter.messages) != 4 {
		t.Errorf("got %d alerts, want 4 (one per failed table)", len(f.alerter.messages))
	}
}

func TestRunnerGoldSkipWhenBlocked(t *testing.T) {
	f := newRunnerFixture() // silver tables are all NEVER_RUN

	summary, err := f.runner.Run(context.Background(), LayerGold, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(summary.Results))
	}
	if !summary.Results[0].Skipped {
		t.Error("blocked refresh not reported as skipped")
	}
	if summary.Failed() {
		t.Error("blocked refresh reported as failure")
	}
}

func TestRunnerBronzeRequiresReplayIngestor(t *testing.T) {
	f := newRunnerFixture()
	f.runner.replay = nil

	if _, err := f.runner.Run(context.Background(), LayerBronze, 7); err == nil {
		t.Fatal("expected error when no replay ingestor is configured")
	}
}

func TestSummaryFailed(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		want    bool
	}{
		{"all success", []Result{{Outcome: domain.LoadOutcome{Status: domain.RunSuccess}}}, false},
		{"partial is not failure", []Result{{Outcome: domain.LoadOutcome{Status: domain.RunPartial}}}, false},
		{"error outcome", []Result{{Outcome: domain.LoadOutcome{Status: domain.RunError}}}, true},
		{"job error", []Result{{Err: "boom"}}, true},
		{"skip ignored", []Result{{Skipped: true, Err: "busy"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summary{Results: tt.results}
			if got := s.Failed(); got != tt.want {
				t.Errorf("Failed() = %v, want %v", got, tt.want)
			}
		})
	}
}
