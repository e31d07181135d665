package etl

import (
	"context"
	"testing"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

func TestScorerEmptyBatch(t *testing.T) {
	store := newFakeQualityStore()
	scorer := NewScorer(store, discardLogger())
	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	m, err := scorer.Score(context.Background(), "silver_customers", date, domain.BatchProfile{})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if m.Completeness != 0 {
		t.Errorf("completeness = %.2f, want 0 for empty batch", m.Completeness)
	}
	for name, score := range map[string]float64{
		"accuracy":    m.Accuracy,
		"consistency": m.Consistency,
		"timeliness":  m.Timeliness,
	} {
		if score != 100 {
			t.Errorf("%s = %.2f, want 100 for empty batch", name, score)
		}
	}
}

func TestScorerMath(t *testing.T) {
	store := newFakeQualityStore()
	scorer := NewScorer(store, discardLogger())
	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	m, err := scorer.Score(context.Background(), "silver_trades", date, domain.BatchProfile{
		Total:           10,
		Valid:           8,
		Invalid:         2,
		RangeViolations: 1,
		DuplicateKeys:   3,
		LateRecords:     5,
	})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"completeness", m.Completeness, 80},
		{"accuracy", m.Accuracy, 90},
		{"consistency", m.Consistency, 70},
		{"timeliness", m.Timeliness, 50},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %.2f, want %.2f", c.name, c.got, c.want)
		}
	}
}

func TestScorerBounds(t *testing.T) {
	store := newFakeQualityStore()
	scorer := NewScorer(store, discardLogger())
	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	// More defects than records cannot push a score below zero.
	m, err := scorer.Score(context.Background(), "silver_assets", date, domain.BatchProfile{
		Total:         2,
		Valid:         2,
		DuplicateKeys: 5,
	})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if m.Consistency != 0 {
		t.Errorf("consistency = %.2f, want clamped to 0", m.Consistency)
	}
	for _, score := range []float64{m.Completeness, m.Accuracy, m.Consistency, m.Timeliness} {
		if score < 0 || score > 100 {
			t.Errorf("score %.2f outside [0,100]", score)
		}
	}
}

func TestScorerIdempotentRecompute(t *testing.T) {
	store := newFakeQualityStore()
	scorer := NewScorer(store, discardLogger())
	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	if _, err := scorer.Score(context.Background(), "silver_customers", date, domain.BatchProfile{Total: 4, Valid: 2, Invalid: 2}); err != nil {
		t.Fatalf("first Score: %v", err)
	}
	if _, err := scorer.Score(context.Background(), "silver_customers", date, domain.BatchProfile{Total: 4, Valid: 4}); err != nil {
		t.Fatalf("second Score: %v", err)
	}

	if len(store.rows) != 1 {
		t.Fatalf("store holds %d rows, want 1 after recompute", len(store.rows))
	}
	m, err := store.Get(context.Background(), "silver_customers", date)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Completeness != 100 {
		t.Errorf("completeness = %.2f, want 100 (latest recompute wins)", m.Completeness)
	}
}
