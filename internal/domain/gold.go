package domain

import (
	"context"
	"time"
)

// RefreshScope names which gold aggregates to refresh.
type RefreshScope string

const (
	ScopeAll          RefreshScope = "all"
	ScopeDaily        RefreshScope = "daily_metrics"
	ScopeMonthly      RefreshScope = "monthly_metrics"
	ScopePerformance  RefreshScope = "affiliate_performance"
	ScopeETLDashboard RefreshScope = "etl_dashboard"
)

// AggregateEngine is the narrow contract to the external aggregation layer.
// The core only triggers refreshes; it never writes aggregate rows itself.
type AggregateEngine interface {
	Refresh(ctx context.Context, scope RefreshScope) error
}

// AffiliateMetrics is one row of the externally computed daily aggregates,
// read back for the dashboard.
type AffiliateMetrics struct {
	AffiliateID    int64     `json:"affiliate_id"`
	MetricDate     time.Time `json:"metric_date"`
	TotalCustomers int64     `json:"total_customers"`
	NewSignups     int64     `json:"new_signups"`
	TradeVolume    float64   `json:"trade_volume"`
	ActivationRate float64   `json:"activation_rate"`
	AvgTradeSize   float64   `json:"avg_trade_size"`
}

// MetricsStore reads the gold aggregates the external engine maintains.
type MetricsStore interface {
	ListDaily(ctx context.Context, since time.Time) ([]AffiliateMetrics, error)
}
