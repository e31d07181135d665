package domain

import (
	"strings"
	"time"
)

// Canonical (silver) entities. Each carries a natural key that enforces
// global deduplication no matter how many bronze loads delivered the same
// fact. Rows are upserted last-write-wins and never deleted; the Status
// field marks logical deactivation where the source supports it.

// Customer natural key: (AffiliateID, ClientID).
type Customer struct {
	AffiliateID  int64     `json:"affiliate_id"`
	ClientID     string    `json:"client_id"`
	RegisterTime time.Time `json:"register_time"`
	RegisterDate time.Time `json:"register_date"`
	Country      string    `json:"country"`
	Status       string    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks required fields. Derivation has no preconditions beyond these.
func (c Customer) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return NewValidationError("client_id", "missing")
	}
	if c.RegisterTime.IsZero() {
		return NewValidationError("register_time", "missing")
	}
	return nil
}

// Derive fills secondary fields deterministically from primary ones.
func (c *Customer) Derive() {
	c.RegisterDate = DateOf(c.RegisterTime)
	c.Country = strings.ToUpper(strings.TrimSpace(c.Country))
}

// Deposit natural key: (OrderID).
type Deposit struct {
	AffiliateID int64     `json:"affiliate_id"`
	OrderID     string    `json:"order_id"`
	ClientID    string    `json:"client_id"`
	DepositTime time.Time `json:"deposit_time"`
	DepositDate time.Time `json:"deposit_date"`
	Coin        string    `json:"coin"`
	Amount      float64   `json:"amount"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (d Deposit) Validate() error {
	if strings.TrimSpace(d.OrderID) == "" {
		return NewValidationError("order_id", "missing")
	}
	if strings.TrimSpace(d.ClientID) == "" {
		return NewValidationError("client_id", "missing")
	}
	if d.DepositTime.IsZero() {
		return NewValidationError("deposit_time", "missing")
	}
	if !(d.Amount > 0) {
		return NewValidationError("amount", "must be > 0")
	}
	return nil
}

func (d *Deposit) Derive() {
	d.DepositDate = DateOf(d.DepositTime)
	d.Coin = strings.ToUpper(strings.TrimSpace(d.Coin))
}

// TradeSide is the direction of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Trade natural key: (AffiliateID, ClientID, TradeTime, Volume).
type Trade struct {
	AffiliateID int64     `json:"affiliate_id"`
	ClientID    string    `json:"client_id"`
	TradeTime   time.Time `json:"trade_time"`
	TradeDate   time.Time `json:"trade_date"`
	Symbol      string    `json:"symbol"`
	Volume      float64   `json:"volume"`
	Side        TradeSide `json:"side"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (t Trade) Validate() error {
	if strings.TrimSpace(t.ClientID) == "" {
		return NewValidationError("client_id", "missing")
	}
	if t.TradeTime.IsZero() {
		return NewValidationError("trade_time", "missing")
	}
	if !(t.Volume > 0) {
		return NewValidationError("volume", "must be > 0")
	}
	if t.Side != SideBuy && t.Side != SideSell {
		return NewValidationError("side", "must be buy or sell")
	}
	return nil
}

func (t *Trade) Derive() {
	t.TradeDate = DateOf(t.TradeTime)
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
}

// Asset natural key: (AffiliateID, ClientID, UpdateTime).
type Asset struct {
	AffiliateID int64     `json:"affiliate_id"`
	ClientID    string    `json:"client_id"`
	UpdateTime  time.Time `json:"update_time"`
	Symbol      string    `json:"symbol"`
	Balance     float64   `json:"balance"`
	Remark      string    `json:"remark"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (a Asset) Validate() error {
	if strings.TrimSpace(a.ClientID) == "" {
		return NewValidationError("client_id", "missing")
	}
	if a.UpdateTime.IsZero() {
		return NewValidationError("update_time", "missing")
	}
	if a.Balance < 0 {
		return NewValidationError("balance", "must be >= 0")
	}
	return nil
}

func (a *Asset) Derive() {
	a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
}

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
