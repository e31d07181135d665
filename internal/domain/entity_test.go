package domain

import (
	"testing"
	"time"
)

func TestDepositValidate(t *testing.T) {
	base := Deposit{
		AffiliateID: 1,
		OrderID:     "ord-1",
		ClientID:    "c-1",
		DepositTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Coin:        "usdt",
		Amount:      10,
	}

	tests := []struct {
		name    string
		mutate  func(*Deposit)
		wantErr bool
	}{
		{"valid", func(d *Deposit) {}, false},
		{"zero amount rejected", func(d *Deposit) { d.Amount = 0 }, true},
		{"tiny positive amount accepted", func(d *Deposit) { d.Amount = 0.00000001 }, false},
		{"negative amount rejected", func(d *Deposit) { d.Amount = -5 }, true},
		{"missing order id", func(d *Deposit) { d.OrderID = "" }, true},
		{"missing client id", func(d *Deposit) { d.ClientID = "  " }, true},
		{"missing deposit time", func(d *Deposit) { d.DepositTime = time.Time{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mutate(&d)
			err := d.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsValidation(err) {
				t.Errorf("Validate() returned non-validation error %v", err)
			}
		})
	}
}

func TestTradeValidate(t *testing.T) {
	base := Trade{
		AffiliateID: 1,
		ClientID:    "c-1",
		TradeTime:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Symbol:      "btcusdt",
		Volume:      0.5,
		Side:        SideBuy,
	}

	tests := []struct {
		name    string
		mutate  func(*Trade)
		wantErr bool
	}{
		{"valid buy", func(tr *Trade) {}, false},
		{"valid sell", func(tr *Trade) { tr.Side = SideSell }, false},
		{"zero volume rejected", func(tr *Trade) { tr.Volume = 0 }, true},
		{"unknown side rejected", func(tr *Trade) { tr.Side = "hold" }, true},
		{"missing client id", func(tr *Trade) { tr.ClientID = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := base
			tt.mutate(&tr)
			err := tr.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAssetValidate(t *testing.T) {
	a := Asset{AffiliateID: 1, ClientID: "c-1", UpdateTime: time.Now(), Balance: 0}
	if err := a.Validate(); err != nil {
		t.Errorf("zero balance should be valid, got %v", err)
	}
	a.Balance = -0.01
	if err := a.Validate(); err == nil {
		t.Error("negative balance should be invalid")
	}
}

func TestCustomerDerive(t *testing.T) {
	c := Customer{
		AffiliateID:  1,
		ClientID:     "c-1",
		RegisterTime: time.Date(2025, 6, 1, 23, 45, 0, 0, time.UTC),
		Country:      " de ",
	}
	c.Derive()

	wantDate := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if !c.RegisterDate.Equal(wantDate) {
		t.Errorf("RegisterDate = %v, want %v", c.RegisterDate, wantDate)
	}
	if c.Country != "DE" {
		t.Errorf("Country = %q, want %q", c.Country, "DE")
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	d := Deposit{Coin: "eth", DepositTime: time.Date(2025, 1, 15, 8, 30, 0, 0, time.UTC)}
	d.Derive()
	first := d
	d.Derive()
	if d != first {
		t.Errorf("second Derive changed the entity: %+v != %+v", d, first)
	}
}
