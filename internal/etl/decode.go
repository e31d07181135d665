package etl

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// Wire shapes as the affiliate API delivers them: every timestamp is a
// millisecond-epoch string, every numeric a decimal string. Decoding maps
// them onto canonical entities; anything that fails to parse is a
// per-record validation error, never a batch abort.

type wireCustomer struct {
	UID          string `json:"uid"`
	RegisterTime string `json:"registerTime"`
	Country      string `json:"country"`
	Status       string `json:"status"`
}

type wireDeposit struct {
	OrderID     string `json:"orderId"`
	UID         string `json:"uid"`
	DepositTime string `json:"depositTime"`
	Coin        string `json:"coin"`
	Amount      string `json:"amount"`
	Status      string `json:"status"`
}

type wireTrade struct {
	UID       string `json:"uid"`
	TradeTime string `json:"tradeTime"`
	Symbol    string `json:"symbol"`
	Volume    string `json:"volume"`
	Side      string `json:"side"`
	Status    string `json:"status"`
}

type wireAsset struct {
	UID        string `json:"uid"`
	UpdateTime string `json:"uTime"`
	Symbol     string `json:"symbol"`
	Coin       string `json:"coin"`
	Balance    string `json:"balance"`
	Remark     string `json:"remark"`
}

// parseMsEpoch parses a millisecond-epoch string. An empty string yields the
// zero time without error so the entity validator reports the missing field
// with its canonical name.
func parseMsEpoch(field, s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "not a millisecond epoch")
	}
	return time.UnixMilli(ms).UTC(), nil
}

// parseDecimal parses a decimal string. Empty strings yield zero so range
// validators own the rejection.
func parseDecimal(field, s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, domain.NewValidationError(field, "not a decimal number")
	}
	return v, nil
}

func decodeCustomer(affiliateID int64, data json.RawMessage) (domain.Customer, error) {
	var w wireCustomer
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Customer{}, domain.NewValidationError("payload", "malformed json")
	}
	registerTime, err := parseMsEpoch("register_time", w.RegisterTime)
	if err != nil {
		return domain.Customer{}, err
	}
	return domain.Customer{
		AffiliateID:  affiliateID,
		ClientID:     strings.TrimSpace(w.UID),
		RegisterTime: registerTime,
		Country:      w.Country,
		Status:       w.Status,
	}, nil
}

func decodeDeposit(affiliateID int64, data json.RawMessage) (domain.Deposit, error) {
	var w wireDeposit
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Deposit{}, domain.NewValidationError("payload", "malformed json")
	}
	depositTime, err := parseMsEpoch("deposit_time", w.DepositTime)
	if err != nil {
		return domain.Deposit{}, err
	}
	amount, err := parseDecimal("amount", w.Amount)
	if err != nil {
		return domain.Deposit{}, err
	}
	return domain.Deposit{
		AffiliateID: affiliateID,
		OrderID:     strings.TrimSpace(w.OrderID),
		ClientID:    strings.TrimSpace(w.UID),
		DepositTime: depositTime,
		Coin:        w.Coin,
		Amount:      amount,
		Status:      w.Status,
	}, nil
}

func decodeTrade(affiliateID int64, data json.RawMessage) (domain.Trade, error) {
	var w wireTrade
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Trade{}, domain.NewValidationError("payload", "malformed json")
	}
	tradeTime, err := parseMsEpoch("trade_time", w.TradeTime)
	if err != nil {
		return domain.Trade{}, err
	}
	volume, err := parseDecimal("volume", w.Volume)
	if err != nil {
		return domain.Trade{}, err
	}
	return domain.Trade{
		AffiliateID: affiliateID,
		ClientID:    strings.TrimSpace(w.UID),
		TradeTime:   tradeTime,
		Symbol:      w.Symbol,
		Volume:      volume,
		Side:        domain.TradeSide(strings.ToLower(strings.TrimSpace(w.Side))),
		Status:      w.Status,
	}, nil
}

func decodeAsset(affiliateID int64, data json.RawMessage) (domain.Asset, error) {
	var w wireAsset
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Asset{}, domain.NewValidationError("payload", "malformed json")
	}
	updateTime, err := parseMsEpoch("update_time", w.UpdateTime)
	if err != nil {
		return domain.Asset{}, err
	}
	balance, err := parseDecimal("balance", w.Balance)
	if err != nil {
		return domain.Asset{}, err
	}
	symbol := w.Symbol
	if symbol == "" {
		symbol = w.Coin
	}
	return domain.Asset{
		AffiliateID: affiliateID,
		ClientID:    strings.TrimSpace(w.UID),
		UpdateTime:  updateTime,
		Symbol:      symbol,
		Balance:     balance,
		Remark:      w.Remark,
	}, nil
}

// rangeField reports whether a validation failure on the field counts
// against the accuracy score rather than only completeness.
func rangeField(field string) bool {
	switch field {
	case "amount", "volume", "balance":
		return true
	default:
		return false
	}
}
