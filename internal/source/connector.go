// Package source defines the connector contract the raw ingestor consumes
// and the record-identity rules shared by all connector implementations.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// Connector yields a finite batch of raw payloads for one
// (affiliate, entity type, time window). Implementations own their transport
// concerns (auth, pagination, retries); an exhausted-retries failure surfaces
// as an error with no payloads, which the ingestor reports as a batch ERROR.
type Connector interface {
	Fetch(ctx context.Context, affiliateID int64, entity domain.EntityType, window domain.TimeWindow) ([]domain.RawPayload, error)
	// Name identifies the connector in bronze source_descriptor fields.
	Name() string
}

// idFields is the minimal projection needed to derive a record identity from
// any entity payload.
type idFields struct {
	UID        string `json:"uid"`
	OrderID    string `json:"orderId"`
	TradeTime  string `json:"tradeTime"`
	Volume     string `json:"volume"`
	UpdateTime string `json:"uTime"`
}

// ExtractRecordID derives the source record identity from a payload. Feeds
// without a source-assigned id (trades, assets) use a compound of the fields
// that make the fact unique, so re-extractions of the same fact carry the
// same record id and dedupe downstream.
func ExtractRecordID(entity domain.EntityType, data json.RawMessage) (string, error) {
	var f idFields
	if err := json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("source: decode payload: %w", err)
	}

	switch entity {
	case domain.EntityCustomers:
		if strings.TrimSpace(f.UID) == "" {
			return "", fmt.Errorf("source: customer payload missing uid")
		}
		return f.UID, nil

	case domain.EntityDeposits:
		if strings.TrimSpace(f.OrderID) == "" {
			return "", fmt.Errorf("source: deposit payload missing orderId")
		}
		return f.OrderID, nil

	case domain.EntityTrades:
		if f.UID == "" || f.TradeTime == "" || f.Volume == "" {
			return "", fmt.Errorf("source: trade payload missing uid/tradeTime/volume")
		}
		return f.UID + ":" + f.TradeTime + ":" + f.Volume, nil

	case domain.EntityAssets:
		if f.UID == "" || f.UpdateTime == "" {
			return "", fmt.Errorf("source: asset payload missing uid/uTime")
		}
		return f.UID + ":" + f.UpdateTime, nil

	default:
		return "", fmt.Errorf("source: unknown entity type %q", entity)
	}
}
