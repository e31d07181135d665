// Package bitget implements the source connector for the Bitget broker
// affiliate API: HMAC-signed requests, page-based extraction, and bounded
// retry with backoff on transient failures.
package bitget

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/domain"
	"github.com/cryptoaffil/dataplatform/internal/source"
)

// rateLimitKey is the shared request budget across all table jobs.
const rateLimitKey = "bitget:api"

// endpointFor maps an entity type to its affiliate API path.
func endpointFor(entity domain.EntityType) (string, error) {
	switch entity {
	case domain.EntityCustomers:
		return "/api/broker/v1/agent/customerList", nil
	case domain.EntityDeposits:
		return "/api/broker/v1/agent/depositList", nil
	case domain.EntityTrades:
		return "/api/broker/v1/agent/tradeList", nil
	case domain.EntityAssets:
		return "/api/broker/v1/agent/assetList", nil
	default:
		return "", fmt.Errorf("bitget: unknown entity type %q", entity)
	}
}

// Config holds connector parameters.
type Config struct {
	BaseURL        string
	ApiKey         string
	ApiSecret      string
	ApiPassphrase  string
	PageSize       int
	MaxRetries     int
	RetryBackoff   time.Duration
	RequestsPerSec int
	RequestTimeout time.Duration
	// LandingDir, when non-empty, captures every fetched page as a JSON file
	// before ingestion (raw audit trail). Layout:
	// {LandingDir}/affiliate{id}/{entity}/{YYYY}/{MM}/{DD}/page_{n}.json
	LandingDir string
}

// Client is the Bitget affiliate API connector.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter domain.RateLimiter // nil disables client-side throttling
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Bitget connector. limiter may be nil.
func New(cfg Config, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger.With(slog.String("component", "bitget")),
		now:     time.Now,
	}
}

// Name implements source.Connector.
func (c *Client) Name() string { return "bitget" }

// pageRequest is the JSON body for every list endpoint.
type pageRequest struct {
	AffiliateID int64  `json:"affiliateId"`
	PageNo      int    `json:"pageNo"`
	PageSize    int    `json:"pageSize"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
}

// pageResponse is the JSON envelope every list endpoint returns.
type pageResponse struct {
	Code string            `json:"code"`
	Msg  string            `json:"msg"`
	Data []json.RawMessage `json:"data"`
}

// Fetch pulls every page for one (affiliate, entity, window) and returns the
// flattened record list. Pagination ends when a page comes back shorter than
// the page size. Transport failures are retried with exponential backoff up
// to the configured cap; exhaustion returns an error with no payloads.
func (c *Client) Fetch(ctx context.Context, affiliateID int64, entity domain.EntityType, window domain.TimeWindow) ([]domain.RawPayload, error) {
	path, err := endpointFor(entity)
	if err != nil {
		return nil, err
	}

	var payloads []domain.RawPayload
	runDay := c.now().UTC()

	for pageNo := 1; ; pageNo++ {
		req := pageRequest{
			AffiliateID: affiliateID,
			PageNo:      pageNo,
			PageSize:    c.cfg.PageSize,
			StartTime:   strconv.FormatInt(window.Start.UnixMilli(), 10),
			EndTime:     strconv.FormatInt(window.End.UnixMilli(), 10),
		}

		page, err := c.fetchPage(ctx, path, req)
		if err != nil {
			return nil, fmt.Errorf("bitget: fetch %s page %d for affiliate %d: %w", entity, pageNo, affiliateID, err)
		}

		if c.cfg.LandingDir != "" && len(page) > 0 {
			if err := c.capturePage(affiliateID, entity, runDay, pageNo, page); err != nil {
				return nil, err
			}
		}

		for _, data := range page {
			recordID, err := source.ExtractRecordID(entity, data)
			if err != nil {
				// Identity extraction failures ride along with an empty id;
				// the ingestor records them as ERROR rows rather than losing
				// the payload.
				c.logger.Warn("payload without derivable record id",
					slog.String("entity", string(entity)),
					slog.String("error", err.Error()),
				)
				recordID = ""
			}
			payloads = append(payloads, domain.RawPayload{RecordID: recordID, Data: data})
		}

		if len(page) < c.cfg.PageSize {
			break
		}
	}

	c.logger.Info("fetch complete",
		slog.Int64("affiliate_id", affiliateID),
		slog.String("entity", string(entity)),
		slog.Int("records", len(payloads)),
	)
	return payloads, nil
}

// fetchPage performs one signed request with bounded retry on transient
// failures (network errors, 429, 5xx).
func (c *Client) fetchPage(ctx context.Context, path string, req pageRequest) ([]json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.RetryBackoff << (attempt - 1)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		if c.limiter != nil {
			if err := c.waitForSlot(ctx); err != nil {
				return nil, err
			}
		}

		page, retryable, err := c.doRequest(ctx, path, body)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		c.logger.Warn("transient request failure",
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

// waitForSlot blocks until the shared sliding-window budget admits a request.
func (c *Client) waitForSlot(ctx context.Context) error {
	limit := c.cfg.RequestsPerSec
	if limit <= 0 {
		limit = 1
	}
	for {
		allowed, err := c.limiter.Allow(ctx, rateLimitKey, limit, time.Second)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		timer := time.NewTimer(50 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// doRequest performs a single signed POST. The second return value reports
// whether the failure is worth retrying.
func (c *Client) doRequest(ctx context.Context, path string, body []byte) ([]json.RawMessage, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("ACCESS-KEY", c.cfg.ApiKey)
	httpReq.Header.Set("ACCESS-SIGN", c.sign(timestamp, http.MethodPost, path, body))
	httpReq.Header.Set("ACCESS-TIMESTAMP", timestamp)
	httpReq.Header.Set("ACCESS-PASSPHRASE", c.cfg.ApiPassphrase)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("status %d: %s", resp.StatusCode, respBody)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("status %d: %s", resp.StatusCode, respBody)
	}

	var page pageResponse
	if err := json.Unmarshal(respBody, &page); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	if page.Code != "00000" {
		return nil, false, fmt.Errorf("api error %s: %s", page.Code, page.Msg)
	}

	return page.Data, false, nil
}

// sign builds the request signature: Base64(HMAC-SHA256(secret,
// timestamp + method + path + body)).
func (c *Client) sign(timestamp, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.ApiSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// capturePage persists one fetched page to the raw landing directory.
func (c *Client) capturePage(affiliateID int64, entity domain.EntityType, day time.Time, pageNo int, page []json.RawMessage) error {
	dir := filepath.Join(
		c.cfg.LandingDir,
		fmt.Sprintf("affiliate%d", affiliateID),
		string(entity),
		day.Format("2006/01/02"),
	)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("bitget: create landing dir %s: %w", dir, err)
	}

	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("bitget: marshal landing page: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("page_%d.json", pageNo))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("bitget: write landing page %s: %w", path, err)
	}
	return nil
}

// Compile-time interface check.
var _ source.Connector = (*Client)(nil)
