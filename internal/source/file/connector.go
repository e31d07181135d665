// Package file implements a source connector that replays captured landing
// pages from the local filesystem. It reads the same directory layout the
// live connector writes, which makes historical re-ingestion a pure bronze
// operation with no API traffic.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/domain"
	"github.com/cryptoaffil/dataplatform/internal/source"
)

// Connector reads raw payloads from landing-directory page files.
type Connector struct {
	root   string
	logger *slog.Logger
}

// New creates a file connector rooted at the landing directory.
func New(root string, logger *slog.Logger) *Connector {
	return &Connector{
		root:   root,
		logger: logger.With(slog.String("component", "file-source")),
	}
}

// Name implements source.Connector.
func (c *Connector) Name() string { return "file" }

// Fetch walks each UTC day in the window and concatenates the page files
// under {root}/affiliate{id}/{entity}/{YYYY}/{MM}/{DD}/. Days with no
// captured pages are skipped silently; a present but unreadable page is an
// error so partial replays never pass as complete.
func (c *Connector) Fetch(ctx context.Context, affiliateID int64, entity domain.EntityType, window domain.TimeWindow) ([]domain.RawPayload, error) {
	var payloads []domain.RawPayload

	start := window.Start.UTC().Truncate(24 * time.Hour)
	end := window.End.UTC()

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := filepath.Join(
			c.root,
			fmt.Sprintf("affiliate%d", affiliateID),
			string(entity),
			day.Format("2006/01/02"),
		)

		pages, err := listPages(dir)
		if err != nil {
			return nil, err
		}

		for _, page := range pages {
			records, err := readPage(page)
			if err != nil {
				return nil, err
			}
			for _, data := range records {
				recordID, err := source.ExtractRecordID(entity, data)
				if err != nil {
					c.logger.Warn("payload without derivable record id",
						slog.String("entity", string(entity)),
						slog.String("page", page),
						slog.String("error", err.Error()),
					)
					recordID = ""
				}
				payloads = append(payloads, domain.RawPayload{RecordID: recordID, Data: data})
			}
		}
	}

	c.logger.Info("replay complete",
		slog.Int64("affiliate_id", affiliateID),
		slog.String("entity", string(entity)),
		slog.Int("records", len(payloads)),
	)
	return payloads, nil
}

// listPages returns the page files of one day directory in capture order,
// sorting on the numeric page index so page_10 replays after page_2. A
// missing directory yields no pages and no error.
func listPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("file: read landing dir %s: %w", dir, err)
	}

	var pages []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		pages = append(pages, filepath.Join(dir, e.Name()))
	}
	sort.Slice(pages, func(i, j int) bool {
		a, b := pageIndex(pages[i]), pageIndex(pages[j])
		if a != b {
			return a < b
		}
		return pages[i] < pages[j]
	})
	return pages, nil
}

// pageIndex extracts the numeric index from a page_{n}.json file name.
// Files that do not match sort after numbered pages, in name order.
func pageIndex(path string) int {
	name := strings.TrimSuffix(filepath.Base(path), ".json")
	n, err := strconv.Atoi(strings.TrimPrefix(name, "page_"))
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}

// readPage decodes one captured page file (a JSON array of records).
func readPage(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file: read page %s: %w", path, err)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("file: decode page %s: %w", path, err)
	}
	return records, nil
}

// Compile-time interface check.
var _ source.Connector = (*Connector)(nil)
