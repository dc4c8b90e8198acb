// Package export generates downloadable backlink export files.
//
// This package defines a Writer interface implemented by CSVWriter and
// JSONWriter, along with a Service that renders an export, uploads it to
// object storage and hands back a time-limited download URL.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ranklens-io/ranklens/internal/seodata"
	"github.com/ranklens-io/ranklens/internal/storage"
)

// =============================================================================
// Writer Interface
// =============================================================================

// Writer defines the interface for export writers.
// Implementations handle the specifics of each format (CSV, JSON).
type Writer interface {
	// Write renders the backlink rows for a target domain into w.
	// Returns the number of bytes written and any error.
	Write(ctx context.Context, domain string, backlinks []seodata.Backlink, w io.Writer) (int64, error)

	// Format returns the output format of this writer.
	Format() string
}

// WriterForFormat returns the Writer for a supported export format.
func WriterForFormat(format string) (Writer, error) {
	switch format {
	case storage.FormatCSV:
		return &CSVWriter{}, nil
	case storage.FormatJSON:
		return &JSONWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// =============================================================================
// CSV Writer
// =============================================================================

// csvHeader is the column order for CSV exports. Kept stable so saved
// spreadsheets and downstream imports don't break between releases.
var csvHeader = []string{
	"source_url",
	"target_url",
	"anchor_text",
	"domain_rating",
	"nofollow",
	"first_seen",
}

// CSVWriter renders backlinks as a CSV file with a fixed header row.
type CSVWriter struct{}

// Write implements the Writer interface.
func (cw *CSVWriter) Write(ctx context.Context, domain string, backlinks []seodata.Backlink, w io.Writer) (int64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	counter := &countingWriter{w: w}
	csvw := csv.NewWriter(counter)

	if err := csvw.Write(csvHeader); err != nil {
		return counter.n, fmt.Errorf("write csv header: %w", err)
	}

	for _, bl := range backlinks {
		record := []string{
			bl.SourceURL,
			bl.TargetURL,
			bl.AnchorText,
			strconv.FormatFloat(bl.DomainRating, 'f', 1, 64),
			strconv.FormatBool(bl.NoFollow),
			bl.FirstSeen.UTC().Format(time.RFC3339),
		}
		if err := csvw.Write(record); err != nil {
			return counter.n, fmt.Errorf("write csv record: %w", err)
		}
	}

	csvw.Flush()
	if err := csvw.Error(); err != nil {
		return counter.n, fmt.Errorf("flush csv: %w", err)
	}

	return counter.n, nil
}

// Format implements the Writer interface.
func (cw *CSVWriter) Format() string {
	return storage.FormatCSV
}

// =============================================================================
// JSON Writer
// =============================================================================

// jsonDocument is the envelope for JSON exports.
type jsonDocument struct {
	Domain      string             `json:"domain"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Count       int                `json:"count"`
	Backlinks   []seodata.Backlink `json:"backlinks"`
}

// JSONWriter renders backlinks as a JSON document with generation metadata.
type JSONWriter struct{}

// Write implements the Writer interface.
func (jw *JSONWriter) Write(ctx context.Context, domain string, backlinks []seodata.Backlink, w io.Writer) (int64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	// Empty slice rather than null for zero backlinks
	if backlinks == nil {
		backlinks = []seodata.Backlink{}
	}

	doc := jsonDocument{
		Domain:      domain,
		GeneratedAt: time.Now().UTC(),
		Count:       len(backlinks),
		Backlinks:   backlinks,
	}

	counter := &countingWriter{w: w}
	enc := json.NewEncoder(counter)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return counter.n, fmt.Errorf("encode json export: %w", err)
	}

	return counter.n, nil
}

// Format implements the Writer interface.
func (jw *JSONWriter) Format() string {
	return storage.FormatJSON
}

// =============================================================================
// Internal Helpers
// =============================================================================

// countingWriter tracks bytes written to the underlying writer.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
