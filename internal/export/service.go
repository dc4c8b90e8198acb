package export

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ranklens-io/ranklens/internal/domain"
	"github.com/ranklens-io/ranklens/internal/metrics"
	"github.com/ranklens-io/ranklens/internal/seodata"
	"github.com/ranklens-io/ranklens/internal/storage"
)

// =============================================================================
// Export Service
// =============================================================================

// downloadURLTTL is how long generated download links stay valid.
const downloadURLTTL = 1 * time.Hour

// maxExportBytes caps the size of a single export file.
const maxExportBytes = 50 << 20 // 50 MiB

// Result describes a generated export file.
type Result struct {
	Key         string `json:"key"`
	Format      string `json:"format"`
	SizeBytes   int64  `json:"sizeBytes"`
	Count       int    `json:"count"`
	DownloadURL string `json:"downloadUrl"`
}

// Service renders backlink exports and uploads them to object storage.
type Service struct {
	store  storage.Storage
	logger *slog.Logger
}

// NewService creates an export service backed by the given storage.
func NewService(store storage.Storage, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Generate renders the backlinks for a domain in the requested format,
// uploads the file and returns a time-limited download URL.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, targetDomain, format string, backlinks []seodata.Backlink) (*Result, error) {
	const op = "export.Generate"

	writer, err := WriterForFormat(format)
	if err != nil {
		return nil, domain.Invalid(op, "unsupported export format, use csv or json")
	}

	var buf bytes.Buffer
	size, err := writer.Write(ctx, targetDomain, backlinks, &buf)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to render export")
	}

	key := storage.ExportKey(userID, writer.Format())
	err = s.store.Put(ctx, key, &buf, storage.PutOptions{
		ContentType: storage.ContentTypeForFormat(writer.Format()),
		MaxSize:     maxExportBytes,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to upload export")
	}

	url, err := s.store.URL(ctx, key, downloadURLTTL)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to generate download URL")
	}

	metrics.ExportsGenerated.WithLabelValues(writer.Format()).Inc()

	s.logger.Info("generated backlink export",
		"user_id", userID,
		"domain", targetDomain,
		"format", writer.Format(),
		"size_bytes", size,
		"backlinks", len(backlinks),
	)

	return &Result{
		Key:         key,
		Format:      writer.Format(),
		SizeBytes:   size,
		Count:       len(backlinks),
		DownloadURL: url,
	}, nil
}
