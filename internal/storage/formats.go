package storage

import (
	"path/filepath"
	"strings"
)

// =============================================================================
// Export Formats
// =============================================================================

const (
	// FormatCSV identifies comma-separated export files.
	FormatCSV = "csv"

	// FormatJSON identifies JSON export files.
	FormatJSON = "json"
)

// exportContentTypes maps supported export formats to their MIME types.
var exportContentTypes = map[string]string{
	FormatCSV:  "text/csv",
	FormatJSON: "application/json",
}

// IsExportFormat reports whether format is a supported export format.
func IsExportFormat(format string) bool {
	_, ok := exportContentTypes[strings.ToLower(format)]
	return ok
}

// ContentTypeForFormat returns the MIME type for a supported export format.
// Unknown formats fall back to "application/octet-stream".
func ContentTypeForFormat(format string) string {
	if ct, ok := exportContentTypes[strings.ToLower(format)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// contentTypeForKey derives a MIME type from a storage key's extension.
// Used when PutOptions does not provide an explicit content type and when
// serving objects from local storage.
func contentTypeForKey(key string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(key)), ".")
	return ContentTypeForFormat(ext)
}
