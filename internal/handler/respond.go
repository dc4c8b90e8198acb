package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ranklens-io/ranklens/internal/domain"
)

// maxJSONBodyBytes caps API request bodies.
const maxJSONBodyBytes = 1 << 20 // 1 MiB

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes a JSON request body into dst.
// Unknown fields are rejected so typos in client payloads fail loudly.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Wrap(err, domain.EINVALID, "", "Invalid request body")
	}
	return nil
}
