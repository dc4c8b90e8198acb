package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ranklens-io/ranklens/internal/domain"
)

// =============================================================================
// Error Response Tests - Security Focus
// =============================================================================

func TestErrorResponse_InternalErrorHidesDetails(t *testing.T) {
	// An internal error wrapping a database error
	dbErr := &mockDatabaseError{message: "pq: relation \"user_quotas\" does not exist"}
	internalErr := mustInternal(dbErr)

	req := httptest.NewRequest("GET", "/api/quotas", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, handlerTestLogger(), internalErr)

	body := rec.Body.String()

	if strings.Contains(body, "pq:") {
		t.Errorf("response exposes database error: %s", body)
	}
	if strings.Contains(body, "relation") {
		t.Errorf("response exposes database schema: %s", body)
	}
	if strings.Contains(body, "QuotaStore") {
		t.Errorf("response exposes internal operation: %s", body)
	}
	if !strings.Contains(body, "internal error") {
		t.Errorf("response should contain generic internal error message, got: %s", body)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestErrorResponse_UnwrappedErrorReturnsGeneric(t *testing.T) {
	// A raw error that never went through the domain error helpers
	rawErr := &mockDatabaseError{message: "FATAL: password authentication failed for user \"postgres\""}

	req := httptest.NewRequest("GET", "/api/checks", nil)
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, handlerTestLogger(), rawErr)

	body := rec.Body.String()

	if strings.Contains(body, "FATAL") {
		t.Errorf("response exposes raw error: %s", body)
	}
	if strings.Contains(body, "postgres") {
		t.Errorf("response exposes database user: %s", body)
	}
	if !strings.Contains(body, "internal error") {
		t.Errorf("response should contain generic message, got: %s", body)
	}
}

func TestErrorResponse_DoesNotExposeOperationName(t *testing.T) {
	err := domain.Invalid("QuotaService.Check", "Unknown quota type")

	req := httptest.NewRequest("POST", "/api/check-quota", nil)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, handlerTestLogger(), err)

	body := rec.Body.String()

	if strings.Contains(body, "QuotaService") {
		t.Errorf("response exposes internal operation name: %s", body)
	}
	if !strings.Contains(body, "Unknown quota type") {
		t.Errorf("response should carry the user-facing message, got: %s", body)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestErrorResponse_JSONShape(t *testing.T) {
	err := domain.Unauthorized("UserService.Login", "Invalid email or password")

	req := httptest.NewRequest("POST", "/api/login", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, handlerTestLogger(), err)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp JSONError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error.Code != domain.EUNAUTHORIZED {
		t.Errorf("error.code = %q, want %q", resp.Error.Code, domain.EUNAUTHORIZED)
	}
	if resp.Error.Message != "Invalid email or password" {
		t.Errorf("error.message = %q, want the login message", resp.Error.Message)
	}
}

func TestErrorResponse_APIPathsAlwaysGetJSON(t *testing.T) {
	err := domain.Invalid("", "Bad input")

	// No Accept or Content-Type headers at all
	req := httptest.NewRequest("POST", "/api/consume-quota", nil)
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, handlerTestLogger(), err)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json for /api/ paths", ct)
	}
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	testCases := []struct {
		code   string
		status int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.EPAYMENT, http.StatusPaymentRequired},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.ERATELIMIT, http.StatusTooManyRequests},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"something_else", http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		if got := ErrorCodeToHTTPStatus(tc.code); got != tc.status {
			t.Errorf("ErrorCodeToHTTPStatus(%q) = %d, want %d", tc.code, got, tc.status)
		}
	}
}

func mustInternal(err error) error {
	return domain.Internal(err, "QuotaStore.GetUserQuota", "Database query failed")
}

// mockDatabaseError simulates a database error for testing
type mockDatabaseError struct {
	message string
}

func (e *mockDatabaseError) Error() string {
	return e.message
}
