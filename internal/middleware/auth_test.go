package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/ranklens-io/ranklens/internal/auth"
	"github.com/ranklens-io/ranklens/internal/domain"
	"github.com/ranklens-io/ranklens/internal/session"
)

// =============================================================================
// Mock UserService Implementation
// =============================================================================

// mockUserService implements the service.UserService interface for testing.
type mockUserService struct {
	GetBySessionTokenFunc func(ctx context.Context, token string) (*domain.User, error)
	LogoutFunc            func(ctx context.Context, token string) error
}

func (m *mockUserService) Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) Logout(ctx context.Context, token string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token)
	}
	return nil
}

func (m *mockUserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	if m.GetBySessionTokenFunc != nil {
		return m.GetBySessionTokenFunc(ctx, token)
	}
	return nil, errors.New("not implemented")
}

func (m *mockUserService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	return errors.New("not implemented")
}

func (m *mockUserService) DeleteExpiredSessions(ctx context.Context) error {
	return nil
}

func (m *mockUserService) UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error {
	return nil
}

func (m *mockUserService) UpdateSubscription(ctx context.Context, userID uuid.UUID, status domain.SubscriptionStatus, subscriptionID string) error {
	return nil
}

func (m *mockUserService) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error) {
	return nil, errors.New("not implemented")
}

// =============================================================================
// Mock RoleService Implementation
// =============================================================================

// mockRoleService implements service.RoleService, returning a fixed role.
type mockRoleService struct {
	role         domain.Role
	resolveCalls int
}

func (m *mockRoleService) Resolve(ctx context.Context, userID uuid.UUID) domain.Role {
	m.resolveCalls++
	if m.role == "" {
		return domain.RoleFree
	}
	return m.role
}

func (m *mockRoleService) Assign(ctx context.Context, userID uuid.UUID, role domain.Role) error {
	m.role = role
	return nil
}

// =============================================================================
// Test Helpers
// =============================================================================

// newTestLogger creates a logger that only shows errors during tests.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// newTestAuthMiddleware creates an AuthMiddleware with mock services for testing.
func newTestAuthMiddleware(mock *mockUserService) *AuthMiddleware {
	return NewAuthMiddleware(mock, &mockRoleService{}, newTestLogger(), false)
}

// =============================================================================
// WithUser Middleware Tests
// =============================================================================

func TestWithUser_NoCookie_ContinuesAsGuest(t *testing.T) {
	mock := &mockUserService{}
	mw := newTestAuthMiddleware(mock)

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true

		if user := auth.GetUser(r.Context()); user != nil {
			t.Errorf("expected nil user, got %+v", user)
		}

		// A request with no session resolves to the guest sentinel for
		// quota accounting.
		if got := auth.QuotaUserID(r.Context()); got != domain.GuestUserID {
			t.Errorf("QuotaUserID = %q, want %q", got, domain.GuestUserID)
		}

		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/check-quota", nil)
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("handler was not called")
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestWithUser_ValidCookie_SetsUserInContext(t *testing.T) {
	userID := uuid.New()

	// The session lookup returns the user with no role; roles live in
	// role_assignments and are resolved separately.
	mock := &mockUserService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.User, error) {
			if token != "valid-token-123" {
				t.Errorf("GetBySessionToken called with token = %q, want %q", token, "valid-token-123")
			}
			return &domain.User{ID: userID, Email: "test@example.com", Name: "Test User"}, nil
		},
	}
	roles := &mockRoleService{role: domain.RoleUser}
	mw := NewAuthMiddleware(mock, roles, newTestLogger(), false)

	var capturedUser *domain.User
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedUser = auth.GetUser(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{
		Name:  session.CookieName,
		Value: "valid-token-123",
	})
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if capturedUser == nil {
		t.Fatal("user not set in context")
	}

	if capturedUser.ID != userID {
		t.Errorf("user.ID = %v, want %v", capturedUser.ID, userID)
	}

	if capturedUser.Email != "test@example.com" {
		t.Errorf("user.Email = %q, want %q", capturedUser.Email, "test@example.com")
	}

	if capturedUser.Role != domain.RoleUser {
		t.Errorf("user.Role = %q, want %q", capturedUser.Role, domain.RoleUser)
	}

	if roles.resolveCalls != 1 {
		t.Errorf("role resolve calls = %d, want 1", roles.resolveCalls)
	}
}

// The session path must resolve the active role, or admins could never
// reach admin routes: the users table has no role column, so a context
// user carries whatever WithUser put there.
func TestWithUser_SessionToAdminRoute(t *testing.T) {
	tests := []struct {
		name       string
		role       domain.Role
		wantStatus int
	}{
		{"admin session reaches admin route", domain.RoleAdmin, http.StatusOK},
		{"free session gets 403", domain.RoleFree, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID := uuid.New()
			mock := &mockUserService{
				GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.User, error) {
					return &domain.User{ID: userID, Email: "user@example.com"}, nil
				},
			}
			mw := NewAuthMiddleware(mock, &mockRoleService{role: tt.role}, newTestLogger(), false)

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			chain := Stack(mw.WithUser, mw.RequireUser, mw.RequireAdmin)(handler)

			req := httptest.NewRequest("GET", "/api/admin/users/"+userID.String()+"/role", nil)
			req.Header.Set("Accept", "application/json")
			req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "valid-token-123"})
			rec := httptest.NewRecorder()

			chain.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestWithUser_InvalidCookie_ClearsAndContinues(t *testing.T) {
	mock := &mockUserService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.User, error) {
			return nil, domain.Unauthorized("test", "invalid session")
		},
	}

	mw := newTestAuthMiddleware(mock)

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true

		if user := auth.GetUser(r.Context()); user != nil {
			t.Errorf("expected nil user, got %+v", user)
		}

		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{
		Name:  session.CookieName,
		Value: "invalid-token",
	})
	rec := httptest.NewRecorder()

	mw.WithUser(handler).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("handler was not called")
	}

	cookieCleared := false
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == session.CookieName && cookie.MaxAge == -1 {
			cookieCleared = true
		}
	}

	if !cookieCleared {
		t.Error("invalid session cookie was not cleared")
	}
}

// =============================================================================
// RequireUser Middleware Tests
// =============================================================================

func TestRequireUser_WithUser_ContinuesToHandler(t *testing.T) {
	user := &domain.User{
		ID:    uuid.New(),
		Email: "test@example.com",
		Role:  domain.RoleFree,
	}

	mw := newTestAuthMiddleware(&mockUserService{})

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req = req.WithContext(auth.SetUser(req.Context(), user))
	rec := httptest.NewRecorder()

	mw.RequireUser(handler).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("handler was not called")
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireUser_NoUser_APIRequest_Returns401(t *testing.T) {
	mw := newTestAuthMiddleware(&mockUserService{})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	req := httptest.NewRequest("GET", "/api/checks", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	mw.RequireUser(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireUser_NoUser_HTMLRequest_Redirects(t *testing.T) {
	mw := newTestAuthMiddleware(&mockUserService{})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()

	mw.RequireUser(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusSeeOther)
	}

	location := rec.Header().Get("Location")
	if location != "/?return_to=/dashboard" {
		t.Errorf("Location = %q, want %q", location, "/?return_to=/dashboard")
	}
}

// =============================================================================
// RequireAdmin Middleware Tests
// =============================================================================

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		user       *domain.User
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "admin user passes",
			user:       &domain.User{ID: uuid.New(), Email: "admin@example.com", Role: domain.RoleAdmin},
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "free user gets 403",
			user:       &domain.User{ID: uuid.New(), Email: "free@example.com", Role: domain.RoleFree},
			wantStatus: http.StatusForbidden,
			wantCalled: false,
		},
		{
			name:       "pro user gets 403",
			user:       &domain.User{ID: uuid.New(), Email: "pro@example.com", Role: domain.RolePro},
			wantStatus: http.StatusForbidden,
			wantCalled: false,
		},
		{
			name:       "no user gets 401",
			user:       nil,
			wantStatus: http.StatusUnauthorized,
			wantCalled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := newTestAuthMiddleware(&mockUserService{})

			handlerCalled := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/api/admin/users/abc/role", nil)
			req.Header.Set("Accept", "application/json")
			if tt.user != nil {
				req = req.WithContext(auth.SetUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()

			mw.RequireAdmin(handler).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantStatus)
			}

			if handlerCalled != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", handlerCalled, tt.wantCalled)
			}
		})
	}
}

// =============================================================================
// RequireActiveSubscription Middleware Tests
// =============================================================================

func TestRequireActiveSubscription(t *testing.T) {
	tests := []struct {
		name       string
		status     domain.SubscriptionStatus
		wantStatus int
	}{
		{"active subscription passes", domain.SubscriptionStatusActive, http.StatusOK},
		{"trialing subscription passes", domain.SubscriptionStatusTrialing, http.StatusOK},
		{"inactive subscription gets 402", domain.SubscriptionStatusInactive, http.StatusPaymentRequired},
		{"past_due subscription gets 402", domain.SubscriptionStatusPastDue, http.StatusPaymentRequired},
		{"canceled subscription gets 402", domain.SubscriptionStatusCanceled, http.StatusPaymentRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := newTestAuthMiddleware(&mockUserService{})

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			user := &domain.User{
				ID:                 uuid.New(),
				Email:              "test@example.com",
				Role:               domain.RolePro,
				SubscriptionStatus: tt.status,
			}

			req := httptest.NewRequest("POST", "/api/billing/portal", nil)
			req.Header.Set("Accept", "application/json")
			req = req.WithContext(auth.SetUser(req.Context(), user))
			rec := httptest.NewRecorder()

			mw.RequireActiveSubscription(handler).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

// =============================================================================
// Stack Tests
// =============================================================================

func TestStack_AppliesInOrder(t *testing.T) {
	var order []string

	mwA := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "a")
			next.ServeHTTP(w, r)
		})
	}
	mwB := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "b")
			next.ServeHTTP(w, r)
		})
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	Stack(mwA, mwB)(handler).ServeHTTP(rec, req)

	want := []string{"a", "b", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}
