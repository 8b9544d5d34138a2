package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/security"
)

type fakeUserRepo struct {
	users map[uint]*domain.User
}

func (f *fakeUserRepo) FindByID(_ context.Context, id uint) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) FindByEmail(context.Context, string) (*domain.User, error) {
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) FindByUsername(context.Context, string) (*domain.User, error) {
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) Create(context.Context, *domain.User) error { return nil }

func (f *fakeUserRepo) Activate(context.Context, uint) (bool, error) { return false, nil }

func (f *fakeUserRepo) ReplacePasswordHash(context.Context, uint, string, string) (bool, error) {
	return false, nil
}

func testJWTManager() *security.JWTManager {
	return security.NewJWTManager(strings.Repeat("k", 32), "iss", "aud")
}

func TestAuthMiddleware(t *testing.T) {
	jwtMgr := testJWTManager()
	protected := AuthMiddleware(jwtMgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok || userID != 7 {
			t.Fatalf("expected user id 7 in context, got %d (ok=%v)", userID, ok)
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me", nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		tok, err := jwtMgr.SignAccessToken(7, 15*time.Minute)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
		}
	})
}

func TestRequireActive(t *testing.T) {
	jwtMgr := testJWTManager()
	users := &fakeUserRepo{users: map[uint]*domain.User{
		1: {ID: 1, IsActive: true},
		2: {ID: 2, IsActive: false},
	}}
	chain := AuthMiddleware(jwtMgr)(RequireActive(users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	request := func(userID uint) *httptest.ResponseRecorder {
		tok, err := jwtMgr.SignAccessToken(userID, 15*time.Minute)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		chain.ServeHTTP(rr, req)
		return rr
	}

	if rr := request(1); rr.Code != http.StatusOK {
		t.Fatalf("active account: expected 200, got %d", rr.Code)
	}
	if rr := request(2); rr.Code != http.StatusForbidden {
		t.Fatalf("inactive account: expected 403, got %d", rr.Code)
	}
	if rr := request(3); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown account: expected 401, got %d", rr.Code)
	}
}
