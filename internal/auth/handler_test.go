package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-bakery/internal/auth"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
	_ "github.com/odyssey-erp/odyssey-bakery/testing"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func newRouter(t *testing.T, repo auth.Repository) (http.Handler, *auth.TokenManager) {
	t.Helper()
	tokens := auth.NewTokenManager("0123456789abcdef", time.Hour, "test")
	svc := auth.NewService(repo, tokens)
	handler := auth.NewHandler(nil, svc, auth.Authenticator{Tokens: tokens})
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r, tokens
}

func activeUser(t *testing.T) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("rahasia123"), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{
		ID:           5,
		Email:        "kasir@bakery.test",
		FullName:     "Kasir Satu",
		PasswordHash: string(hash),
		Role:         shared.RoleBranchStaff,
		BranchIDs:    []int64{2},
		IsActive:     true,
	}
}

func TestLoginIssuesToken(t *testing.T) {
	router, tokens := newRouter(t, &stubRepo{user: activeUser(t)})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"kasir@bakery.test","password":"rahasia123"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	var body auth.LoginResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "Bearer", body.TokenType)

	scope, err := tokens.Parse(body.AccessToken)
	require.NoError(t, err)
	require.Equal(t, []int64{2}, scope.BranchIDs)
}

func TestLoginInvalidCredentials(t *testing.T) {
	router, _ := newRouter(t, &stubRepo{user: activeUser(t)})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"kasir@bakery.test","password":"salahsalah"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginInactiveUser(t *testing.T) {
	user := activeUser(t)
	user.IsActive = false
	router, _ := newRouter(t, &stubRepo{user: user})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"kasir@bakery.test","password":"rahasia123"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginValidation(t *testing.T) {
	router, _ := newRouter(t, &stubRepo{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"not-an-email","password":"x"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestMeRequiresBearer(t *testing.T) {
	user := activeUser(t)
	router, tokens := newRouter(t, &stubRepo{user: user})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	require.Equal(t, http.StatusUnauthorized, res.Code)

	token, _, err := tokens.Issue(*user)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "kasir@bakery.test")
}
