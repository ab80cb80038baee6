package orders

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-bakery/internal/rbac"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

func newTestRouter(scope shared.Scope) (http.Handler, *Service) {
	svc := NewService(newMemoryRepo(), nil, nil)
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, rbac.Middleware{Service: rbac.NewService(nil)})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithScope(req.Context(), scope)))
		})
	})
	r.Route("/orders", handler.MountRoutes)
	return r, svc
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateAndAdvance(t *testing.T) {
	router, _ := newTestRouter(admin)

	rec := do(t, router, http.MethodPost, "/orders/", `{"branch_id":1,"customer_name":"Pak Budi","items":[{"product_id":3,"quantity":4,"unit_price":"12500"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "50000", created.Total.String())

	rec = do(t, router, http.MethodPost, "/orders/1/advance", `{"to":"in_transit"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")

	rec = do(t, router, http.MethodPost, "/orders/1/advance", `{"to":"ready_to_ship"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHandlerValidatesPayload(t *testing.T) {
	router, _ := newTestRouter(admin)
	rec := do(t, router, http.MethodPost, "/orders/", `{"branch_id":1,"items":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "customer_name")
}

func TestHandlerOwnerCannotTrack(t *testing.T) {
	router, _ := newTestRouter(owner)
	rec := do(t, router, http.MethodPost, "/orders/1/advance", `{"to":"ready_to_ship"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodGet, "/orders/", "")
	require.Equal(t, http.StatusOK, rec.Code)
}
