package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/cisasmendi/sistema-stock/internal/domain/audit"
	"github.com/cisasmendi/sistema-stock/internal/domain/auth"
	"github.com/cisasmendi/sistema-stock/internal/domain/notify"
	"github.com/cisasmendi/sistema-stock/internal/domain/order"
)

func orderTestRouter() *chi.Mux {
	h := NewOrderHandler(order.NewService(nil, nil, nil, notify.Nop{}, audit.Nop{}, clockwork.NewRealClock()))

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(testSecret))
		r.Get("/orders", h.list)
	})
	return r
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	r := orderTestRouter()
	token := signToken(t, uuid.New(), auth.RoleManager)

	// Not a lifecycle state; the filter must be refused before any
	// repository call.
	req := httptest.NewRequest(http.MethodGet, "/orders?status=SHIPPED", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown status")
}

func TestListOrdersRequiresManager(t *testing.T) {
	r := orderTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, uuid.New(), auth.RoleClient))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}
