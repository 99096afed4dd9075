package ar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestHandlerShowInvoice(t *testing.T) {
	repo := newMemoryARRepo()
	svc := NewService(repo, nil)
	created, err := svc.CreateARInvoiceFromSO(context.Background(), invoiceInput())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/finance/ar", NewHandler(nil, svc).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/finance/ar/invoices/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got ARInvoiceWithLines
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, created.Number, got.Number)
	require.Len(t, got.Lines, 2)
	require.Equal(t, 50.0, got.Lines[0].Discount2)

	for path, status := range map[string]int{
		"/finance/ar/invoices/99":  http.StatusNotFound,
		"/finance/ar/invoices/abc": http.StatusBadRequest,
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, status, rec.Code, path)
	}
}
