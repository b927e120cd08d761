package api

import (
	"context"
	"net/http"
	"testing"

	"farm-market/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *testServer) admin(t *testing.T, email string) string {
	t.Helper()
	user := &models.User{Email: email, PasswordHash: "x", FullName: "Ada Admin", Role: models.RoleAdmin, EmailVerified: true}
	require.NoError(t, s.store.CreateUser(context.Background(), user))
	return s.token(t, user)
}

func TestProfileRoutes(t *testing.T) {
	s := newTestServer(t, 0)
	shopper := s.consumer(t, "profile@example.com")

	w := s.do(t, http.MethodGet, "/api/v1/users/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/users/profile", shopper, map[string]any{"full_name": "Samantha  Shopper"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Samantha Shopper", decode(t, w)["full_name"])

	w = s.do(t, http.MethodPost, "/api/v1/users/addresses", shopper, map[string]any{
		"street": "12 Elm St", "city": "Springfield", "state": "IL", "zip_code": "62701",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	address := decode(t, w)
	assert.Equal(t, true, address["is_default"])
	id := address["id"].(string)

	w = s.do(t, http.MethodPut, "/api/v1/users/addresses/"+id, shopper, map[string]any{"zip_code": "bad"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/v1/users/payment-methods", shopper, map[string]any{
		"payment_type": "card", "card_number": "4242 4242 4242 4242", "expiry_month": 12, "expiry_year": 2040,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	method := decode(t, w)
	assert.Equal(t, "4242", method["last_four"])
	assert.NotContains(t, method, "token")
	assert.NotContains(t, w.Body.String(), "4242 4242")

	w = s.do(t, http.MethodPut, "/api/v1/users/preferences", shopper, map[string]any{
		"dietary_preferences": []string{"Vegan"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Preferences updated successfully", decode(t, w)["message"])

	w = s.do(t, http.MethodGet, "/api/v1/users/profile", shopper, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode(t, w)
	assert.Len(t, profile["addresses"], 1)
	assert.Len(t, profile["payment_methods"], 1)
	assert.Equal(t, []any{"Vegan"}, profile["dietary_preferences"])

	w = s.do(t, http.MethodDelete, "/api/v1/users/addresses/"+id, shopper, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, "/api/v1/users/addresses/"+id, shopper, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Address not found", decode(t, w)["error"])
}

func TestBankAccountRoutes(t *testing.T) {
	s := newTestServer(t, 0)
	grower := s.farmer(t, "bank@example.com")
	shopper := s.consumer(t, "nobank@example.com")

	account := map[string]any{
		"account_holder_name": "Jane Grower",
		"account_number":      "000123456789",
		"routing_number":      "021000021",
		"account_type":        "savings",
	}

	w := s.do(t, http.MethodPut, "/api/v1/farmer/bank-account", shopper, account)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/farmer/bank-account", grower, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/farmer/bank-account", grower, account)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "6789", body["account_last_four"])
	assert.Equal(t, "savings", body["account_type"])
	assert.NotContains(t, w.Body.String(), "000123456789")
	assert.NotContains(t, w.Body.String(), "021000021")

	w = s.do(t, http.MethodDelete, "/api/v1/farmer/bank-account", grower, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAdminListFarmers(t *testing.T) {
	s := newTestServer(t, 0)
	s.farmer(t, "one@example.com")
	s.farmer(t, "two@example.com")
	root := s.admin(t, "root@example.com")

	w := s.do(t, http.MethodGet, "/api/v1/admin/farmers?page_size=1", root, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(2), body["total"])
	assert.Len(t, body["farmers"], 1)

	grower := s.farmer(t, "three@example.com")
	w = s.do(t, http.MethodGet, "/api/v1/admin/farmers", grower, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
