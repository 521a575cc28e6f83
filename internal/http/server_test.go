package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendtrack/internal/auth"
	"spendtrack/internal/services"
	"spendtrack/internal/storage"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(":memory:")
	require.NoError(t, err)

	tokens := auth.NewTokenIssuer(testJWTSecret, time.Hour)
	identity := services.NewIdentityService(repo, tokens, 4)
	expenses := services.NewExpenseService(repo)

	s := NewServer(":0", identity, expenses, tokens, repo, 100)
	t.Cleanup(func() {
		s.limiter.Stop()
		repo.Close()
	})
	return s
}

func doRequest(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := make(map[string]any)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func registerAndLogin(t *testing.T, s *Server, name, email string) string {
	t.Helper()

	rec := doRequest(t, s, http.MethodPost, "/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, s, http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	token, _ := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterAndLoginFlow(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "hunter22",
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "account created", decodeBody(t, rec)["message"])

	rec = doRequest(t, s, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, "Alice", body["name"])
	assert.Equal(t, "alice@example.com", body["email"])
}

func TestRegisterRejectsBadPayloads(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		payload map[string]string
	}{
		{"missing name", map[string]string{"email": "a@b.com", "password": "hunter22"}},
		{"bad email", map[string]string{"name": "A", "email": "nope", "password": "hunter22"}},
		{"short password", map[string]string{"name": "A", "email": "a@b.com", "password": "12345"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/auth/register", "", tt.payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeBody(t, rec)["error"])
		})
	}
}

func TestRegisterDuplicateEmailIs400(t *testing.T) {
	s := newTestServer(t)
	registerAndLogin(t, s, "Alice", "a@b.com")

	rec := doRequest(t, s, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Mallory", "email": "A@B.com", "password": "hunter22",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginFailuresShareOneResponse(t *testing.T) {
	s := newTestServer(t)
	registerAndLogin(t, s, "Alice", "alice@example.com")

	unknown := doRequest(t, s, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "nobody@example.com", "password": "hunter22",
	})
	wrongPassword := doRequest(t, s, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, unknown.Body.String(), wrongPassword.Body.String())
}

func TestExpenseRoutesRequireBearerToken(t *testing.T) {
	s := newTestServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/expenses"},
		{http.MethodPost, "/expenses"},
		{http.MethodGet, "/expenses/1"},
		{http.MethodPut, "/expenses/1"},
		{http.MethodPatch, "/expenses/1"},
		{http.MethodDelete, "/expenses/1"},
		{http.MethodGet, "/expenses/filter"},
		{http.MethodGet, "/expenses/summary"},
	} {
		rec := doRequest(t, s, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
	}

	rec := doRequest(t, s, http.MethodGet, "/expenses", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndGetExpense(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "Alice", "alice@example.com")

	rec := doRequest(t, s, http.MethodPost, "/expenses", token, map[string]any{
		"title":    "Lunch",
		"amount":   12.5,
		"category": "Food",
		"date":     "2025-03-10",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.Equal(t, "Lunch", created["title"])
	assert.Equal(t, 12.5, created["amount"])
	assert.Equal(t, "Food", created["category"])

	id := int64(created["id"].(float64))
	rec = doRequest(t, s, http.MethodGet, "/expenses/"+jsonItoa(id), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, created["id"], got["id"])
	assert.Equal(t, "Lunch", got["title"])
}

func TestCreateExpenseAcceptsStringAmount(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "Alice", "alice@example.com")

	rec := doRequest(t, s, http.MethodPost, "/expenses", token, map[string]any{
		"title":  "Coffee",
		"amount": "3,40",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3.4, decodeBody(t, rec)["amount"])
}

func TestCreateExpenseValidation(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "Alice", "alice@example.com")

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"missing title", map[string]any{"amount": 10}},
		{"zero amount", map[string]any{"title": "x", "amount": 0}},
		{"negative amount", map[string]any{"title": "x", "amount": -5}},
		{"bad date", map[string]any{"title": "x", "amount": 10, "date": "not-a-date"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/expenses", token, tt.payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestExpensesAreInvisibleAcrossUsers(t *testing.T) {
	s := newTestServer(t)
	aliceToken := registerAndLogin(t, s, "Alice", "alice@example.com")
	bobToken := registerAndLogin(t, s, "Bob", "bob@example.com")

	rec := doRequest(t, s, http.MethodPost, "/expenses", aliceToken, map[string]any{
		"title": "Secret", "amount": 9.99,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	id := jsonItoa(int64(decodeBody(t, rec)["id"].(float64)))

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/expenses/" + id},
		{http.MethodPut, "/expenses/" + id},
		{http.MethodPatch, "/expenses/" + id},
		{http.MethodDelete, "/expenses/" + id},
	} {
		var body any
		if route.method == http.MethodPut {
			body = map[string]any{"title": "x", "amount": 1}
		} else if route.method == http.MethodPatch {
			body = map[string]any{"title": "x"}
		}
		rec := doRequest(t, s, route.method, route.path, bobToken, body)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", route.method, route.path)
	}

	rec = doRequest(t, s, http.MethodGet, "/expenses", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)
}

func TestPatchExpense(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "Alice", "alice@example.com")

	rec := doRequest(t, s, http.MethodPost, "/expenses", token, map[string]any{
		"title": "Groceries", "amount": 25, "category": "Food",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	id := jsonItoa(int64(decodeBody(t, rec)["id"].(float64)))

	// Unknown fields and unparseable amounts are skipped.
	rec = doRequest(t, s, http.MethodPatch, "/expenses/"+id, token, map[string]any{
		"Title":  "Weekly shop",
		"amount": "not-a-number",
		"color":  "red",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decodeBody(t, rec)
	assert.Equal(t, "Weekly shop", patched["title"])
	assert.Equal(t, float64(25), patched["amount"])

	// A parseable non-positive amount aborts the patch.
	rec = doRequest(t, s, http.MethodPatch, "/expenses/"+id, token, map[string]any{
		"amount": -5, "title": "must not stick",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/expenses/"+id, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Weekly shop", decodeBody(t, rec)["title"])
}

func TestDeleteExpense(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "Alice", "alice@example.com")

	rec := doRequest(t, s, http.MethodPost, "/expenses", token, map[string]any{
		"title": "Ephemeral", "amount": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	id := jsonItoa(int64(decodeBody(t, rec)["id"].(float64)))

	rec = doRequest(t, s, http.MethodDelete, "/expenses/"+id, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "expense deleted", decodeBody(t, rec)["message"])

	rec = doRequest(t, s, http.MethodGet, "/expenses/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/expenses/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFilterExpenses(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "Alice", "alice@example.com")

	for _, e := range []map[string]any{
		{"title": "Dinner", "amount": 10, "category": "Food", "date": "2025-01-15"},
		{"title": "Snacks", "amount": 10, "category": "Food2", "date": "2025-01-20"},
		{"title": "Bus", "amount": 10, "category": "Transport", "date": "2025-06-01"},
	} {
		rec := doRequest(t, s, http.MethodPost, "/expenses", token, e)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(t, s, http.MethodGet, "/expenses/filter?category=food", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Dinner", list[0]["title"])

	rec = doRequest(t, s, http.MethodGet, "/expenses/filter?startDate=2025-02-01", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Bus", list[0]["title"])

	rec = doRequest(t, s, http.MethodGet, "/expenses/filter?startDate=garbage", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExpenseSummary(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s, "Alice", "alice@example.com")

	for _, e := range []map[string]any{
		{"title": "Lunch", "amount": 10, "category": "Food", "date": "2025-01-05"},
		{"title": "Dinner", "amount": 20, "category": "Food", "date": "2025-01-20"},
		{"title": "Bus", "amount": 5, "category": "Transport", "date": "2025-02-01"},
	} {
		rec := doRequest(t, s, http.MethodPost, "/expenses", token, e)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(t, s, http.MethodGet, "/expenses/summary", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody(t, rec)

	byCategory := summary["byCategory"].([]any)
	require.Len(t, byCategory, 2)
	top := byCategory[0].(map[string]any)
	assert.Equal(t, "Food", top["category"])
	assert.Equal(t, float64(30), top["total"])

	byMonth := summary["byMonth"].([]any)
	require.Len(t, byMonth, 2)
	first := byMonth[0].(map[string]any)
	assert.Equal(t, "2025-01", first["month"])
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRateLimit(t *testing.T) {
	s := newTestServer(t)

	// The test server allows 100 auth requests per minute per client.
	var lastCode int
	for i := 0; i < 150; i++ {
		rec := doRequest(t, s, http.MethodPost, "/auth/login", "", map[string]string{
			"email": "nobody@example.com", "password": "hunter22",
		})
		lastCode = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}

func jsonItoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
