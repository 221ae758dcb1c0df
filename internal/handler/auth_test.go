package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/auth"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/catalog"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/config"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/fulfillment"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway/memstore"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/router"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/session"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/warehouse/warehousetest"
)

const (
	testSecret   = "test-secret"
	testUser     = "warehouse"
	testPassword = "correct-password"
)

// --- Test app ---

type testApp struct {
	store    *memstore.Store
	cat      *catalog.Catalog
	sessions *session.Controller
	router   http.Handler
}

// newTestApp wires the full router over a memstore holding order #7
// {backpack: 3, incub_bag: 50} and the given backpack count.
func newTestApp(t *testing.T, backpacks int) *testApp {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	cat := catalog.MustDefault()
	store := warehousetest.Warehouse(cat, backpacks)
	sessions := session.NewController(session.NewMemoryStore(0))

	cfg := &config.Config{
		JWTSecret:   testSecret,
		TokenTTL:    time.Hour,
		Gateway:     config.GatewayMemory,
		CORSOrigins: []string{"http://localhost:3000"},
	}
	r := router.New(cfg, router.Services{
		Gateway:     store,
		Catalog:     cat,
		Engine:      fulfillment.NewEngine(store, cat),
		Sessions:    sessions,
		Credentials: auth.NewCredentials(map[string]string{testUser: string(hash)}),
	})
	return &testApp{store: store, cat: cat, sessions: sessions, router: r}
}

func (a *testApp) login(t *testing.T) string {
	t.Helper()
	rr := a.do(t, "POST", "/auth/login", "", map[string]string{
		"username": testUser,
		"password": testPassword,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	token, _ := decodeResponse(t, rr)["access_token"].(string)
	if token == "" {
		t.Fatal("login returned no access_token")
	}
	return token
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return serve(t, a.router, method, path, token, body)
}

// --- Helpers ---

func serve(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("marshal request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, want, rr.Body.String())
	}
}

// --- Login tests ---

func TestLogin_ValidCredentials(t *testing.T) {
	app := newTestApp(t, 10)

	rr := app.do(t, "POST", "/auth/login", "", map[string]string{
		"username": testUser,
		"password": testPassword,
	})
	expectStatus(t, rr, http.StatusOK)

	resp := decodeResponse(t, rr)
	token, _ := resp["access_token"].(string)
	claims, err := auth.ValidateToken(testSecret, token)
	if err != nil {
		t.Fatalf("validate issued token: %v", err)
	}
	if claims.Username != testUser {
		t.Errorf("username: got %q, want %q", claims.Username, testUser)
	}
	if resp["expires_in"] != float64(3600) {
		t.Errorf("expires_in: got %v, want 3600", resp["expires_in"])
	}

	sess := resp["session"].(map[string]interface{})
	if sess["id"] != claims.SessionID.String() {
		t.Errorf("session id: got %v, want %v", sess["id"], claims.SessionID)
	}
	if sess["status_filter"] != "Open" {
		t.Errorf("status_filter: got %v, want Open", sess["status_filter"])
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	app := newTestApp(t, 10)

	rr := app.do(t, "POST", "/auth/login", "", map[string]string{
		"username": testUser,
		"password": "wrong",
	})
	expectStatus(t, rr, http.StatusUnauthorized)

	resp := decodeResponse(t, rr)
	if resp["error"] != "Invalid login credentials!" {
		t.Errorf("error: got %v", resp["error"])
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	app := newTestApp(t, 10)

	rr := app.do(t, "POST", "/auth/login", "", map[string]string{
		"username": "intruder",
		"password": testPassword,
	})
	expectStatus(t, rr, http.StatusUnauthorized)
}

func TestLogin_MissingFields(t *testing.T) {
	app := newTestApp(t, 10)

	rr := app.do(t, "POST", "/auth/login", "", map[string]string{"username": testUser})
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestLogin_InvalidBody(t *testing.T) {
	app := newTestApp(t, 10)

	req := httptest.NewRequest("POST", "/auth/login", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	app.router.ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestProtectedRoute_RequiresToken(t *testing.T) {
	app := newTestApp(t, 10)

	rr := app.do(t, "GET", "/orders", "", nil)
	expectStatus(t, rr, http.StatusUnauthorized)
}

func TestLogout_EndsSession(t *testing.T) {
	app := newTestApp(t, 10)
	token := app.login(t)

	expectStatus(t, app.do(t, "GET", "/session", token, nil), http.StatusOK)
	expectStatus(t, app.do(t, "POST", "/auth/logout", token, nil), http.StatusNoContent)

	// The token is still well-formed but its session is gone.
	expectStatus(t, app.do(t, "GET", "/session", token, nil), http.StatusUnauthorized)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, 10)

	rr := app.do(t, "GET", "/health", "", nil)
	expectStatus(t, rr, http.StatusOK)
	resp := decodeResponse(t, rr)
	if resp["status"] != "ok" || resp["gateway"] != "memory" {
		t.Errorf("health: got %v", resp)
	}
}
