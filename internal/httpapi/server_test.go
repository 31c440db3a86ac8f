package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/stockroom/internal/store/filestore"
	"github.com/MarkoPoloResearchLab/stockroom/pkg/inventory"
)

func newTestServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()
	cfg := Config{
		AllowedOrigins:    []string{"http://localhost:8000"},
		LowStockThreshold: 5,
		SessionSigningKey: "test-signing-key",
		SessionIssuer:     "stockroom",
		SessionCookieName: "cart_session",
		SessionTTL:        time.Hour,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	store := filestore.New(filepath.Join(t.TempDir(), "inventory.json"))
	service, err := inventory.NewService(context.Background(), store, func() int64 { return time.Now().Unix() })
	if err != nil {
		t.Fatalf("service init failed: %v", err)
	}

	server := httptest.NewServer(NewRouter(cfg, service, zap.NewNop()))
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{Jar: jar}
	return server, client
}

func execJSON(t *testing.T, client *http.Client, method string, url string, payload any) (int, map[string]any) {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(encoded)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("request init failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp.StatusCode, decoded
}

func addItem(t *testing.T, client *http.Client, server *httptest.Server, itemID string, name string, quantity int64, priceCents int64) {
	t.Helper()
	payload := map[string]any{"item_id": itemID, "name": name, "quantity": quantity, "price_cents": priceCents}
	status, _ := execJSON(t, client, http.MethodPost, server.URL+"/api/items", payload)
	if status != http.StatusCreated {
		t.Fatalf("add item %s: unexpected status %d", itemID, status)
	}
}

func TestItemCRUDOverHTTP(t *testing.T) {
	server, client := newTestServer(t)

	addItem(t, client, server, "sku-a", "Anchors", 5, 300)

	// Duplicate id conflicts.
	payload := map[string]any{"item_id": "SKU-A", "name": "Anchors", "quantity": 1, "price_cents": 300}
	status, body := execJSON(t, client, http.MethodPost, server.URL+"/api/items", payload)
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate id, got %d: %v", status, body)
	}

	// List shows the normalized id.
	status, body = execJSON(t, client, http.MethodGet, server.URL+"/api/items", nil)
	if status != http.StatusOK {
		t.Fatalf("list: unexpected status %d", status)
	}
	items := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if id := items[0].(map[string]any)["item_id"].(string); id != "SKU-A" {
		t.Fatalf("expected SKU-A, got %s", id)
	}

	// Patch quantity in add mode.
	patch := map[string]any{"quantity": 3, "quantity_mode": "add"}
	status, body = execJSON(t, client, http.MethodPatch, server.URL+"/api/items/SKU-A", patch)
	if status != http.StatusOK {
		t.Fatalf("patch: unexpected status %d: %v", status, body)
	}
	if quantity := body["quantity"].(float64); quantity != 8 {
		t.Fatalf("expected quantity 8 after add patch, got %v", quantity)
	}

	// Partial delete leaves the remainder.
	status, body = execJSON(t, client, http.MethodDelete, server.URL+"/api/items/SKU-A?amount=3", nil)
	if status != http.StatusOK {
		t.Fatalf("partial delete: unexpected status %d", status)
	}
	if removed := body["removed"].(bool); removed {
		t.Fatalf("expected record to survive a partial delete")
	}

	// A full delete removes the record; a second one is a 404.
	status, _ = execJSON(t, client, http.MethodDelete, server.URL+"/api/items/SKU-A", nil)
	if status != http.StatusOK {
		t.Fatalf("delete: unexpected status %d", status)
	}
	status, _ = execJSON(t, client, http.MethodDelete, server.URL+"/api/items/SKU-A", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for a deleted item, got %d", status)
	}
}

func TestLowStockAndCatalogueViews(t *testing.T) {
	server, client := newTestServer(t)
	addItem(t, client, server, "SKU-A", "Washers", 2, 100)
	addItem(t, client, server, "SKU-B", "Anchors", 9, 300)

	status, body := execJSON(t, client, http.MethodGet, server.URL+"/api/low_stock", nil)
	if status != http.StatusOK {
		t.Fatalf("low stock: unexpected status %d", status)
	}
	low := body["items"].([]any)
	if len(low) != 1 {
		t.Fatalf("expected 1 low stock item, got %d", len(low))
	}

	status, body = execJSON(t, client, http.MethodGet, server.URL+"/api/catalogue", nil)
	if status != http.StatusOK {
		t.Fatalf("catalogue: unexpected status %d", status)
	}
	catalogue := body["items"].([]any)
	if name := catalogue[0].(map[string]any)["name"].(string); name != "Anchors" {
		t.Fatalf("expected catalogue sorted by name, got %s first", name)
	}
}

func TestPurchaseFlowOverHTTP(t *testing.T) {
	server, client := newTestServer(t)
	addItem(t, client, server, "SKU-A", "Anchors", 5, 250)
	addItem(t, client, server, "SKU-B", "Bolts", 10, 150)

	// The purchase view issues the cart cookie and numbers the rows.
	status, body := execJSON(t, client, http.MethodGet, server.URL+"/api/purchase", nil)
	if status != http.StatusOK {
		t.Fatalf("purchase view: unexpected status %d", status)
	}
	rows := body["items"].([]any)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if ref := rows[0].(map[string]any)["ref"].(string); ref != "1" {
		t.Fatalf("expected first ref 1, got %s", ref)
	}

	// Add 3 anchors by ref.
	status, body = execJSON(t, client, http.MethodPost, server.URL+"/api/cart", map[string]any{"ref": "1", "quantity": 3})
	if status != http.StatusOK {
		t.Fatalf("add to cart: unexpected status %d: %v", status, body)
	}
	cart := body["cart"].(map[string]any)
	if total := cart["total_cents"].(float64); total != 750 {
		t.Fatalf("expected cart total 750, got %v", total)
	}

	// The view now shows the reservation subtracted, ledger untouched.
	_, body = execJSON(t, client, http.MethodGet, server.URL+"/api/purchase", nil)
	rows = body["items"].([]any)
	if available := rows[0].(map[string]any)["available"].(float64); available != 2 {
		t.Fatalf("expected 2 shown available, got %v", available)
	}
	_, body = execJSON(t, client, http.MethodGet, server.URL+"/api/items?q=SKU-A", nil)
	item := body["items"].([]any)[0].(map[string]any)
	if quantity := item["quantity"].(float64); quantity != 5 {
		t.Fatalf("expected ledger still at 5 before checkout, got %v", quantity)
	}

	// Reserving beyond what is left is rejected with the availability.
	status, body = execJSON(t, client, http.MethodPost, server.URL+"/api/cart", map[string]any{"ref": "1", "quantity": 3})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for over-reservation, got %d: %v", status, body)
	}
	apiError := body["error"].(map[string]any)
	if available := apiError["available"].(float64); available != 2 {
		t.Fatalf("expected available 2 in the error, got %v", available)
	}

	// Checkout settles the cart and returns the receipt.
	status, body = execJSON(t, client, http.MethodPost, server.URL+"/api/checkout", nil)
	if status != http.StatusOK {
		t.Fatalf("checkout: unexpected status %d: %v", status, body)
	}
	receipt := body["receipt"].(map[string]any)
	if total := receipt["total_cents"].(float64); total != 750 {
		t.Fatalf("expected receipt total 750, got %v", total)
	}

	// Stock is deducted and the cart cookie is gone.
	_, body = execJSON(t, client, http.MethodGet, server.URL+"/api/items?q=SKU-A", nil)
	item = body["items"].([]any)[0].(map[string]any)
	if quantity := item["quantity"].(float64); quantity != 2 {
		t.Fatalf("expected 2 left after checkout, got %v", quantity)
	}
	status, body = execJSON(t, client, http.MethodGet, server.URL+"/api/cart", nil)
	if status != http.StatusOK {
		t.Fatalf("cart read: unexpected status %d", status)
	}
	lines := body["cart"].(map[string]any)["lines"].([]any)
	if len(lines) != 0 {
		t.Fatalf("expected empty cart after checkout, got %d lines", len(lines))
	}
}

func TestCheckoutWithoutCart(t *testing.T) {
	server, client := newTestServer(t)
	status, body := execJSON(t, client, http.MethodPost, server.URL+"/api/checkout", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 without a cart, got %d: %v", status, body)
	}
}

func TestClearCartDiscardsReservations(t *testing.T) {
	server, client := newTestServer(t)
	addItem(t, client, server, "SKU-A", "Anchors", 5, 250)

	execJSON(t, client, http.MethodGet, server.URL+"/api/purchase", nil)
	status, _ := execJSON(t, client, http.MethodPost, server.URL+"/api/cart", map[string]any{"ref": "1", "quantity": 2})
	if status != http.StatusOK {
		t.Fatalf("add to cart: unexpected status %d", status)
	}

	status, _ = execJSON(t, client, http.MethodPost, server.URL+"/api/cart/clear", nil)
	if status != http.StatusOK {
		t.Fatalf("clear: unexpected status %d", status)
	}

	// Ledger never changed and the next view shows full availability.
	_, body := execJSON(t, client, http.MethodGet, server.URL+"/api/purchase", nil)
	rows := body["items"].([]any)
	if available := rows[0].(map[string]any)["available"].(float64); available != 5 {
		t.Fatalf("expected 5 available after clear, got %v", available)
	}
}

func TestUnknownRefRejected(t *testing.T) {
	server, client := newTestServer(t)
	addItem(t, client, server, "SKU-A", "Anchors", 5, 250)

	execJSON(t, client, http.MethodGet, server.URL+"/api/purchase", nil)
	status, body := execJSON(t, client, http.MethodPost, server.URL+"/api/cart", map[string]any{"ref": "42", "quantity": 1})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown ref, got %d", status)
	}
	apiError := body["error"].(map[string]any)
	if code := apiError["code"].(string); code != "invalid_ref" {
		t.Fatalf("expected invalid_ref code, got %s", code)
	}
}
