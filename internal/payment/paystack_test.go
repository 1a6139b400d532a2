package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInitializeBuildsTransaction(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"authorization_url": "https://pay.example/checkout/abc",
				"reference":         "ref-123",
			},
		})
	}))
	defer srv.Close()

	p := NewPaystack("sk_test_x", srv.URL, "http://localhost:3000/callback")
	res, err := p.Initialize(context.Background(), "2348000000000@c.us", 1200)
	if err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if res.PaymentURL != "https://pay.example/checkout/abc" || res.Reference != "ref-123" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if gotPath != "/transaction/initialize" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer sk_test_x" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody["amount"].(float64) != 120000 {
		t.Fatalf("amount should be converted to minor units, got %v", gotBody["amount"])
	}
	if cb, _ := gotBody["callback_url"].(string); !strings.Contains(cb, "chatId=") {
		t.Fatalf("callback url should carry the chat id, got %q", cb)
	}
}

func TestVerifyStatuses(t *testing.T) {
	status := "success"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/transaction/verify/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"status": status},
		})
	}))
	defer srv.Close()

	p := NewPaystack("sk_test_x", srv.URL, "")
	if err := p.Verify(context.Background(), "ref-123"); err != nil {
		t.Fatalf("Verify error: %v", err)
	}

	status = "abandoned"
	if err := p.Verify(context.Background(), "ref-123"); err == nil {
		t.Fatalf("expected verification failure for non-success status")
	}
}

func TestInitializeRejectsBadInput(t *testing.T) {
	p := NewPaystack("sk", "", "")
	if _, err := p.Initialize(context.Background(), "", 100); err == nil {
		t.Fatalf("expected error for empty chat id")
	}
	if _, err := p.Initialize(context.Background(), "x@c.us", 0); err == nil {
		t.Fatalf("expected error for non-positive amount")
	}
}
