// Package payment integrates the card payment gateway. Confirmation arrives
// asynchronously through the HTTP callback, outside this package.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// InitResult carries the redirect URL and opaque reference for one
// initialized transaction.
type InitResult struct {
	PaymentURL string `json:"paymentUrl"`
	Reference  string `json:"paymentReference"`
}

// Gateway is the payment collaborator consumed by the conversation engine.
type Gateway interface {
	Initialize(ctx context.Context, chatID string, amount int64) (*InitResult, error)
	Verify(ctx context.Context, reference string) error
}

const defaultBaseURL = "https://api.paystack.co"

// Paystack implements Gateway against the Paystack transaction API.
type Paystack struct {
	secretKey   string
	baseURL     string
	callbackURL string
	http        *http.Client
}

func NewPaystack(secretKey, baseURL, callbackURL string) *Paystack {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Paystack{
		secretKey:   secretKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		callbackURL: callbackURL,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

// Initialize creates a transaction for the amount (major currency units) and
// returns the checkout URL. The callback URL carries the chat id so the
// confirmation can be routed back to the conversation.
func (p *Paystack) Initialize(ctx context.Context, chatID string, amount int64) (*InitResult, error) {
	if chatID == "" {
		return nil, errors.New("chat id required")
	}
	if amount <= 0 {
		return nil, fmt.Errorf("invalid amount %d", amount)
	}
	email := chatID
	if at := strings.Index(chatID, "@"); at > 0 {
		email = chatID[:at]
	}
	body, err := json.Marshal(map[string]any{
		"email":        email + "@example.com",
		"amount":       amount * 100, // minor units
		"callback_url": p.callbackURL + "?chatId=" + url.QueryEscape(chatID),
	})
	if err != nil {
		return nil, fmt.Errorf("encode init request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build init request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("initialize payment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("initialize payment: gateway returned %s", resp.Status)
	}
	var out struct {
		Data struct {
			AuthorizationURL string `json:"authorization_url"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode init response: %w", err)
	}
	if out.Data.AuthorizationURL == "" || out.Data.Reference == "" {
		return nil, errors.New("gateway response missing authorization url or reference")
	}
	return &InitResult{PaymentURL: out.Data.AuthorizationURL, Reference: out.Data.Reference}, nil
}

// Verify confirms the referenced transaction succeeded.
func (p *Paystack) Verify(ctx context.Context, reference string) error {
	if reference == "" {
		return errors.New("reference required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("verify payment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verify payment: gateway returned %s", resp.Status)
	}
	var out struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode verify response: %w", err)
	}
	if out.Data.Status != "success" {
		return fmt.Errorf("payment verification failed: %s", out.Data.Status)
	}
	return nil
}
