// Package e2e drives a running hatchery server over HTTP. Point it at
// an instance with HATCHERY_E2E_URL; the suite mints its own bearer
// tokens with the server's signing key (HATCHERY_E2E_SIGNING_KEY).
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestContext holds the HTTP client state shared by all steps within a
// scenario.
type TestContext struct {
	baseURL    string
	signingKey []byte
	client     *http.Client

	lastStatus int
	lastBody   []byte
}

// NewTestContext builds a context from the environment.
func NewTestContext() *TestContext {
	baseURL := os.Getenv("HATCHERY_E2E_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	signingKey := os.Getenv("HATCHERY_E2E_SIGNING_KEY")
	if signingKey == "" {
		signingKey = "dev-secret-key-change-in-production"
	}
	return &TestContext{
		baseURL:    baseURL,
		signingKey: []byte(signingKey),
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.lastStatus = 0
	tc.lastBody = nil
}

// MintToken signs a bearer token binding the given address, the same
// way the server's identity service does.
func (tc *TestContext) MintToken(address string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"address": address,
		"exp":     time.Now().Add(time.Hour).Unix(),
		"iat":     time.Now().Unix(),
		"iss":     "hatchery",
	})
	return token.SignedString(tc.signingKey)
}

// POST sends a JSON request. An empty address leaves the request
// unauthenticated.
func (tc *TestContext) POST(path string, body any, address string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, tc.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if address != "" {
		token, err := tc.MintToken(address)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

// Execute delivers one factory execute message as the given sender.
func (tc *TestContext) Execute(sender string, msg any) error {
	return tc.POST("/factory/execute", msg, sender)
}

// Query delivers one factory query message.
func (tc *TestContext) Query(msg any) error {
	return tc.POST("/factory/query", msg, "")
}

// GetLastResponseStatus returns the status of the last response.
func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

// GetLastResponseBody returns the raw body of the last response.
func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// DecodeLastResponse unmarshals the last response body into target.
func (tc *TestContext) DecodeLastResponse(target any) error {
	return json.Unmarshal(tc.lastBody, target)
}
