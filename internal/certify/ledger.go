package certify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPLedger anchors certificate fingerprints against an external ledger
// service. Anchoring is eventually consistent by design; callers treat
// every failure as non-fatal.
type HTTPLedger struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPLedger creates a ledger client.
func NewHTTPLedger(baseURL, apiKey string) *HTTPLedger {
	return &HTTPLedger{
		http:    &http.Client{Timeout: 20 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Anchor submits a fingerprint and returns the ledger reference.
func (l *HTTPLedger) Anchor(ctx context.Context, certificateID, fingerprint string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"certificate_id": certificateID,
		"fingerprint":    fingerprint,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/v1/anchors", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if l.apiKey != "" {
		req.Header.Set("x-api-key", l.apiKey)
	}

	res, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("anchor fingerprint: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return "", fmt.Errorf("anchor fingerprint: ledger returned %s", res.Status)
	}

	var out struct {
		Ref string `json:"ref"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode anchor response: %w", err)
	}
	if out.Ref == "" {
		return "", fmt.Errorf("anchor fingerprint: empty ref")
	}
	return out.Ref, nil
}
