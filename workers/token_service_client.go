package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"
)

// TokenServiceClient talks to the external token-transfer service. The core
// never touches the chain itself — it only asks this service to move ECO
// tokens and records the returned transaction reference.
type TokenServiceClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewTokenServiceClient() *TokenServiceClient {
	baseURL := os.Getenv("TOKEN_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("TOKEN_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("TOKEN_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("TOKEN_SERVICE_TOKEN environment variable is required")
	}

	return &TokenServiceClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Transfer asks the token service to send amount ECO to the destination
// wallet. Returns the provider's transaction reference on success.
func (c *TokenServiceClient) Transfer(ctx context.Context, destination string, amount int64) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"destination": destination,
		"amount":      amount,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/api/v1/transfers", c.BaseURL), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call token service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("token service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		TxRef string `json:"tx_ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode transfer response: %w", err)
	}
	if response.TxRef == "" {
		return "", fmt.Errorf("token service confirmed transfer without a tx_ref")
	}

	return response.TxRef, nil
}

// Balance returns the authoritative ECO balance for a wallet.
func (c *TokenServiceClient) Balance(ctx context.Context, wallet string) (int64, error) {
	u, err := url.Parse(fmt.Sprintf("%s/api/v1/balances/%s", c.BaseURL, url.PathEscape(wallet)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse token service URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create balance request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call token service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("token service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Balance int64 `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode balance response: %w", err)
	}

	return response.Balance, nil
}
