// Package treasury is the client for the token disbursement service: the
// external collaborator that actually submits and confirms the on-chain
// transfer for a claim. The claim engine only needs a success/failure
// acknowledgment with a transaction hash.
package treasury

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrDisbursementRejected = errors.New("treasury rejected disbursement")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type disburseRequest struct {
	ClaimID       string `json:"claim_id"`
	WalletAddress string `json:"wallet_address"`
	MicroTokens   int64  `json:"micro_tokens"`
}

type disburseResponse struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error,omitempty"`
}

// Disburse transfers tokens to a wallet and returns the transaction hash.
// The claim id doubles as the treasury-side idempotency key, so a retried
// claim cannot trigger a second transfer.
func (c *Client) Disburse(ctx context.Context, claimID, walletAddress string, microTokens int64) (string, error) {
	if claimID == "" || walletAddress == "" || microTokens <= 0 {
		return "", fmt.Errorf("invalid disburse payload")
	}

	payload, err := json.Marshal(disburseRequest{
		ClaimID:       claimID,
		WalletAddress: walletAddress,
		MicroTokens:   microTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal disburse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/disburse", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create disburse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", claimID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("disburse request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read disburse response: %w", err)
	}

	var out disburseResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode disburse response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrDisbursementRejected, out.Error)
		}
		return "", fmt.Errorf("%w: status %d", ErrDisbursementRejected, resp.StatusCode)
	}
	if out.TxHash == "" {
		return "", fmt.Errorf("%w: missing tx hash", ErrDisbursementRejected)
	}

	return out.TxHash, nil
}
