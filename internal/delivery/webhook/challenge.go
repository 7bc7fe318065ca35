package webhook

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ChallengeType is the "type" of a URL verification request
const ChallengeType = "url_verification"

// ChallengeRequest is posted to an endpoint to prove it is reachable and
// under the operator's control. The endpoint must echo Challenge back.
type ChallengeRequest struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
}

type ChallengeResponse struct {
	Challenge string `json:"challenge"`
}

type ChallengeResult struct {
	URL          string
	Success      bool
	ErrorMessage string
	ResponseTime time.Duration
}

// Challenger runs the URL verification handshake against configured endpoints
type Challenger struct {
	client    *http.Client
	userAgent string
}

func NewChallenger(timeout time.Duration, userAgent string) *Challenger {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Challenger{
		client:    &http.Client{Timeout: timeout, Transport: newTransport(DefaultConnectTimeout)},
		userAgent: userAgent,
	}
}

// VerifyURL posts a fresh challenge to url and checks the echoed token
func (c *Challenger) VerifyURL(ctx context.Context, url, secret string) ChallengeResult {
	start := time.Now()
	fail := func(format string, args ...any) ChallengeResult {
		return ChallengeResult{
			URL:          url,
			ErrorMessage: fmt.Sprintf(format, args...),
			ResponseTime: time.Since(start),
		}
	}

	token, err := generateChallengeToken()
	if err != nil {
		return fail("failed to generate challenge token")
	}

	body, err := json.Marshal(ChallengeRequest{Type: ChallengeType, Challenge: token})
	if err != nil {
		return fail("failed to marshal challenge: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fail("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fail("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail("webhook returned status %d, expected 200", resp.StatusCode)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fail("failed to read response: %v", err)
	}

	var challengeResp ChallengeResponse
	if err := json.Unmarshal(respBody, &challengeResp); err != nil {
		return fail("invalid response format: %v", err)
	}
	if challengeResp.Challenge != token {
		return fail("challenge response does not match")
	}

	return ChallengeResult{
		URL:          url,
		Success:      true,
		ResponseTime: time.Since(start),
	}
}

func generateChallengeToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
