package sigstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

// ErrNoAmbientToken indicates that no CI identity provider was detected.
var ErrNoAmbientToken = errors.New("no ambient OIDC credentials found (not running in GitHub Actions?)")

// Environment variables GitHub Actions sets when id-token permission is granted.
const (
	githubTokenURLEnv   = "ACTIONS_ID_TOKEN_REQUEST_URL"
	githubTokenValueEnv = "ACTIONS_ID_TOKEN_REQUEST_TOKEN"
	sigstoreAudience    = "sigstore"
)

// AmbientToken fetches an OIDC token for the sigstore audience from the CI
// environment. Only GitHub Actions is supported.
func AmbientToken(ctx context.Context) (string, error) {
	requestURL := os.Getenv(githubTokenURLEnv)
	requestToken := os.Getenv(githubTokenValueEnv)
	if requestURL == "" || requestToken == "" {
		return "", ErrNoAmbientToken
	}
	return fetchGitHubToken(ctx, http.DefaultClient, requestURL, requestToken)
}

func fetchGitHubToken(ctx context.Context, client *http.Client, requestURL, requestToken string) (string, error) {
	u, err := url.Parse(requestURL)
	if err != nil {
		return "", fmt.Errorf("parse token request URL: %w", err)
	}
	q := u.Query()
	q.Set("audience", sigstoreAudience)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+requestToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("GitHub Actions OIDC request failed with status %d: %s", resp.StatusCode, body)
	}

	var tokenResp struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.Value == "" {
		return "", errors.New("empty token returned from GitHub Actions")
	}
	return tokenResp.Value, nil
}
