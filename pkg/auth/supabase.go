package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds one Supabase user lookup.
const DefaultTimeout = 10 * time.Second

// Supabase resolves access tokens through the Supabase Auth user endpoint.
type Supabase struct {
	// URL is the project URL, e.g. https://xyz.supabase.co.
	URL string
	// APIKey is the project anon or service key sent as the apikey header.
	APIKey string
	// HTTPClient defaults to a client with DefaultTimeout.
	HTTPClient *http.Client
}

// NewSupabase returns a Supabase resolver with the default HTTP client.
func NewSupabase(url, apiKey string) *Supabase {
	return &Supabase{
		URL:        strings.TrimRight(url, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Error is a non-2xx answer from Supabase other than 401 and 403.
type Error struct {
	HTTPStatus int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth: supabase: %s (http_status=%d)", e.Message, e.HTTPStatus)
}

type supabaseUser struct {
	ID string `json:"id"`
}

func (s *Supabase) Resolve(ctx context.Context, credential string) (string, error) {
	token := StripBearer(credential)
	if token == "" {
		return "", ErrNoCredential
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.URL, "/")+"/auth/v1/user", nil)
	if err != nil {
		return "", fmt.Errorf("auth: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", s.APIKey)

	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("auth: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		return "", &Error{HTTPStatus: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var user supabaseUser
	if err := json.Unmarshal(body, &user); err != nil {
		return "", fmt.Errorf("auth: unmarshal response: %w", err)
	}
	if user.ID == "" {
		return "", ErrInvalidToken
	}
	return user.ID, nil
}
