package cardlink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/membergate/membership-service/internal/config"
	"github.com/membergate/membership-service/internal/domain/provider"
)

const (
	// Tokens are refreshed this long before their reported expiry.
	tokenRefreshMargin = 5 * time.Minute

	defaultLinkLifetime = 24 * time.Hour
)

// Provider talks to the hosted card-link payment API. It authenticates with
// client credentials, caches the bearer token, and re-authenticates once on 401.
type Provider struct {
	baseURL  string
	clientID string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewProvider creates a card-link provider client.
func NewProvider(cfg config.CardLinkConfig, logger *zap.Logger) *Provider {
	return &Provider{
		baseURL:  cfg.BaseURL,
		clientID: cfg.ClientID,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// GetProviderName returns the provider name
func (p *Provider) GetProviderName() string {
	return "card"
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// authenticate obtains a bearer token using the client credentials.
// POST /api/v1/auth/login
func (p *Provider) authenticate(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.tokenExpiry.Add(-tokenRefreshMargin)) {
		return p.token, nil
	}

	url := fmt.Sprintf("%s/api/v1/auth/login", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return "", &provider.ProviderError{
			Code:    "REQUEST_ERROR",
			Message: "Failed to create auth request",
			Details: err.Error(),
		}
	}
	httpReq.Header.Set("x-client-id", p.clientID)
	httpReq.Header.Set("x-api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.logger.Error("CardLinkProvider: Auth request failed", zap.Error(err))
		return "", &provider.ProviderError{
			Code:      "API_ERROR",
			Message:   "Card-link auth request failed",
			Details:   err.Error(),
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &provider.ProviderError{
			Code:    "RESPONSE_ERROR",
			Message: "Failed to read auth response",
			Details: err.Error(),
		}
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.Error("CardLinkProvider: Auth failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(respBody)))
		return "", apiError(resp.StatusCode, respBody)
	}

	var auth authResponse
	if err := json.Unmarshal(respBody, &auth); err != nil {
		return "", &provider.ProviderError{
			Code:    "PARSE_ERROR",
			Message: "Failed to parse auth response",
			Details: err.Error(),
		}
	}

	p.token = auth.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second)

	p.logger.Info("CardLinkProvider: Authenticated",
		zap.Time("token_expiry", p.tokenExpiry))

	return p.token, nil
}

// invalidateToken drops the cached token so the next call re-authenticates.
func (p *Provider) invalidateToken() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

// doAuthorized performs an authenticated request, re-authenticating once on 401.
func (p *Provider) doAuthorized(ctx context.Context, method, url string, body []byte) (*http.Response, []byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := p.authenticate(ctx)
		if err != nil {
			return nil, nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewBuffer(body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, nil, &provider.ProviderError{
				Code:    "REQUEST_ERROR",
				Message: "Failed to create request",
				Details: err.Error(),
			}
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			p.logger.Error("CardLinkProvider: Request failed",
				zap.String("url", url),
				zap.Error(err))
			return nil, nil, &provider.ProviderError{
				Code:      "API_ERROR",
				Message:   "Card-link API request failed",
				Details:   err.Error(),
				Retryable: true,
			}
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, nil, &provider.ProviderError{
				Code:    "RESPONSE_ERROR",
				Message: "Failed to read response",
				Details: err.Error(),
			}
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			p.logger.Warn("CardLinkProvider: Token rejected, re-authenticating")
			p.invalidateToken()
			continue
		}

		return resp, respBody, nil
	}

	// Unreachable: the loop always returns.
	return nil, nil, &provider.ProviderError{
		Code:    "API_ERROR",
		Message: "Card-link API request failed",
	}
}

type createLinkResponse struct {
	LinkID     string `json:"link_id"`
	PaymentURL string `json:"payment_url"`
	Status     string `json:"status"`
	ExpiresAt  string `json:"expires_at"`
}

// CreateSession creates a hosted payment link carrying the reconciliation
// reference in its metadata.
// POST /api/v1/payment-links
func (p *Provider) CreateSession(ctx context.Context, req *provider.CreateSessionRequest) (*provider.CreateSessionResponse, error) {
	lifetime := req.ExpiresIn
	if lifetime <= 0 {
		lifetime = defaultLinkLifetime
	}
	expiresAt := time.Now().UTC().Add(lifetime)

	body := map[string]interface{}{
		"amount":      req.AmountCents,
		"currency":    req.Currency,
		"description": req.PlanName,
		"expires_at":  expiresAt.Format(time.RFC3339),
		"metadata": map[string]string{
			"reference": req.Reference,
			"user_id":   strconv.FormatInt(req.UserID, 10),
			"plan":      req.PlanID,
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, &provider.ProviderError{
			Code:    "MARSHAL_ERROR",
			Message: "Failed to prepare request",
			Details: err.Error(),
		}
	}

	p.logger.Info("CardLinkProvider: Creating payment link",
		zap.Int64("user_id", req.UserID),
		zap.String("reference", req.Reference),
		zap.Int64("amount_cents", req.AmountCents))

	url := fmt.Sprintf("%s/api/v1/payment-links", p.baseURL)
	resp, respBody, err := p.doAuthorized(ctx, "POST", url, jsonBody)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		p.logger.Error("CardLinkProvider: Payment link creation failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(respBody)))
		return nil, apiError(resp.StatusCode, respBody)
	}

	var result createLinkResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &provider.ProviderError{
			Code:    "PARSE_ERROR",
			Message: "Failed to parse response",
			Details: err.Error(),
		}
	}
	if result.LinkID == "" {
		result.LinkID = uuid.New().String()
	}

	out := &provider.CreateSessionResponse{
		ProviderSessionID: result.LinkID,
		PaymentURL:        result.PaymentURL,
		Status:            result.Status,
		ExpiresAt:         &expiresAt,
	}
	if parsed, err := time.Parse(time.RFC3339, result.ExpiresAt); err == nil {
		out.ExpiresAt = &parsed
	}

	p.logger.Info("CardLinkProvider: Payment link created",
		zap.String("link_id", result.LinkID),
		zap.String("reference", req.Reference))

	return out, nil
}

// GetLinkStatus fetches the provider-side status of a payment link.
// GET /api/v1/payment-links/{linkID}
func (p *Provider) GetLinkStatus(ctx context.Context, linkID string) (string, error) {
	url := fmt.Sprintf("%s/api/v1/payment-links/%s", p.baseURL, linkID)
	resp, respBody, err := p.doAuthorized(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp.StatusCode, respBody)
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &provider.ProviderError{
			Code:    "PARSE_ERROR",
			Message: "Failed to parse response",
			Details: err.Error(),
		}
	}
	return result.Status, nil
}

// CancelSession deactivates a payment link. A link already gone on the
// provider side counts as cancelled.
// DELETE /api/v1/payment-links/{linkID}
func (p *Provider) CancelSession(ctx context.Context, providerSessionID string) error {
	url := fmt.Sprintf("%s/api/v1/payment-links/%s", p.baseURL, providerSessionID)
	resp, respBody, err := p.doAuthorized(ctx, "DELETE", url, nil)
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		p.logger.Info("CardLinkProvider: Payment link cancelled",
			zap.String("link_id", providerSessionID))
		return nil
	default:
		p.logger.Error("CardLinkProvider: Payment link cancellation failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(respBody)))
		return apiError(resp.StatusCode, respBody)
	}
}

// apiError builds a ProviderError from a non-2xx API response. Rate limits
// and server-side failures are retryable; client errors are not.
func apiError(statusCode int, respBody []byte) *provider.ProviderError {
	var errResp map[string]interface{}
	json.Unmarshal(respBody, &errResp)

	code, _ := errResp["code"].(string)
	message, _ := errResp["message"].(string)
	if code == "" {
		code = "API_ERROR"
	}
	if message == "" {
		message = fmt.Sprintf("Card-link API returned status %d", statusCode)
	}

	return &provider.ProviderError{
		Code:      code,
		Message:   message,
		Details:   string(respBody),
		Retryable: statusCode == http.StatusTooManyRequests || statusCode >= 500,
	}
}
