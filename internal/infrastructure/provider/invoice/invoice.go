package invoice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/membergate/membership-service/internal/config"
	"github.com/membergate/membership-service/internal/domain/provider"
)

// Provider sends native platform invoices directly to the user. It is the
// fallback rail when card-link creation is unavailable. Invoices carry no
// local expiry; the platform owns their lifecycle.
type Provider struct {
	baseURL  string
	apiToken string
	client   *http.Client
	logger   *zap.Logger
}

// NewProvider creates a native-invoice provider client.
func NewProvider(cfg config.InvoiceConfig, logger *zap.Logger) *Provider {
	return &Provider{
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// GetProviderName returns the provider name
func (p *Provider) GetProviderName() string {
	return "stars"
}

type sendInvoiceResponse struct {
	InvoiceID string `json:"invoice_id"`
	Payload   string `json:"payload"`
	Status    string `json:"status"`
}

// CreateSession sends a native invoice to the user.
// POST /api/v1/invoices
func (p *Provider) CreateSession(ctx context.Context, req *provider.CreateSessionRequest) (*provider.CreateSessionResponse, error) {
	body := map[string]interface{}{
		"user_id":  req.UserID,
		"title":    req.PlanName,
		"amount":   req.AmountCents,
		"currency": req.Currency,
		"payload":  req.Reference,
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

	p.logger.Info("InvoiceProvider: Sending invoice",
		zap.Int64("user_id", req.UserID),
		zap.String("reference", req.Reference))

	url := fmt.Sprintf("%s/api/v1/invoices", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, &provider.ProviderError{
			Code:    "REQUEST_ERROR",
			Message: "Failed to create request",
			Details: err.Error(),
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.logger.Error("InvoiceProvider: Invoice request failed", zap.Error(err))
		return nil, &provider.ProviderError{
			Code:      "API_ERROR",
			Message:   "Invoice API request failed",
			Details:   err.Error(),
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.ProviderError{
			Code:    "RESPONSE_ERROR",
			Message: "Failed to read response",
			Details: err.Error(),
		}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errResp map[string]interface{}
		json.Unmarshal(respBody, &errResp)

		p.logger.Error("InvoiceProvider: Invoice creation failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(respBody)))

		code, _ := errResp["code"].(string)
		message, _ := errResp["message"].(string)
		if code == "" {
			code = "API_ERROR"
		}
		if message == "" {
			message = fmt.Sprintf("Invoice API returned status %d", resp.StatusCode)
		}

		return nil, &provider.ProviderError{
			Code:      code,
			Message:   message,
			Details:   string(respBody),
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	var result sendInvoiceResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &provider.ProviderError{
			Code:    "PARSE_ERROR",
			Message: "Failed to parse response",
			Details: err.Error(),
		}
	}

	p.logger.Info("InvoiceProvider: Invoice sent",
		zap.String("invoice_id", result.InvoiceID),
		zap.Int64("user_id", req.UserID))

	return &provider.CreateSessionResponse{
		ProviderSessionID: result.InvoiceID,
		InvoicePayload:    result.Payload,
		Status:            result.Status,
	}, nil
}

// CancelSession is a no-op: the platform owns invoice lifecycle and offers
// no revocation endpoint.
func (p *Provider) CancelSession(_ context.Context, providerSessionID string) error {
	p.logger.Debug("InvoiceProvider: Cancel requested, invoices are not revocable",
		zap.String("invoice_id", providerSessionID))
	return nil
}
