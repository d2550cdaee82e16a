// Package gateway wraps the PesaPal v3 REST API used for mobile-money
// checkout: token issuance, IPN registration and order submission.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tunevault/tunevault/internal/config"
	"github.com/tunevault/tunevault/internal/payment/domain"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured = errors.New("gateway_not_configured")
	ErrNoToken       = errors.New("gateway_token_missing")
)

// Gateway submits checkout orders. Implemented by the PesaPal client and
// stubbed in tests.
type Gateway interface {
	SubmitOrder(ctx context.Context, order Order) (*OrderResponse, error)
}

type Order struct {
	ID             string       `json:"id"`
	Currency       string       `json:"currency"`
	Amount         int64        `json:"amount"`
	Description    string       `json:"description"`
	CallbackURL    string       `json:"callback_url"`
	NotificationID string       `json:"notification_id,omitempty"`
	PaymentOption  string       `json:"preferred_payment_option,omitempty"`
	Billing        BillingParty `json:"billing_address"`
}

type BillingParty struct {
	Email       string `json:"email_address"`
	PhoneNumber string `json:"phone_number"`
	CountryCode string `json:"country_code"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
}

type OrderResponse struct {
	OrderTrackingID   string `json:"order_tracking_id"`
	MerchantReference string `json:"merchant_reference"`
	RedirectURL       string `json:"redirect_url"`
	Status            string `json:"status"`
	Error             any    `json:"error,omitempty"`
}

type tokenResponse struct {
	Token      string `json:"token"`
	ExpiryDate string `json:"expiryDate"`
}

type ipnRegistration struct {
	URL              string `json:"url"`
	NotificationType string `json:"ipn_notification_type"`
}

type ipnResponse struct {
	IPNID string `json:"ipn_id"`
}

type Client struct {
	cfg    config.GatewayConfig
	log    *zap.Logger
	client *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
	ipnID    string
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	timeout := time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg.Gateway,
		log:    log.Named("payment.gateway"),
		client: &http.Client{Timeout: timeout},
	}
}

// SubmitOrder authenticates, ensures an IPN registration and submits the
// checkout order. An order without a redirect URL counts as rejected.
func (c *Client) SubmitOrder(ctx context.Context, order Order) (*OrderResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	if order.NotificationID == "" {
		if ipnID := c.registerIPN(ctx, token); ipnID != "" {
			order.NotificationID = ipnID
		}
	}

	var resp OrderResponse
	if err := c.post(ctx, "/api/Transactions/SubmitOrderRequest", token, order, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.RedirectURL) == "" {
		c.log.Warn("order rejected by gateway",
			zap.String("merchant_reference", order.ID),
			zap.Any("error", resp.Error),
		)
		return &resp, domain.ErrGatewayRejected
	}
	return &resp, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.cfg.ConsumerKey == "" || c.cfg.ConsumerSecret == "" {
		return "", ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	var resp tokenResponse
	err := c.post(ctx, "/api/Auth/RequestToken", "", map[string]string{
		"consumer_key":    c.cfg.ConsumerKey,
		"consumer_secret": c.cfg.ConsumerSecret,
	}, &resp)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Token) == "" {
		return "", ErrNoToken
	}

	c.token = resp.Token
	c.tokenExp = time.Now().Add(4 * time.Minute)
	if exp, err := time.Parse(time.RFC3339, resp.ExpiryDate); err == nil {
		c.tokenExp = exp.Add(-30 * time.Second)
	}
	return c.token, nil
}

// registerIPN is best effort. PesaPal accepts orders without a notification id
// and falls back to the callback redirect.
func (c *Client) registerIPN(ctx context.Context, token string) string {
	c.mu.Lock()
	cached := c.ipnID
	c.mu.Unlock()
	if cached != "" {
		return cached
	}
	if c.cfg.IPNURL == "" {
		return ""
	}

	var resp ipnResponse
	err := c.post(ctx, "/api/URLSetup/RegisterIPN", token, ipnRegistration{
		URL:              c.cfg.IPNURL,
		NotificationType: "GET",
	}, &resp)
	if err != nil {
		c.log.Warn("ipn registration failed", zap.Error(err))
		return ""
	}

	c.mu.Lock()
	c.ipnID = resp.IPNID
	c.mu.Unlock()
	return resp.IPNID
}

func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("gateway_request_failed_status_%d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// MapStatusCode normalizes a gateway status code to a terminal payment status.
// Unknown codes settle as failed so a stuck pending record never survives a
// callback; the raw code is kept by the caller for the failure reason.
func MapStatusCode(code string) (domain.Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "COMPLETED":
		return domain.StatusCompleted, true
	case "FAILED", "INVALID":
		return domain.StatusFailed, true
	case "REVERSED":
		return domain.StatusRefunded, true
	default:
		return domain.StatusFailed, false
	}
}
