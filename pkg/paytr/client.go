package paytr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtarikucar/kds-sub004/pkg/config"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
)

const (
	defaultBaseURL              = "https://www.paytr.com"
	tokenPath                   = "odeme/api/get-token"
	linkPath                    = "odeme/guvenli"
	gatewayCurrency             = "TL"
	defaultTimeoutLimitMinutes  = 30
	responseBodyReadLimit int64 = 1024
)

var errCredentialsRequired = errors.New("paytr merchant credentials are required")

// Client creates hosted payment links through PayTR's token API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	merchantID     string
	merchantKey    string
	merchantSalt   string
	testMode       bool
	maxInstallment int
	successURL     string
	failURL        string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured gateway base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the PayTR client from merchant configuration.
func NewClient(cfg config.PayTRConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.MerchantID) == "" || cfg.MerchantKey == "" || cfg.MerchantSalt == "" {
		return nil, errCredentialsRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        defaultBaseURL,
		merchantID:     strings.TrimSpace(cfg.MerchantID),
		merchantKey:    cfg.MerchantKey,
		merchantSalt:   cfg.MerchantSalt,
		testMode:       cfg.TestMode,
		maxInstallment: cfg.MaxInstallment,
		successURL:     cfg.SuccessURL,
		failURL:        cfg.FailURL,
	}
	if trimmed := strings.TrimSpace(cfg.BaseURL); trimmed != "" {
		client.baseURL = trimmed
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// VerifyCallback checks a callback against this merchant's key and salt.
func (c *Client) VerifyCallback(cb Callback) bool {
	if c == nil {
		return false
	}
	return VerifyCallback(c.merchantKey, c.merchantSalt, cb)
}

// LinkRequest describes a single-item hosted payment.
type LinkRequest struct {
	MerchantOID string
	Email       string
	Amount      decimal.Decimal
	Description string
	UserName    string
	UserPhone   string
	UserAddress string
	UserIP      string
}

// Link is a created hosted payment page.
type Link struct {
	URL   string
	Token string
}

// CreatePaymentLink requests an iframe token and returns the hosted payment URL.
func (c *Client) CreatePaymentLink(ctx context.Context, req LinkRequest) (*Link, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paytr client not configured")
	}
	if strings.TrimSpace(req.MerchantOID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant order id is required")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	form, err := c.tokenForm(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build paytr token request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(tokenPath), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build paytr token request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute paytr token request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "paytr token request failed")
	}

	var apiResp struct {
		Status string `json:"status"`
		Token  string `json:"token"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paytr token response")
	}
	if apiResp.Status != StatusSuccess || apiResp.Token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paytr token request rejected").
			WithDetails(map[string]any{"reason": apiResp.Reason})
	}

	return &Link{
		URL:   c.buildURL(linkPath + "/" + url.PathEscape(apiResp.Token)),
		Token: apiResp.Token,
	}, nil
}

func (c *Client) tokenForm(req LinkRequest) (url.Values, error) {
	amount := strconv.FormatInt(ToMinorUnits(req.Amount), 10)
	basket, err := json.Marshal([][]string{{req.Description, "1", amount}})
	if err != nil {
		return nil, err
	}
	basketB64 := base64.StdEncoding.EncodeToString(basket)

	userIP := strings.TrimSpace(req.UserIP)
	if userIP == "" {
		userIP = "127.0.0.1"
	}
	noInstallment := "0"
	if c.maxInstallment == 1 {
		noInstallment = "1"
	}
	maxInstallment := strconv.Itoa(c.maxInstallment)
	testMode := "0"
	if c.testMode {
		testMode = "1"
	}

	hashStr := c.merchantID + userIP + req.MerchantOID + req.Email + amount + basketB64 +
		noInstallment + maxInstallment + gatewayCurrency + testMode + c.merchantSalt

	form := url.Values{}
	form.Set("merchant_id", c.merchantID)
	form.Set("user_ip", userIP)
	form.Set("merchant_oid", req.MerchantOID)
	form.Set("email", req.Email)
	form.Set("payment_amount", amount)
	form.Set("paytr_token", Sign(c.merchantKey, hashStr))
	form.Set("user_name", req.UserName)
	form.Set("user_address", req.UserAddress)
	form.Set("user_phone", req.UserPhone)
	form.Set("user_basket", basketB64)
	form.Set("debug_on", testMode)
	form.Set("test_mode", testMode)
	form.Set("no_installment", noInstallment)
	form.Set("max_installment", maxInstallment)
	form.Set("currency", gatewayCurrency)
	form.Set("lang", "tr")
	form.Set("merchant_ok_url", c.successURL)
	form.Set("merchant_fail_url", c.failURL)
	form.Set("timeout_limit", strconv.Itoa(defaultTimeoutLimitMinutes))
	return form, nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
