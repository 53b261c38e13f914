// Package vnpay builds signed VNPay redirect URLs and verifies return
// callbacks. All gateway-specific encoding and HMAC rules live here.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	version   = "2.1.0"
	command   = "pay"
	currency  = "VND"
	locale    = "vn"
	orderType = "other"

	paramPrefix   = "vnp_"
	hashParam     = "vnp_SecureHash"
	hashTypeParam = "vnp_SecureHashType"
	timeLayout    = "20060102150405"
	expiryWindow  = 15 * time.Minute
	CodeSuccess   = "00"
)

// ErrSignatureInvalid is returned when a callback's secure hash does not match
// the recomputed signature. Callbacks failing this check must be discarded.
var ErrSignatureInvalid = errors.New("gateway signature invalid")

type Config struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

type Client struct {
	tmnCode   string
	secret    []byte
	payURL    string
	returnURL string
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.TmnCode == "" {
		return nil, fmt.Errorf("vnpay merchant code is required")
	}
	if cfg.HashSecret == "" {
		return nil, fmt.Errorf("vnpay hash secret is required")
	}
	if cfg.PayURL == "" {
		return nil, fmt.Errorf("vnpay pay URL is required")
	}
	return &Client{
		tmnCode:   cfg.TmnCode,
		secret:    []byte(cfg.HashSecret),
		payURL:    cfg.PayURL,
		returnURL: cfg.ReturnURL,
	}, nil
}

// PaymentRequest carries everything the redirect needs. CreatedAt and ClientIP
// are explicit so URL construction is deterministic and testable.
type PaymentRequest struct {
	TrackingNumber string
	Amount         decimal.Decimal
	OrderInfo      string
	ClientIP       string
	CreatedAt      time.Time
}

// BuildPaymentURL constructs the signed GET redirect for one pending order.
// The checkout link expires a fixed fifteen minutes after creation.
func (c *Client) BuildPaymentURL(req PaymentRequest) (string, error) {
	if req.TrackingNumber == "" {
		return "", fmt.Errorf("tracking number is required")
	}
	minor, err := minorUnits(req.Amount)
	if err != nil {
		return "", err
	}

	params := map[string]string{
		"vnp_Version":    version,
		"vnp_Command":    command,
		"vnp_TmnCode":    c.tmnCode,
		"vnp_Amount":     minor,
		"vnp_CurrCode":   currency,
		"vnp_TxnRef":     req.TrackingNumber,
		"vnp_OrderInfo":  req.OrderInfo,
		"vnp_OrderType":  orderType,
		"vnp_Locale":     locale,
		"vnp_ReturnUrl":  c.returnURL,
		"vnp_IpAddr":     req.ClientIP,
		"vnp_CreateDate": req.CreatedAt.Format(timeLayout),
		"vnp_ExpireDate": req.CreatedAt.Add(expiryWindow).Format(timeLayout),
	}

	query := canonicalQuery(params)
	signature := c.sign(query)

	return c.payURL + "?" + query + "&" + hashParam + "=" + signature, nil
}

type CallbackResult struct {
	TrackingNumber string
	ResponseCode   string
	Amount         decimal.Decimal
	BankCode       string
	GatewayTxnNo   string
	Success        bool
	FailureReason  string
}

// VerifyCallback recomputes the signature over the gateway-namespaced
// parameters and fails closed on any mismatch. Verification alone does not
// mark an order paid; the caller still has to match the transaction reference
// against exactly one pending order.
func (c *Client) VerifyCallback(values url.Values) (*CallbackResult, error) {
	supplied := strings.ToLower(strings.TrimSpace(values.Get(hashParam)))
	if supplied == "" {
		return nil, ErrSignatureInvalid
	}

	params := make(map[string]string)
	for key := range values {
		if !strings.HasPrefix(key, paramPrefix) {
			continue
		}
		if key == hashParam || key == hashTypeParam {
			continue
		}
		params[key] = values.Get(key)
	}

	expected := c.sign(canonicalQuery(params))
	if !hmac.Equal([]byte(expected), []byte(supplied)) {
		return nil, ErrSignatureInvalid
	}

	amount, err := amountFromMinor(values.Get("vnp_Amount"))
	if err != nil {
		return nil, fmt.Errorf("invalid callback amount: %w", err)
	}

	code := values.Get("vnp_ResponseCode")
	result := &CallbackResult{
		TrackingNumber: values.Get("vnp_TxnRef"),
		ResponseCode:   code,
		Amount:         amount,
		BankCode:       values.Get("vnp_BankCode"),
		GatewayTxnNo:   values.Get("vnp_TransactionNo"),
		Success:        code == CodeSuccess,
	}
	if !result.Success {
		result.FailureReason = FailureReason(code)
	}
	return result, nil
}

// canonicalQuery percent-encodes and concatenates parameters in byte order of
// their keys. Signing is order-sensitive; this is the only ordering ever
// signed over.
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[key]))
	}
	return b.String()
}

func (c *Client) sign(query string) string {
	mac := hmac.New(sha512.New, c.secret)
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// minorUnits converts a currency amount to the gateway's integer minor unit
// (amount x 100, no fractional part).
func minorUnits(amount decimal.Decimal) (string, error) {
	if amount.IsNegative() {
		return "", fmt.Errorf("amount must not be negative")
	}
	minor := amount.Mul(decimal.NewFromInt(100))
	if !minor.IsInteger() {
		return "", fmt.Errorf("amount %s has sub-minor-unit precision", amount)
	}
	return minor.String(), nil
}

func amountFromMinor(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	minor, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return minor.Div(decimal.NewFromInt(100)), nil
}
