package vnpay

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(Config{
		TmnCode:    "VIETSHOP",
		HashSecret: "test-secret",
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "https://shop.example.com/payment/vnpay/return",
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func testRequest() PaymentRequest {
	return PaymentRequest{
		TrackingNumber: "VS-20250615-A1B2C3",
		Amount:         decimal.NewFromInt(470_000),
		OrderInfo:      "VietShop order VS-20250615-A1B2C3",
		ClientIP:       "203.0.113.7",
		CreatedAt:      time.Date(2025, 6, 15, 10, 30, 0, 0, time.FixedZone("ICT", 7*3600)),
	}
}

func TestBuildPaymentURL(t *testing.T) {
	t.Parallel()

	client := testClient(t)
	raw, err := client.BuildPaymentURL(testRequest())
	if err != nil {
		t.Fatalf("BuildPaymentURL() error = %v", err)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse built URL: %v", err)
	}
	query := parsed.Query()

	tests := []struct {
		param string
		want  string
	}{
		{param: "vnp_Version", want: "2.1.0"},
		{param: "vnp_Command", want: "pay"},
		{param: "vnp_CurrCode", want: "VND"},
		{param: "vnp_Locale", want: "vn"},
		{param: "vnp_Amount", want: "47000000"},
		{param: "vnp_TxnRef", want: "VS-20250615-A1B2C3"},
		{param: "vnp_CreateDate", want: "20250615103000"},
		{param: "vnp_ExpireDate", want: "20250615104500"},
	}
	for _, tc := range tests {
		if got := query.Get(tc.param); got != tc.want {
			t.Fatalf("%s = %q, want %q", tc.param, got, tc.want)
		}
	}
	if query.Get(hashParam) == "" {
		t.Fatalf("built URL has no %s", hashParam)
	}
}

func TestBuildPaymentURLRejectsFractionalMinorUnits(t *testing.T) {
	t.Parallel()

	req := testRequest()
	req.Amount = decimal.RequireFromString("100.005")
	if _, err := testClient(t).BuildPaymentURL(req); err == nil {
		t.Fatalf("BuildPaymentURL() accepted sub-minor-unit amount")
	}
}

func TestSignatureDeterminism(t *testing.T) {
	t.Parallel()

	client := testClient(t)
	first, err := client.BuildPaymentURL(testRequest())
	if err != nil {
		t.Fatalf("BuildPaymentURL() error = %v", err)
	}
	second, err := client.BuildPaymentURL(testRequest())
	if err != nil {
		t.Fatalf("BuildPaymentURL() error = %v", err)
	}
	if first != second {
		t.Fatalf("same request signed twice produced different URLs")
	}
}

func TestSignatureSensitivity(t *testing.T) {
	t.Parallel()

	client := testClient(t)
	base, err := client.BuildPaymentURL(testRequest())
	if err != nil {
		t.Fatalf("BuildPaymentURL() error = %v", err)
	}

	changed := testRequest()
	changed.Amount = decimal.NewFromInt(470_001)
	other, err := client.BuildPaymentURL(changed)
	if err != nil {
		t.Fatalf("BuildPaymentURL() error = %v", err)
	}

	baseHash := url.Values{}
	otherHash := url.Values{}
	if u, err := url.Parse(base); err == nil {
		baseHash = u.Query()
	}
	if u, err := url.Parse(other); err == nil {
		otherHash = u.Query()
	}
	if baseHash.Get(hashParam) == otherHash.Get(hashParam) {
		t.Fatalf("changing a parameter did not change the signature")
	}
}

func TestVerifyCallbackRoundTrip(t *testing.T) {
	t.Parallel()

	client := testClient(t)
	raw, err := client.BuildPaymentURL(testRequest())
	if err != nil {
		t.Fatalf("BuildPaymentURL() error = %v", err)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse built URL: %v", err)
	}

	// A successful callback echoes the signed parameter family back, plus the
	// response code. Re-sign the callback set the way the gateway would.
	values := parsed.Query()
	values.Del(hashParam)
	values.Set("vnp_ResponseCode", "00")
	values.Set("vnp_TransactionNo", "14587401")
	values.Set("vnp_BankCode", "NCB")
	params := map[string]string{}
	for key := range values {
		if strings.HasPrefix(key, paramPrefix) {
			params[key] = values.Get(key)
		}
	}
	values.Set(hashParam, client.sign(canonicalQuery(params)))

	result, err := client.VerifyCallback(values)
	if err != nil {
		t.Fatalf("VerifyCallback() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("VerifyCallback() success = false for code 00")
	}
	if result.TrackingNumber != "VS-20250615-A1B2C3" {
		t.Fatalf("TrackingNumber = %q", result.TrackingNumber)
	}
	if !result.Amount.Equal(decimal.NewFromInt(470_000)) {
		t.Fatalf("Amount = %s, want 470000", result.Amount)
	}
}

func TestVerifyCallbackFailsClosed(t *testing.T) {
	t.Parallel()

	client := testClient(t)

	values := url.Values{}
	values.Set("vnp_TxnRef", "VS-20250615-A1B2C3")
	values.Set("vnp_ResponseCode", "00")
	values.Set("vnp_Amount", "47000000")
	values.Set(hashParam, "deadbeef")

	if _, err := client.VerifyCallback(values); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("VerifyCallback() error = %v, want ErrSignatureInvalid", err)
	}

	values.Del(hashParam)
	if _, err := client.VerifyCallback(values); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("VerifyCallback() with no hash error = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyCallbackIgnoresForeignParams(t *testing.T) {
	t.Parallel()

	client := testClient(t)
	params := map[string]string{
		"vnp_TxnRef":       "VS-1",
		"vnp_ResponseCode": "00",
		"vnp_Amount":       "100000",
	}

	values := url.Values{}
	for key, value := range params {
		values.Set(key, value)
	}
	values.Set(hashParam, client.sign(canonicalQuery(params)))
	// Parameters outside the gateway namespace must not affect verification.
	values.Set("utm_source", "email")
	values.Set("fbclid", "abc123")

	if _, err := client.VerifyCallback(values); err != nil {
		t.Fatalf("VerifyCallback() error = %v, want nil", err)
	}
}

func TestVerifyCallbackMapsFailureCodes(t *testing.T) {
	t.Parallel()

	client := testClient(t)
	params := map[string]string{
		"vnp_TxnRef":       "VS-1",
		"vnp_ResponseCode": "24",
		"vnp_Amount":       "100000",
	}
	values := url.Values{}
	for key, value := range params {
		values.Set(key, value)
	}
	values.Set(hashParam, client.sign(canonicalQuery(params)))

	result, err := client.VerifyCallback(values)
	if err != nil {
		t.Fatalf("VerifyCallback() error = %v", err)
	}
	if result.Success {
		t.Fatalf("code 24 reported as success")
	}
	if result.FailureReason != "customer cancelled" {
		t.Fatalf("FailureReason = %q, want %q", result.FailureReason, "customer cancelled")
	}
}

func TestFailureReasonUnknownCode(t *testing.T) {
	t.Parallel()

	if got := FailureReason("42"); got != "unknown error" {
		t.Fatalf("FailureReason(42) = %q", got)
	}
}

func TestCanonicalQueryIsSorted(t *testing.T) {
	t.Parallel()

	got := canonicalQuery(map[string]string{
		"vnp_TxnRef":  "a b",
		"vnp_Amount":  "100",
		"vnp_Command": "pay",
	})
	want := "vnp_Amount=100&vnp_Command=pay&vnp_TxnRef=a+b"
	if got != want {
		t.Fatalf("canonicalQuery() = %q, want %q", got, want)
	}
}
