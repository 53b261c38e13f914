package vnpay

// Gateway response codes, per the VNPay integration reference. Anything not
// listed maps to a generic unknown error.
var failureReasons = map[string]string{
	"01": "order not found",
	"02": "order already confirmed",
	"04": "invalid amount",
	"05": "refund in progress",
	"06": "refund request sent to issuing bank",
	"07": "transaction flagged as suspicious",
	"09": "card or account not registered for online banking",
	"10": "authentication failed more than three times",
	"11": "payment window expired",
	"12": "card or account locked",
	"13": "wrong one-time password",
	"24": "customer cancelled",
	"51": "insufficient funds",
	"65": "daily transaction limit exceeded",
	"75": "issuing bank under maintenance",
	"79": "wrong payment password entered too many times",
	"91": "issuing bank did not respond",
	"94": "duplicate transaction",
	"97": "invalid checksum",
}

// FailureReason maps a non-success response code to a human-readable reason.
func FailureReason(code string) string {
	if reason, ok := failureReasons[code]; ok {
		return reason
	}
	return "unknown error"
}
