package sync

// ClipboardPath is the single inbound endpoint on every peer.
const ClipboardPath = "/clipboard"

// HealthPath reports liveness and delivery counters.
const HealthPath = "/health"

// MaxRequestBytes caps the POST /clipboard body a peer accepts.
const MaxRequestBytes = 1 << 20

// requestOverhead is the JSON framing around the payload: {"data":""}.
const requestOverhead = len(`{"data":""}`)

// RequestSize returns the encoded body length for payload. Transport
// payloads are base64, which JSON carries without escaping.
func RequestSize(payload string) int {
	return len(payload) + requestOverhead
}

// ClipboardRequest is the body of POST /clipboard. Data is the codec's
// transport encoding of the clipboard text.
type ClipboardRequest struct {
	Data string `json:"data"`
}

// ClipboardResponse is returned on success.
type ClipboardResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for every rejected request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error codes distinguishing why a request was rejected.
const (
	CodeMissingData          = "missing_data"
	CodeDecryptFailed        = "decrypt_failed"
	CodeClipboardWriteFailed = "clipboard_write_failed"
	CodeMethodNotAllowed     = "method_not_allowed"
	CodePayloadTooLarge      = "payload_too_large"
)

const StatusSuccess = "success"

// MissingDataMessage keeps the wording peers already match on.
const MissingDataMessage = "Missing 'data' field"

type HealthResponse struct {
	Status       string `json:"status"`
	Sent         int64  `json:"sent"`
	SendFailures int64  `json:"send_failures"`
	Received     int64  `json:"received"`
	Rejected     int64  `json:"rejected"`
}
