package clientserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	syncTypes "github.com/victorvcruz/clipsync/internal/sync"
)

const (
	DefaultSendTimeout = 3 * time.Second
	MaxSendRetries     = 5

	baseBackoff = 250 * time.Millisecond
)

// TransportError reports a failed delivery to the peer. StatusCode is zero
// when no response was received.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("send to %s: peer returned status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("send to %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Temporary reports whether a retry could succeed: connection failures and
// 5xx responses are retried, other statuses are not.
func (e *TransportError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
}

type ClientOptions struct {
	Timeout time.Duration
	Retries int
	Logger  *slog.Logger
	Stats   *syncTypes.Stats
}

// Client delivers payloads to the peer's /clipboard endpoint.
type Client struct {
	url        string
	retries    int
	httpClient *http.Client
	logger     *slog.Logger
	stats      *syncTypes.Stats
}

func NewClient(targetIP string, targetPort uint16, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultSendTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Retries > MaxSendRetries {
		opts.Retries = MaxSendRetries
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Stats == nil {
		opts.Stats = syncTypes.NewStats()
	}

	hostPort := net.JoinHostPort(targetIP, strconv.Itoa(int(targetPort)))
	return &Client{
		url:     "http://" + hostPort + syncTypes.ClipboardPath,
		retries: opts.Retries,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		logger: opts.Logger,
		stats:  opts.Stats,
	}
}

func (sc *Client) URL() string {
	return sc.url
}

// SendClipboard posts one payload. With no retries configured this is a
// single attempt; otherwise temporary failures are retried with exponential
// backoff until the retries are spent or ctx is done.
func (sc *Client) SendClipboard(ctx context.Context, payload string) error {
	body, err := json.Marshal(syncTypes.ClipboardRequest{Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal clipboard request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= sc.retries; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff << (attempt - 1)
			sc.logger.Warn("retrying clipboard send",
				"url", sc.url,
				"attempt", attempt+1,
				"backoff", backoff,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				sc.stats.IncSendFailure()
				return &TransportError{URL: sc.url, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		lastErr = sc.post(ctx, body)
		if lastErr == nil {
			sc.stats.IncSent()
			return nil
		}

		var transportErr *TransportError
		if !errors.As(lastErr, &transportErr) || !transportErr.Temporary() || ctx.Err() != nil {
			break
		}
	}

	sc.stats.IncSendFailure()
	return lastErr
}

func (sc *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.url, bytes.NewReader(body))
	if err != nil {
		return &TransportError{URL: sc.url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return &TransportError{URL: sc.url, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes)) //nolint:errcheck
		return nil
	}

	var errResp syncTypes.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if json.Unmarshal(data, &errResp) != nil || errResp.Error == "" {
		errResp.Error = http.StatusText(resp.StatusCode)
	}
	return &TransportError{
		URL:        sc.url,
		StatusCode: resp.StatusCode,
		Err:        errors.New(errResp.Error),
	}
}
