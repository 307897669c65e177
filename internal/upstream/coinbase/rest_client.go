package coinbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ob-sync/internal/dtos"
)

var errDecode = errors.New("decoding order book")

// HTTPError is a non-200 answer from the REST API.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d Error: %s", e.Code, e.Message)
}

// retryable reports whether asking again could succeed.
func (e *HTTPError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// RestClient loads level-3 order book snapshots.
type RestClient struct {
	baseURL string
	client  *http.Client
	retries int
	backoff time.Duration
}

func NewRestClient(baseURL string, timeout time.Duration, retries int, backoff time.Duration) *RestClient {
	return &RestClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		retries: retries,
		backoff: backoff,
	}
}

// FetchSnapshot gets the full book of a product, retrying transport failures and
// server errors with exponential backoff.
func (c *RestClient) FetchSnapshot(ctx context.Context, currPair string) (*dtos.Snapshot, error) {
	delay := c.backoff

	for attempt := 0; ; attempt++ {
		snapshot, err := c.getSnapshot(ctx, currPair)
		if err == nil {
			return snapshot, nil
		}

		if attempt >= c.retries || !shouldRetry(ctx, err) {
			return nil, err
		}

		slog.Warn("Retrying snapshot request", "curr pair", currPair, "attempt", attempt+1, "delay", delay, "Error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
	}
}

func (c *RestClient) getSnapshot(ctx context.Context, currPair string) (*dtos.Snapshot, error) {
	endpoint := c.baseURL + fmt.Sprintf(bookPath, url.PathEscape(currPair))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		slog.Error("Error on Creating New GET Request", "curr pair", currPair, "Error", err)

		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	slog.Info("Sending Rest Request to get order book", "curr pair", currPair)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Error on Closing Response", "curr pair", currPair, "Error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Code: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	var snapshot dtos.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("%w: %w", errDecode, err)
	}

	return &snapshot, nil
}

// errorMessage extracts {"message": ...} from an error body, falling back to the raw text.
func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return err.Error()
	}

	var payload struct {
		Message string `json:"message"`
	}

	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		return payload.Message
	}

	return strings.TrimSpace(string(data))
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.retryable()
	}

	return !errors.Is(err, errDecode)
}
