package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	apperrors "github.com/KimuSoft/twitch-point-timer/internal/platform/errors"
	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
)

const (
	apiTimeout      = 5 * time.Second
	apiRetryCount   = 2
	apiRetryBackoff = 200 * time.Millisecond
)

// ErrUnknownChannel is returned when the server does not recognise the channel key.
var ErrUnknownChannel = errors.New("unknown channel key")

// APIError is a non-2xx answer that maps to no sentinel.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server status %d: %s", e.StatusCode, e.Message)
}

// API calls the key-authenticated HTTP endpoints. Reads retry on 5xx;
// AddTime is not idempotent and never retries.
type API struct {
	baseURL string
	reads   heimdall.Doer
	writes  heimdall.Doer
}

func NewAPI(serverURL string) *API {
	backoff := heimdall.NewConstantBackoff(apiRetryBackoff, apiRetryBackoff/2)
	return &API{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		reads: httpclient.NewClient(
			httpclient.WithHTTPTimeout(apiTimeout),
			httpclient.WithRetryCount(apiRetryCount),
			httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
		),
		writes: httpclient.NewClient(httpclient.WithHTTPTimeout(apiTimeout)),
	}
}

// OverlaySource fetches the channel's current overlay source.
func (a *API) OverlaySource(ctx context.Context, channelKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/overlay/"+url.PathEscape(channelKey), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	var body struct {
		OverlayCode string `json:"overlayCode"`
	}
	if err := a.do(a.reads, req, &body); err != nil {
		return "", err
	}
	return body.OverlayCode, nil
}

type addTimeRequest struct {
	RewardID   string `json:"rewardId"`
	Seconds    int    `json:"seconds"`
	ChannelKey string `json:"channelKey"`
}

// AddTime extends rewardID by seconds on the channel behind channelKey.
func (a *API) AddTime(ctx context.Context, channelKey, rewardID string, seconds int) error {
	payload, err := json.Marshal(addTimeRequest{RewardID: rewardID, Seconds: seconds, ChannelKey: channelKey})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/addTime", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return a.do(a.writes, req, nil)
}

func (a *API) do(client heimdall.Doer, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	var errResp apperrors.ErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnknownChannel
	case resp.StatusCode == http.StatusNotFound && req.Method == http.MethodPost:
		return domain.ErrRewardNotFound
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrStreamerNotFound
	}
	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
