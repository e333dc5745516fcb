package schedgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"remindflow/internal/domain"
	"remindflow/internal/retry"
)

// Gateway is the contract over the external delayed-job service.
type Gateway interface {
	// Schedule submits a job to run at fireAt and returns its handle.
	Schedule(ctx context.Context, payload domain.JobPayload, fireAt time.Time) (string, error)
	// Cancel stops a scheduled job. A false result means the job could not
	// be stopped (already fired or unknown), which is a normal outcome.
	Cancel(ctx context.Context, handle string) (bool, error)
}

type HTTPGateway struct {
	base        string
	apiKey      string
	callbackURL string
	client      *http.Client
	timeout     time.Duration
	attempts    int
}

func NewHTTPGateway(baseURL, apiKey, callbackURL string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPGateway{
		base:        strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: timeout},
		timeout:     timeout,
		attempts:    3,
	}
}

type scheduleReq struct {
	FireAt      time.Time         `json:"fire_at"`
	CallbackURL string            `json:"callback_url"`
	Payload     domain.JobPayload `json:"payload"`
}

type scheduleResp struct {
	ID string `json:"id"`
}

func (g *HTTPGateway) Schedule(ctx context.Context, payload domain.JobPayload, fireAt time.Time) (string, error) {
	body, err := json.Marshal(scheduleReq{FireAt: fireAt, CallbackURL: g.callbackURL, Payload: payload})
	if err != nil {
		return "", err
	}

	var handle string
	err = retry.Do(ctx, g.attempts, 500*time.Millisecond, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(cctx, http.MethodPost, g.base+"/api/jobs", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if g.apiKey != "" {
			req.Header.Set("authorization", "Bearer "+g.apiKey)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("scheduler returned %d: %s", resp.StatusCode, string(b))
		}
		var sr scheduleResp
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return err
		}
		if sr.ID == "" {
			return fmt.Errorf("scheduler returned no job id")
		}
		handle = sr.ID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSchedulingFailed, err)
	}
	return handle, nil
}

type cancelResp struct {
	OK bool `json:"ok"`
}

// Cancel is best-effort and never retried: by the time a retry would land
// the job may already have fired.
func (g *HTTPGateway) Cancel(ctx context.Context, handle string) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodDelete, g.base+"/api/jobs/"+handle, nil)
	if err != nil {
		return false, err
	}
	if g.apiKey != "" {
		req.Header.Set("authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Job already fired or was never there.
		return false, nil
	case resp.StatusCode >= 400:
		b, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("scheduler returned %d: %s", resp.StatusCode, string(b))
	}
	var cr cancelResp
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return false, err
	}
	return cr.OK, nil
}
