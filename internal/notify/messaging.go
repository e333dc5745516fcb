package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// GatewaySender delivers the messaging channel through an HTTP messaging
// gateway that addresses recipients by phone number. Outbound calls share a
// rate limiter because gateways throttle hard.
type GatewaySender struct {
	base    string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewGatewaySender(baseURL, apiKey string, timeout time.Duration, perSecond float64, burst int) *GatewaySender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &GatewaySender{
		base:    strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

type sendReq struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Send posts the rendered message to the gateway. subject is unused: the
// messaging body is already self-contained.
func (g *GatewaySender) Send(ctx context.Context, to, subject, body string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(sendReq{Phone: to, Message: body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.base+"/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("authorization", g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("messaging send to %s: %w", to, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("messaging gateway returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
