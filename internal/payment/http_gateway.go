package payment

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

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// HTTPGateway is the redirect checkout integration. Calls go through a
// circuit breaker; client errors do not count as failures.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[*CheckoutSession]
	log     *zap.Logger
}

func NewHTTPGateway(baseURL string, client *http.Client, log *zap.Logger) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	g := &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}
	g.cb = gobreaker.NewCircuitBreaker[*CheckoutSession](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var ge *GatewayError
			if errors.As(err, &ge) {
				return ge.StatusCode < 500
			}
			return err == nil || errors.Is(err, ErrSessionNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return g
}

func (g *HTTPGateway) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*CheckoutSession, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session request: %w", err)
	}

	return g.execute(func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/create-checkout-session", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		if req.IdempotencyKey != "" {
			r.Header.Set("Idempotency-Key", req.IdempotencyKey)
		}
		return r, nil
	})
}

func (g *HTTPGateway) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	return g.execute(func() (*http.Request, error) {
		u := g.baseURL + "/retrieve-order?sessionId=" + url.QueryEscape(sessionID)
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
}

func (g *HTTPGateway) execute(build func() (*http.Request, error)) (*CheckoutSession, error) {
	session, err := g.cb.Execute(func() (*CheckoutSession, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		return g.do(req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return session, err
}

func (g *HTTPGateway) do(req *http.Request) (*CheckoutSession, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, strings.TrimSpace(string(data)))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	var session CheckoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if session.ID == "" {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Message: "response without session id"}
	}
	return &session, nil
}
