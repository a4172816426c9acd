package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// GatewayConfig points at an HTTP SMS gateway that accepts
// {"to": "+55...", "message": "..."} with an optional bearer token.
type GatewayConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

var ErrGatewayNotConfigured = errors.New("sms gateway url not configured")

// StatusError is returned when the gateway answers outside 2xx.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return "sms gateway rejected message: " + e.Status }

// Retryable reports whether the gateway failure is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type Gateway struct {
	cfg    GatewayConfig
	client *http.Client
}

func NewGateway(cfg GatewayConfig) *Gateway {
	cfg.URL = strings.TrimSpace(cfg.URL)
	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Gateway{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (g *Gateway) ProviderID() string { return "sms-gateway" }

func (g *Gateway) Send(ctx context.Context, to, body string) error {
	if g.cfg.URL == "" {
		return ErrGatewayNotConfigured
	}
	payload, err := json.Marshal(struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}{To: to, Message: body})
	if err != nil {
		return fmt.Errorf("encode sms: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return nil
}
