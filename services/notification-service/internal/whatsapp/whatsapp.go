// Package whatsapp sends text messages through the Twilio WhatsApp API.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.twilio.com"

// Config holds Twilio credentials. From is the sender number, with or
// without the "whatsapp:" prefix.
type Config struct {
	AccountSid string
	AuthToken  string
	From       string
	BaseURL    string
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}}
}

// Configured reports whether credentials and a sender number are present.
func (c *Client) Configured() bool {
	return c.cfg.AccountSid != "" && c.cfg.AuthToken != "" && c.cfg.From != ""
}

func (c *Client) ProviderID() string { return "twilio-whatsapp" }

// Address normalises an E.164 number into Twilio's whatsapp:+ form.
func Address(phone string) string {
	phone = strings.TrimSpace(phone)
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:+" + strings.TrimLeft(phone, "+")
}

func (c *Client) Send(ctx context.Context, to, body string) error {
	if !c.Configured() {
		return fmt.Errorf("whatsapp: twilio not configured")
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("whatsapp: empty recipient")
	}
	form := url.Values{}
	form.Set("To", Address(to))
	form.Set("From", Address(c.cfg.From))
	form.Set("Body", body)
	reqURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountSid))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountSid, c.cfg.AuthToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return fmt.Errorf("whatsapp: %s: %s", resp.Status, strings.TrimSpace(string(slurp)))
}
