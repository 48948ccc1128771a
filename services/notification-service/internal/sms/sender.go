package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/slotwise/slotwise/services/notification-service/internal/templates"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MaxBodyRunes caps a message at ten concatenated segments.
const MaxBodyRunes = 1530

var (
	ErrNotConfigured = errors.New("sms: gateway url not configured")
	ErrBadNumber     = errors.New("sms: recipient is not an E.164 number")
)

type WebhookConfig struct {
	URL      string
	Token    string
	SenderID string
	Timeout  time.Duration
}

// WebhookSender hands customer texts to an HTTP SMS gateway.
type WebhookSender struct {
	cfg  WebhookConfig
	http *http.Client
}

type gatewayRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

func NewWebhookSender(cfg WebhookConfig) *WebhookSender {
	cfg.URL = strings.TrimSpace(cfg.URL)
	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &WebhookSender{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

func (s *WebhookSender) ProviderID() string {
	return "sms-webhook"
}

// Send posts the body only; SMS has no subject line.
func (s *WebhookSender) Send(ctx context.Context, to string, msg templates.Message) error {
	if s.cfg.URL == "" {
		return ErrNotConfigured
	}
	number, err := normalize(to)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(gatewayRequest{To: number, From: s.cfg.SenderID, Body: truncate(msg.Body, MaxBodyRunes)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("sms: gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

func normalize(to string) (string, error) {
	n := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(to))
	if len(n) < 8 || len(n) > 16 || n[0] != '+' {
		return "", ErrBadNumber
	}
	for _, r := range n[1:] {
		if r < '0' || r > '9' {
			return "", ErrBadNumber
		}
	}
	return n, nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}

// NoopSender accepts everything. Used for local runs.
type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "sms-noop"
}

func (s *NoopSender) Send(_ context.Context, to string, _ templates.Message) error {
	_, err := normalize(to)
	return err
}
