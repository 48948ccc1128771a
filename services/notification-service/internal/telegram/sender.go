package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/slotwise/slotwise/services/notification-service/internal/templates"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Sender delivers to a chat id. The recipient is the decimal chat id.
type Sender struct {
	bot *tgbotapi.BotAPI
}

// New validates token against the Bot API. endpoint may be empty for the public API.
func New(token, endpoint string) (*Sender, error) {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Sender{bot: bot}, nil
}

func (s *Sender) ProviderID() string {
	return "telegram"
}

func (s *Sender) Send(_ context.Context, to string, msg templates.Message) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(to), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q", to)
	}
	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + msg.Body
	}
	if _, err := s.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}
