// Package delivery fans a rule-engine decision out to Telegram and a
// generic webhook (spec §4.7, C7). Delivery is best-effort,
// at-most-once externally: there is no persistent outbox, since IMAP
// remains the authoritative record and missed pushes can be rebuilt
// with the reapply operation.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/lib/sl"
)

// SettingsSource is the narrow settings surface delivery needs,
// implemented by *store.Store. Kept as an interface so delivery_test.go
// can substitute a fixed snapshot.
type SettingsSource interface {
	GetSettings() (*entity.Settings, error)
}

// Fanout sends Telegram pushes and webhook POSTs for matched messages.
// It also implements logger.Notifier, so the structured logger can
// mirror warning+ log lines to the same Telegram chat.
type Fanout struct {
	settings SettingsSource
	log      *slog.Logger
	client   *http.Client
	bot      *tgbotapi.Bot // nil until settings carry a bot token

	// sendTelegram is the actual wire call, overridden in tests the
	// same way internal/imapclient injects fetchSince/markSeen.
	sendTelegram func(ctx context.Context, token, chatId, text string) error
}

func NewFanout(settings SettingsSource, log *slog.Logger) *Fanout {
	f := &Fanout{
		settings: settings,
		log:      log.With(sl.Module("delivery")),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	f.sendTelegram = f.sendTelegramBotAPI
	return f
}

// PushTelegram evaluates this account's PushFilters against msg, and
// if allowed, renders and sends it via the Telegram Bot API.
// filters must already be sorted by rule_order ascending.
func (f *Fanout) PushTelegram(ctx context.Context, account *entity.Account, msg *entity.Message, filters []*entity.PushFilter, template entity.PushTemplate) error {
	if !passesFilters(filters, msg) {
		f.log.Debug("push filtered out", "account_id", account.Id, "message_id", msg.MessageId)
		return nil
	}

	settings, err := f.settings.GetSettings()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if settings.TelegramBotToken == "" || settings.TelegramChatId == "" {
		return nil
	}

	text := Render(template, msg, account.Email)

	return withRetry(ctx, func(ctx context.Context) error {
		return f.sendTelegram(ctx, settings.TelegramBotToken, settings.TelegramChatId, text)
	})
}

// SendMessageWithLevel implements logger.Notifier: it sends a plain
// message to the configured Telegram chat, ignoring per-user routing
// since this system has a single operator chat, not a multi-user bot.
func (f *Fanout) SendMessageWithLevel(msg string, level slog.Level) {
	settings, err := f.settings.GetSettings()
	if err != nil || settings.TelegramBotToken == "" || settings.TelegramChatId == "" {
		return
	}
	_ = f.sendTelegram(context.Background(), settings.TelegramBotToken, settings.TelegramChatId, msg)
}

func (f *Fanout) botFor(token string) (*tgbotapi.Bot, error) {
	if f.bot != nil {
		return f.bot, nil
	}
	bot, err := tgbotapi.NewBot(token, nil)
	if err != nil {
		return nil, err
	}
	f.bot = bot
	return bot, nil
}

// sendTelegramBotAPI is the real implementation, calling the gotgbot
// client's sendMessage. Kept separate from PushTelegram so tests can
// substitute sendTelegram with a stub function.
func (f *Fanout) sendTelegramBotAPI(_ context.Context, token, chatId, text string) error {
	bot, err := f.botFor(token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	_, err = bot.SendMessage(parseChatId(chatId), text, &tgbotapi.SendMessageOpts{})
	if err != nil {
		return classifyTelegramError(err)
	}
	return nil
}

func parseChatId(s string) int64 {
	var id int64
	_, _ = fmt.Sscanf(s, "%d", &id)
	return id
}

// telegramStatusPattern extracts a 3-digit 4xx code from a gotgbot
// error string. gotgbot doesn't expose the Telegram API's HTTP status
// as a typed field, only folding it into the error message (e.g.
// "unable to sendMessage: 400 Bad Request: chat not found"), so this
// is a best-effort parse rather than a structured one.
var telegramStatusPattern = regexp.MustCompile(`\b4\d{2}\b`)

// classifyTelegramError maps a gotgbot transport/API error onto the
// retry classification scheme. A 429 (Too Many Requests) anywhere in
// the message is retryable; any other 4xx found in the message is
// terminal per spec §4.7. Anything else (network errors, 5xx, no
// recognizable status) is retryable, matching classifyStatus.
func classifyTelegramError(err error) error {
	matches := telegramStatusPattern.FindAllString(err.Error(), -1)
	for _, m := range matches {
		if m == "429" {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	for _, m := range matches {
		var code int
		if _, scanErr := fmt.Sscanf(m, "%d", &code); scanErr == nil {
			return &terminalHTTPError{status: code}
		}
	}
	return fmt.Errorf("telegram send: %w", err)
}

// WebhookPayload is the JSON body POSTed to settings.webhook_url
// (spec §4.7 Webhook POST).
type WebhookPayload struct {
	AccountEmail string   `json:"account_email"`
	Subject      string   `json:"subject"`
	Sender       string   `json:"sender"`
	ReceivedAt   string   `json:"received_at"`
	Summary      string   `json:"summary"`
	Labels       []string `json:"labels"`
	MessageId    string   `json:"message_id"`
}

// PushWebhook POSTs msg's summary to settings.webhook_url, if set.
func (f *Fanout) PushWebhook(ctx context.Context, account *entity.Account, msg *entity.Message, labels []string) error {
	settings, err := f.settings.GetSettings()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if settings.WebhookURL == "" {
		return nil
	}
	if _, err := url.ParseRequestURI(settings.WebhookURL); err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}

	payload := WebhookPayload{
		AccountEmail: account.Email,
		Subject:      msg.Subject,
		Sender:       msg.Sender,
		ReceivedAt:   msg.ReceivedAt.Format(time.RFC3339),
		Summary:      msg.ContentSummary,
		Labels:       labels,
		MessageId:    msg.MessageId,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	return withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook post: %w", err)
		}
		defer resp.Body.Close()
		return classifyStatus(resp.StatusCode)
	})
}

// passesFilters applies spec §4.7 step 1: if any allow filter exists,
// the message must match at least one; then any matching deny filter
// drops the message.
func passesFilters(filters []*entity.PushFilter, msg *entity.Message) bool {
	var allows, denies []*entity.PushFilter
	for _, f := range filters {
		switch f.Mode {
		case entity.ModeAllow:
			allows = append(allows, f)
		case entity.ModeDeny:
			denies = append(denies, f)
		}
	}

	if len(allows) > 0 {
		matched := false
		for _, f := range allows {
			if filterMatches(f, msg) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, f := range denies {
		if filterMatches(f, msg) {
			return false
		}
	}

	return true
}

func filterMatches(f *entity.PushFilter, msg *entity.Message) bool {
	value := strings.ToLower(f.Value)
	switch f.Field {
	case entity.FieldSender:
		return strings.Contains(strings.ToLower(msg.Sender), value)
	case entity.FieldDomain:
		return strings.Contains(strings.ToLower(domainOf(msg.Sender)), value)
	case entity.FieldSubject:
		return strings.Contains(strings.ToLower(msg.Subject), value)
	case entity.FieldBody:
		return strings.Contains(strings.ToLower(msg.BodyText), value)
	default:
		return false
	}
}

func domainOf(sender string) string {
	idx := strings.LastIndex(sender, "@")
	if idx == -1 {
		return ""
	}
	return sender[idx+1:]
}
