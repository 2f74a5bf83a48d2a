package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/themadorg/mailaggregator/entity"
)

type fixedSettings struct {
	s entity.Settings
}

func (f fixedSettings) GetSettings() (*entity.Settings, error) {
	cp := f.s
	return &cp, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestPushVetoStillWebhooks covers scenario S3: telegram push disabled
// for the account still allows the webhook leg to fire once.
func TestPushVetoStillWebhooks(t *testing.T) {
	var webhookCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&webhookCalls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	settings := fixedSettings{s: entity.Settings{WebhookURL: server.URL}}
	f := NewFanout(settings, testLogger())

	account := &entity.Account{Id: 1, Email: "a@example.com", TelegramPushEnabled: false}
	msg := &entity.Message{AccountId: 1, MessageId: "<a@x>", Subject: "Alert: disk", ContentSummary: "disk full"}

	if err := f.PushWebhook(context.Background(), account, msg, []string{"P1", "P2"}); err != nil {
		t.Fatalf("PushWebhook: %v", err)
	}
	if atomic.LoadInt32(&webhookCalls) != 1 {
		t.Fatalf("expected exactly one webhook call, got %d", webhookCalls)
	}
}

// TestPushFilterAllowList covers scenario S4: an allow filter on
// domain=example.com drops a message from another.com and accepts one
// from example.com.
func TestPushFilterAllowList(t *testing.T) {
	filters := []*entity.PushFilter{
		{Field: entity.FieldDomain, Mode: entity.ModeAllow, Value: "example.com", RuleOrder: 0},
	}

	dropped := &entity.Message{Sender: "a@other.com"}
	if passesFilters(filters, dropped) {
		t.Fatal("expected message from other.com to be dropped")
	}

	allowed := &entity.Message{Sender: "b@example.com"}
	if !passesFilters(filters, allowed) {
		t.Fatal("expected message from example.com to pass")
	}
}

func TestPushFilterDenyOverridesMatch(t *testing.T) {
	filters := []*entity.PushFilter{
		{Field: entity.FieldSubject, Mode: entity.ModeDeny, Value: "newsletter"},
	}
	msg := &entity.Message{Subject: "Weekly Newsletter"}
	if passesFilters(filters, msg) {
		t.Fatal("expected deny filter to drop the message")
	}
}

func TestNoFiltersAlwaysPasses(t *testing.T) {
	msg := &entity.Message{Sender: "anyone@anywhere.com"}
	if !passesFilters(nil, msg) {
		t.Fatal("expected no filters to mean unconditional pass")
	}
}

// TestTelegramRetryEventuallySucceeds covers scenario S5: two
// transient failures followed by success within the retry budget, and
// exactly one successful send recorded.
func TestTelegramRetryEventuallySucceeds(t *testing.T) {
	settings := fixedSettings{s: entity.Settings{TelegramBotToken: "token", TelegramChatId: "123"}}
	f := NewFanout(settings, testLogger())

	var attempts int32
	f.sendTelegram = func(_ context.Context, token, chatId, text string) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return classifyStatus(http.StatusInternalServerError)
		}
		return nil
	}

	account := &entity.Account{Id: 1, Email: "a@example.com", TelegramPushEnabled: true}
	msg := &entity.Message{AccountId: 1, Subject: "hi", ContentSummary: "hi there"}

	err := f.PushTelegram(context.Background(), account, msg, nil, entity.TemplateShort)
	if err != nil {
		t.Fatalf("PushTelegram: %v", err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}

func TestTelegramTerminalErrorStopsRetrying(t *testing.T) {
	settings := fixedSettings{s: entity.Settings{TelegramBotToken: "token", TelegramChatId: "123"}}
	f := NewFanout(settings, testLogger())

	var attempts int32
	f.sendTelegram = func(_ context.Context, token, chatId, text string) error {
		atomic.AddInt32(&attempts, 1)
		return classifyStatus(http.StatusBadRequest)
	}

	account := &entity.Account{Id: 1, Email: "a@example.com", TelegramPushEnabled: true}
	msg := &entity.Message{AccountId: 1, Subject: "hi"}

	err := f.PushTelegram(context.Background(), account, msg, nil, entity.TemplateShort)
	if err == nil {
		t.Fatal("expected terminal error to surface")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected no retries on a terminal 4xx, got %d attempts", attempts)
	}
}

func TestClassifyTelegramError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		terminal bool
	}{
		{"bad request is terminal", errors.New("unable to sendMessage: 400 Bad Request: chat not found"), true},
		{"forbidden is terminal", errors.New("unable to sendMessage: 403 Forbidden: bot was blocked by the user"), true},
		{"too many requests is retryable", errors.New("unable to sendMessage: 429 Too Many Requests: retry after 3"), false},
		{"server error is retryable", errors.New("unable to sendMessage: 500 Internal Server Error"), false},
		{"no recognizable status is retryable", errors.New("dial tcp: connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyTelegramError(tt.err)
			var terminal *terminalHTTPError
			got := errors.As(err, &terminal)
			if got != tt.terminal {
				t.Fatalf("classifyTelegramError(%q) terminal = %v, want %v", tt.err, got, tt.terminal)
			}
		})
	}
}

func TestPushTelegramSkippedWithoutBotConfig(t *testing.T) {
	settings := fixedSettings{s: entity.Settings{}}
	f := NewFanout(settings, testLogger())
	called := false
	f.sendTelegram = func(context.Context, string, string, string) error {
		called = true
		return nil
	}

	account := &entity.Account{Id: 1, TelegramPushEnabled: true}
	msg := &entity.Message{AccountId: 1, Subject: "hi"}
	if err := f.PushTelegram(context.Background(), account, msg, nil, entity.TemplateShort); err != nil {
		t.Fatalf("PushTelegram: %v", err)
	}
	if called {
		t.Fatal("expected no send attempt without bot token/chat id configured")
	}
}
