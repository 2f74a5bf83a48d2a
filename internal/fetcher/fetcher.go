// Package fetcher runs one account's poll cycle end to end: dial IMAP,
// fetch new messages, persist them, run them through the rule engine,
// and hand matched messages to delivery (C4, spec §4.4).
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/internal/cipher"
	"github.com/themadorg/mailaggregator/internal/imapclient"
	"github.com/themadorg/mailaggregator/internal/rules"
	"github.com/themadorg/mailaggregator/lib/sl"
)

// Store is the narrow persistence surface Fetcher needs.
type Store interface {
	GetAccount(id int64) (*entity.Account, error)
	UpdateWatermark(accountId int64, watermark string) error
	InsertMessageIfNew(msg *entity.Message) (id int64, inserted bool, err error)
	ListRules() ([]*entity.Rule, error)
	ApplyLabels(messageId int64, labels []string) error
	MarkRead(id int64, read bool) error
	ListPushFilters(accountId int64) ([]*entity.PushFilter, error)
	GetSettings() (*entity.Settings, error)
	RecordPollStarted(accountId int64) error
	RecordPollFinished(accountId int64, pollErr error) error
}

// Delivery is the narrow fan-out surface Fetcher needs.
type Delivery interface {
	PushTelegram(ctx context.Context, account *entity.Account, msg *entity.Message, filters []*entity.PushFilter, template entity.PushTemplate) error
	PushWebhook(ctx context.Context, account *entity.Account, msg *entity.Message, labels []string) error
}

// IMAPDialer constructs an IMAP client for an account given its
// decrypted password, letting tests substitute a fake.
type IMAPDialer func(host string, port int, username, password string) IMAPClient

// IMAPClient is the subset of *imapclient.Client Fetcher depends on.
type IMAPClient interface {
	FetchSince(ctx context.Context, sinceUID uint32) ([]imapclient.Message, error)
	MarkSeen(ctx context.Context, uids []uint32) error
}

// Fetcher runs poll cycles for accounts, one at a time per account via
// a per-account single-flight lock (spec §4.4, §5).
type Fetcher struct {
	store    Store
	delivery Delivery
	cipher   *cipher.Cipher
	dial     IMAPDialer
	log      *slog.Logger

	mu      sync.Mutex
	inFlight map[int64]bool
}

func New(store Store, delivery Delivery, c *cipher.Cipher, log *slog.Logger) *Fetcher {
	return &Fetcher{
		store:    store,
		delivery: delivery,
		cipher:   c,
		dial: func(host string, port int, username, password string) IMAPClient {
			return imapclient.New(host, port, username, password)
		},
		log:      log.With(sl.Module("fetcher")),
		inFlight: make(map[int64]bool),
	}
}

// Run executes one poll cycle for account. A concurrent call for the
// same account while one is already running is a no-op that returns
// immediately (spec §4.4 single-flight lock).
func (f *Fetcher) Run(ctx context.Context, accountId int64) error {
	if !f.acquire(accountId) {
		f.log.Debug("poll already in flight, skipping", "account_id", accountId)
		return nil
	}
	defer f.release(accountId)

	account, err := f.store.GetAccount(accountId)
	if err != nil {
		return fmt.Errorf("load account %d: %w", accountId, err)
	}

	if err := f.store.RecordPollStarted(accountId); err != nil {
		f.log.Warn("record poll started failed", sl.Err(err))
	}

	runErr := f.poll(ctx, account)

	if err := f.store.RecordPollFinished(accountId, runErr); err != nil {
		f.log.Warn("record poll finished failed", sl.Err(err))
	}

	return runErr
}

func (f *Fetcher) acquire(accountId int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight[accountId] {
		return false
	}
	f.inFlight[accountId] = true
	return true
}

func (f *Fetcher) release(accountId int64) {
	f.mu.Lock()
	delete(f.inFlight, accountId)
	f.mu.Unlock()
}

func (f *Fetcher) poll(ctx context.Context, account *entity.Account) error {
	password, err := f.decryptPassword(account)
	if err != nil {
		return fmt.Errorf("decrypt credential: %w", err)
	}

	client := f.dial(account.Host, account.Port, account.Email, password)

	sinceUID, err := parseWatermark(account.LastUIDWatermark)
	if err != nil {
		f.log.Warn("corrupt watermark, treating as zero", "account_id", account.Id, sl.Err(err))
		sinceUID = 0
	}

	messages, err := client.FetchSince(ctx, sinceUID)
	if err != nil {
		return fmt.Errorf("imap fetch: %w", err)
	}

	allRules, err := f.store.ListRules()
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	settings, err := f.store.GetSettings()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	filters, err := f.store.ListPushFilters(account.Id)
	if err != nil {
		return fmt.Errorf("load push filters: %w", err)
	}

	var maxUID uint32
	var seenUIDs []uint32

	for _, msg := range messages {
		if err := f.processMessage(ctx, account, settings, allRules, filters, msg); err != nil {
			f.log.Warn("message pipeline failed", "account_id", account.Id,
				"message_id", msg.MessageId, sl.Err(err))
		}
		if msg.UID > maxUID {
			maxUID = msg.UID
		}
		seenUIDs = append(seenUIDs, msg.UID)
	}

	if maxUID > 0 {
		if err := f.store.UpdateWatermark(account.Id, strconv.FormatUint(uint64(maxUID), 10)); err != nil {
			return fmt.Errorf("update watermark: %w", err)
		}
	}

	return nil
}

// processMessage runs the per-message pipeline from spec §4.4: insert,
// decide, apply, and enqueue side effects. A duplicate message short
// circuits after step 1 since downstream effects already happened or
// were waived in a prior run.
func (f *Fetcher) processMessage(ctx context.Context, account *entity.Account, settings *entity.Settings, allRules []*entity.Rule, filters []*entity.PushFilter, im imapclient.Message) error {
	messageId := im.MessageId
	if messageId == "" {
		// A missing Message-ID would otherwise collapse every such
		// mail for this account onto the same dedup key (spec §8).
		messageId = fmt.Sprintf("<%d@%s>", im.UID, account.Host)
	}

	msg := &entity.Message{
		AccountId:      account.Id,
		MessageId:      messageId,
		Subject:        im.Subject,
		Sender:         im.From,
		BodyText:       im.BodyText,
		BodyHTML:       im.BodyHTML,
		ContentSummary: entity.Summarize(im.BodyText),
		ReceivedAt:     im.Date,
		IsRead:         im.Seen,
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	id, inserted, err := f.store.InsertMessageIfNew(msg)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if !inserted {
		return nil
	}
	msg.Id = id

	decision := rules.Evaluate(msg, allRules, account.TelegramPushEnabled)
	labels := decision.Labels()

	if err := f.store.ApplyLabels(id, labels); err != nil {
		return fmt.Errorf("apply labels: %w", err)
	}
	if decision.MarkRead {
		if err := f.store.MarkRead(id, true); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
		if settings.MirrorReadToServer {
			go f.mirrorReadToServer(account, im.UID)
		}
	}

	if account.TelegramPushEnabled && decision.PushTelegram {
		if err := f.delivery.PushTelegram(ctx, account, msg, filters, account.PushTemplate); err != nil {
			f.log.Warn("telegram push failed", "account_id", account.Id, sl.Err(err))
		}
	}
	if settings.WebhookURL != "" {
		if err := f.delivery.PushWebhook(ctx, account, msg, labels); err != nil {
			f.log.Warn("webhook push failed", "account_id", account.Id, sl.Err(err))
		}
	}

	return nil
}

// mirrorReadToServer flags a message \Seen on the IMAP server in the
// background; its failure never affects the persisted read state
// (spec §4.4 step 4, "non-blocking imap_mark_read task").
func (f *Fetcher) mirrorReadToServer(account *entity.Account, uid uint32) {
	password, err := f.decryptPassword(account)
	if err != nil {
		f.log.Warn("mirror read: decrypt credential failed", sl.Err(err))
		return
	}
	client := f.dial(account.Host, account.Port, account.Email, password)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.MarkSeen(ctx, []uint32{uid}); err != nil {
		f.log.Warn("mirror read to server failed", "account_id", account.Id, sl.Err(err))
	}
}

func (f *Fetcher) decryptPassword(account *entity.Account) (string, error) {
	plaintext, err := f.cipher.Decrypt(account.CredentialCiphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func parseWatermark(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
