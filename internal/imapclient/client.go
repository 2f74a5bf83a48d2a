// Package imapclient dials a single IMAP mailbox, fetches messages
// newer than a watermark, and can mark a message \Seen. It is kept
// thin and stateless per-call: the fetcher owns retry and scheduling.
package imapclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
)

// Message is the decoded subset of an IMAP message this pipeline cares
// about (spec §4.4 persisted fields).
type Message struct {
	UID        uint32
	MessageId  string
	Subject    string
	From       string
	Date       time.Time
	BodyText   string
	BodyHTML   string
	Seen       bool
}

// defaultBackfillDays bounds the very first poll of an account (no
// watermark yet) to recent mail only, so a brand-new account doesn't
// pull an entire mailbox archive on its first connect.
const defaultBackfillDays = 7

// Client fetches from one account's INBOX. The fetchSince/markSeen
// fields are overridden in tests, the same injectable-function seam
// used for connector tests in the pack.
type Client struct {
	Host     string
	Port     int
	Username string
	Password string
	DialTimeout time.Duration

	// BackfillDays bounds the date range searched when no watermark
	// exists yet (sinceUID == 0). Defaults to defaultBackfillDays.
	BackfillDays int

	fetchSince func(ctx context.Context, sinceUID uint32) ([]Message, error)
	markSeen   func(ctx context.Context, uids []uint32) error
}

// New constructs a Client. Password is the decrypted app password;
// callers decrypt from internal/cipher immediately before this call
// and must not retain it afterward.
func New(host string, port int, username, password string) *Client {
	c := &Client{Host: host, Port: port, Username: username, Password: password,
		DialTimeout: 15 * time.Second, BackfillDays: defaultBackfillDays}
	c.fetchSince = c.fetchSinceIMAP
	c.markSeen = c.markSeenIMAP
	return c
}

// FetchSince returns every message in INBOX with UID > sinceUID,
// ascending by UID. A sinceUID of 0 means "no watermark yet", which
// the fetcher uses on an account's very first successful poll; that
// case is additionally bounded to the last BackfillDays days so a
// fresh account doesn't pull its entire archive (spec §4.3).
func (c *Client) FetchSince(ctx context.Context, sinceUID uint32) ([]Message, error) {
	return c.fetchSince(ctx, sinceUID)
}

// MarkSeen flags the given UIDs \Seen on the server, used when
// mirror_read_to_server is enabled (spec §3 supplemented feature).
func (c *Client) MarkSeen(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	return c.markSeen(ctx, uids)
}

func (c *Client) dial(ctx context.Context) (*imapclient.Client, error) {
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	dialer := &net.Dialer{Timeout: c.DialTimeout}
	tlsConfig := &tls.Config{ServerName: c.Host, MinVersion: tls.VersionTLS12}

	options := &imapclient.Options{
		TLSConfig: tlsConfig,
	}
	client, err := imapclient.DialTLSWithDialer(dialer, addr, options)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}

	saslClient := sasl.NewPlainClient("", c.Username, c.Password)
	if err := client.Authenticate(saslClient).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap auth %s: %w", c.Username, err)
	}
	return client, nil
}

func (c *Client) fetchSinceIMAP(ctx context.Context, sinceUID uint32) ([]Message, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("imap select INBOX: %w", err)
	}

	criteria := &imap.SearchCriteria{
		UID: []imap.UIDSet{uidRange(sinceUID + 1)},
	}
	if sinceUID == 0 {
		days := c.BackfillDays
		if days <= 0 {
			days = defaultBackfillDays
		}
		criteria.Since = time.Now().UTC().AddDate(0, 0, -days)
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap uid search: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	var uidSet imap.UIDSet
	uidSet.AddNum(uids...)

	fetchOptions := &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		Flags:       true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	cmd := client.Fetch(uidSet, fetchOptions)
	defer cmd.Close()

	var out []Message
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			return nil, fmt.Errorf("imap fetch collect: %w", err)
		}
		out = append(out, messageFromBuffer(buf))
	}
	if err := cmd.Close(); err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}
	return out, nil
}

func (c *Client) markSeenIMAP(ctx context.Context, uidList []uint32) error {
	client, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("imap select INBOX: %w", err)
	}

	var uidSet imap.UIDSet
	for _, u := range uidList {
		uidSet.AddNum(imap.UID(u))
	}

	storeFlags := &imap.StoreFlags{
		Op:    imap.StoreFlagsAdd,
		Flags: []imap.Flag{imap.FlagSeen},
	}
	if err := client.Store(uidSet, storeFlags, nil).Close(); err != nil {
		return fmt.Errorf("imap store seen: %w", err)
	}
	return nil
}

func uidRange(from uint32) imap.UIDSet {
	var set imap.UIDSet
	set.AddRange(imap.UID(from), 0) // 0 = "*", open-ended range
	return set
}
