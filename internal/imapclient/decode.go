package imapclient

import (
	"io"
	"strings"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	_ "github.com/emersion/go-message/charset" // registers non-UTF-8 charsets with mail.CreateReader
	"github.com/emersion/go-message/mail"
)

// messageFromBuffer decodes one fetched message's envelope and body
// section into our domain-independent Message shape. Header decoding
// (RFC 2047 encoded-words) and body charset conversion both go through
// go-message, which registers non-UTF-8 charsets with the mail reader.
func messageFromBuffer(buf *imapclient.FetchMessageBuffer) Message {
	m := Message{UID: uint32(buf.UID)}

	if buf.Envelope != nil {
		m.MessageId = buf.Envelope.MessageID
		m.Subject = buf.Envelope.Subject
		m.Date = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			m.From = addressString(buf.Envelope.From[0])
		}
	}

	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			m.Seen = true
		}
	}

	for _, section := range buf.BodySection {
		text, html := extractParts(section.Bytes)
		if text != "" {
			m.BodyText = text
		}
		if html != "" {
			m.BodyHTML = html
		}
	}

	return m
}

func addressString(addr imap.Address) string {
	host := addr.Host
	mailbox := addr.Mailbox
	if addr.Name != "" {
		return addr.Name + " <" + mailbox + "@" + host + ">"
	}
	return mailbox + "@" + host
}

// extractParts walks a raw RFC 5322 message and returns its first
// text/plain and text/html parts, decoded to UTF-8 regardless of
// declared charset.
func extractParts(raw []byte) (text, html string) {
	reader, err := mail.CreateReader(newByteReader(raw))
	if err != nil {
		return "", ""
	}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain") && text == "":
				text = string(body)
			case strings.HasPrefix(contentType, "text/html") && html == "":
				html = string(body)
			}
		}
	}
	return text, html
}

func newByteReader(b []byte) io.Reader {
	return strings.NewReader(string(b))
}
