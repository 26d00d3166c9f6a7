package imap

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"

	"github.com/customeros/mailscope/dto"
	"github.com/customeros/mailscope/internal/utils"
)

func applyEnvelope(raw *dto.RawMessage, envelope *imap.Envelope) {
	if envelope == nil {
		return
	}

	raw.MessageID = strings.TrimSpace(envelope.MessageId)
	raw.Subject = envelope.Subject
	raw.SentAt = envelope.Date

	if len(envelope.From) > 0 && envelope.From[0] != nil {
		sender := envelope.From[0]
		raw.FromName = sender.PersonalName
		raw.FromAddress = cleanAddress(sender.Address())
		raw.FromHeader = utils.FormatAddress(sender.PersonalName, sender.Address())
	}

	raw.To = convertAddresses(envelope.To)
	raw.Cc = convertAddresses(envelope.Cc)
	raw.Bcc = convertAddresses(envelope.Bcc)
}

// parseBody extracts text and HTML parts and fills header fields the envelope did not carry.
func parseBody(raw *dto.RawMessage, body []byte) error {
	env, err := enmime.ReadEnvelope(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse MIME body: %w", err)
	}

	raw.Raw = body
	raw.Text = env.Text
	raw.HTML = env.HTML
	raw.Content = utils.CollapseWhitespace(env.Text)
	if raw.Content == "" {
		raw.Content = utils.StripHTML(env.HTML)
	}

	if raw.MessageID == "" {
		raw.MessageID = strings.TrimSpace(env.GetHeader("Message-Id"))
	}
	if raw.Subject == "" {
		raw.Subject = env.GetHeader("Subject")
	}
	if raw.FromHeader == "" {
		raw.FromHeader = env.GetHeader("From")
		if addr, err := mail.ParseAddress(raw.FromHeader); err == nil {
			raw.FromName = addr.Name
			raw.FromAddress = cleanAddress(addr.Address)
		} else {
			raw.FromAddress = utils.ExtractAddress(raw.FromHeader)
		}
	}
	if raw.SentAt.IsZero() {
		if sentAt, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
			raw.SentAt = sentAt
		}
	}
	if len(raw.To) == 0 {
		raw.To = headerAddresses(env, "To")
	}
	if len(raw.Cc) == 0 {
		raw.Cc = headerAddresses(env, "Cc")
	}

	return nil
}

func convertAddresses(addresses []*imap.Address) []string {
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if addr == nil || addr.MailboxName == "" || addr.HostName == "" {
			continue
		}
		if clean := cleanAddress(addr.Address()); clean != "" {
			result = append(result, clean)
		}
	}
	return result
}

func headerAddresses(env *enmime.Envelope, header string) []string {
	list, err := env.AddressList(header)
	if err != nil {
		return []string{}
	}
	result := make([]string, 0, len(list))
	for _, addr := range list {
		if clean := cleanAddress(addr.Address); clean != "" {
			result = append(result, clean)
		}
	}
	return result
}

func cleanAddress(address string) string {
	validation := mailvalidate.ValidateEmailSyntax(address)
	if validation.IsValid {
		return validation.CleanEmail
	}
	return ""
}
