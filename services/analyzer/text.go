package analyzer

import (
	"strings"

	"github.com/customeros/mailscope/dto"
	"github.com/customeros/mailscope/internal/utils"
)

func searchableText(msg *dto.RawMessage) string {
	from := msg.FromHeader
	if from == "" {
		from = msg.FromAddress
	}

	parts := []string{msg.Subject, from}
	parts = append(parts, msg.To...)
	parts = append(parts, msg.Cc...)
	parts = append(parts, msg.Bcc...)
	parts = append(parts, msg.Text, utils.StripHTML(msg.HTML))

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}

	return strings.ToLower(strings.TrimSpace(strings.Join(nonEmpty, " ")))
}
