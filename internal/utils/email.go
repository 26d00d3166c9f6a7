package utils

import (
	"net/mail"
	"strings"
)

// ExtractAddress returns the address part of a From style header value.
// Both "jane@example.com" and "Jane Doe <jane@example.com>" are accepted.
func ExtractAddress(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}

	if addr, err := mail.ParseAddress(header); err == nil {
		return strings.ToLower(addr.Address)
	}

	// Handle potential angle brackets in malformed headers (e.g., Jane <jane@domain.com)
	if strings.Contains(header, "<") && strings.Contains(header, ">") {
		startIdx := strings.LastIndex(header, "<") + 1
		endIdx := strings.LastIndex(header, ">")
		if startIdx > 0 && endIdx > startIdx {
			header = header[startIdx:endIdx]
		}
	}

	header = strings.Trim(strings.TrimSpace(header), "\"'")
	if strings.Count(header, "@") != 1 {
		return ""
	}
	return strings.ToLower(header)
}

func ExtractDomainFromEmail(email string) string {
	address := ExtractAddress(email)
	if address == "" {
		return ""
	}

	parts := strings.Split(address, "@")
	if len(parts) != 2 {
		return ""
	}

	return strings.TrimSuffix(strings.TrimSpace(parts[1]), ".")
}

// FormatAddress renders a mailbox the way it appears in a From header.
func FormatAddress(name, address string) string {
	if address == "" {
		return ""
	}
	if name == "" {
		return address
	}
	return (&mail.Address{Name: name, Address: address}).String()
}
