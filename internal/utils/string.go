package utils

import (
	"fmt"
	"strings"
)

// CollapseWhitespace replaces every run of whitespace with a single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SyntheticMessageID builds a stable id for messages that arrive without a Message-ID header.
func SyntheticMessageID(uid uint32, folder, identity string) string {
	return fmt.Sprintf("<uid.%d.%s@%s>", uid, folder, identity)
}

// RawMessageKey is the archive object key of a stored message.
func RawMessageKey(accountID, messageID string) string {
	return fmt.Sprintf("%s/%s.eml", accountID, messageID)
}
