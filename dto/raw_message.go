package dto

import "time"

// RawMessage is one fetched message. Fields the server did not provide stay zero.
type RawMessage struct {
	Folder       string
	SeqNum       uint32
	UID          uint32
	Flags        []string
	InternalDate time.Time
	Size         uint32

	MessageID   string
	Subject     string
	FromHeader  string
	FromName    string
	FromAddress string
	To          []string
	Cc          []string
	Bcc         []string
	SentAt      time.Time

	Text    string
	HTML    string
	Content string

	Raw []byte
}
