package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/customeros/mailscope/internal/enum"
	"github.com/customeros/mailscope/internal/utils"
)

// Message is append-only: it is written once per (account, message id).
type Message struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID string `gorm:"column:account_id;type:varchar(50);not null;uniqueIndex:idx_messages_account_message,priority:1" json:"accountId"`
	MessageID string `gorm:"column:message_id;type:varchar(998);not null;uniqueIndex:idx_messages_account_message,priority:2" json:"messageId"`
	Folder    string `gorm:"column:folder;type:varchar(255);index;not null" json:"folder"`
	ImapUID   uint32 `gorm:"column:imap_uid" json:"imapUid"`
	SeqNum    uint32 `gorm:"column:seq_num" json:"seqNum"`

	// Envelope
	Subject      string         `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	FromHeader   string         `gorm:"column:from_header;type:varchar(500)" json:"fromHeader"`
	FromAddress  string         `gorm:"column:from_address;type:varchar(255);index" json:"fromAddress"`
	FromName     string         `gorm:"column:from_name;type:varchar(255)" json:"fromName"`
	ToAddresses  pq.StringArray `gorm:"column:to_addresses;type:text[]" json:"toAddresses"`
	CcAddresses  pq.StringArray `gorm:"column:cc_addresses;type:text[]" json:"ccAddresses"`
	BccAddresses pq.StringArray `gorm:"column:bcc_addresses;type:text[]" json:"bccAddresses"`
	SentAt       *time.Time     `gorm:"column:sent_at;type:timestamp;index" json:"sentAt"`
	ReceivedAt   *time.Time     `gorm:"column:received_at;type:timestamp;index" json:"receivedAt"`

	// Content
	BodyText string         `gorm:"column:body_text;type:text" json:"bodyText"`
	BodyHTML string         `gorm:"column:body_html;type:text" json:"bodyHtml"`
	Content  string         `gorm:"column:content;type:text" json:"content"`
	Flags    pq.StringArray `gorm:"column:flags;type:text[]" json:"flags"`
	Size     uint32         `gorm:"column:size" json:"size"`

	Analysis Analysis `gorm:"embedded;embeddedPrefix:analysis_" json:"analysis"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("msg", 24)
	}
	m.CreatedAt = utils.Now()
	return nil
}

type Analysis struct {
	SendingDomain       string              `gorm:"column:sending_domain;type:varchar(255);index" json:"sendingDomain"`
	ESPType             enum.ESPType        `gorm:"column:esp_type;type:varchar(50);index" json:"espType"`
	ESPName             string              `gorm:"column:esp_name;type:varchar(100)" json:"espName"`
	SendingServer       string              `gorm:"column:sending_server;type:varchar(255)" json:"sendingServer"`
	IsOpenRelay         bool                `gorm:"column:is_open_relay;not null;default:false" json:"isOpenRelay"`
	SupportsTLS         bool                `gorm:"column:supports_tls;not null;default:false" json:"supportsTls"`
	HasValidCertificate bool                `gorm:"column:has_valid_certificate;not null;default:false" json:"hasValidCertificate"`
	CertificateDetails  *CertificateDetails `gorm:"column:certificate_details;type:jsonb;serializer:json" json:"certificateDetails"`
	TimeDeltaMs         *int64              `gorm:"column:time_delta_ms" json:"timeDeltaMs"`
	SearchableText      string              `gorm:"column:searchable_text;type:text" json:"-"`
}

type CertificateDetails struct {
	Issuer      string    `json:"issuer"`
	Subject     string    `json:"subject"`
	ValidFrom   time.Time `json:"validFrom"`
	ValidTo     time.Time `json:"validTo"`
	Fingerprint string    `json:"fingerprint"`
}

// UnknownAnalysis is the result used when enrichment cannot determine anything.
func UnknownAnalysis() Analysis {
	return Analysis{
		ESPType: enum.ESPCustom,
		ESPName: "Custom/Unknown",
	}
}
