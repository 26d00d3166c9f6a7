package models

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailscope/internal/enum"
	"github.com/customeros/mailscope/internal/utils"
)

// Account is owned by the account management service; sync only updates
// the connectivity and sync bookkeeping columns.
type Account struct {
	ID           string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	EmailAddress string `gorm:"column:email_address;type:varchar(255);index;not null" json:"emailAddress"`
	DisplayName  string `gorm:"column:display_name;type:varchar(255)" json:"displayName"`
	// IMAP Configuration
	ImapServer   string          `gorm:"column:imap_server;type:varchar(255);not null" json:"imapServer"`
	ImapPort     int             `gorm:"column:imap_port;not null" json:"imapPort"`
	ImapUsername string          `gorm:"column:imap_username;type:varchar(255);not null" json:"imapUsername"`
	ImapPassword string          `gorm:"column:imap_password;type:varchar(255)" json:"-"`
	ImapTLS      bool            `gorm:"column:imap_tls;not null;default:true" json:"imapTls"`
	AuthMethod   enum.AuthMethod `gorm:"column:auth_method;type:varchar(20);not null;default:password" json:"authMethod"`
	OAuthToken   string          `gorm:"column:oauth_token;type:text" json:"-"`
	// Status Information
	IsActive     bool       `gorm:"column:is_active;not null;default:true;index" json:"isActive"`
	IsConnected  bool       `gorm:"column:is_connected;not null;default:false" json:"isConnected"`
	ErrorMessage string     `gorm:"column:error_message;type:text" json:"errorMessage"`
	LastSyncedAt *time.Time `gorm:"column:last_synced_at;type:timestamp" json:"lastSyncedAt"`
	SyncedEmails int64      `gorm:"column:synced_emails;not null;default:0" json:"syncedEmails"`
	// Standard timestamps
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}
	return nil
}

// Identity is the connection pool key for the account.
func (a *Account) Identity() string {
	return strings.ToLower(strings.TrimSpace(a.EmailAddress)) + "@" + strings.ToLower(strings.TrimSpace(a.ImapServer))
}
