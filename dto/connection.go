package dto

import (
	"fmt"

	"github.com/customeros/mailscope/internal/enum"
	"github.com/customeros/mailscope/internal/models"
)

type ConnectionParams struct {
	Host       string
	Port       int
	Username   string
	Password   string
	OAuthToken string
	AuthMethod enum.AuthMethod
	TLS        bool
}

func (p ConnectionParams) Address() string {
	port := p.Port
	if port == 0 {
		port = 143
		if p.TLS {
			port = 993
		}
	}
	return fmt.Sprintf("%s:%d", p.Host, port)
}

func NewConnectionParams(account *models.Account) ConnectionParams {
	username := account.ImapUsername
	if username == "" {
		username = account.EmailAddress
	}
	return ConnectionParams{
		Host:       account.ImapServer,
		Port:       account.ImapPort,
		Username:   username,
		Password:   account.ImapPassword,
		OAuthToken: account.OAuthToken,
		AuthMethod: account.AuthMethod,
		TLS:        account.ImapTLS,
	}
}
