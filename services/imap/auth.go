package imap

import (
	"fmt"

	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/pkg/errors"

	"github.com/customeros/mailscope/dto"
	"github.com/customeros/mailscope/internal/enum"
)

const xoauth2 = "XOAUTH2"

// authenticator runs one of the supported login handshakes on a freshly dialed client.
type authenticator interface {
	method() enum.AuthMethod
	authenticate(c *client.Client) error
}

func newAuthenticator(params dto.ConnectionParams) (authenticator, error) {
	switch params.AuthMethod {
	case enum.AuthMethodOAuth2:
		if params.OAuthToken == "" {
			return nil, errors.New("oauth2 account has no access token")
		}
		return &oauth2Auth{username: params.Username, token: params.OAuthToken}, nil
	case enum.AuthMethodLogin:
		return &loginAuth{username: params.Username, password: params.Password}, nil
	case enum.AuthMethodPassword, "":
		if params.Password == "" {
			return nil, errors.New("password account has no password")
		}
		return &passwordAuth{username: params.Username, password: params.Password}, nil
	default:
		return nil, fmt.Errorf("unsupported auth method %q", params.AuthMethod)
	}
}

// passwordAuth prefers SASL PLAIN and falls back to LOGIN when the server does not offer it.
type passwordAuth struct {
	username string
	password string
}

func (a *passwordAuth) method() enum.AuthMethod {
	return enum.AuthMethodPassword
}

func (a *passwordAuth) authenticate(c *client.Client) error {
	if ok, _ := c.SupportAuth(sasl.Plain); ok {
		return c.Authenticate(sasl.NewPlainClient("", a.username, a.password))
	}
	return c.Login(a.username, a.password)
}

type oauth2Auth struct {
	username string
	token    string
}

func (a *oauth2Auth) method() enum.AuthMethod {
	return enum.AuthMethodOAuth2
}

func (a *oauth2Auth) authenticate(c *client.Client) error {
	if ok, _ := c.SupportAuth(sasl.OAuthBearer); ok {
		return c.Authenticate(sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: a.username,
			Token:    a.token,
		}))
	}
	return c.Authenticate(&xoauth2Client{username: a.username, token: a.token})
}

type loginAuth struct {
	username string
	password string
}

func (a *loginAuth) method() enum.AuthMethod {
	return enum.AuthMethodLogin
}

func (a *loginAuth) authenticate(c *client.Client) error {
	return c.Login(a.username, a.password)
}

// xoauth2Client is the pre-standard bearer mechanism still required by some providers.
type xoauth2Client struct {
	username string
	token    string
}

func (x *xoauth2Client) Start() (string, []byte, error) {
	ir := []byte("user=" + x.username + "\x01auth=Bearer " + x.token + "\x01\x01")
	return xoauth2, ir, nil
}

// Next receives the JSON error document the server sends on failure; an empty
// response lets the server finish the exchange with a tagged NO.
func (x *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return []byte{}, nil
}
