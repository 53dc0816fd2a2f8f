package credentials

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/smtp"
	"strings"
)

// sealed refuses every serialization hook. Client types embed it.
type sealed struct{}

func (sealed) MarshalJSON() ([]byte, error) { return nil, ErrSerializationRefused }
func (sealed) MarshalText() ([]byte, error) { return nil, ErrSerializationRefused }
func (sealed) GobEncode() ([]byte, error)   { return nil, ErrSerializationRefused }

// APIClient authenticates outbound requests with an API token.
type APIClient struct {
	sealed

	credentialID string
	baseURL      string
	header       string
	scheme       string
	token        string
	http         *http.Client
}

// BaseURL returns the configured base URL, if any.
func (c *APIClient) BaseURL() string { return c.baseURL }

// Authorize sets the credential header on req.
func (c *APIClient) Authorize(req *http.Request) {
	if c.scheme == "" {
		req.Header.Set(c.header, c.token)

		return
	}

	req.Header.Set(c.header, c.scheme+" "+c.token)
}

// Do authorizes and sends req.
func (c *APIClient) Do(req *http.Request) (*http.Response, error) {
	c.Authorize(req)

	return c.http.Do(req)
}

func (c *APIClient) String() string {
	return fmt.Sprintf("APIClient(credential=%s)", c.credentialID)
}

func (c *APIClient) GoString() string { return c.String() }

func (c *APIClient) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

// HTTPClient authenticates outbound requests with basic auth.
type HTTPClient struct {
	sealed

	credentialID string
	username     string
	password     string
	http         *http.Client
}

func (c *HTTPClient) Username() string { return c.username }

func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(c.username, c.password)

	return c.http.Do(req)
}

func (c *HTTPClient) String() string {
	return fmt.Sprintf("HTTPClient(credential=%s user=%s)", c.credentialID, c.username)
}

func (c *HTTPClient) GoString() string { return c.String() }

func (c *HTTPClient) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

// OAuthClient authenticates outbound requests with an OAuth2 access token.
type OAuthClient struct {
	sealed

	credentialID string
	clientID     string
	tokenType    string
	accessToken  string
	http         *http.Client
}

func (c *OAuthClient) ClientID() string { return c.clientID }

func (c *OAuthClient) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", c.tokenType+" "+c.accessToken)

	return c.http.Do(req)
}

func (c *OAuthClient) String() string {
	return fmt.Sprintf("OAuthClient(credential=%s client_id=%s)", c.credentialID, c.clientID)
}

func (c *OAuthClient) GoString() string { return c.String() }

func (c *OAuthClient) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

// SendFunc delivers a message. smtp.SendMail satisfies it.
type SendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPClient sends mail through an authenticated SMTP relay.
type SMTPClient struct {
	sealed

	credentialID string
	host         string
	port         string
	from         string
	username     string
	password     string
	send         SendFunc
}

func (c *SMTPClient) Addr() string { return net.JoinHostPort(c.host, c.port) }

// From returns the default sender address.
func (c *SMTPClient) From() string { return c.from }

// Send delivers msg. An empty from falls back to the credential's sender.
func (c *SMTPClient) Send(from string, to []string, msg []byte) error {
	if from == "" {
		from = c.from
	}

	if len(to) == 0 {
		return fmt.Errorf("smtp: no recipients")
	}

	for _, recipient := range to {
		if strings.ContainsAny(recipient, "\r\n") {
			return fmt.Errorf("smtp: invalid recipient %q", recipient)
		}
	}

	var auth smtp.Auth
	if c.username != "" {
		auth = smtp.PlainAuth("", c.username, c.password, c.host)
	}

	return c.send(c.Addr(), auth, from, to, msg)
}

func (c *SMTPClient) String() string {
	return fmt.Sprintf("SMTPClient(credential=%s addr=%s)", c.credentialID, c.Addr())
}

func (c *SMTPClient) GoString() string { return c.String() }

func (c *SMTPClient) LogValue() slog.Value {
	return slog.StringValue(c.String())
}
