package credentials_test

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"sync"
	"testing"
	"time"

	"github.com/dukex/automata/pkg/credentials"
	"github.com/dukex/automata/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCredentials struct {
	mu       sync.Mutex
	byID     map[string]*models.Credential
	lastUsed map[string]time.Time
	errors   map[string]string
}

func newMemoryCredentials(creds ...*models.Credential) *memoryCredentials {
	store := &memoryCredentials{
		byID:     map[string]*models.Credential{},
		lastUsed: map[string]time.Time{},
		errors:   map[string]string{},
	}

	for _, cred := range creds {
		store.byID[cred.ID] = cred
	}

	return store
}

func (m *memoryCredentials) GetByID(_ context.Context, id string) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.byID[id]
	if !ok {
		return nil, errors.New("not found")
	}

	return cred, nil
}

func (m *memoryCredentials) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastUsed[id] = at

	return nil
}

func (m *memoryCredentials) MarkError(_ context.Context, id string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errors[id] = message

	return nil
}

type memoryAccessLogs struct {
	mu      sync.Mutex
	entries map[string]models.CredentialAccessLog
	order   []string
}

func newMemoryAccessLogs() *memoryAccessLogs {
	return &memoryAccessLogs{entries: map[string]models.CredentialAccessLog{}}
}

func (m *memoryAccessLogs) Append(_ context.Context, entry *models.CredentialAccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entry.ID] = *entry
	m.order = append(m.order, entry.ID)

	return nil
}

func (m *memoryAccessLogs) Update(_ context.Context, entry *models.CredentialAccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entry.ID] = *entry

	return nil
}

func (m *memoryAccessLogs) all() []models.CredentialAccessLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]models.CredentialAccessLog, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.entries[id])
	}

	return result
}

func apiToken() *models.Credential {
	return &models.Credential{
		ID:     "cred-api",
		Name:   "Billing API",
		Type:   models.CredentialTypeAPIToken,
		Status: models.CredentialStatusActive,
		Data:   models.NewSecretData(map[string]string{"token": "tok_live_123"}),
	}
}

func smtpLogin() *models.Credential {
	return &models.Credential{
		ID:     "cred-smtp",
		Name:   "Mailer",
		Type:   models.CredentialTypeBasicAuth,
		Status: models.CredentialStatusActive,
		Data: models.NewSecretData(map[string]string{
			"host": "smtp.example.com", "port": "2525", "username": "mailer", "password": "hunter2", "from": "noreply@example.com",
		}),
	}
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newFactory(store *memoryCredentials, logs *memoryAccessLogs, opts ...credentials.Option) *credentials.Factory {
	opts = append([]credentials.Option{credentials.WithClock(func() time.Time { return fixedNow })}, opts...)

	return credentials.NewFactory(store, logs, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func TestProxy_ScopeEnforcement(t *testing.T) {
	t.Parallel()

	store := newMemoryCredentials(apiToken())
	logs := newMemoryAccessLogs()
	factory := newFactory(store, logs)

	proxy, err := factory.For(context.Background(), "cred-api", credentials.AccessContext{
		Caller:        "webhook:a1",
		AllowedScopes: []string{"api.request"},
	})
	require.NoError(t, err)

	_, err = proxy.Execute(context.Background(), credentials.ActionGetSMTPClient, nil)
	require.Error(t, err)
	assert.True(t, credentials.IsUnauthorized(err))

	var unauthorized *credentials.UnauthorizedAccessError
	require.ErrorAs(t, err, &unauthorized)
	assert.Equal(t, "Billing API", unauthorized.Credential)
	assert.Equal(t, "webhook:a1", unauthorized.Caller)
	assert.NotContains(t, err.Error(), "tok_live_123")

	client, err := proxy.Execute(context.Background(), credentials.ActionGetAPIClient, map[string]any{"base_url": "https://api.example.com"})
	require.NoError(t, err)

	apiClient, ok := client.(*credentials.APIClient)
	require.True(t, ok)
	assert.Equal(t, "https://api.example.com", apiClient.BaseURL())

	req := httptest.NewRequest(http.MethodGet, "https://api.example.com", nil)
	apiClient.Authorize(req)
	assert.Equal(t, "Bearer tok_live_123", req.Header.Get("Authorization"))

	entries := logs.all()
	require.Len(t, entries, 2)

	assert.Equal(t, models.CredentialAccessDenied, entries[0].Status)
	assert.True(t, entries[0].IsSuspicious)
	require.NotNil(t, entries[0].SuspiciousReason)

	assert.Equal(t, models.CredentialAccessSuccess, entries[1].Status)
	assert.False(t, entries[1].IsSuspicious)
	assert.Equal(t, fixedNow, store.lastUsed["cred-api"])
}

func TestProxy_OpenModeAllowsEverything(t *testing.T) {
	t.Parallel()

	store := newMemoryCredentials(smtpLogin())
	logs := newMemoryAccessLogs()

	proxy, err := newFactory(store, logs).For(context.Background(), "cred-smtp", credentials.AccessContext{Caller: "email:a2"})
	require.NoError(t, err)

	client, err := proxy.Execute(context.Background(), credentials.ActionGetSMTPClient, nil)
	require.NoError(t, err)

	smtpClient, ok := client.(*credentials.SMTPClient)
	require.True(t, ok)
	assert.Equal(t, "smtp.example.com:2525", smtpClient.Addr())
	assert.Equal(t, "noreply@example.com", smtpClient.From())
}

func TestProxy_TypeMismatch(t *testing.T) {
	t.Parallel()

	store := newMemoryCredentials(apiToken())
	logs := newMemoryAccessLogs()

	proxy, err := newFactory(store, logs).For(context.Background(), "cred-api", credentials.AccessContext{})
	require.NoError(t, err)

	_, err = proxy.Execute(context.Background(), credentials.ActionGetSMTPClient, nil)
	require.Error(t, err)
	assert.True(t, credentials.IsUnsupportedAction(err))

	entries := logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, models.CredentialAccessFailed, entries[0].Status)
	assert.False(t, entries[0].IsSuspicious)
	assert.Contains(t, store.errors["cred-api"], "get_smtp_client")
}

func TestProxy_UnknownAction(t *testing.T) {
	t.Parallel()

	store := newMemoryCredentials(apiToken())
	logs := newMemoryAccessLogs()

	proxy, err := newFactory(store, logs).For(context.Background(), "cred-api", credentials.AccessContext{})
	require.NoError(t, err)

	_, err = proxy.Execute(context.Background(), "dump_secrets", nil)
	assert.True(t, credentials.IsUnsupportedAction(err))

	entries := logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, models.CredentialAccessFailed, entries[0].Status)
}

func TestProxy_FailureRecordsErrorState(t *testing.T) {
	t.Parallel()

	broken := apiToken()
	broken.Data = models.NewSecretData(map[string]string{})

	store := newMemoryCredentials(broken)
	logs := newMemoryAccessLogs()

	proxy, err := newFactory(store, logs).For(context.Background(), "cred-api", credentials.AccessContext{})
	require.NoError(t, err)

	_, err = proxy.Execute(context.Background(), credentials.ActionGetAPIClient, nil)
	require.ErrorIs(t, err, credentials.ErrMissingSecret)

	assert.Contains(t, store.errors["cred-api"], "token")
	assert.NotContains(t, store.lastUsed, "cred-api")

	entries := logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, models.CredentialAccessFailed, entries[0].Status)
	require.NotNil(t, entries[0].ErrorMessage)
}

func TestProxy_RevokedAndExpiredAreSuspicious(t *testing.T) {
	t.Parallel()

	revoked := apiToken()
	revoked.Status = models.CredentialStatusRevoked

	expired := apiToken()
	expired.ID = "cred-expired"
	past := fixedNow.Add(-time.Hour)
	expired.ExpiresAt = &past

	store := newMemoryCredentials(revoked, expired)
	logs := newMemoryAccessLogs()
	factory := newFactory(store, logs)

	for id, target := range map[string]error{"cred-api": credentials.ErrCredentialRevoked, "cred-expired": credentials.ErrCredentialExpired} {
		proxy, err := factory.For(context.Background(), id, credentials.AccessContext{})
		require.NoError(t, err)

		_, err = proxy.Execute(context.Background(), credentials.ActionGetAPIClient, nil)
		require.ErrorIs(t, err, target)
	}

	for _, entry := range logs.all() {
		assert.Equal(t, models.CredentialAccessFailed, entry.Status)
		assert.True(t, entry.IsSuspicious)
	}

	assert.Contains(t, store.errors, "cred-api")
	assert.Contains(t, store.errors, "cred-expired")
}

func TestProxy_ParamsAreRedactedBeforeStorage(t *testing.T) {
	t.Parallel()

	store := newMemoryCredentials(apiToken())
	logs := newMemoryAccessLogs()

	proxy, err := newFactory(store, logs).For(context.Background(), "cred-api", credentials.AccessContext{
		NodeID:     "action-1",
		WorkflowID: "trigger-1",
		IPAddress:  "10.0.0.1",
	})
	require.NoError(t, err)

	_, err = proxy.Execute(context.Background(), credentials.ActionGetAPIClient, map[string]any{
		"base_url": "https://api.example.com",
		"auth":     map[string]any{"password": "p@ss", "user": "bob"},
		"api_key":  "abc",
	})
	require.NoError(t, err)

	entry := logs.all()[0]
	assert.Equal(t, credentials.Redacted, entry.Params["api_key"])
	assert.Equal(t, map[string]any{"password": credentials.Redacted, "user": "bob"}, entry.Params["auth"])
	assert.Equal(t, "https://api.example.com", entry.Params["base_url"])
	require.NotNil(t, entry.NodeID)
	assert.Equal(t, "action-1", *entry.NodeID)
	require.NotNil(t, entry.IPAddress)
	assert.Nil(t, entry.UserAgent)
}

func TestProxy_RefusesSerialization(t *testing.T) {
	t.Parallel()

	store := newMemoryCredentials(apiToken())
	proxy, err := newFactory(store, newMemoryAccessLogs()).For(context.Background(), "cred-api", credentials.AccessContext{Caller: "webhook:a1"})
	require.NoError(t, err)

	_, err = json.Marshal(proxy)
	require.ErrorIs(t, err, credentials.ErrSerializationRefused)
	assert.EqualError(t, credentials.ErrSerializationRefused, "cannot serialize credential-bearing object")

	_, err = proxy.MarshalText()
	require.ErrorIs(t, err, credentials.ErrSerializationRefused)

	err = gob.NewEncoder(&bytes.Buffer{}).Encode(proxy)
	require.ErrorIs(t, err, credentials.ErrSerializationRefused)

	for _, rendered := range []string{
		fmt.Sprintf("%v", proxy),
		fmt.Sprintf("%+v", proxy),
		fmt.Sprintf("%#v", proxy),
		proxy.String(),
	} {
		assert.NotContains(t, rendered, "tok_live_123")
		assert.Contains(t, rendered, "cred-api")
	}

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("using", "proxy", proxy)
	assert.NotContains(t, buf.String(), "tok_live_123")
	assert.Contains(t, buf.String(), "webhook:a1")

	client, err := proxy.Execute(context.Background(), credentials.ActionGetAPIClient, nil)
	require.NoError(t, err)

	_, err = json.Marshal(client)
	require.ErrorIs(t, err, credentials.ErrSerializationRefused)
	assert.NotContains(t, fmt.Sprintf("%+v", client), "tok_live_123")
}

func TestSMTPClient_Send(t *testing.T) {
	t.Parallel()

	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotAuth smtp.Auth
	)

	sender := func(addr string, auth smtp.Auth, from string, to []string, _ []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo = addr, auth, from, to

		return nil
	}

	store := newMemoryCredentials(smtpLogin())
	proxy, err := newFactory(store, newMemoryAccessLogs(), credentials.WithSMTPSender(sender)).
		For(context.Background(), "cred-smtp", credentials.AccessContext{AllowedScopes: []string{"smtp.send"}})
	require.NoError(t, err)

	client, err := proxy.Execute(context.Background(), credentials.ActionGetSMTPClient, nil)
	require.NoError(t, err)

	smtpClient := client.(*credentials.SMTPClient)

	require.NoError(t, smtpClient.Send("", []string{"ops@example.com"}, []byte("hi")))
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.NotNil(t, gotAuth)

	assert.Error(t, smtpClient.Send("", nil, []byte("hi")))
	assert.Error(t, smtpClient.Send("", []string{"a@example.com\r\nBcc: x"}, []byte("hi")))
}

func TestProxy_ConcurrentUseKeepsEveryLogRow(t *testing.T) {
	t.Parallel()

	store := newMemoryCredentials(apiToken())
	logs := newMemoryAccessLogs()
	factory := newFactory(store, logs)

	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			proxy := factory.Wrap(apiToken(), credentials.AccessContext{})
			_, _ = proxy.Execute(context.Background(), credentials.ActionGetAPIClient, nil)
		}()
	}

	wg.Wait()

	entries := logs.all()
	require.Len(t, entries, 20)

	for _, entry := range entries {
		assert.Equal(t, models.CredentialAccessSuccess, entry.Status)
	}
}
