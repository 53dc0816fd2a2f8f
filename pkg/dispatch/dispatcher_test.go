package dispatch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	logaction "github.com/dukex/automata/pkg/actions/log"
	"github.com/dukex/automata/pkg/actions/webhook"
	"github.com/dukex/automata/pkg/dispatch"
	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/protocol"
	"github.com/dukex/automata/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLogs struct {
	mu      sync.Mutex
	rows    map[string]models.ActionLog
	created int
	deleted int
}

func newMemoryLogs() *memoryLogs {
	return &memoryLogs{rows: map[string]models.ActionLog{}}
}

func (m *memoryLogs) Create(_ context.Context, log *models.ActionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows[log.ID] = *log
	m.created++

	return nil
}

func (m *memoryLogs) Update(_ context.Context, log *models.ActionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows[log.ID] = *log

	return nil
}

func (m *memoryLogs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rows, id)
	m.deleted++

	return nil
}

func (m *memoryLogs) all() []models.ActionLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([]models.ActionLog, 0, len(m.rows))
	for _, row := range m.rows {
		rows = append(rows, row)
	}

	return rows
}

type recorder struct {
	outcomes []string
}

func (r *recorder) ActionDispatched(actionType, outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, actionType+":"+outcome)
}

type stubFactory struct {
	id      string
	handler protocol.ActionHandler
	err     error
}

func (s *stubFactory) ID() string                    { return s.id }
func (s *stubFactory) Name() string                  { return s.id }
func (s *stubFactory) Description() string           { return "" }
func (s *stubFactory) Schema() map[string]any        { return nil }
func (s *stubFactory) Validate(map[string]any) error { return s.err }

func (s *stubFactory) Create(map[string]any) (protocol.ActionHandler, error) {
	if s.err != nil {
		return nil, s.err
	}

	return s.handler, nil
}

type handlerFunc func(ctx context.Context, req *protocol.Request) (map[string]any, error)

func (f handlerFunc) Handle(ctx context.Context, req *protocol.Request) (map[string]any, error) {
	return f(ctx, req)
}

func setup(t *testing.T) (*dispatch.Dispatcher, *registry.Registry, *memoryLogs, *recorder) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.NewRegistry(logger)
	reg.RegisterAction(webhook.NewActionFactory(logger))
	reg.RegisterAction(logaction.NewActionFactory(logger))

	logs := newMemoryLogs()
	rec := &recorder{}

	return dispatch.NewDispatcher(reg, logs, logger, dispatch.WithRecorder(rec)), reg, logs, rec
}

func server(t *testing.T, status int) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return srv
}

var trigger = &models.Trigger{ID: "trigger-1", Name: "Paid orders"}

func TestDispatch_LogActionAlwaysKeepsSuccess(t *testing.T) {
	t.Parallel()

	dispatcher, _, logs, rec := setup(t)

	action := &models.Action{ID: "a-log", Type: "log", Config: map[string]any{}}

	outcome, err := dispatcher.Dispatch(context.Background(), trigger, action, map[string]any{"status": "paid"}, "order.paid")
	require.NoError(t, err)
	require.NotNil(t, outcome.Log)
	assert.True(t, outcome.Delivered)

	rows := logs.all()
	require.Len(t, rows, 1)
	assert.Equal(t, models.ActionLogStatusSuccess, rows[0].Status)
	assert.Equal(t, "trigger-1", rows[0].TriggerID)
	assert.Equal(t, "a-log", rows[0].ActionID)
	assert.Equal(t, "order.paid", rows[0].EventIdentifier)
	assert.Equal(t, 1, rows[0].Attempt)
	assert.Equal(t, []string{"log:success"}, rec.outcomes)
}

func TestDispatch_WebhookSuccessIsDiscarded(t *testing.T) {
	t.Parallel()

	dispatcher, _, logs, _ := setup(t)
	srv := server(t, http.StatusOK)

	action := &models.Action{ID: "a-hook", Type: "webhook", Config: map[string]any{"url": srv.URL}}
	payload := map[string]any{"status": "paid"}

	outcome, err := dispatcher.Dispatch(context.Background(), trigger, action, payload, "order.paid")
	require.NoError(t, err)
	assert.Nil(t, outcome.Log)
	assert.True(t, outcome.Delivered)
	assert.Nil(t, outcome.Output)

	assert.Empty(t, logs.all())
	assert.Equal(t, 1, logs.created)
	assert.Equal(t, 1, logs.deleted)
}

func TestDispatch_WebhookSuccessKeptWhenOptedIn(t *testing.T) {
	t.Parallel()

	dispatcher, _, logs, _ := setup(t)
	srv := server(t, http.StatusOK)

	action := &models.Action{ID: "a-hook", Type: "webhook", Config: map[string]any{"url": srv.URL, "log_success": true}}

	outcome, err := dispatcher.Dispatch(context.Background(), trigger, action, map[string]any{}, "order.paid")
	require.NoError(t, err)
	require.NotNil(t, outcome.Log)

	rows := logs.all()
	require.Len(t, rows, 1)
	assert.Equal(t, models.ActionLogStatusSuccess, rows[0].Status)
	assert.Equal(t, http.StatusOK, rows[0].Response["status_code"])
}

func TestDispatch_WebhookFailureIsKept(t *testing.T) {
	t.Parallel()

	dispatcher, _, logs, rec := setup(t)
	srv := server(t, http.StatusBadGateway)

	action := &models.Action{ID: "a-hook", Type: "webhook", Config: map[string]any{"url": srv.URL}}

	outcome, err := dispatcher.Dispatch(context.Background(), trigger, action, map[string]any{}, "order.paid")
	require.NoError(t, err)
	assert.False(t, outcome.Delivered)

	rows := logs.all()
	require.Len(t, rows, 1)
	assert.Equal(t, models.ActionLogStatusFailed, rows[0].Status)
	assert.Equal(t, "HTTP 502: Bad Gateway", rows[0].Message)
	assert.Equal(t, []string{"webhook:failed"}, rec.outcomes)
}

func TestDispatch_UnknownActionType(t *testing.T) {
	t.Parallel()

	dispatcher, _, logs, rec := setup(t)

	action := &models.Action{ID: "a-x", Type: "fax"}

	_, err := dispatcher.Dispatch(context.Background(), trigger, action, map[string]any{}, "order.paid")
	require.ErrorIs(t, err, dispatch.ErrUnknownActionType)

	rows := logs.all()
	require.Len(t, rows, 1)
	assert.Equal(t, models.ActionLogStatusFailed, rows[0].Status)
	assert.Contains(t, rows[0].Message, "fax")
	assert.Equal(t, []string{"fax:error"}, rec.outcomes)
}

func TestDispatch_InvalidConfig(t *testing.T) {
	t.Parallel()

	dispatcher, _, logs, _ := setup(t)

	action := &models.Action{ID: "a-hook", Type: "webhook", Config: map[string]any{}}

	_, err := dispatcher.Dispatch(context.Background(), trigger, action, map[string]any{}, "order.paid")
	require.ErrorIs(t, err, dispatch.ErrInvalidAction)
	require.ErrorIs(t, err, webhook.ErrInvalidConfig)

	rows := logs.all()
	require.Len(t, rows, 1)
	assert.Equal(t, models.ActionLogStatusFailed, rows[0].Status)
}

func TestDispatch_HandlerErrorAndPanic(t *testing.T) {
	t.Parallel()

	dispatcher, reg, logs, _ := setup(t)

	boom := errors.New("boom")
	reg.RegisterAction(&stubFactory{id: "broken", handler: handlerFunc(func(context.Context, *protocol.Request) (map[string]any, error) {
		return nil, boom
	})})
	reg.RegisterAction(&stubFactory{id: "panicky", handler: handlerFunc(func(context.Context, *protocol.Request) (map[string]any, error) {
		panic("nil map")
	})})

	_, err := dispatcher.Dispatch(context.Background(), trigger, &models.Action{ID: "a-1", Type: "broken"}, nil, "e")
	require.ErrorIs(t, err, boom)

	_, err = dispatcher.Dispatch(context.Background(), trigger, &models.Action{ID: "a-2", Type: "panicky", Config: map[string]any{"log_success": true}}, nil, "e")
	require.ErrorIs(t, err, dispatch.ErrHandlerPanic)

	rows := logs.all()
	require.Len(t, rows, 2)

	for _, row := range rows {
		assert.Equal(t, models.ActionLogStatusFailed, row.Status)
		assert.NotEmpty(t, row.Message)
	}
}

func TestDispatch_OutputThreading(t *testing.T) {
	t.Parallel()

	dispatcher, reg, _, _ := setup(t)

	reg.RegisterAction(&stubFactory{id: "shape", handler: handlerFunc(func(_ context.Context, req *protocol.Request) (map[string]any, error) {
		return map[string]any{
			protocol.ResponseSuccess: true,
			protocol.ResponseOutput:  map[string]any{"wrapped": req.Payload},
		}, nil
	})})

	outcome, err := dispatcher.Dispatch(context.Background(), trigger, &models.Action{ID: "a", Type: "shape"}, map[string]any{"a": 1}, "e")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"wrapped": map[string]any{"a": 1}}, outcome.Output)
}

func TestDispatch_MonitoringCapabilityIsNotTiedToTypeName(t *testing.T) {
	t.Parallel()

	dispatcher, reg, logs, _ := setup(t)
	reg.RegisterAction(&auditFactory{stubFactory{id: "audit", handler: handlerFunc(func(context.Context, *protocol.Request) (map[string]any, error) {
		return nil, nil
	})}})

	outcome, err := dispatcher.Dispatch(context.Background(), trigger, &models.Action{ID: "a", Type: "audit"}, map[string]any{}, "e")
	require.NoError(t, err)
	require.NotNil(t, outcome.Log)
	assert.Len(t, logs.all(), 1)
}

type auditFactory struct{ stubFactory }

func (*auditFactory) AlwaysLogSuccess() bool { return true }
