package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dukex/automata/pkg/credentials"
	"github.com/dukex/automata/pkg/protocol"
)

const maxResponseBody = 10000

var errServerStatus = errors.New("endpoint returned a server error")

// Action is a configured webhook delivery.
type Action struct {
	config  *Config
	factory *ActionFactory
}

type delivery struct {
	statusCode int
	body       any
	duration   time.Duration
}

// Handle sends the payload. Transport errors and non-2xx responses come back as
// a response with success=false; only credential and encoding problems are errors.
func (a *Action) Handle(ctx context.Context, req *protocol.Request) (map[string]any, error) {
	logger := a.factory.logger.With("url", a.config.URL, "event", req.EventIdentifier)

	body := Body(a.config.PayloadMode, req.EventIdentifier, req.Payload, a.factory.now())

	encoded, err := Encode(body)
	if err != nil {
		return nil, err
	}

	if req.Log != nil {
		req.Log.Payload = body
	}

	httpReq, cancel, err := a.buildRequest(ctx, req, encoded)
	if err != nil {
		return nil, err
	}
	defer cancel()

	key := a.config.URL
	if req.Action != nil && req.Action.ID != "" {
		key = req.Action.ID
	}

	start := time.Now()

	result, err := a.factory.breaker(key).Execute(func() (any, error) {
		return a.send(httpReq)
	})

	d, _ := result.(*delivery)
	if d == nil {
		logger.WarnContext(ctx, "Webhook delivery failed", "error", err)

		return map[string]any{
			protocol.ResponseSuccess: false,
			"error":                  err.Error(),
			"duration_ms":            time.Since(start).Milliseconds(),
			protocol.ResponseMessage: fmt.Sprintf("delivery to %s failed: %v", a.config.URL, err),
		}, nil
	}

	success := d.statusCode >= 200 && d.statusCode < 300

	response := map[string]any{
		protocol.ResponseSuccess: success,
		"status_code":            d.statusCode,
		"body":                   d.body,
		"duration_ms":            d.duration.Milliseconds(),
	}

	if success {
		response[protocol.ResponseMessage] = fmt.Sprintf("delivered to %s", a.config.URL)
		logger.InfoContext(ctx, "Webhook delivered", "status", d.statusCode)
	} else {
		response[protocol.ResponseMessage] = fmt.Sprintf("HTTP %d: %s", d.statusCode, http.StatusText(d.statusCode))
		logger.WarnContext(ctx, "Webhook endpoint rejected delivery", "status", d.statusCode)
	}

	return response, nil
}

func (a *Action) buildRequest(ctx context.Context, req *protocol.Request, encoded []byte) (*http.Request, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)

	// GET carries no body, so the signature covers the empty body actually sent.
	var sent []byte

	var reader io.Reader
	if a.config.Method != http.MethodGet {
		sent = encoded
		reader = bytes.NewReader(sent)
	}

	httpReq, err := http.NewRequestWithContext(ctx, a.config.Method, a.config.URL, reader)
	if err != nil {
		cancel()

		return nil, nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if reader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpReq.Header.Set("User-Agent", "automata-webhook/1.0")

	for key, value := range a.config.Headers {
		httpReq.Header.Set(key, value)
	}

	if a.config.Secret != "" {
		httpReq.Header.Set(SignatureHeader, Sign(a.config.Secret, sent))
	}

	if a.config.CredentialID != "" {
		err = a.authorize(ctx, req, httpReq)
		if err != nil {
			cancel()

			return nil, nil, err
		}
	}

	return httpReq, cancel, nil
}

func (a *Action) authorize(ctx context.Context, req *protocol.Request, httpReq *http.Request) error {
	access := credentials.AccessContext{
		Caller:        "webhook",
		AllowedScopes: a.config.Scopes,
	}

	if req.Action != nil {
		access.Caller = "webhook:" + req.Action.ID
		access.NodeID = req.Action.ID
	}

	if req.Trigger != nil {
		access.WorkflowID = req.Trigger.ID
	}

	proxy, err := a.factory.credentials.For(ctx, a.config.CredentialID, access)
	if err != nil {
		return err
	}

	client, err := proxy.Execute(ctx, credentials.ActionGetAPIClient, map[string]any{"base_url": a.config.URL})
	if err != nil {
		return err
	}

	apiClient, ok := client.(*credentials.APIClient)
	if !ok {
		return fmt.Errorf("unexpected credential client %T", client)
	}

	apiClient.Authorize(httpReq)

	return nil
}

func (a *Action) send(httpReq *http.Request) (*delivery, error) {
	start := time.Now()

	resp, err := a.factory.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		raw = []byte("failed to read response body")
	}

	var body any

	err = json.Unmarshal(raw, &body)
	if err != nil {
		body = string(raw)
	}

	d := &delivery{statusCode: resp.StatusCode, body: body, duration: time.Since(start)}

	if resp.StatusCode >= 500 {
		return d, errServerStatus
	}

	return d, nil
}
