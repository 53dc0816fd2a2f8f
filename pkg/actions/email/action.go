package email

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/dukex/automata/pkg/credentials"
	"github.com/dukex/automata/pkg/protocol"
	"github.com/dukex/automata/pkg/template"
)

type Action struct {
	config  *config
	factory *ActionFactory
}

// Handle renders and sends the message. SMTP errors are reported as a failed
// delivery; credential denials are returned as errors.
func (a *Action) Handle(ctx context.Context, req *protocol.Request) (map[string]any, error) {
	data := template.EventData(req.EventIdentifier, req.Payload)

	subject, err := template.RenderText(a.config.Subject, data)
	if err != nil {
		return nil, err
	}

	body, err := template.RenderText(a.config.Body, data)
	if err != nil {
		return nil, err
	}

	client, err := a.smtpClient(ctx, req)
	if err != nil {
		return nil, err
	}

	from := a.config.From
	if from == "" {
		from = client.From()
	}

	if req.Log != nil {
		req.Log.Payload = map[string]any{
			"from":    from,
			"to":      a.config.To,
			"subject": subject,
			"body":    body,
		}
	}

	msg := message(from, a.config.To, subject, body)

	err = client.Send(from, a.config.To, msg)
	if err != nil {
		a.factory.logger.WarnContext(ctx, "Email delivery failed", "client", client, "error", err)

		return map[string]any{
			protocol.ResponseSuccess: false,
			"error":                  err.Error(),
			protocol.ResponseMessage: fmt.Sprintf("delivery to %s failed", strings.Join(a.config.To, ", ")),
		}, nil
	}

	a.factory.logger.InfoContext(ctx, "Email sent", "client", client, "recipients", len(a.config.To))

	return map[string]any{
		protocol.ResponseSuccess: true,
		"recipients":             len(a.config.To),
		protocol.ResponseMessage: fmt.Sprintf("sent to %s", strings.Join(a.config.To, ", ")),
	}, nil
}

func (a *Action) smtpClient(ctx context.Context, req *protocol.Request) (*credentials.SMTPClient, error) {
	access := credentials.AccessContext{
		Caller:        "email",
		AllowedScopes: a.config.Scopes,
	}

	if req.Action != nil {
		access.Caller = "email:" + req.Action.ID
		access.NodeID = req.Action.ID
	}

	if req.Trigger != nil {
		access.WorkflowID = req.Trigger.ID
	}

	proxy, err := a.factory.credentials.For(ctx, a.config.CredentialID, access)
	if err != nil {
		return nil, err
	}

	params := map[string]any{}
	if a.config.From != "" {
		params["from"] = a.config.From
	}

	client, err := proxy.Execute(ctx, credentials.ActionGetSMTPClient, params)
	if err != nil {
		return nil, err
	}

	smtpClient, ok := client.(*credentials.SMTPClient)
	if !ok {
		return nil, fmt.Errorf("unexpected credential client %T", client)
	}

	return smtpClient, nil
}

func message(from string, to []string, subject, body string) []byte {
	var b strings.Builder

	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", strings.ReplaceAll(subject, "\n", " ")) + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	return []byte(b.String())
}
