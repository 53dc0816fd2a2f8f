// Package template renders Go templates against event payloads.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// EventData is the data every action template is rendered against.
// Payload fields are also reachable at the top level, so {{ .status }} and {{ .data.status }} agree.
func EventData(eventIdentifier string, payload map[string]any) map[string]any {
	data := make(map[string]any, len(payload)+2)
	for key, value := range payload {
		data[key] = value
	}

	data["event"] = eventIdentifier
	data["data"] = payload

	return data
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"now": func() string {
			return time.Now().UTC().Format(time.RFC3339)
		},
		"rand": func(max int) int {
			if max <= 0 {
				return 0
			}

			num := make([]byte, 1)

			_, err := rand.Read(num)
			if err != nil {
				return 0
			}

			return int(num[0]) % max
		},
		"json": func(v any) (string, error) {
			encoded, err := json.Marshal(v)

			return string(encoded), err
		},
		"default": func(fallback, v any) any {
			if v == nil || v == "" {
				return fallback
			}

			return v
		},
	}
}

// Parse checks that templateStr is a valid template.
func Parse(templateStr string) error {
	_, err := template.New("action").Funcs(funcs()).Parse(templateStr)
	if err != nil {
		return fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	return nil
}

// RenderText executes templateStr and returns the raw output.
func RenderText(templateStr string, data any) (string, error) {
	tmpl, err := template.New("action").Funcs(funcs()).Option("missingkey=zero").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// Render executes templateStr and decodes the output as JSON, a number or a boolean when it looks like one.
func Render(templateStr string, data any) (any, error) {
	rendered, err := RenderText(templateStr, data)
	if err != nil {
		return nil, err
	}

	result := strings.TrimSpace(rendered)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}
