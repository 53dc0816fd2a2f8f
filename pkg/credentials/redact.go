package credentials

import (
	"strings"
	"unicode"
)

// Redacted replaces the value of every sensitive parameter.
const Redacted = "[REDACTED]"

var sensitiveKeys = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"private_key",
	"access_token",
	"refresh_token",
	"client_secret",
	"authorization",
	"credential",
	"passphrase",
}

// Identifiers that name a credential without carrying secret material.
var allowedKeys = map[string]bool{
	"credential_id":   true,
	"credential_name": true,
	"credential_type": true,
}

// Redact returns a copy of params with every sensitive key blanked, at any depth.
// Redacting an already redacted map returns an equal map.
func Redact(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}

	redacted := make(map[string]any, len(params))

	for key, value := range params {
		if IsSensitiveKey(key) {
			redacted[key] = Redacted

			continue
		}

		redacted[key] = redactValue(value)
	}

	return redacted
}

func redactValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Redact(v)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = redactValue(item)
		}

		return items
	case []map[string]any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = Redact(item)
		}

		return items
	case map[string]string:
		converted := make(map[string]any, len(v))
		for key, item := range v {
			converted[key] = item
		}

		return Redact(converted)
	default:
		return v
	}
}

// IsSensitiveKey matches a key, case-insensitively, against the sensitive list. The key is
// split into words on camelCase humps, spaces, '-' and '_', and any run of words may match:
// "smtp_password", "x-api-key", "accessToken" and "password_hash" match; "credential_id" and
// "tokenizer" do not.
func IsSensitiveKey(key string) bool {
	normalized := normalizeKey(key)
	if allowedKeys[normalized] {
		return false
	}

	padded := "_" + normalized + "_"

	for _, sensitive := range sensitiveKeys {
		if strings.Contains(padded, "_"+sensitive+"_") {
			return true
		}
	}

	return false
}

func normalizeKey(key string) string {
	var b strings.Builder

	runes := []rune(strings.TrimSpace(key))

	for i, r := range runes {
		switch {
		case r == '-' || r == ' ' || r == '.':
			b.WriteRune('_')
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteRune('_')
			}

			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}
