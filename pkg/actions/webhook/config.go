package webhook

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// SignatureHeader carries hex(HMAC-SHA256(secret, body)).
	SignatureHeader = "X-Automata-Signature"

	PayloadModeRaw      = "payload"
	PayloadModeEnvelope = "envelope"

	defaultTimeoutSeconds = 30
	maxTimeoutSeconds     = 300
)

var ErrInvalidConfig = errors.New("invalid webhook configuration")

// Config is the parsed configuration of a webhook action.
type Config struct {
	URL          string        `validate:"required,url"`
	Method       string        `validate:"oneof=GET POST PUT DELETE PATCH"`
	PayloadMode  string        `validate:"oneof=payload envelope"`
	Timeout      time.Duration `validate:"gt=0"`
	Headers      map[string]string
	Secret       string
	CredentialID string
	Scopes       []string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseConfig reads and validates a webhook configuration map.
func ParseConfig(config map[string]any) (*Config, error) {
	cfg := ParseBodyConfig(config)

	cfg.URL, _ = config["url"].(string)
	cfg.CredentialID, _ = config["credential_id"].(string)
	cfg.Scopes = stringList(config["scopes"])

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	cfg.Method = strings.ToUpper(method)

	cfg.Headers = map[string]string{}

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			cfg.Headers[key] = fmt.Sprintf("%v", value)
		}
	} else if headers, ok := config["headers"].(map[string]string); ok {
		for key, value := range headers {
			cfg.Headers[key] = value
		}
	}

	timeout, err := seconds(config["timeout"])
	if err != nil {
		return nil, fmt.Errorf("%w: timeout: %w", ErrInvalidConfig, err)
	}

	cfg.Timeout = timeout

	err = validate.Struct(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}

// ParseBodyConfig reads only the keys that shape the outbound body and its signature.
func ParseBodyConfig(config map[string]any) *Config {
	cfg := &Config{PayloadMode: PayloadModeRaw, Method: http.MethodPost, Timeout: defaultTimeoutSeconds * time.Second}

	if mode, ok := config["payload_mode"].(string); ok && mode != "" {
		cfg.PayloadMode = mode
	}

	cfg.Secret, _ = config["signing_secret"].(string)
	if cfg.Secret == "" {
		cfg.Secret, _ = config["secret"].(string)
	}

	return cfg
}

func seconds(value any) (time.Duration, error) {
	var n float64

	switch v := value.(type) {
	case nil:
		return defaultTimeoutSeconds * time.Second, nil
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, err
		}

		n = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}

	if n <= 0 || n > maxTimeoutSeconds {
		return 0, fmt.Errorf("must be between 0 and %d seconds", maxTimeoutSeconds)
	}

	return time.Duration(n * float64(time.Second)), nil
}

func stringList(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		list := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				list = append(list, s)
			}
		}

		return list
	case string:
		if v == "" {
			return nil
		}

		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		return parts
	default:
		return nil
	}
}
