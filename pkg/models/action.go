package models

import "fmt"

// Action is one configured step attached to a trigger.
type Action struct {
	ID        string         `json:"id"`
	TriggerID string         `json:"trigger_id"`
	Type      string         `json:"type"       validate:"required"`
	Name      string         `json:"name"`
	Order     int            `json:"order"`
	Active    bool           `json:"active"`
	Config    map[string]any `json:"config"`
}

// ConfigString returns the string value stored under key, or an empty string.
func (a *Action) ConfigString(key string) string {
	if a.Config == nil {
		return ""
	}

	switch value := a.Config[key].(type) {
	case string:
		return value
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", value)
	}
}

// ConfigBool reports whether key is set to true, accepting booleans and "true" strings.
func (a *Action) ConfigBool(key string) bool {
	if a.Config == nil {
		return false
	}

	switch value := a.Config[key].(type) {
	case bool:
		return value
	case string:
		return value == "true" || value == "1"
	default:
		return false
	}
}
