package models

import "strings"

// FieldDescriptor describes one selectable top-level field of an event payload.
type FieldDescriptor struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

type RelationMode string

const (
	// RelationDirect resolves an id field on the primary entity to a model record.
	RelationDirect RelationMode = "direct"
	// RelationReverse pulls the dependent records pointing back at the primary entity.
	RelationReverse RelationMode = "reverse"
)

// RelationDescriptor describes how a relation of an event payload is resolved.
type RelationDescriptor struct {
	Name       string       `json:"name"`
	FormKey    string       `json:"form_key"`
	Mode       RelationMode `json:"mode"`
	IDField    string       `json:"id_field,omitempty"`
	Model      string       `json:"model"`
	ForeignKey string       `json:"foreign_key,omitempty"`
	Alias      string       `json:"alias,omitempty"`
	Expand     []string     `json:"expand,omitempty"`
	Fields     []string     `json:"fields,omitempty"`
}

// AttachKey is the payload key the resolved relation is stored under.
func (d RelationDescriptor) AttachKey() string {
	if d.Alias != "" {
		return d.Alias
	}

	if d.Mode == RelationDirect && d.IDField != "" {
		if trimmed := strings.TrimSuffix(d.IDField, "_id"); trimmed != d.IDField && trimmed != "" {
			return trimmed
		}

		return d.IDField + "_data"
	}

	return d.Name
}

// FieldAnalysis is the selectable surface of one event.
type FieldAnalysis struct {
	EventIdentifier string                        `json:"event_identifier"`
	EssentialFields []FieldDescriptor             `json:"essential_fields"`
	Relations       map[string]RelationDescriptor `json:"relations"`
}

// FormKey derives the stable configuration key of a relation id field.
func FormKey(idField string) string {
	return strings.NewReplacer(".", "_", " ", "_").Replace(idField)
}
