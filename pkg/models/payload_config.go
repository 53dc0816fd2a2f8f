package models

import (
	"encoding/json"
	"fmt"
)

// PayloadConfig selects and enriches the fields of an event payload passed to an action.
type PayloadConfig struct {
	IncludeFields    []string            `json:"include_fields,omitempty"`
	RelationFields   map[string][]string `json:"relation_fields,omitempty"`
	ExpandRelations  map[string]string   `json:"expand_relations,omitempty"`
	ExpandNested     map[string][]string `json:"expand_nested,omitempty"`
	ReverseRelations []ReverseRelation   `json:"reverse_relations,omitempty"`

	// LegacyExpand holds the bare id-field list form of expand_relations.
	LegacyExpand []string `json:"-"`
}

type ReverseRelation struct {
	Descriptor RelationDescriptor `json:"descriptor"`
	Fields     []string           `json:"fields,omitempty"`
}

func (c *PayloadConfig) IsZero() bool {
	return len(c.IncludeFields) == 0 &&
		len(c.RelationFields) == 0 &&
		len(c.ExpandRelations) == 0 &&
		len(c.ExpandNested) == 0 &&
		len(c.ReverseRelations) == 0 &&
		len(c.LegacyExpand) == 0
}

func (c *PayloadConfig) UnmarshalJSON(data []byte) error {
	type alias PayloadConfig

	var raw struct {
		alias

		ExpandRelations json.RawMessage `json:"expand_relations,omitempty"`
	}

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	*c = PayloadConfig(raw.alias)
	c.ExpandRelations = nil
	c.LegacyExpand = nil

	if len(raw.ExpandRelations) == 0 || string(raw.ExpandRelations) == "null" {
		return nil
	}

	switch raw.ExpandRelations[0] {
	case '{':
		return json.Unmarshal(raw.ExpandRelations, &c.ExpandRelations)
	case '[':
		return json.Unmarshal(raw.ExpandRelations, &c.LegacyExpand)
	default:
		return fmt.Errorf("expand_relations must be an object or a list, got %s", raw.ExpandRelations)
	}
}

// ParsePayloadConfig reads the payload shaping keys out of an action configuration blob.
func ParsePayloadConfig(config map[string]any) (*PayloadConfig, error) {
	cfg := &PayloadConfig{}
	if len(config) == 0 {
		return cfg, nil
	}

	data, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode action config: %w", err)
	}

	err = json.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid payload configuration: %w", err)
	}

	return cfg, nil
}
