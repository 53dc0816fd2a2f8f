// Package payload shapes event payloads before they reach actions: field projection,
// direct and nested relation expansion and reverse relation lookups.
package payload

import (
	"context"
	"log/slog"
	"sort"

	"github.com/dukex/automata/pkg/models"
	"github.com/dukex/automata/pkg/schema"
)

// maxNestedDepth caps nested expansion below a direct relation.
const maxNestedDepth = 3

type Configurator struct {
	analyzer *schema.Analyzer
	resolver EntityResolver
	logger   *slog.Logger
}

func NewConfigurator(analyzer *schema.Analyzer, resolver EntityResolver, logger *slog.Logger) *Configurator {
	return &Configurator{
		analyzer: analyzer,
		resolver: resolver,
		logger:   logger.With("module", "payload"),
	}
}

// BuildConfig derives the expansion maps of a configuration from its relation field selection.
// Relation keys the event does not declare are ignored.
func (c *Configurator) BuildConfig(
	eventIdentifier string,
	includeFields []string,
	relationFields map[string][]string,
) (*models.PayloadConfig, error) {
	cfg := &models.PayloadConfig{
		IncludeFields:  append([]string(nil), includeFields...),
		RelationFields: relationFields,
	}

	if len(relationFields) == 0 {
		return cfg, nil
	}

	analysis, err := c.analyzer.Analyze(eventIdentifier)
	if err != nil {
		return nil, err
	}

	cfg.ExpandRelations = make(map[string]string)
	cfg.ExpandNested = make(map[string][]string)

	for _, formKey := range sortedKeys(relationFields) {
		descriptor, ok := analysis.Relations[formKey]
		if !ok {
			continue
		}

		switch descriptor.Mode {
		case models.RelationReverse:
			cfg.ReverseRelations = append(cfg.ReverseRelations, models.ReverseRelation{
				Descriptor: descriptor,
				Fields:     relationFields[formKey],
			})
		default:
			cfg.ExpandRelations[descriptor.IDField] = descriptor.Model
			if len(descriptor.Expand) > 0 {
				cfg.ExpandNested[descriptor.IDField] = append([]string(nil), descriptor.Expand...)
			}
		}
	}

	return cfg, nil
}

// Configure returns a shaped copy of payload. The input is never mutated, and relations
// that cannot be resolved are left out of the result.
func (c *Configurator) Configure(
	ctx context.Context,
	eventIdentifier string,
	payload map[string]any,
	cfg *models.PayloadConfig,
) map[string]any {
	result := cloneMap(payload)
	if result == nil {
		result = make(map[string]any)
	}

	if cfg == nil || cfg.IsZero() {
		return result
	}

	cfg = c.normalize(eventIdentifier, cfg)

	if len(cfg.IncludeFields) > 0 {
		result = c.restrict(eventIdentifier, result, cfg)
	}

	descriptors := c.descriptorsByIDField(eventIdentifier)

	for _, idField := range sortedKeys(cfg.ExpandRelations) {
		model := cfg.ExpandRelations[idField]

		descriptor, ok := descriptors[idField]
		if !ok {
			descriptor = models.RelationDescriptor{Mode: models.RelationDirect, IDField: idField, Model: model}
		}

		expanded, ok := c.expandDirect(ctx, payload, idField, model, cfg.RelationFields[models.FormKey(idField)], cfg.ExpandNested[idField])
		if ok {
			result[descriptor.AttachKey()] = expanded
		}
	}

	if len(cfg.ReverseRelations) > 0 {
		primaryID := stringify(payload[c.analyzer.EventKeyField(eventIdentifier)])

		for _, reverse := range cfg.ReverseRelations {
			related, ok := c.expandReverse(ctx, reverse.Descriptor, primaryID, reverse.Fields)
			if ok {
				result[reverse.Descriptor.AttachKey()] = related
			}
		}
	}

	return result
}

// normalize rebuilds the structured expansion maps from the legacy id-field list or from
// relation_fields when the caller supplied only a selection.
func (c *Configurator) normalize(eventIdentifier string, cfg *models.PayloadConfig) *models.PayloadConfig {
	if len(cfg.LegacyExpand) > 0 && len(cfg.ExpandRelations) == 0 {
		return c.fromLegacy(eventIdentifier, cfg)
	}

	if len(cfg.RelationFields) > 0 && len(cfg.ExpandRelations) == 0 && len(cfg.ReverseRelations) == 0 {
		built, err := c.BuildConfig(eventIdentifier, cfg.IncludeFields, cfg.RelationFields)
		if err != nil {
			c.logger.Warn("failed to derive relation expansion", "event", eventIdentifier, "error", err)

			return cfg
		}

		return built
	}

	return cfg
}

func (c *Configurator) fromLegacy(eventIdentifier string, cfg *models.PayloadConfig) *models.PayloadConfig {
	rebuilt := &models.PayloadConfig{
		IncludeFields:    cfg.IncludeFields,
		RelationFields:   cfg.RelationFields,
		ExpandRelations:  make(map[string]string),
		ExpandNested:     make(map[string][]string),
		ReverseRelations: cfg.ReverseRelations,
	}

	analysis, err := c.analyzer.Analyze(eventIdentifier)
	if err != nil {
		c.logger.Warn("cannot resolve legacy expand_relations", "event", eventIdentifier, "error", err)

		return rebuilt
	}

	for _, idField := range cfg.LegacyExpand {
		descriptor, ok := analysis.Relations[models.FormKey(idField)]
		if !ok || descriptor.Mode != models.RelationDirect {
			continue
		}

		rebuilt.ExpandRelations[descriptor.IDField] = descriptor.Model
		if len(descriptor.Expand) > 0 {
			rebuilt.ExpandNested[descriptor.IDField] = append([]string(nil), descriptor.Expand...)
		}
	}

	return rebuilt
}

func (c *Configurator) restrict(eventIdentifier string, record map[string]any, cfg *models.PayloadConfig) map[string]any {
	keep := append([]string(nil), cfg.IncludeFields...)
	keep = append(keep, c.analyzer.EventKeyField(eventIdentifier))

	for idField := range cfg.ExpandRelations {
		keep = append(keep, topLevelKey(record, idField))
	}

	return project(record, union(keep))
}

func (c *Configurator) expandDirect(
	ctx context.Context,
	source map[string]any,
	idField, model string,
	fields []string,
	nested []string,
) (map[string]any, bool) {
	rawID, ok := fieldValue(source, idField)
	if !ok || rawID == nil {
		return nil, false
	}

	id := stringify(rawID)

	record, err := c.resolver.Find(ctx, model, id)
	if err != nil {
		c.logger.WarnContext(ctx, "relation omitted", "model", model, "id", id, "error", err)

		return nil, false
	}

	if len(fields) == 0 {
		fields = c.analyzer.EssentialFields(model)
	} else {
		fields = union(fields, c.analyzer.KeyField(model))
	}

	expanded := project(record, fields)

	for _, name := range nested {
		c.expandNested(ctx, model, record, expanded, name, 1)
	}

	return expanded, true
}

// expandNested follows only relations named in expand lists, down to maxNestedDepth.
func (c *Configurator) expandNested(ctx context.Context, parentModel string, source, target map[string]any, name string, depth int) {
	if depth > maxNestedDepth {
		return
	}

	descriptor, ok := c.analyzer.ModelRelation(parentModel, name)
	if !ok {
		return
	}

	if descriptor.Mode == models.RelationReverse {
		related, ok := c.expandReverse(ctx, descriptor, stringify(source[c.analyzer.KeyField(parentModel)]), nil)
		if ok {
			target[descriptor.AttachKey()] = related
		}

		return
	}

	rawID, ok := fieldValue(source, descriptor.IDField)
	if !ok || rawID == nil {
		return
	}

	record, err := c.resolver.Find(ctx, descriptor.Model, stringify(rawID))
	if err != nil {
		c.logger.WarnContext(ctx, "nested relation omitted", "model", descriptor.Model, "error", err)

		return
	}

	expanded := project(record, descriptor.Fields)

	for _, next := range descriptor.Expand {
		c.expandNested(ctx, descriptor.Model, record, expanded, next, depth+1)
	}

	target[descriptor.AttachKey()] = expanded
}

// expandReverse always projects related rows, to the requested fields or the essential ones.
func (c *Configurator) expandReverse(
	ctx context.Context,
	descriptor models.RelationDescriptor,
	primaryID string,
	fields []string,
) ([]any, bool) {
	if primaryID == "" {
		return nil, false
	}

	rows, err := c.resolver.FindRelated(ctx, descriptor.Model, descriptor.ForeignKey, primaryID)
	if err != nil {
		c.logger.WarnContext(ctx, "reverse relation omitted", "model", descriptor.Model, "error", err)

		return nil, false
	}

	if len(fields) == 0 {
		fields = descriptor.Fields
	}

	if len(fields) == 0 {
		fields = c.analyzer.EssentialFields(descriptor.Model)
	}

	related := make([]any, 0, len(rows))
	for _, row := range rows {
		related = append(related, project(row, fields))
	}

	return related, true
}

func (c *Configurator) descriptorsByIDField(eventIdentifier string) map[string]models.RelationDescriptor {
	analysis, err := c.analyzer.Analyze(eventIdentifier)
	if err != nil {
		return nil
	}

	byIDField := make(map[string]models.RelationDescriptor, len(analysis.Relations))
	for _, descriptor := range analysis.Relations {
		if descriptor.Mode == models.RelationDirect {
			byIDField[descriptor.IDField] = descriptor
		}
	}

	return byIDField
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
