// Package filter decides whether an event payload satisfies a trigger's conditions.
package filter

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/dukex/automata/pkg/models"
)

// Evaluator matches payloads against conditions. It holds no per-call state and is safe
// for concurrent use.
type Evaluator struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	operators map[string]Operator
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{
		logger:    logger.With("module", "filter"),
		operators: builtinOperators(),
	}
}

// Register adds or replaces the operator for a condition type.
func (e *Evaluator) Register(kind string, operator Operator) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.operators[kind] = operator
}

func (e *Evaluator) Forget(kind string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.operators, kind)
}

// Kinds returns the registered condition types.
func (e *Evaluator) Kinds() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	kinds := make([]string, 0, len(e.operators))
	for kind := range e.operators {
		kinds = append(kinds, kind)
	}

	sort.Strings(kinds)

	return kinds
}

// Matches reports whether payload satisfies conditions under combinator.
// Every condition is evaluated; an empty list always matches.
func (e *Evaluator) Matches(payload map[string]any, conditions []models.Condition, combinator models.Combinator) bool {
	if len(conditions) == 0 {
		return true
	}

	matched := 0

	for _, condition := range conditions {
		if e.evaluate(payload, condition) {
			matched++
		}
	}

	if combinator == models.CombinatorAny {
		return matched > 0
	}

	return matched == len(conditions)
}

func (e *Evaluator) evaluate(payload map[string]any, condition models.Condition) bool {
	e.mu.RLock()
	operator, ok := e.operators[condition.Type]
	e.mu.RUnlock()

	if !ok {
		e.logger.Warn("unknown condition type", "type", condition.Type, "field", condition.Field)

		return false
	}

	actual, found := Lookup(payload, condition.Field)

	return operator(actual, found, condition.Value)
}
