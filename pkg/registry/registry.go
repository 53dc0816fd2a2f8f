// Package registry maps action type tags to their factories.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"sync"

	"github.com/dukex/automata/pkg/protocol"
)

// ErrActionNotRegistered is returned when no factory is registered for a type tag.
var ErrActionNotRegistered = errors.New("action type not registered")

type Registry struct {
	logger          *slog.Logger
	mu              sync.RWMutex
	actionFactories map[string]protocol.ActionFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log.With("module", "registry"),
		actionFactories: make(map[string]protocol.ActionFactory),
	}
}

// RegisterAction adds a factory under its ID, replacing any previous one.
func (r *Registry) RegisterAction(actionFactory protocol.ActionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actionFactories[actionFactory.ID()] = actionFactory
}

// Forget removes the factory registered for actionType.
func (r *Registry) Forget(actionType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.actionFactories, actionType)
}

func (r *Registry) Action(actionType string) (protocol.ActionFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.actionFactories[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: action type '%s' not registered", ErrActionNotRegistered, actionType)
	}

	return factory, nil
}

// Types returns the registered type tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.actionFactories))
	for actionType := range r.actionFactories {
		types = append(types, actionType)
	}

	sort.Strings(types)

	return types
}

func (r *Registry) CreateAction(actionType string, config map[string]any) (protocol.ActionHandler, error) {
	factory, err := r.Action(actionType)
	if err != nil {
		return nil, err
	}

	return factory.Create(config)
}

// ValidateAction checks that actionType exists and accepts config.
func (r *Registry) ValidateAction(actionType string, config map[string]any) error {
	factory, err := r.Action(actionType)
	if err != nil {
		return err
	}

	return factory.Validate(config)
}

// LoadActionPlugins opens every .so under <pluginsPath>/actions and looks up its "Action" symbol.
func (r *Registry) LoadActionPlugins(pluginsPath string) ([]protocol.ActionFactory, error) {
	return loadPlugin[protocol.ActionFactory](r.logger, pluginsPath, "Action")
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := filepath.Join(pluginsPath, "actions")

	_, err := os.Stat(rootPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	pluginPathList, err := fs.Glob(os.DirFS(rootPath), "*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", rootPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(filepath.Join(rootPath, p))
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s has no %s symbol: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: %s symbol has unexpected type %T", p, symbolName, v)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded action plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
