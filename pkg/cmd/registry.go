// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/automata/pkg/actions/email"
	logaction "github.com/dukex/automata/pkg/actions/log"
	"github.com/dukex/automata/pkg/actions/transform"
	"github.com/dukex/automata/pkg/actions/webhook"
	"github.com/dukex/automata/pkg/credentials"
	"github.com/dukex/automata/pkg/registry"
)

func registerActionPlugins(reg *registry.Registry, pluginsPath string) error {
	actionPlugins, err := reg.LoadActionPlugins(pluginsPath)
	if err != nil {
		return fmt.Errorf("failed to load action plugins: %w", err)
	}

	for _, plugin := range actionPlugins {
		reg.RegisterAction(plugin)
	}

	return nil
}

func registerNativeActions(reg *registry.Registry, log *slog.Logger, credentialFactory *credentials.Factory) {
	reg.RegisterAction(webhook.NewActionFactory(log, webhook.WithCredentials(credentialFactory)))
	reg.RegisterAction(logaction.NewActionFactory(log))
	reg.RegisterAction(email.NewActionFactory(log, credentialFactory))
	reg.RegisterAction(transform.NewActionFactory())
}

// NewRegistry registers plugins first and the built-in actions last, so a plugin cannot
// replace a built-in type.
func NewRegistry(log *slog.Logger, pluginsPath string, credentialFactory *credentials.Factory) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	if pluginsPath != "" {
		err := registerActionPlugins(reg, pluginsPath)
		if err != nil {
			return nil, err
		}
	}

	registerNativeActions(reg, log, credentialFactory)

	return reg, nil
}
