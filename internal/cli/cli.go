// Package cli provides the agenttrader command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/dyike/agenttrader/config"
	"github.com/dyike/agenttrader/pkg/app"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

// Run executes the root command and exits non-zero on failure.
func Run() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// options are the global flags shared by every subcommand.
type options struct {
	configPath string
	debug      bool

	mgr *config.Manager
}

func (o *options) manager() (*config.Manager, error) {
	if o.mgr != nil {
		return o.mgr, nil
	}
	mgr, err := config.NewManager(config.WithConfigPath(o.configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	o.mgr = mgr
	return mgr, nil
}

func (o *options) config() (config.Config, error) {
	mgr, err := o.manager()
	if err != nil {
		return config.Config{}, err
	}
	cfg := mgr.Get()
	if o.debug {
		cfg.Debug = true
	}
	return cfg, nil
}

func (o *options) builder() app.EngineBuilder {
	return func(cfg config.Config) (*app.Engine, error) {
		if o.debug {
			cfg.Debug = true
		}
		return app.BuildEngine(cfg)
	}
}

func (o *options) engine() (*app.Engine, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	return app.BuildEngine(cfg)
}
