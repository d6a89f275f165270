// Package debug starts the eino visual debug server.
package debug

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/devops"
	"github.com/dyike/agenttrader/config"
	"github.com/kataras/golog"
)

// Init starts the debug server when cfg enables it. The server listens on
// the devops default port, which EinoDebugPort mirrors.
func Init(ctx context.Context, cfg *config.Config) error {
	if cfg == nil || !cfg.EinoDebugEnabled {
		return nil
	}
	golog.Debugf("eino debug: initializing on port %d", cfg.EinoDebugPort)
	if err := devops.Init(ctx); err != nil {
		return fmt.Errorf("init eino debug server: %w", err)
	}
	golog.Infof("eino debug: serving at %s", URL(cfg))
	return nil
}

// URL is the debug UI address, or empty when debugging is disabled.
func URL(cfg *config.Config) string {
	if cfg == nil || !cfg.EinoDebugEnabled {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", cfg.EinoDebugPort)
}
