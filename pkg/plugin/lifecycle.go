// Package plugin defines the dsmark source and sink plugins and the
// registry the daemon builds them from.
package plugin

import "context"

// Plugin is the lifecycle shared by sources and sinks. Init decodes the
// plugin's config section; Start opens the file, socket or queue.
type Plugin interface {
	Name() string
	Init(cfg map[string]any) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
