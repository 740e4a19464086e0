package plugin

import (
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

// RouteMounter is implemented by agents that own a web surface. The host
// mounts the routes under /agents/{name}.
type RouteMounter interface {
	MountRoutes(r chi.Router)
}

// CommandProvider is implemented by agents that own shell commands. The host
// attaches the returned command to its root command.
type CommandProvider interface {
	Command() *cobra.Command
}
