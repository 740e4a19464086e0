package bash

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jordanhubbard/chitti/internal/httpapi"
	"github.com/jordanhubbard/chitti/internal/plugin"
)

type runRequest struct {
	Command string         `json:"command"`
	Workdir string         `json:"workdir"`
	Context map[string]any `json:"context"`
	DryRun  bool           `json:"dry_run"`
}

// MountRoutes registers POST /run. The "command" field is the task in plain
// language; the agent picks the actual shell command.
func (a *Agent) MountRoutes(r chi.Router) {
	r.Post("/run", a.handleRun)
}

func (a *Agent) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		httpapi.WriteError(w, plugin.Validationf("invalid json: %v", err))
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		httpapi.WriteError(w, plugin.Validationf("command is required"))
		return
	}

	taskCtx := make(map[string]any, len(req.Context)+2)
	for k, v := range req.Context {
		taskCtx[k] = v
	}
	if req.Workdir != "" {
		taskCtx["workdir"] = req.Workdir
	}
	if req.DryRun {
		taskCtx["dry_run"] = true
	}

	res, err := a.Execute(r.Context(), req.Command, taskCtx)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, res)
}
