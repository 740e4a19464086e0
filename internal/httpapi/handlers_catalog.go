package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jordanhubbard/chitti/internal/plugin"
)

func ProvidersListHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, d.Service.ListProviders())
	}
}

func ProviderInfoHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := validateName("provider", name); err != nil {
			WriteError(w, err)
			return
		}
		info, err := d.Service.ProviderInfo(name)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, info)
	}
}

func AgentsListHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, d.Service.ListAgents())
	}
}

// AgentInfoHandler takes the agent name from nameOf so the same handler
// serves /agents/{name} and the fixed subtrees of route-mounting agents.
func AgentInfoHandler(d Dependencies, nameOf func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := nameOf(r)
		if err := validateName("agent", name); err != nil {
			WriteError(w, err)
			return
		}
		info, err := d.Service.AgentInfo(name)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, info)
	}
}

// AgentTaskBody is the JSON body of POST /agents/{name}/execute.
type AgentTaskBody struct {
	Task    string         `json:"task"`
	Context map[string]any `json:"context,omitempty"`
}

func AgentExecuteHandler(d Dependencies, nameOf func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := nameOf(r)
		if err := validateName("agent", name); err != nil {
			WriteError(w, err)
			return
		}
		var body AgentTaskBody
		if err := decodeBody(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		res, err := d.Service.ExecuteAgent(r.Context(), name, body.Task, body.Context)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

func ToolsListHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, d.Service.ListTools())
	}
}

func ToolInfoHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := validateName("tool", name); err != nil {
			WriteError(w, err)
			return
		}
		info, err := d.Service.ToolInfo(name)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, info)
	}
}

// ToolExecuteHandler passes the JSON object body to the tool as its input.
// An empty body means no input.
func ToolExecuteHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := validateName("tool", name); err != nil {
			WriteError(w, err)
			return
		}
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			WriteError(w, err)
			return
		}
		input := map[string]any{}
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &input); err != nil {
				WriteError(w, plugin.Validationf("invalid json: %v", err))
				return
			}
		}
		out, err := d.Service.ExecuteTool(r.Context(), name, input)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, out)
	}
}

func DefaultSettingsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s, err := d.Service.DefaultSettings()
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, s)
	}
}

type defaultProviderBody struct {
	Provider string `json:"provider"`
}

func SetDefaultProviderHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body defaultProviderBody
		if err := decodeBody(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		if err := validateName("provider", body.Provider); err != nil {
			WriteError(w, err)
			return
		}
		if err := d.Service.SetDefaultProvider(body.Provider); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"message": "Default provider set successfully"})
	}
}

type defaultModelBody struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func SetDefaultModelHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body defaultModelBody
		if err := decodeBody(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		if err := validateName("provider", body.Provider); err != nil {
			WriteError(w, err)
			return
		}
		if body.Model == "" {
			WriteError(w, plugin.Validationf("model is required"))
			return
		}
		if err := d.Service.SetDefaultModel(body.Provider, body.Model); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"message": "Default model set successfully"})
	}
}
