package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

var version = "dev"

// errUsage is returned after usage has been printed.
var errUsage = errors.New("invalid usage")

func main() {
	c := newCtl(os.Stdout)
	if err := c.run(os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func usageTo(w io.Writer) {
	_, _ = fmt.Fprintf(w, `chittictl: command line client for the chitti web API

Usage: chittictl <command> [arguments]

Environment:
  CHITTI_URL            Base URL (default: http://localhost:8000)

Commands:
  status                          Show server info and plugin counts
  health                          Show provider health derived from traffic
  providers [name]                List providers or show one provider
  agents [name]                   List agents or show one agent
  tools                           List tools
  defaults                        Show the default provider and model
  defaults set-provider <p>       Set the default provider
  defaults set-model <p> <m>      Set the default model of a provider
  prompt [--provider p] [--model m] <text>
                                  Stream a prompt response
  events [type]                   Stream real-time events
  logs [--limit N] [--provider p] Show request logs
  audit [--limit N]               Show audit logs
  usage                           Show usage per provider and model

  version                         Show version
  help                            Show this help

Examples:
  chittictl status
  chittictl defaults set-model anthropic claude-3-5-haiku-20241022
  chittictl prompt --provider echo "hello"
  chittictl events model_fallback
`)
}

type ctl struct {
	base   string
	client *http.Client
	out    io.Writer
}

func newCtl(out io.Writer) *ctl {
	base := "http://localhost:8000"
	if u := os.Getenv("CHITTI_URL"); u != "" {
		base = strings.TrimRight(u, "/")
	}
	return &ctl{base: base, client: &http.Client{Timeout: 30 * time.Second}, out: out}
}

func (c *ctl) run(args []string) error {
	if len(args) == 0 {
		usageTo(os.Stderr)
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "version", "--version", "-v":
		fmt.Fprintf(c.out, "chittictl %s\n", version)
		return nil
	case "status":
		return c.doStatus()
	case "health":
		return c.doHealth()
	case "provider", "providers":
		return c.doProviders(rest)
	case "agent", "agents":
		return c.doAgents(rest)
	case "tools":
		return c.doTools()
	case "defaults":
		return c.doDefaults(rest)
	case "prompt":
		return c.doPrompt(rest)
	case "events":
		return c.doEvents(rest)
	case "logs":
		return c.doLogs(rest)
	case "audit":
		return c.doAudit(rest)
	case "usage":
		return c.doUsage()
	case "help", "--help", "-h":
		usageTo(c.out)
		return nil
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usageTo(os.Stderr)
		return errUsage
	}
}

// --- HTTP helpers ---

// apiError is a non-2xx response from the server.
type apiError struct {
	Status int
	Msg    string
	Code   string
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d (%s): %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Msg)
}

func (c *ctl) do(method, path string, body any) (*http.Response, error) {
	return c.send(c.client, method, path, body)
}

// streamClient is c.client without an overall timeout, for SSE responses.
func (c *ctl) streamClient() *http.Client {
	cl := *c.client
	cl.Timeout = 0
	return &cl
}

func (c *ctl) send(client *http.Client, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error     string `json:"error"`
		ErrorCode string `json:"error_code"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return &apiError{Status: resp.StatusCode, Msg: body.Error, Code: body.ErrorCode}
	}
	return &apiError{Status: resp.StatusCode, Msg: strings.TrimSpace(string(data))}
}

func (c *ctl) getJSON(path string, v any) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *ctl) postJSON(path string, body, v any) error {
	resp, err := c.do(http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *ctl) printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(c.out, string(b))
}

// flagValue extracts "--name value" from args and returns the remainder.
func flagValue(args []string, name string) (string, []string) {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			rest := append(append([]string(nil), args[:i]...), args[i+2:]...)
			return args[i+1], rest
		}
	}
	return "", args
}

func parseLimit(args []string) int {
	v, _ := flagValue(args, "--limit")
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	return 50
}

// --- Commands ---

func (c *ctl) doStatus() error {
	var info map[string]any
	if err := c.getJSON("/", &info); err != nil {
		return err
	}

	// /healthz answers 503 with a body when no provider is loaded.
	req, err := http.NewRequest(http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	var h map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&h)

	status, _ := h["status"].(string)
	if status == "" {
		status = "unknown"
	}
	ver, _ := info["version"].(string)
	fmt.Fprintf(c.out, "Server:    %s\n", c.base)
	fmt.Fprintf(c.out, "Version:   %s\n", ver)
	fmt.Fprintf(c.out, "Status:    %s\n", status)
	fmt.Fprintf(c.out, "Providers: %s\n", fmtNum(h["providers"]))
	fmt.Fprintf(c.out, "Agents:    %s\n", fmtNum(h["agents"]))
	fmt.Fprintf(c.out, "Tools:     %s\n", fmtNum(h["tools"]))
	return nil
}

func (c *ctl) doHealth() error {
	var data struct {
		Providers []map[string]any `json:"providers"`
	}
	if err := c.getJSON("/admin/v1/health", &data); err != nil {
		return err
	}
	if len(data.Providers) == 0 {
		fmt.Fprintln(c.out, "No provider health data available.")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROVIDER\tSTATE\tREQUESTS\tERRORS\tAVG LATENCY\tLAST ERROR")
	for _, m := range data.Providers {
		lastErr, _ := m["last_error"].(string)
		if len(lastErr) > 60 {
			lastErr = lastErr[:57] + "..."
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m["provider"], m["state"], fmtNum(m["requests"]), fmtNum(m["errors"]),
			fmtDuration(m["avg_latency_ms"]), lastErr)
	}
	return tw.Flush()
}

func (c *ctl) doProviders(args []string) error {
	if len(args) > 0 && args[0] != "list" {
		var info map[string]any
		if err := c.getJSON("/providers/"+url.PathEscape(args[0]), &info); err != nil {
			return err
		}
		c.printJSON(info)
		return nil
	}

	var names []string
	if err := c.getJSON("/providers", &names); err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(c.out, "No providers registered.")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROVIDER\tDEFAULT MODEL\tMODELS")
	for _, n := range names {
		var info struct {
			DefaultModel string   `json:"default_model"`
			Models       []string `json:"models"`
		}
		if err := c.getJSON("/providers/"+url.PathEscape(n), &info); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\n", n, info.DefaultModel, len(info.Models))
	}
	return tw.Flush()
}

func (c *ctl) doAgents(args []string) error {
	if len(args) > 0 && args[0] != "list" {
		var info map[string]any
		if err := c.getJSON("/agents/"+url.PathEscape(args[0]), &info); err != nil {
			return err
		}
		c.printJSON(info)
		return nil
	}

	var names []string
	if err := c.getJSON("/agents", &names); err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(c.out, "No agents registered.")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "AGENT\tVERSION\tDESCRIPTION")
	for _, n := range names {
		var info struct {
			Version     string `json:"version"`
			Description string `json:"description"`
		}
		if err := c.getJSON("/agents/"+url.PathEscape(n), &info); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", n, info.Version, info.Description)
	}
	return tw.Flush()
}

func (c *ctl) doTools() error {
	var names []string
	if err := c.getJSON("/tools", &names); err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(c.out, "No tools registered.")
		return nil
	}
	for _, n := range names {
		fmt.Fprintln(c.out, n)
	}
	return nil
}

func (c *ctl) doDefaults(args []string) error {
	if len(args) == 0 {
		var s struct {
			Provider string `json:"provider"`
			Model    string `json:"model"`
		}
		if err := c.getJSON("/settings/default", &s); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Provider: %s\nModel:    %s\n", s.Provider, s.Model)
		return nil
	}

	switch args[0] {
	case "set-provider":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chittictl defaults set-provider <provider>")
			return errUsage
		}
		if err := c.postJSON("/settings/default/provider", map[string]string{"provider": args[1]}, nil); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Default provider set to %s.\n", args[1])
	case "set-model":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: chittictl defaults set-model <provider> <model>")
			return errUsage
		}
		body := map[string]string{"provider": args[1], "model": args[2]}
		if err := c.postJSON("/settings/default/model", body, nil); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Default model for %s set to %s.\n", args[1], args[2])
	default:
		fmt.Fprintf(os.Stderr, "unknown defaults command: %s\n", args[0])
		return errUsage
	}
	return nil
}

// sseFrame is one server-sent event.
type sseFrame struct {
	Event string
	Data  string
}

// readSSE calls fn for every frame until the stream ends or fn returns false.
func readSSE(r io.Reader, fn func(sseFrame) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	var cur sseFrame
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if len(data) > 0 || cur.Event != "" {
				cur.Data = strings.Join(data, "\n")
				if !fn(cur) {
					return nil
				}
			}
			cur, data = sseFrame{}, nil
		case strings.HasPrefix(line, "event:"):
			cur.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}

func (c *ctl) doPrompt(args []string) error {
	provider, args := flagValue(args, "--provider")
	model, args := flagValue(args, "--model")
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: chittictl prompt [--provider p] [--model m] <text>")
		return errUsage
	}
	body := map[string]any{"prompt": strings.Join(args, " ")}
	if provider != "" {
		body["provider"] = provider
	}
	if model != "" {
		body["model"] = model
	}

	resp, err := c.send(c.streamClient(), http.MethodPost, "/prompt?stream=true", body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var streamErr error
	err = readSSE(resp.Body, func(f sseFrame) bool {
		switch f.Event {
		case "done":
			return false
		case "error":
			var e struct {
				Error     string `json:"error"`
				ErrorCode string `json:"error_code"`
			}
			_ = json.Unmarshal([]byte(f.Data), &e)
			streamErr = &apiError{Status: resp.StatusCode, Msg: e.Error, Code: e.ErrorCode}
			return false
		default:
			var frag struct {
				Text string `json:"text"`
			}
			if json.Unmarshal([]byte(f.Data), &frag) == nil {
				fmt.Fprint(c.out, frag.Text)
			}
			return true
		}
	})
	fmt.Fprintln(c.out)
	if streamErr != nil {
		return streamErr
	}
	return err
}

func (c *ctl) doEvents(args []string) error {
	path := "/admin/v1/events"
	if len(args) > 0 {
		path += "?type=" + url.QueryEscape(args[0])
	}
	resp, err := c.send(c.streamClient(), http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	fmt.Fprintln(c.out, "Streaming events (Ctrl-C to stop)...")
	err = readSSE(resp.Body, func(f sseFrame) bool {
		var evt map[string]any
		if json.Unmarshal([]byte(f.Data), &evt) != nil {
			return true
		}
		typ, _ := evt["type"].(string)
		if typ == "" {
			return true
		}
		ts := fmtTime(evt["timestamp"])
		switch typ {
		case "model_fallback":
			fmt.Fprintf(c.out, "[%s] %s  provider=%s from=%s to=%s\n", ts, typ, evt["provider"], evt["from_model"], evt["to_model"])
		case "prompt_error":
			fmt.Fprintf(c.out, "[%s] %s  provider=%s model=%s error=%s\n", ts, typ, evt["provider"], evt["model"], evt["error_msg"])
		case "agent_executed":
			fmt.Fprintf(c.out, "[%s] %s  agent=%s latency=%s\n", ts, typ, evt["agent"], fmtDuration(evt["latency_ms"]))
		case "health_change":
			fmt.Fprintf(c.out, "[%s] %s  provider=%s %s -> %s\n", ts, typ, evt["provider"], evt["old_state"], evt["new_state"])
		case "plugin_loaded", "plugin_failed":
			fmt.Fprintf(c.out, "[%s] %s  %s/%s\n", ts, typ, evt["category"], evt["plugin"])
		default:
			fmt.Fprintf(c.out, "[%s] %s  provider=%s model=%s latency=%s\n", ts, typ, evt["provider"], evt["model"], fmtDuration(evt["latency_ms"]))
		}
		return true
	})
	if err == nil {
		fmt.Fprintln(c.out, "Event stream closed.")
	}
	return err
}

func (c *ctl) doLogs(args []string) error {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(parseLimit(args)))
	if p, _ := flagValue(args, "--provider"); p != "" {
		q.Set("provider", p)
	}
	if m, _ := flagValue(args, "--model"); m != "" {
		q.Set("model", m)
	}
	var data struct {
		Logs []map[string]any `json:"logs"`
	}
	if err := c.getJSON("/admin/v1/logs?"+q.Encode(), &data); err != nil {
		return err
	}
	if len(data.Logs) == 0 {
		fmt.Fprintln(c.out, "No request logs.")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tPROVIDER\tMODEL\tMODE\tLATENCY\tCOST\tSTATUS")
	for _, m := range data.Logs {
		status := "ok"
		if m["success"] != true {
			status, _ = m["error_kind"].(string)
			if status == "" {
				status = "error"
			}
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			fmtTime(m["timestamp"]), m["provider"], m["model"], m["mode"],
			fmtDuration(m["latency_ms"]), fmtCost(m["estimated_cost_usd"]), status)
	}
	return tw.Flush()
}

func (c *ctl) doAudit(args []string) error {
	var data struct {
		Logs []map[string]any `json:"logs"`
	}
	if err := c.getJSON(fmt.Sprintf("/admin/v1/audit?limit=%d", parseLimit(args)), &data); err != nil {
		return err
	}
	if len(data.Logs) == 0 {
		fmt.Fprintln(c.out, "No audit logs.")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tACTION\tRESOURCE\tDETAIL")
	for _, m := range data.Logs {
		detail, _ := m["detail"].(string)
		if len(detail) > 60 {
			detail = detail[:57] + "..."
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", fmtTime(m["timestamp"]), m["action"], m["resource"], detail)
	}
	return tw.Flush()
}

func (c *ctl) doUsage() error {
	var data struct {
		Usage []map[string]any `json:"usage"`
	}
	if err := c.getJSON("/admin/v1/usage", &data); err != nil {
		return err
	}
	if len(data.Usage) == 0 {
		fmt.Fprintln(c.out, "No usage recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROVIDER\tMODEL\tREQUESTS\tERRORS\tAVG LATENCY\tCOST")
	for _, u := range data.Usage {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			u["provider"], u["model"], fmtNum(u["requests"]), fmtNum(u["errors"]),
			fmtDuration(u["avg_latency_ms"]), fmtCost(u["total_cost_usd"]))
	}
	return tw.Flush()
}

// --- Formatting helpers ---

func fmtNum(v any) string {
	if v == nil {
		return "-"
	}
	switch n := v.(type) {
	case float64:
		if n == float64(int(n)) {
			return strconv.Itoa(int(n))
		}
		return strconv.FormatFloat(n, 'f', 2, 64)
	case int:
		return strconv.Itoa(n)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func fmtCost(v any) string {
	if v == nil {
		return "-"
	}
	if f, ok := v.(float64); ok {
		if f == 0 {
			return "free"
		}
		return fmt.Sprintf("$%.4f", f)
	}
	return fmt.Sprintf("%v", v)
}

func fmtDuration(v any) string {
	if v == nil {
		return "-"
	}
	if f, ok := v.(float64); ok {
		if f < 1000 {
			return fmt.Sprintf("%.0fms", f)
		}
		return fmt.Sprintf("%.1fs", f/1000)
	}
	return fmt.Sprintf("%v", v)
}

func fmtTime(v any) string {
	s, ok := v.(string)
	if !ok || s == "" {
		return "-"
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.Local().Format("2006-01-02 15:04:05")
	}
	return s
}
