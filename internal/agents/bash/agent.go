// Package bash is an agent plugin that asks a language model for a shell
// command fulfilling a task and runs it in a caller-chosen directory.
package bash

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/jordanhubbard/chitti/internal/plugin"
	"github.com/jordanhubbard/chitti/internal/tools/sysinfo"
)

const (
	Name              = "bash"
	Version           = "0.1.0"
	DefaultHistoryMax = 10
)

// Agent turns natural-language tasks into shell commands.
type Agent struct {
	llm        plugin.Dispatcher
	provider   string
	model      string
	shell      string
	historyMax int
	timeout    time.Duration
	systemInfo func(ctx context.Context) string
	logger     *slog.Logger

	mu      sync.Mutex
	history []string
}

var (
	_ plugin.Agent           = (*Agent)(nil)
	_ plugin.RouteMounter    = (*Agent)(nil)
	_ plugin.CommandProvider = (*Agent)(nil)
)

type Option func(*Agent)

// WithModel pins the provider and model used for suggestions. Empty values
// fall back to the host defaults.
func WithModel(provider, model string) Option {
	return func(a *Agent) {
		a.provider = provider
		a.model = model
	}
}

func WithShell(shell string) Option {
	return func(a *Agent) { a.shell = shell }
}

func WithHistoryLimit(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.historyMax = n
		}
	}
}

// WithCommandTimeout bounds each command run. Zero means no limit beyond the
// caller's context.
func WithCommandTimeout(d time.Duration) Option {
	return func(a *Agent) { a.timeout = d }
}

func WithSystemInfo(fn func(ctx context.Context) string) Option {
	return func(a *Agent) { a.systemInfo = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

func New(llm plugin.Dispatcher, opts ...Option) *Agent {
	a := &Agent{
		llm:        llm,
		shell:      "sh",
		historyMax: DefaultHistoryMax,
		systemInfo: hostSummary,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func hostSummary(ctx context.Context) string {
	s, err := sysinfo.Collect(ctx)
	if err != nil {
		return runtime.GOOS + " " + runtime.GOARCH
	}
	return s.Summary()
}

func (a *Agent) Name() string { return Name }

func (a *Agent) Info() plugin.AgentInfo {
	return plugin.AgentInfo{
		Name:        Name,
		Description: "Execute bash commands with LLM assistance",
		Version:     Version,
		Capabilities: map[string]bool{
			"llm_integration":   true,
			"command_execution": true,
			"streaming":         false,
		},
	}
}

// History returns the most recent commands run, oldest first.
func (a *Agent) History() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.history...)
}

func (a *Agent) remember(command string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, command)
	if over := len(a.history) - a.historyMax; over > 0 {
		a.history = append([]string(nil), a.history[over:]...)
	}
}

// ResolveWorkdir returns an absolute, existing directory for dir, or the
// process working directory when dir is empty.
func ResolveWorkdir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		return wd, nil
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return "", plugin.Validationf("invalid working directory: %v", err)
	}
	if !fi.IsDir() {
		return "", plugin.Validationf("invalid working directory: %s is not a directory", dir)
	}
	return dir, nil
}

// Prompt renders the execution prompt for task in workdir.
func (a *Agent) Prompt(ctx context.Context, task, workdir string) string {
	return renderPrompt(promptData{
		Task:       task,
		Workdir:    workdir,
		SystemInfo: a.systemInfo(ctx),
		History:    a.History(),
	})
}

// Suggest asks the model for a command. The result is never empty.
func (a *Agent) Suggest(ctx context.Context, task, workdir string) (string, error) {
	if a.llm == nil {
		return "", plugin.Preconditionf("bash agent has no dispatcher")
	}
	reply, err := a.llm.Complete(ctx, a.Prompt(ctx, task, workdir), a.provider, a.model)
	if err != nil {
		return "", fmt.Errorf("suggest command: %w", err)
	}
	cmd := cleanSuggestion(reply)
	if cmd == "" {
		return "", plugin.ProviderError("model returned an empty command", nil)
	}
	return cmd, nil
}

// RunResult is the outcome of one shell invocation.
type RunResult struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes command with the configured shell in workdir. A non-zero exit
// is reported through ExitCode, not err; err means the shell could not be
// started or ctx ended.
func (a *Agent) Run(ctx context.Context, command, workdir string) (RunResult, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, a.shell, "-c", command)
	cmd.Dir = workdir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	a.remember(command)

	res := RunResult{Command: command, Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return res, fmt.Errorf("run command: %w", ctx.Err())
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("run command: %w", err)
	}

	a.logger.Debug("bash command finished",
		slog.String("workdir", workdir),
		slog.Int("exit_code", res.ExitCode),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// Execute suggests a command for task and runs it. taskCtx may carry
// "workdir" (string) and "dry_run" (bool); a dry run only suggests.
func (a *Agent) Execute(ctx context.Context, task string, taskCtx map[string]any) (plugin.TaskResult, error) {
	reqDir, _ := taskCtx["workdir"].(string)
	workdir, err := ResolveWorkdir(reqDir)
	if err != nil {
		return plugin.TaskResult{}, err
	}

	suggestion, err := a.Suggest(ctx, task, workdir)
	if err != nil {
		return plugin.TaskResult{}, err
	}

	if dry, _ := taskCtx["dry_run"].(bool); dry {
		return plugin.TaskResult{
			Suggestion: suggestion,
			Success:    true,
			Context:    a.resultContext(workdir),
		}, nil
	}

	res, err := a.Run(ctx, suggestion, workdir)
	if err != nil {
		return plugin.TaskResult{}, err
	}
	return a.taskResult(res, workdir), nil
}

func (a *Agent) taskResult(res RunResult, workdir string) plugin.TaskResult {
	out := plugin.TaskResult{
		Suggestion: res.Command,
		Output:     res.Stdout,
		Success:    res.ExitCode == 0,
		Context:    a.resultContext(workdir),
	}
	if !out.Success {
		out.Error = failureMessage(res)
	}
	return out
}

func failureMessage(res RunResult) string {
	stderr := strings.TrimSpace(res.Stderr)
	if strings.Contains(strings.ToLower(stderr), "command not found") {
		return "command not found: " + res.Command
	}
	if stderr == "" {
		return fmt.Sprintf("command exited with status %d", res.ExitCode)
	}
	return stderr
}

func (a *Agent) resultContext(workdir string) map[string]any {
	return map[string]any{
		"workdir": workdir,
		"history": a.History(),
	}
}
