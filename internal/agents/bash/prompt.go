package bash

import (
	"strings"
	"text/template"
)

var executionPrompt = template.Must(template.New("execution").Parse(`Task: {{.Task}}
Working directory: {{.Workdir}}
System info: {{.SystemInfo}}
Previous commands (if any):
{{- if .History}}
{{- range .History}}
- {{.}}
{{- end}}
{{- else}}
(none)
{{- end}}

Please suggest the most appropriate bash command to accomplish this task.
Respond with ONLY the command, no explanation or additional text.
The command should be ready to execute as-is.`))

type promptData struct {
	Task       string
	Workdir    string
	SystemInfo string
	History    []string
}

func renderPrompt(d promptData) string {
	var b strings.Builder
	// The template is static and only ranges over strings.
	_ = executionPrompt.Execute(&b, d)
	return b.String()
}

// cleanSuggestion strips markdown fences and surrounding whitespace that
// models add despite being told not to.
func cleanSuggestion(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		lines = lines[1:]
		if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
			lines = lines[:n-1]
		}
		s = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	if strings.HasPrefix(s, "`") && strings.HasSuffix(s, "`") && len(s) > 1 {
		s = strings.TrimSpace(strings.Trim(s, "`"))
	}
	return s
}
