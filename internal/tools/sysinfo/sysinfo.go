// Package sysinfo is a tool plugin reporting facts about the host chitti runs
// on. The bash agent also feeds its summary to the model.
package sysinfo

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/jordanhubbard/chitti/internal/plugin"
)

const Name = "sysinfo"

// Snapshot is a point-in-time view of the host.
type Snapshot struct {
	Hostname        string  `json:"hostname"`
	OS              string  `json:"os"`
	Platform        string  `json:"platform"`
	PlatformVersion string  `json:"platform_version"`
	KernelVersion   string  `json:"kernel_version"`
	Arch            string  `json:"arch"`
	UptimeSecs      uint64  `json:"uptime_secs"`
	CPUs            int     `json:"cpus"`
	MemTotalBytes   uint64  `json:"mem_total_bytes"`
	MemAvailBytes   uint64  `json:"mem_available_bytes"`
	MemUsedPercent  float64 `json:"mem_used_percent"`
	Load1           float64 `json:"load1"`
}

// Collect gathers a Snapshot. Probes that are unsupported on the current
// platform leave their fields zero; only a failing host probe is an error.
func Collect(ctx context.Context) (Snapshot, error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("host info: %w", err)
	}
	s := Snapshot{
		Hostname:        hi.Hostname,
		OS:              hi.OS,
		Platform:        hi.Platform,
		PlatformVersion: hi.PlatformVersion,
		KernelVersion:   hi.KernelVersion,
		Arch:            hi.KernelArch,
		UptimeSecs:      hi.Uptime,
	}
	if s.Arch == "" {
		s.Arch = runtime.GOARCH
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		s.CPUs = n
	} else {
		s.CPUs = runtime.NumCPU()
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemTotalBytes = vm.Total
		s.MemAvailBytes = vm.Available
		s.MemUsedPercent = vm.UsedPercent
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.Load1 = avg.Load1
	}
	return s, nil
}

// Summary renders s on one line, in the form of uname -a plus resources.
func (s Snapshot) Summary() string {
	parts := []string{s.OS, s.Hostname, s.KernelVersion, s.Arch}
	if s.Platform != "" {
		parts = append(parts, strings.TrimSpace(s.Platform+" "+s.PlatformVersion))
	}
	out := strings.Join(nonEmpty(parts), " ")
	return fmt.Sprintf("%s (%d cpus, %d MiB memory)", out, s.CPUs, s.MemTotalBytes>>20)
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Tool exposes Collect as a plugin.Tool.
type Tool struct {
	collect func(ctx context.Context) (Snapshot, error)
}

var _ plugin.Tool = (*Tool)(nil)

func New() *Tool { return &Tool{collect: Collect} }

func (t *Tool) Name() string { return Name }

func (t *Tool) Info() plugin.ToolInfo {
	return plugin.ToolInfo{
		Name:        Name,
		Description: "Report host OS, CPU, memory and load information",
		Version:     "0.1.0",
	}
}

// Execute ignores its input except for "summary": true, which adds a
// one-line rendering under the "summary" key.
func (t *Tool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	s, err := t.collect(ctx)
	if err != nil {
		return nil, plugin.ProviderError("collect system info", err)
	}
	out := map[string]any{
		"hostname":            s.Hostname,
		"os":                  s.OS,
		"platform":            s.Platform,
		"platform_version":    s.PlatformVersion,
		"kernel_version":      s.KernelVersion,
		"arch":                s.Arch,
		"uptime_secs":         s.UptimeSecs,
		"cpus":                s.CPUs,
		"mem_total_bytes":     s.MemTotalBytes,
		"mem_available_bytes": s.MemAvailBytes,
		"mem_used_percent":    s.MemUsedPercent,
		"load1":               s.Load1,
	}
	if want, _ := input["summary"].(bool); want {
		out["summary"] = s.Summary()
	}
	return out, nil
}
