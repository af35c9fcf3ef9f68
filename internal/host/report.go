package host

import (
	"context"
	"fmt"
	"strings"

	"github.com/JohnDoe6345789/winejs/internal/winstr"
)

// Report is what a front end shows after running a binary.
type Report struct {
	Name    string
	Size    int
	Status  []string
	Strings []string
	Console []string
	Notes   []string
	Result  *Result
}

// StatusLine joins the status chunks.
func (r *Report) StatusLine() string {
	return strings.Join(r.Status, " - ")
}

// Run simulates data and builds a report. Printable strings are always
// extracted, even when simulation fails.
func (h *Host) Run(ctx context.Context, name string, data []byte) *Report {
	res := h.Simulate(ctx, data)
	rep := &Report{
		Name:    name,
		Size:    len(data),
		Strings: printable(data),
		Result:  res,
		Status:  []string{name, fmt.Sprintf("%.1f KB", float64(len(data))/1024)},
	}
	prefix := h.cfg.Console.LinePrefix

	if res.Err != nil {
		rep.Status = append(rep.Status, "simulation failed: "+res.Err.Error())
		rep.Notes = append(rep.Notes, withPrefix(prefix, "x86 simulation failed: "+res.Err.Error()))
		return rep
	}

	rep.Status = append(rep.Status, fmt.Sprintf("imports walked: %d", len(res.ImportTrace)))
	if res.ImportErr != nil {
		rep.Notes = append(rep.Notes, withPrefix(prefix, "Import table incomplete: "+res.ImportErr.Error()))
	}
	if res.GUIIntent {
		rep.Status = append(rep.Status, "GUI intent via API usage")
		rep.Notes = append(rep.Notes, withPrefix(prefix, "GUI intent detected from simulated API calls."))
	} else {
		rep.Status = append(rep.Status, "Console intent via API usage")
	}
	if res.DirectX {
		rep.Notes = append(rep.Notes, withPrefix(prefix, "DirectX imports detected."))
	}

	for _, line := range res.ConsoleLines {
		if strings.TrimSpace(line) != "" {
			rep.Console = append(rep.Console, withPrefix(prefix, line))
		}
	}
	if len(rep.Console) == 0 && !res.GUIIntent {
		rep.Notes = append(rep.Notes, withPrefix(prefix, "Simulation completed with no console output detected."))
	}
	return rep
}

func printable(data []byte) []string {
	var out []string
	for _, s := range winstr.ExtractPrintable(data) {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func withPrefix(prefix, line string) string {
	if prefix == "" {
		return line
	}
	return prefix + " " + line
}
