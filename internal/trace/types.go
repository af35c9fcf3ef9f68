// Package trace provides types for import trace collection and analysis.
package trace

import (
	"strings"
	"time"
)

// Tag represents a trace event category.
// Tags are stored without # prefix; the prefix is added on rendering.
type Tag string

// Standard tags for trace events.
const (
	Import   Tag = "import"
	Console  Tag = "console"
	GUI      Tag = "gui"
	DirectX  Tag = "directx"
	Winsock  Tag = "winsock"
	Network  Tag = "network"
	Process  Tag = "process"
	Script   Tag = "script"
	Fallback Tag = "fallback"
	Kernel32 Tag = "kernel32"
	User32   Tag = "user32"
	CRT      Tag = "crt"
)

// Tags is a collection of tags with helper methods.
type Tags []Tag

// Has returns true if the collection contains tag.
func (t Tags) Has(tag Tag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Add adds a tag if not already present.
func (t *Tags) Add(tag Tag) {
	if !t.Has(tag) {
		*t = append(*t, tag)
	}
}

// Strings returns tags with the # prefix for display.
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = "#" + string(tag)
	}
	return out
}

// Primary returns the first tag or empty string if none.
func (t Tags) Primary() Tag {
	if len(t) > 0 {
		return t[0]
	}
	return ""
}

// Annotations holds key-value metadata for trace events.
type Annotations map[string]string

// Event is one intercepted import call.
type Event struct {
	RIP         uint64 // address of the call/jmp that reached the import
	Tags        Tags   // first is primary
	DLL         string // lower-cased module name, e.g. "kernel32.dll"
	Name        string // symbol name, e.g. "WriteConsoleA"
	Detail      string
	Annotations Annotations
	Timestamp   time.Time
}

// NewEvent creates an event from a qualified "dll!Name" import name.
func NewEvent(rip uint64, category, qualified, detail string) *Event {
	dll, name := SplitQualified(qualified)
	return &Event{
		RIP:         rip,
		Tags:        Tags{Tag(category)},
		DLL:         dll,
		Name:        name,
		Detail:      detail,
		Annotations: make(Annotations),
		Timestamp:   time.Now(),
	}
}

// SplitQualified splits "dll!Name" into its halves. A name without a
// separator has an empty DLL.
func SplitQualified(qualified string) (dll, name string) {
	if i := strings.IndexByte(qualified, '!'); i >= 0 {
		return qualified[:i], qualified[i+1:]
	}
	return "", qualified
}

// Qualified returns "dll!Name".
func (e *Event) Qualified() string {
	if e.DLL == "" {
		return e.Name
	}
	return e.DLL + "!" + e.Name
}

// AddTag adds a tag to the event.
func (e *Event) AddTag(tag Tag) {
	e.Tags.Add(tag)
}

// Annotate sets an annotation on the event.
func (e *Event) Annotate(k, v string) {
	if e.Annotations == nil {
		e.Annotations = make(Annotations)
	}
	e.Annotations[k] = v
}

// PrimaryTag returns the primary tag with # prefix.
func (e *Event) PrimaryTag() string {
	if len(e.Tags) > 0 {
		return "#" + string(e.Tags[0])
	}
	return ""
}

// Enricher enriches trace events after they are created.
type Enricher func(e *Event)

// DefaultEnricher adds tags derived from the module and symbol name.
func DefaultEnricher(e *Event) {
	dll := strings.TrimSuffix(e.DLL, ".dll")

	switch {
	case dll == "kernel32" || dll == "kernelbase":
		e.AddTag(Kernel32)
		switch e.Name {
		case "ExitProcess", "TerminateProcess":
			e.AddTag(Process)
		}
	case dll == "user32":
		e.AddTag(User32)
		e.AddTag(GUI)
	case dll == "ws2_32" || dll == "wsock32" || strings.Contains(dll, "winsock"):
		e.AddTag(Winsock)
		e.AddTag(Network)
	case dll == "msvcrt" || dll == "ucrtbase" || strings.HasPrefix(dll, "api-ms-win-crt-"):
		e.AddTag(CRT)
		switch e.Name {
		case "printf", "vprintf", "fprintf", "vfprintf", "puts", "fputs", "putchar":
			e.AddTag(Console)
		case "exit", "_exit", "_Exit", "abort":
			e.AddTag(Process)
		}
	case strings.HasPrefix(dll, "d3d") || strings.HasPrefix(dll, "dxgi") || strings.HasPrefix(dll, "d2d"):
		e.AddTag(DirectX)
	}

	if strings.HasPrefix(e.Name, "WriteConsole") {
		e.AddTag(Console)
	}
}
