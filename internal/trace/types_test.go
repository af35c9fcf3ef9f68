package trace

import "testing"

func TestNewEventSplitsQualifiedName(t *testing.T) {
	e := NewEvent(0x140001000, "console", "kernel32.dll!WriteConsoleA", "\"hi\"")
	if e.DLL != "kernel32.dll" || e.Name != "WriteConsoleA" {
		t.Fatalf("split = %q %q", e.DLL, e.Name)
	}
	if e.Qualified() != "kernel32.dll!WriteConsoleA" {
		t.Errorf("Qualified = %q", e.Qualified())
	}
	if e.PrimaryTag() != "#console" {
		t.Errorf("PrimaryTag = %q", e.PrimaryTag())
	}

	bare := NewEvent(0, "script", "MessageBoxA", "")
	if bare.DLL != "" || bare.Qualified() != "MessageBoxA" {
		t.Errorf("bare = %q / %q", bare.DLL, bare.Qualified())
	}
}

func TestDefaultEnricher(t *testing.T) {
	tests := []struct {
		qualified string
		want      []Tag
	}{
		{"kernel32.dll!WriteConsoleW", []Tag{Kernel32, Console}},
		{"kernelbase.dll!ExitProcess", []Tag{Kernel32, Process}},
		{"user32.dll!MessageBoxA", []Tag{User32, GUI}},
		{"ws2_32.dll!connect", []Tag{Winsock, Network}},
		{"d3d11.dll!D3D11CreateDevice", []Tag{DirectX}},
		{"msvcrt.dll!printf", []Tag{CRT, Console}},
		{"api-ms-win-crt-runtime-l1-1-0.dll!exit", []Tag{CRT, Process}},
	}
	for _, tt := range tests {
		t.Run(tt.qualified, func(t *testing.T) {
			e := NewEvent(0, "import", tt.qualified, "")
			DefaultEnricher(e)
			if e.Tags.Primary() != "import" {
				t.Errorf("primary = %q", e.Tags.Primary())
			}
			for _, tag := range tt.want {
				if !e.Tags.Has(tag) {
					t.Errorf("missing %q in %v", tag, e.Tags)
				}
			}
		})
	}
}

func TestTagsAddIsIdempotent(t *testing.T) {
	var tags Tags
	tags.Add(GUI)
	tags.Add(GUI)
	tags.Add(User32)
	if got := tags.Strings(); len(got) != 2 || got[0] != "#gui" || got[1] != "#user32" {
		t.Errorf("Strings = %v", got)
	}
}

func TestAnnotateNilMap(t *testing.T) {
	e := &Event{}
	e.Annotate("ret", "1")
	if e.Annotations["ret"] != "1" {
		t.Errorf("Annotations = %v", e.Annotations)
	}
}
