package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/JohnDoe6345789/winejs/internal/disasm"
	"github.com/JohnDoe6345789/winejs/internal/host"
	"github.com/JohnDoe6345789/winejs/internal/pe"
	"github.com/JohnDoe6345789/winejs/internal/stubs"
	"github.com/JohnDoe6345789/winejs/internal/trace"
	"github.com/JohnDoe6345789/winejs/internal/ui/colorize"
)

type outputWriter struct {
	ch     chan string
	done   chan struct{}
	writer *bufio.Writer
}

func newOutputWriter() *outputWriter {
	w := &outputWriter{
		ch:     make(chan string, 2048),
		done:   make(chan struct{}),
		writer: bufio.NewWriterSize(os.Stdout, 64*1024),
	}
	go w.run()
	return w
}

func (w *outputWriter) run() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case line, ok := <-w.ch:
			if !ok {
				w.writer.Flush()
				close(w.done)
				return
			}
			w.writer.WriteString(line)
			w.writer.WriteByte('\n')
		case <-ticker.C:
			w.writer.Flush()
		}
	}
}

// Write queues a line. Lines are dropped when the writer falls behind.
func (w *outputWriter) Write(line string) {
	select {
	case w.ch <- line:
	default:
	}
}

func (w *outputWriter) Close() {
	close(w.ch)
	<-w.done
}

func instructionTags(dis string) []string {
	fields := strings.Fields(strings.ToLower(dis))
	if len(fields) == 0 {
		return nil
	}
	var tags []string
	switch m := fields[0]; {
	case m == "call":
		tags = append(tags, "#call")
	case m == "ret":
		tags = append(tags, "#ret")
	case m == "jmp":
		tags = append(tags, "#jmp")
	case strings.HasPrefix(m, "j"):
		tags = append(tags, "#jcc")
	case m == "xor" && len(fields) == 3 && strings.TrimSuffix(fields[1], ",") == fields[2]:
		tags = append(tags, "#zero")
	case m == "xor":
		tags = append(tags, "#xor")
	case m == "hlt":
		tags = append(tags, "#hlt")
	}
	return tags
}

func isBlockEnd(dis string) bool {
	fields := strings.Fields(strings.ToLower(dis))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "ret", "jmp", "hlt":
		return true
	}
	return false
}

func formatLine(l disasm.Line, events []*trace.Event) string {
	var b strings.Builder
	b.Grow(256)

	visibleLen := 0

	b.WriteString(colorize.Address(l.Address))
	b.WriteString("  ")
	visibleLen += 16 + 2

	hex := l.Hex()
	b.WriteString(colorize.HexBytes(hex))
	visibleLen += len(hex)
	for ; visibleLen < 18+22; visibleLen++ {
		b.WriteByte(' ')
	}

	b.WriteString(colorize.Instruction(l.Text))
	visibleLen += len(l.Text)

	const insnCol = 80
	for visibleLen < insnCol {
		b.WriteByte(' ')
		visibleLen++
	}

	var comments []string
	for _, e := range events {
		if e.Detail != "" {
			comments = append(comments, e.Detail)
		}
		for k, v := range e.Annotations {
			comments = append(comments, k+"="+v)
		}
	}

	allTags := instructionTags(l.Text)
	if l.Import != "" {
		allTags = append(allTags, "#"+string(trace.Import))
	}
	for _, e := range events {
		allTags = append(allTags, e.Tags.Strings()...)
	}

	if len(comments) > 0 || len(allTags) > 0 {
		var parts []string
		if len(allTags) > 0 {
			parts = append(parts, strings.Join(allTags, " "))
		}
		if len(comments) > 0 {
			parts = append(parts, strings.Join(comments, ", "))
		}
		b.WriteString(colorize.Comment("; " + strings.Join(parts, " ")))
		b.WriteString("  ")
	}

	if l.Import != "" {
		b.WriteString(colorize.Import(l.Import))
	}
	if !l.Supported {
		b.WriteString(" ")
		b.WriteString(colorize.Error("unsupported"))
	}
	return b.String()
}

func printHeader(w *outputWriter, path string, data []byte, h *host.Host) {
	w.Write(fmt.Sprintf("%s winejs ─ x86-64 PE emulation trace", colorize.Header("▶")))
	w.Write(fmt.Sprintf("  %s %s", colorize.Detail("Loading:"), relPath(path)))
	img, err := pe.Parse(data)
	if err != nil {
		w.Write(fmt.Sprintf("  %s", colorize.Error(err.Error())))
		w.Write("")
		return
	}
	w.Write(fmt.Sprintf("  %s %s  %s %s",
		colorize.Detail("Base:"), colorize.Address(img.ImageBase),
		colorize.Detail("Entry:"), colorize.Address(img.EntryPoint())))
	w.Write(fmt.Sprintf("  %s %s  %s %s  %s %s",
		colorize.Detail("Imports:"), colorize.Import(fmt.Sprintf("%d", len(img.ImportList))),
		colorize.Detail("DLLs:"), colorize.Import(fmt.Sprintf("%d", len(img.DLLs()))),
		colorize.Detail("Stubs:"), colorize.Import(fmt.Sprintf("%d", len(stubs.DefaultRegistry.List())))))
	w.Write(fmt.Sprintf("  %s %d", colorize.Detail("Max steps:"), h.Config().MaxSteps))
	w.Write("")
}

func printReport(rep *host.Report, events int) {
	res := rep.Result
	fmt.Println()
	fmt.Println(colorize.Header(rep.StatusLine()))

	for _, line := range rep.Console {
		fmt.Println(colorize.Console(line))
	}
	for _, note := range rep.Notes {
		fmt.Println(colorize.Detail(note))
	}
	for _, mb := range res.MessageBoxes {
		fmt.Printf("%s %s\n", colorize.Tag("#messagebox"), colorize.String(fmt.Sprintf("%q", mb)))
	}

	if len(res.ImportTrace) > 0 {
		fmt.Println()
		fmt.Println(colorize.Detail("Import trace:"))
		for i, sym := range res.ImportTrace {
			fmt.Printf("  %3d %s\n", i+1, colorize.Import(sym.Qualified()))
		}
	}

	fmt.Println()
	fmt.Print(colorize.Border("───────────────────────────────────────── "))
	fmt.Printf("%s  %s  %s",
		colorize.Import(plural(res.Steps, "step")),
		colorize.Import(plural(len(res.ImportTrace), "import")),
		colorize.Import(plural(events, "event")))
	switch {
	case res.Err != nil:
		fmt.Printf("  %s", colorize.Error(res.Err.Error()))
	case res.Exited:
		fmt.Printf("  %s", colorize.Detail(fmt.Sprintf("exit %d", res.ExitCode)))
	case res.Halted:
		fmt.Printf("  %s", colorize.Detail("halted"))
	case res.Exhausted():
		fmt.Printf("  %s", colorize.Detail("step budget exhausted"))
	}
	if res.GUIIntent {
		fmt.Printf("  %s", colorize.Tag("#gui"))
	}
	if res.DirectX {
		fmt.Printf("  %s", colorize.Tag("#directx"))
	}
	fmt.Println()
}

func printQuietSummary(rep *host.Report) {
	for _, line := range rep.Console {
		fmt.Println(line)
	}
	fmt.Println(rep.StatusLine())
}

func printStrings(strs []string) {
	fmt.Println()
	fmt.Println(colorize.Detail(fmt.Sprintf("Strings (%d):", len(strs))))
	for _, s := range strs {
		fmt.Printf("  %s\n", colorize.String(fmt.Sprintf("%q", s)))
	}
}
