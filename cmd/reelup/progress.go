package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

const (
	ansiGreen = "\x1b[32m"
	ansiReset = "\x1b[0m"
	barWidth  = 30
)

// progressLine redraws a single status line on terminals and stays silent
// otherwise, leaving progress to the sampled log lines.
type progressLine struct {
	mu       sync.Mutex
	out      io.Writer
	label    string
	enabled  bool
	colorize bool
	last     int
}

func newProgressLine(out io.Writer, label string) *progressLine {
	tty := isTerminal(out)
	return &progressLine{out: out, label: label, enabled: tty, colorize: tty, last: -1}
}

func (p *progressLine) update(fraction float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	permille := int(fraction * 1000)
	if permille == p.last {
		return
	}
	p.last = permille
	fmt.Fprintf(p.out, "\r%s %s %5.1f%%", p.label, p.bar(fraction), fraction*100)
}

func (p *progressLine) bar(fraction float64) string {
	filled := int(fraction * barWidth)
	filled = max(0, min(filled, barWidth))
	bar := "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "]"
	if p.colorize {
		return ansiGreen + bar + ansiReset
	}
	return bar
}

func (p *progressLine) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled && p.last >= 0 {
		fmt.Fprintln(p.out)
	}
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
