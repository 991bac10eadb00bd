// Package status prints kikai's terminal output: "[stage] message" lines,
// verbose debug lines, errors and progress bars.
package status

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gookit/color"
	"golang.org/x/term"
)

var (
	colStage = color.Cyan
	colError = color.New(color.Bold, color.Red)
	colDebug = color.FgDarkGray
)

// Printer writes status output. The zero value is not usable; use New.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	err     io.Writer
	verbose bool

	// progress is true when bars should be drawn
	progress bool
}

// Options configure a Printer
type Options struct {
	Out        io.Writer
	Err        io.Writer
	Verbose    bool
	NoProgress bool
}

// New creates a Printer. Progress bars are only drawn when Out is a terminal.
func New(opts Options) *Printer {
	p := &Printer{
		out:     opts.Out,
		err:     opts.Err,
		verbose: opts.Verbose,
	}

	if p.out == nil {
		p.out = os.Stdout
	}

	if p.err == nil {
		p.err = os.Stderr
	}

	if f, ok := p.out.(*os.File); ok && !opts.NoProgress {
		p.progress = term.IsTerminal(int(f.Fd()))
	}

	return p
}

// Discard returns a Printer that prints nothing
func Discard() *Printer {
	return New(Options{Out: io.Discard, Err: io.Discard, NoProgress: true})
}

// Status prints "[stage] message"
func (p *Printer) Status(stage, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "[%s] %s\n", colStage.Sprint(stage), fmt.Sprintf(format, args...))
}

// Debugf prints only in verbose mode
func (p *Printer) Debugf(format string, args ...any) {
	if !p.verbose {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out, colDebug.Sprintf(format, args...))
}

// Error prints "Error: err" to the error stream
func (p *Printer) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.err, "%s%v\n", colError.Sprint("Error: "), err)
}

// Out returns the writer subprocess output should go to
func (p *Printer) Out() io.Writer {
	return p.out
}

// ErrOut returns the writer subprocess error output should go to
func (p *Printer) ErrOut() io.Writer {
	return p.err
}
