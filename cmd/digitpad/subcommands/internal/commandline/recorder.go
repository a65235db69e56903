// Package commandline provides a flarc.Commandline for subcommand tests.
package commandline

import (
	"io"
	"strings"
	"sync"

	"github.com/youta-t/flarc"
)

// Recorder runs a subcommand task without a terminal. Stdin is empty and
// stdout is kept for Printed.
type Recorder[T any] struct {
	name  string
	flags T
	args  map[string][]string

	stdin  io.Reader
	stdout output
	stderr output
}

// output is a strings.Builder safe for the progress bar's refresh goroutine.
type output struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (o *output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(p)
}

func (o *output) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

var _ flarc.Commandline[struct{}] = &Recorder[struct{}]{}

// Record returns a Recorder invoked as "digitpad <subcommand>" with flags
// and no positional arguments.
func Record[T any](subcommand string, flags T) *Recorder[T] {
	return &Recorder[T]{
		name:  "digitpad " + subcommand,
		flags: flags,
		args:  map[string][]string{},
		stdin: strings.NewReader(""),
	}
}

// WithArg sets the values of a positional argument.
func (r *Recorder[T]) WithArg(name string, values ...string) *Recorder[T] {
	r.args[name] = values
	return r
}

// Printed returns everything written to stdout so far.
func (r *Recorder[T]) Printed() string { return r.stdout.String() }

func (r *Recorder[T]) Fullname() string          { return r.name }
func (r *Recorder[T]) Stdin() io.Reader          { return r.stdin }
func (r *Recorder[T]) Stdout() io.Writer         { return &r.stdout }
func (r *Recorder[T]) Stderr() io.Writer         { return &r.stderr }
func (r *Recorder[T]) Flags() T                  { return r.flags }
func (r *Recorder[T]) Args() map[string][]string { return r.args }
