package runner

import (
	"context"
	"sync"
)

// Recorder is a Runner that records commands instead of spawning them
type Recorder struct {
	mu       sync.Mutex
	Commands []*Command

	// Hook, when set, is called for every command and its result returned
	Hook func(cmd *Command) error
}

func (r *Recorder) Run(ctx context.Context, cmd *Command) error {
	r.mu.Lock()
	r.Commands = append(r.Commands, cmd)
	hook := r.Hook
	r.mu.Unlock()

	if hook != nil {
		return hook(cmd)
	}

	return nil
}

// Count returns the number of commands run so far
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.Commands)
}

// Scripts returns the script of every shell command, in order
func (r *Recorder) Scripts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var scripts []string
	for _, c := range r.Commands {
		if c.Path == DefaultShell && len(c.Args) == 3 {
			scripts = append(scripts, c.Args[2])
		}
	}

	return scripts
}

// Reset forgets all recorded commands
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Commands = nil
}
