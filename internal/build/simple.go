package build

import (
	"context"

	"github.com/kikai-build/kikai/internal/cache"
	"github.com/kikai-build/kikai/internal/manifest"
	"github.com/kikai-build/kikai/internal/runner"
)

// Simple runs named shell scripts in order
type Simple struct {
	Steps []manifest.SimpleStep
}

func (s *Simple) Build(ctx context.Context, e *Executor, job Job) error {
	env := Env(job)

	for _, st := range s.Steps {
		err := e.step(cache.ScopeBuildSimple, job, st.Name, cache.Hash(st.Run), func() error {
			return e.Runner.Run(ctx, runner.Shell(st.Run, job.SourceDir, env))
		})
		if err != nil {
			return err
		}
	}

	return nil
}
