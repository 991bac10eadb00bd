// Package codes maps orchestration failures to stages and process exit codes.
package codes

import (
	"errors"
	"fmt"
)

// Process exit codes
const (
	Success = 0
	Failure = 1
)

// Stage names the phase of a run an error came from
type Stage string

const (
	StageConfig    Stage = "config"
	StageManifest  Stage = "manifest"
	StageResolve   Stage = "resolve"
	StageToolchain Stage = "toolchain"
	StageSource    Stage = "source"
	StageBuild     Stage = "build"
	StageCache     Stage = "cache"
)

// StageDescriptions maps each stage to a human readable description
var StageDescriptions = map[Stage]string{
	StageConfig:    "Loading configuration",
	StageManifest:  "Parsing the manifest",
	StageResolve:   "Resolving module dependencies",
	StageToolchain: "Provisioning toolchains",
	StageSource:    "Downloading and extracting sources",
	StageBuild:     "Building modules",
	StageCache:     "Accessing the build cache",
}

// StageError is an error attributed to a stage and optionally a module
type StageError struct {
	Stage  Stage
	Module string
	Err    error
}

func (e *StageError) Error() string {
	if e.Module == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}

	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Module, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Wrap attributes err to stage and module. A nil err stays nil and an
// error that already carries a stage is returned unchanged.
func Wrap(stage Stage, module string, err error) error {
	if err == nil {
		return nil
	}

	var se *StageError
	if errors.As(err, &se) {
		return err
	}

	return &StageError{Stage: stage, Module: module, Err: err}
}

// StageOf returns the stage err is attributed to, if any
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}

	return "", false
}

// ExitCode returns the process exit code for err
func ExitCode(err error) int {
	if err == nil {
		return Success
	}

	return Failure
}

// GetDescription returns the description of a stage, or a generic message if unknown
func GetDescription(stage Stage) string {
	if msg, ok := StageDescriptions[stage]; ok {
		return msg
	}

	return "Unknown stage"
}
