// Package preflight verifies the run prerequisites before any work starts.
package preflight

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
)

// Settings names the paths a run depends on.
type Settings struct {
	DataDir           string
	EncoderPath       string
	EncoderSupportDir string
}

// Result is the outcome of a single check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Run evaluates every prerequisite and reports each result. The encoder
// support directory is only checked when configured.
func Run(s Settings) []Result {
	results := []Result{
		checkDir("data directory", s.DataDir),
		checkEncoder(s.EncoderPath),
	}
	if strings.TrimSpace(s.EncoderSupportDir) != "" {
		results = append(results, checkDir("encoder support directory", s.EncoderSupportDir))
	}
	return results
}

// Check runs every prerequisite and returns an error wrapping
// domain.ErrPrerequisite that lists all failures.
func Check(s Settings) error {
	var failed []string
	for _, r := range Run(s) {
		if !r.Passed {
			failed = append(failed, r.Name+": "+r.Detail)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrPrerequisite, strings.Join(failed, "; "))
}

func checkDir(name, path string) Result {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Result{Name: name, Detail: fmt.Sprintf("%s does not exist", path)}
	case err != nil:
		return Result{Name: name, Detail: err.Error()}
	case !info.IsDir():
		return Result{Name: name, Detail: fmt.Sprintf("%s is not a directory", path)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

func checkEncoder(path string) Result {
	const name = "encoder"
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{Name: name, Detail: "command not configured"}
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found or not executable", path)}
	}
	return Result{Name: name, Passed: true, Detail: resolved}
}
