package inject

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

const commandTimeout = 5 * time.Second

// Runner executes desktop automation commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
	Has(name string) bool
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return strings.TrimSpace(string(out)), err
}

func (execRunner) Has(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
