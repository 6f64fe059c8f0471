package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/kballard/go-shellquote"
)

// ErrEntryPointMissing is returned when a script does not define the
// designated entry-point function.
var ErrEntryPointMissing = errors.New("entry point not found in script")

const defaultEntryPoint = "main"

// Script runs a shell script by sourcing it and calling a designated
// entry-point function with no arguments. The entry point defaults to
// "main".
type Script struct {
	Path  string
	Entry string
}

var entryDefPattern = `(?m)^\s*(function\s+)?%s\s*\(\s*\)`

func (s Script) Run(ctx context.Context, params map[string]any) (any, error) {
	entry := s.Entry
	if entry == "" {
		entry = defaultEntryPoint
	}
	if !identPattern.MatchString(entry) {
		return nil, fmt.Errorf("invalid entry point name %q", entry)
	}
	src, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", s.Path, err)
	}
	defined, err := regexp.MatchString(fmt.Sprintf(entryDefPattern, regexp.QuoteMeta(entry)), string(src))
	if err != nil {
		return nil, err
	}
	if !defined {
		return nil, fmt.Errorf("%w: %s in %s", ErrEntryPointMissing, entry, s.Path)
	}

	command := fmt.Sprintf("%s && %s", shellquote.Join(".", s.Path), entry)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command) // #nosec G204
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("script %s: %w: %s", s.Path, err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
