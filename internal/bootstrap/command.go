package bootstrap

import (
	"context"
	"os"
	"os/exec"
	"strings"
)

// buildCommand constructs an *exec.Cmd for a phase command line.
// It avoids invoking a shell when not necessary to reduce command injection surface (G204 mitigation).
// If the line contains obvious shell metacharacters, it falls back to /bin/sh -c.
func buildCommand(ctx context.Context, line string) *exec.Cmd {
	line = strings.TrimSpace(line)
	if line == "" {
		// still create a command that will fail when started
		return exec.CommandContext(ctx, "/bin/true")
	}
	// #nosec G204 Detect shell metacharacters
	if strings.ContainsAny(line, "|&;<>*?`$\"'(){}[]~") {
		return exec.CommandContext(ctx, "/bin/sh", "-c", line)
	}
	parts := strings.Fields(line)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.CommandContext(ctx, name, args...)
}

// shellExec runs one command line with stdio passed through, so apt
// and friends stay visible to the operator.
func shellExec(ctx context.Context, line string) error {
	cmd := buildCommand(ctx, line)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
