package session

import (
	"errors"
	"os"
	"os/exec"
)

// tmux shells out to the tmux binary.
type tmux struct {
	// Path overrides the binary (tests).
	Path string
}

func (t *tmux) bin() string {
	if t.Path != "" {
		return t.Path
	}
	return "tmux"
}

func (t *tmux) Has(name string) (bool, error) {
	// #nosec G204 name is validated by the manager
	err := exec.Command(t.bin(), "has-session", "-t", name).Run()
	if err == nil {
		return true, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		// non-zero exit means no such session
		return false, nil
	}
	return false, err
}

func (t *tmux) Create(name, dir string) error {
	args := []string{"new-session", "-d", "-s", name}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	// #nosec G204
	return exec.Command(t.bin(), args...).Run()
}

func (t *tmux) Attach(name string) error {
	// #nosec G204
	cmd := exec.Command(t.bin(), "attach-session", "-t", name)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
