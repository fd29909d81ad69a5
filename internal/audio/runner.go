package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// commandRunner abstracts process execution so splitting logic is testable
// without ffmpeg installed.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return outBuf.String(), errBuf.String(), fmt.Errorf("%s failed: %w: %s", name, err, errBuf.String())
	}
	return outBuf.String(), errBuf.String(), nil
}
