package engine

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/teranos/noculars/errors"
	"github.com/teranos/noculars/pipeline/registry"
)

// Invoker executes one agent attempt. Implementations must honor ctx
// cancellation and return a wrapped ErrAgentTimeout when the attempt's
// deadline expired, or a wrapped ErrAgentExecution for any other failure.
type Invoker interface {
	Invoke(ctx context.Context, d *registry.Descriptor) error
}

// stderrTailBytes bounds how much captured stderr ends up in the run record.
const stderrTailBytes = 2048

// ProcessInvoker runs agents as subprocesses. Bare .py commands are invoked
// through the configured Python interpreter.
type ProcessInvoker struct {
	pythonEnv string
	workDir   string
	log       *zap.SugaredLogger
}

// NewProcessInvoker creates a subprocess invoker. workDir may be empty to
// inherit the engine's working directory.
func NewProcessInvoker(pythonEnv, workDir string, log *zap.SugaredLogger) *ProcessInvoker {
	return &ProcessInvoker{pythonEnv: pythonEnv, workDir: workDir, log: log}
}

// Invoke runs the descriptor's command and waits for it to exit. The caller
// owns the attempt deadline via ctx.
func (p *ProcessInvoker) Invoke(ctx context.Context, d *registry.Descriptor) error {
	argv, err := p.buildArgv(d)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = p.workDir
	cmd.Env = os.Environ()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	p.log.Debugw("Invoking agent process", "agent", d.Name, "argv", argv)

	err = cmd.Run()
	if err == nil {
		return nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrapf(errors.ErrAgentTimeout,
			"agent %s exceeded its %s attempt timeout", d.Name, d.Timeout)
	}

	msg := errors.Wrapf(errors.ErrAgentExecution, "agent %s: %v", d.Name, err)
	if tail := stderrTail(stderr.Bytes()); tail != "" {
		msg = errors.WithDetail(msg, tail)
	}
	return msg
}

// buildArgv splits the command string and prepends the Python interpreter
// when the command is a bare .py script.
func (p *ProcessInvoker) buildArgv(d *registry.Descriptor) ([]string, error) {
	argv, err := shellquote.Split(d.Command)
	if err != nil {
		return nil, errors.NewConfigError("agent %s has an unparsable command %q: %v", d.Name, d.Command, err)
	}
	if len(argv) == 0 {
		return nil, errors.NewConfigError("agent %s has an empty command", d.Name)
	}
	if strings.HasSuffix(argv[0], ".py") && p.pythonEnv != "" {
		argv = append([]string{p.pythonEnv}, argv...)
	}
	return argv, nil
}

func stderrTail(b []byte) string {
	if len(b) > stderrTailBytes {
		b = b[len(b)-stderrTailBytes:]
	}
	return strings.TrimSpace(string(b))
}
