// Package script invokes the external "dhclient-script" the way spec.md
// §4.E describes: build an environment of reason code, interface, medium,
// pid, and a flat {old_,new_,alias_,requested_}<key>=<value> list derived
// from a lease's option set, then run the configured program and report its
// exit status.
//
// The synchronous, blocking shape (spec.md §5: "the script invocation
// blocks the entire client") is deliberate; callers substitute a Runner in
// tests rather than relaxing the contract, per spec.md §9's Design Note.
package script

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"syscall"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/log"
)

// Reason is the script-invocation reason code of spec.md §4.E.
type Reason string

// Reason codes.
const (
	ReasonBound    Reason = "BOUND"
	ReasonRenew    Reason = "RENEW"
	ReasonRebind   Reason = "REBIND"
	ReasonReboot   Reason = "REBOOT"
	ReasonExpire   Reason = "EXPIRE"
	ReasonFail     Reason = "FAIL"
	ReasonNBI      Reason = "NBI"
	ReasonPreinit  Reason = "PREINIT"
	ReasonMedium   Reason = "MEDIUM"
	ReasonRelease  Reason = "RELEASE"
	ReasonStop     Reason = "STOP"
	ReasonTimeout  Reason = "TIMEOUT"
)

// Env is the environment the runner builds for one invocation.
type Env struct {
	Reason    Reason
	Interface string
	Medium    string
	Vars      map[string]string
}

// Runner runs the external script and reports its outcome.  Implementations
// must be safe to call repeatedly and must block until the child exits,
// matching spec.md §5's suspension-point model.
type Runner interface {
	// Run invokes the script with env and returns its exit status, or
	// -signal if it was killed by a signal.
	Run(ctx context.Context, env Env) (status int, err error)
}

// ExecRunner runs a real external program via os/exec, grounded on the
// child-process model the rest of the corpus uses for out-of-process
// collaborators (spawn, wait, translate ProcessState into an exit code).
type ExecRunner struct {
	// Path is the script to execute, e.g. "/sbin/dhclient-script".
	Path string
}

// var check
var _ Runner = (*ExecRunner)(nil)

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, env Env) (status int, err error) {
	cmd := exec.CommandContext(ctx, r.Path)
	cmd.Env = buildEnviron(env)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	log.Debug("script: running %q reason=%s", r.Path, env.Reason)

	err = cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return -int(ws.Signal()), nil
		}

		return exitErr.ExitCode(), nil
	}

	return 0, fmt.Errorf("running script: %w", err)
}

// buildEnviron renders env as a "KEY=value" slice layered on top of the
// current process environment, the way a child script expects to see both
// its own inherited environment and the dhclient-specific variables.
func buildEnviron(env Env) (out []string) {
	out = append(out, os.Environ()...)
	out = append(out, fmt.Sprintf("reason=%s", env.Reason))
	out = append(out, fmt.Sprintf("interface=%s", env.Interface))
	out = append(out, fmt.Sprintf("pid=%d", os.Getpid()))
	if env.Medium != "" {
		out = append(out, fmt.Sprintf("medium=%s", env.Medium))
	}

	keys := make([]string, 0, len(env.Vars))
	for k := range env.Vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env.Vars[k]))
	}

	return out
}

// NoopRunner is a Runner that runs nothing, records each call, and returns
// its configured Status (zero by default), for tests and for the "-n" (no
// interface activation) CLI mode.
type NoopRunner struct {
	// Status is returned from every Run call.
	Status int
	// Calls records every Env passed to Run, in order.
	Calls []Env
}

var _ Runner = (*NoopRunner)(nil)

// Run implements Runner.
func (r *NoopRunner) Run(_ context.Context, env Env) (status int, err error) {
	r.Calls = append(r.Calls, env)

	return r.Status, nil
}
