package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/jtbeebe/taxcalc/internal/reform"
	"github.com/jtbeebe/taxcalc/internal/resultfile"
)

// Runner evaluates one reform scenario against the calculation engine.
//
// The engine itself is an external collaborator; the harness only depends on
// this boundary. Implementations must be safe for a worker to call
// sequentially for each of its assigned reforms.
type Runner interface {
	Run(ctx context.Context, rf reform.Reform) (resultfile.Results, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, rf reform.Reform) (resultfile.Results, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, rf reform.Reform) (resultfile.Results, error) {
	return f(ctx, rf)
}

// CommandRunner invokes the engine as a subprocess, once per reform.
//
// Invocation: the reform's parameter overrides are written to stdin as JSON,
// the reform id is appended to the fixed argument list, and the engine is
// expected to print a JSON object containing numeric res1..res4 fields to
// stdout. Spawning dozens of engine processes at once can swamp a machine,
// so invocations optionally pass through a rate limiter.
type CommandRunner struct {
	// Command is the engine binary path.
	Command string

	// Args are fixed arguments placed before the reform id.
	Args []string

	// Limiter throttles invocations when non-nil.
	Limiter *rate.Limiter
}

// NewCommandRunner builds a CommandRunner from engine configuration.
func NewCommandRunner(cfg EngineConfig) *CommandRunner {
	r := &CommandRunner{Command: cfg.Command, Args: cfg.Args}
	if cfg.RateLimit > 0 {
		r.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return r
}

// Run implements Runner.
func (r *CommandRunner) Run(ctx context.Context, rf reform.Reform) (resultfile.Results, error) {
	var res resultfile.Results

	if r.Limiter != nil {
		if err := r.Limiter.Wait(ctx); err != nil {
			return res, err
		}
	}

	params := rf.Params
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return res, fmt.Errorf("marshal params for reform %d: %w", rf.ID, err)
	}

	args := append(append([]string{}, r.Args...), strconv.Itoa(rf.ID))
	cmd := exec.CommandContext(ctx, r.Command, args...)
	cmd.Stdin = bytes.NewReader(paramsJSON)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return res, fmt.Errorf("engine failed for reform %d: %w (stderr: %s)", rf.ID, err, stderr.String())
	}

	return parseEngineOutput(rf.ID, stdout.Bytes())
}

// parseEngineOutput extracts res1..res4 from the engine's JSON stdout.
// A missing or non-numeric field is an engine defect and is fatal.
func parseEngineOutput(rid int, out []byte) (resultfile.Results, error) {
	var res resultfile.Results
	if !gjson.ValidBytes(out) {
		return res, fmt.Errorf("engine output for reform %d is not valid JSON: %q", rid, out)
	}
	if v := gjson.GetBytes(out, "rid"); v.Exists() && int(v.Int()) != rid {
		return res, fmt.Errorf("engine answered for reform %d, asked for %d", v.Int(), rid)
	}
	for i := 0; i < 4; i++ {
		field := fmt.Sprintf("res%d", i+1)
		v := gjson.GetBytes(out, field)
		if !v.Exists() {
			return res, fmt.Errorf("engine output for reform %d missing %s", rid, field)
		}
		if v.Type != gjson.Number {
			return res, fmt.Errorf("engine output for reform %d: %s is %s, want number", rid, field, v.Type)
		}
		res[i] = v.Float()
	}
	return res, nil
}
