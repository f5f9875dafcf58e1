// Package scripthost implements the ExternalScriptHost port: the statistical
// fit (Normal-Inverse-Gaussian) and numerical integration routines live
// out-of-process, spoken to over line-delimited JSON on stdin/stdout. The
// host is single-threaded externally; this package owns a supervisor that
// spawns it, serializes one request at a time, and restarts it with
// back-off on any failure.
package scripthost

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/cs2kz-api/cs2kz-api/internal/logger"
)

// ErrCalculatorUnavailable is surfaced when the host cannot be reached even
// after a restart attempt. RecordIngest treats this as "award
// small-leaderboard points and still accept the record".
var ErrCalculatorUnavailable = fmt.Errorf("scripthost: calculator unavailable")

// request is the line-delimited envelope sent to the subprocess.
type request struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args"`
}

// response is the line-delimited envelope read back from the subprocess.
type response struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// Host supervises the external statistics process and exposes the typed
// port operations.
type Host struct {
	path           string
	restartBackoff time.Duration

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   *json.Encoder
	stdout  *bufio.Scanner
	running bool
}

// New creates a Host that will lazily spawn the subprocess at path on first
// use, restarting with restartBackoff between attempts on failure.
func New(path string, restartBackoff time.Duration) *Host {
	return &Host{path: path, restartBackoff: restartBackoff}
}

func (h *Host) ensureRunning(ctx context.Context) error {
	if h.running {
		return nil
	}

	cmd := exec.CommandContext(ctx, h.path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	h.cmd = cmd
	h.stdin = json.NewEncoder(stdin)
	h.stdout = bufio.NewScanner(stdout)
	h.stdout.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	h.running = true
	return nil
}

func (h *Host) respawn() {
	if h.cmd != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	h.running = false
	time.Sleep(h.restartBackoff)
}

// call sends one request and blocks for its response, restarting the
// subprocess once on failure before giving up with ErrCalculatorUnavailable.
func (h *Host) call(ctx context.Context, op string, args any, out any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return err
	}

	attempt := func() error {
		if err := h.ensureRunning(ctx); err != nil {
			return err
		}
		if err := h.stdin.Encode(request{Op: op, Args: argsJSON}); err != nil {
			return err
		}
		if !h.stdout.Scan() {
			if err := h.stdout.Err(); err != nil {
				return err
			}
			return fmt.Errorf("scripthost: process closed stdout")
		}
		var resp response
		if err := json.Unmarshal(h.stdout.Bytes(), &resp); err != nil {
			return err
		}
		if resp.Error != "" {
			return fmt.Errorf("scripthost: %s", resp.Error)
		}
		if out != nil {
			return json.Unmarshal(resp.Result, out)
		}
		return nil
	}

	if err := attempt(); err != nil {
		logger.ScriptHost().Warn().Err(err).Str("op", op).Msg("script host call failed, restarting")
		h.respawn()
		if err := attempt(); err != nil {
			logger.ScriptHost().Error().Err(err).Str("op", op).Msg("script host unavailable after restart")
			return ErrCalculatorUnavailable
		}
	}
	return nil
}

// FitResult is the four-parameter Normal-Inverse-Gaussian fit.
type FitResult struct {
	A     float64 `json:"a"`
	B     float64 `json:"b"`
	Loc   float64 `json:"loc"`
	Scale float64 `json:"scale"`
}

// Fit fits a NIG distribution to a set of completion times.
func (h *Host) Fit(ctx context.Context, times []float64) (FitResult, error) {
	var out FitResult
	err := h.call(ctx, "fit", struct {
		Times []float64 `json:"times"`
	}{times}, &out)
	return out, err
}

// SF evaluates the survival function SF(x) = 1 - CDF(x) of a fitted NIG
// distribution at x.
func (h *Host) SF(ctx context.Context, params FitResult, x float64) (float64, error) {
	var out float64
	err := h.call(ctx, "sf", struct {
		A, B, Loc, Scale float64
		X                float64 `json:"x"`
	}{params.A, params.B, params.Loc, params.Scale, x}, &out)
	return out, err
}

// Integrate numerically integrates the NIG pdf between from and to, for the
// given shape parameters (a, b), returning the value and an error estimate.
func (h *Host) Integrate(ctx context.Context, a, b, from, to float64) (value, errEstimate float64, err error) {
	var out struct {
		Value float64 `json:"value"`
		Error float64 `json:"error"`
	}
	err = h.call(ctx, "integrate", struct {
		A, B, From, To float64
	}{a, b, from, to}, &out)
	return out.Value, out.Error, err
}

// Close terminates the subprocess if one is running.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd != nil && h.cmd.Process != nil {
		return h.cmd.Process.Kill()
	}
	return nil
}
