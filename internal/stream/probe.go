package stream

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ProbeStatus classifies the outcome of a connectivity test.
type ProbeStatus string

const (
	ProbeOK       ProbeStatus = "ok"
	ProbeTimeout  ProbeStatus = "timeout"
	ProbeAuth     ProbeStatus = "auth_failed"
	ProbeNotFound ProbeStatus = "not_found"
	ProbeRefused  ProbeStatus = "connection_refused"
	ProbeFailed   ProbeStatus = "failed"
)

// ProbeResult is the single outcome of one connectivity test.
type ProbeResult struct {
	Status  ProbeStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// ProbeTimeoutDuration bounds how long a connectivity test may run
// before the probe subprocess is killed.
const ProbeTimeoutDuration = 10 * time.Second

// Test launches a short-lived probe that fetches a single frame from the
// source and exits, then classifies the result. Exactly one result is
// produced per call: the probe runs under a hard deadline that kills the
// subprocess, and classification happens only after the single Wait
// completes, so the timeout, exit and spawn-error paths cannot race.
func (s *Supervisor) Test(ctx context.Context, sourceURL string) (ProbeResult, error) {
	if sourceURL == "" {
		return ProbeResult{}, ErrInvalidSource
	}
	if _, err := exec.LookPath(s.binary); err != nil {
		return ProbeResult{}, fmt.Errorf("%w: %s", ErrDecoderUnavailable, s.binary)
	}

	ctx, cancel := context.WithTimeout(ctx, ProbeTimeoutDuration)
	defer cancel()

	var args []string
	if strings.HasPrefix(sourceURL, "rtsp://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args, "-i", sourceURL, "-frames:v", "1", "-f", "null", "-")

	cmd := exec.CommandContext(ctx, s.binary, args...)
	var diag bytes.Buffer
	cmd.Stderr = &diag

	if err := cmd.Start(); err != nil {
		return ProbeResult{Status: ProbeFailed, Message: err.Error()}, nil
	}

	err := cmd.Wait()
	timedOut := ctx.Err() == context.DeadlineExceeded
	return classifyProbe(err, diag.String(), timedOut), nil
}

// classifyProbe maps the probe's exit state and diagnostic text onto a
// single status. The substring checks are a deliberately narrow, ordered
// list; diagnostic text matching none of them falls through to the
// generic failure category.
func classifyProbe(runErr error, diagnostics string, timedOut bool) ProbeResult {
	if timedOut {
		return ProbeResult{Status: ProbeTimeout, Message: "no response from source within 10s"}
	}

	switch {
	case strings.Contains(diagnostics, "Connection refused"):
		return ProbeResult{Status: ProbeRefused, Message: "connection refused by source"}
	case strings.Contains(diagnostics, "401 Unauthorized"):
		return ProbeResult{Status: ProbeAuth, Message: "source rejected credentials"}
	case strings.Contains(diagnostics, "404 Not Found"):
		return ProbeResult{Status: ProbeNotFound, Message: "stream path not found"}
	}

	if runErr == nil {
		return ProbeResult{Status: ProbeOK}
	}
	// A decoder can exit non-zero after -frames:v 1 even though the
	// stream opened fine; treat an opened input as success.
	if strings.Contains(diagnostics, "Stream #0:0") || strings.Contains(diagnostics, "Input #0") {
		return ProbeResult{Status: ProbeOK}
	}

	return ProbeResult{Status: ProbeFailed, Message: lastDiagnosticLine(diagnostics)}
}

// lastDiagnosticLine pulls the final non-empty line from the decoder's
// diagnostic output, which is usually the actual error.
func lastDiagnosticLine(diagnostics string) string {
	lines := strings.Split(strings.TrimSpace(diagnostics), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "decoder reported no diagnostics"
}
