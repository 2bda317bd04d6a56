// Package encoder runs the external TAC to BUFR encoder binary.
package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
)

// supportEnv names the variable the encoder reads its BUFR tables location from.
const supportEnv = "BUFR_TABLES"

// maxStderr bounds how much encoder stderr is kept for logs.
const maxStderr = 4 << 10

// Client invokes the encoder as
//
//	<path> <input> <output> <channel>
//
// It implements convert.Encoder.
type Client struct {
	path       string
	supportDir string
	logger     *slog.Logger
}

// NewClient creates a Client for the binary at path. supportDir, when set,
// is exported to the encoder as BUFR_TABLES.
func NewClient(path, supportDir string, logger *slog.Logger) *Client {
	return &Client{path: path, supportDir: supportDir, logger: logger}
}

// Encode runs the encoder once. A non-zero exit status is reported in the
// result, not as an error; an error means the encoder could not be run or
// its output could not be inspected.
func (c *Client) Encode(ctx context.Context, req domain.EncodeRequest) (domain.EncodeResult, error) {
	cmd := exec.CommandContext(ctx, c.path, req.Input, req.Output, strconv.Itoa(req.Channel)) //nolint:gosec // encoder path comes from operator config
	cmd.Env = os.Environ()
	if c.supportDir != "" {
		cmd.Env = append(cmd.Env, supportEnv+"="+c.supportDir)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	var result domain.EncodeResult
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, fmt.Errorf("run encoder %s: %w", c.path, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	result.Stderr = tail(stderr.String(), maxStderr)

	info, err := os.Stat(req.Output)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return result, fmt.Errorf("inspect encoder output: %w", err)
	default:
		result.OutputExists = true
		result.OutputSize = info.Size()
	}

	c.logger.Debug("encoder finished",
		"input", req.Input,
		"channel", req.Channel,
		"exit_code", result.ExitCode,
		"output_size", result.OutputSize,
	)
	return result, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
