// Package mega adapts the MEGAcmd command-line suite into the mirror
// engine's Lister and Downloader collaborators. All remote access goes
// through the mega-* binaries; this package owns process invocation,
// session management and output parsing.
package mega

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/Beefybananas/mega-scraper/internal/mirror"
	"github.com/Beefybananas/mega-scraper/internal/utils"
)

const (
	serverStartTimeout = 30 * time.Second
	serverPollInterval = time.Second
)

// Runner executes MEGAcmd binaries. Run waits for the command to exit and
// returns its output; Start launches a process that keeps running, like
// the command server. Extracted so tests can script command transcripts
// without MEGAcmd installed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, exitCode int, err error)
	Start(name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	code := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
		err = nil
	}
	return outBuf.Bytes(), errBuf.Bytes(), code, err
}

// Start launches a process without waiting for it. No context: the
// command server must outlive the run that spawned it. Output goes to
// the null device.
func (execRunner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// Client is a logged-in MEGAcmd session against one exported folder link.
type Client struct {
	folderURL string
	runner    Runner
}

type Option func(*Client)

// WithRunner overrides process execution, for tests.
func WithRunner(r Runner) Option {
	return func(c *Client) {
		c.runner = r
	}
}

func NewClient(folderURL string, opts ...Option) *Client {
	c := &Client{
		folderURL: folderURL,
		runner:    execRunner{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// run executes one binary through the runner and logs the transcript at
// trace level for -vv debugging.
func (c *Client) run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	stdout, stderr, code, err := c.runner.Run(ctx, name, args...)
	slog.Log(ctx, utils.LevelTrace, "exec", "cmd", name, "args", args, "exit", code, "error", err)
	return stdout, stderr, code, err
}

// EnsureServer checks that the MEGAcmd server answers and starts it if
// not, polling until it comes up or the timeout expires.
func (c *Client) EnsureServer(ctx context.Context) error {
	if c.probe(ctx) == nil {
		return nil
	}

	slog.Info("mega-cmd-server not responding, starting it")
	// the server runs in the foreground until killed, so it must not be
	// waited on; the poll loop below decides whether it came up
	if err := c.runner.Start("mega-cmd-server", "--skip-version-check"); err != nil {
		return fmt.Errorf("%w: start mega-cmd-server: %v", mirror.ErrRemoteUnavailable, err)
	}

	deadline := time.Now().Add(serverStartTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(serverPollInterval):
		}
		if c.probe(ctx) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: mega-cmd-server did not come up within %s", mirror.ErrRemoteUnavailable, serverStartTimeout)
}

func (c *Client) probe(ctx context.Context) error {
	_, _, code, err := c.run(ctx, "mega-version")
	if err != nil || code != 0 {
		return fmt.Errorf("mega-version probe failed")
	}
	return nil
}

// Login logs out any prior session, then logs in to the exported folder.
func (c *Client) Login(ctx context.Context) error {
	// a stale session would resolve paths against the wrong account
	if err := c.Logout(ctx); err != nil {
		slog.Debug("initial logout", "error", err)
	}

	stdout, stderr, code, err := c.run(ctx, "mega-login", c.folderURL)
	if err != nil {
		return fmt.Errorf("%w: mega-login: %v", mirror.ErrRemoteUnavailable, err)
	}
	if code != 0 {
		return fmt.Errorf("%w: mega-login exit %d: %s", mirror.ErrRemoteAuth, code, c.describeError(ctx, code, stdout, stderr))
	}
	slog.Info("logged in to remote folder")
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	_, stderr, code, err := c.run(ctx, "mega-logout")
	if err != nil {
		return fmt.Errorf("%w: mega-logout: %v", mirror.ErrRemoteUnavailable, err)
	}
	if code != 0 {
		return fmt.Errorf("mega-logout exit %d: %s", code, strings.TrimSpace(string(stderr)))
	}
	return nil
}

// describeError asks mega-errorcode what an exit code means, falling back
// to raw output.
func (c *Client) describeError(ctx context.Context, code int, stdout, stderr []byte) string {
	out, _, ecode, err := c.run(ctx, "mega-errorcode", fmt.Sprintf("%d", code))
	if err == nil && ecode == 0 && len(bytes.TrimSpace(out)) > 0 {
		return string(bytes.TrimSpace(out))
	}
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		msg = strings.TrimSpace(string(stdout))
	}
	return msg
}

// classify maps MEGAcmd failure output onto the engine's error taxonomy.
func classify(stdout, stderr []byte) error {
	combined := strings.ToLower(string(stdout) + " " + string(stderr))
	switch {
	case strings.Contains(combined, "not logged in"),
		strings.Contains(combined, "login required"),
		strings.Contains(combined, "access denied"),
		strings.Contains(combined, "invalid key"):
		return mirror.ErrRemoteAuth
	default:
		return mirror.ErrRemoteUnavailable
	}
}
