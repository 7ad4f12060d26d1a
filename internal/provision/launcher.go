package provision

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"text/template"
	"time"

	"github.com/devrev/kvring/internal/config"
	"github.com/devrev/kvring/internal/ring"
	"go.uber.org/zap"
)

// Launcher starts the node process for an idle machine. Launching is
// fire-and-forget; success is assumed once the settle delay has passed.
type Launcher interface {
	Launch(ctx context.Context, node ring.NodeID) error
}

// New returns the launcher selected by cfg.Mode
func New(cfg config.ProvisionConfig, logger *zap.Logger) (Launcher, error) {
	switch cfg.Mode {
	case "", "static":
		return NewStaticLauncher(cfg.SettleDelay, logger), nil
	case "exec":
		return NewExecLauncher(cfg.Command, cfg.SettleDelay, logger)
	default:
		return nil, fmt.Errorf("unknown provision mode %q", cfg.Mode)
	}
}

// StaticLauncher is used when node processes are managed outside the
// controller; it only waits for the settle delay
type StaticLauncher struct {
	settle time.Duration
	logger *zap.Logger
}

// NewStaticLauncher creates a static launcher
func NewStaticLauncher(settle time.Duration, logger *zap.Logger) *StaticLauncher {
	return &StaticLauncher{settle: settle, logger: logger}
}

// Launch waits for the settle delay
func (l *StaticLauncher) Launch(ctx context.Context, node ring.NodeID) error {
	l.logger.Debug("Assuming externally managed node is running", zap.String("node", node.String()))
	return settle(ctx, l.settle)
}

// ExecLauncher runs a shell command rendered from a template with the
// node's Address and Port
type ExecLauncher struct {
	tmpl   *template.Template
	settle time.Duration
	logger *zap.Logger
}

// NewExecLauncher parses command as a text/template
func NewExecLauncher(command string, settle time.Duration, logger *zap.Logger) (*ExecLauncher, error) {
	if command == "" {
		return nil, fmt.Errorf("provision command cannot be empty")
	}
	tmpl, err := template.New("launch").Option("missingkey=error").Parse(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse provision command: %w", err)
	}
	return &ExecLauncher{tmpl: tmpl, settle: settle, logger: logger}, nil
}

// Command renders the launch command for node
func (l *ExecLauncher) Command(node ring.NodeID) (string, error) {
	var buf bytes.Buffer
	if err := l.tmpl.Execute(&buf, node); err != nil {
		return "", fmt.Errorf("failed to render provision command: %w", err)
	}
	return buf.String(), nil
}

// Launch runs the rendered command and waits for the settle delay. The
// command is expected to background the node process and return.
func (l *ExecLauncher) Launch(ctx context.Context, node ring.NodeID) error {
	command, err := l.Command(node)
	if err != nil {
		return err
	}

	l.logger.Info("Launching node",
		zap.String("node", node.String()),
		zap.String("command", command))

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to launch %s: %w (output: %s)", node, err, bytes.TrimSpace(output))
	}
	return settle(ctx, l.settle)
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
