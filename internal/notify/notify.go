// Package notify delivers user notifications. Every call reports one of four
// outcomes instead of failing, so callers decide what a missing capability
// means for them.
package notify

import (
	"context"
	"os/exec"

	"go.uber.org/zap"
)

// DefaultCommand is the desktop notification command used when none is
// configured.
const DefaultCommand = "notify-send"

// Result is the outcome of a notification request.
type Result int

// Results.
const (
	Ok Result = iota
	PermissionDenied
	Unsupported
	Failed
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "ok"
	case PermissionDenied:
		return "permission_denied"
	case Unsupported:
		return "unsupported"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Notifier requests permission and shows notifications.
type Notifier interface {
	RequestPermission(ctx context.Context) Result
	Show(ctx context.Context, title, body string) Result
}

// Option configures a notifier.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	lookPath func(string) (string, error)
	run      func(ctx context.Context, path string, args ...string) error
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:   zap.NewNop(),
		lookPath: exec.LookPath,
		run: func(ctx context.Context, path string, args ...string) error {
			return exec.CommandContext(ctx, path, args...).Run()
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CommandNotifier shows notifications by running a desktop command with the
// title and body as arguments.
type CommandNotifier struct {
	command string
	enabled bool
	opts    options
}

// NewCommandNotifier returns a notifier for command. When enabled is false
// every request is PermissionDenied.
func NewCommandNotifier(command string, enabled bool, opts ...Option) *CommandNotifier {
	if command == "" {
		command = DefaultCommand
	}
	return &CommandNotifier{command: command, enabled: enabled, opts: newOptions(opts)}
}

// RequestPermission reports PermissionDenied when disabled and Unsupported
// when the command is not on PATH.
func (n *CommandNotifier) RequestPermission(ctx context.Context) Result {
	_, res := n.resolve()
	return res
}

func (n *CommandNotifier) resolve() (string, Result) {
	if !n.enabled {
		return "", PermissionDenied
	}
	path, err := n.opts.lookPath(n.command)
	if err != nil {
		return "", Unsupported
	}
	return path, Ok
}

// Show runs the command. A command that exits non-zero is Failed.
func (n *CommandNotifier) Show(ctx context.Context, title, body string) Result {
	path, res := n.resolve()
	if res != Ok {
		n.opts.logger.Info("notification not shown", zap.String("title", title), zap.Stringer("result", res))
		return res
	}
	if err := n.opts.run(ctx, path, title, body); err != nil {
		n.opts.logger.Info("notification failed", zap.String("title", title), zap.Error(err))
		return Failed
	}
	n.opts.logger.Info("notification shown", zap.String("title", title))
	return Ok
}

// LogNotifier writes notifications to the logger.
type LogNotifier struct {
	enabled bool
	logger  *zap.Logger
}

// NewLogNotifier returns a notifier that logs at info level.
func NewLogNotifier(enabled bool, opts ...Option) *LogNotifier {
	o := newOptions(opts)
	return &LogNotifier{enabled: enabled, logger: o.logger}
}

// RequestPermission is Ok unless disabled.
func (n *LogNotifier) RequestPermission(context.Context) Result {
	if !n.enabled {
		return PermissionDenied
	}
	return Ok
}

// Show logs title and body.
func (n *LogNotifier) Show(ctx context.Context, title, body string) Result {
	if res := n.RequestPermission(ctx); res != Ok {
		return res
	}
	n.logger.Info("notification", zap.String("title", title), zap.String("body", body))
	return Ok
}
