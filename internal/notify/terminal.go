package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"market-tracker/internal/config"
)

// TerminalNotifier prints notifications to a terminal, ringing the bell for
// alerts.
type TerminalNotifier struct {
	out     io.Writer
	bell    bool
	enabled bool
	alert   *color.Color
	errc    *color.Color
	dim     *color.Color
	mu      sync.Mutex
}

// NewTerminalNotifier creates a terminal notifier writing to out.
func NewTerminalNotifier(out io.Writer, cfg config.TerminalConfig) *TerminalNotifier {
	tn := &TerminalNotifier{
		out:     out,
		bell:    cfg.Bell,
		enabled: cfg.Enabled,
		alert:   color.New(color.FgYellow, color.Bold),
		errc:    color.New(color.FgRed, color.Bold),
		dim:     color.New(color.Faint),
	}
	for _, c := range []*color.Color{tn.alert, tn.errc, tn.dim} {
		if cfg.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return tn
}

// Name returns the name of the notifier.
func (tn *TerminalNotifier) Name() string { return "terminal" }

// IsEnabled returns whether the notifier is enabled.
func (tn *TerminalNotifier) IsEnabled() bool { return tn.enabled }

// Send writes one line per notification.
func (tn *TerminalNotifier) Send(_ context.Context, n Notification) error {
	tn.mu.Lock()
	defer tn.mu.Unlock()

	line := tn.Format(n)
	if tn.bell && n.Type == NotificationAlert {
		line = "\a" + line
	}
	_, err := fmt.Fprintln(tn.out, line)
	return err
}

// Format renders a notification without the bell.
func (tn *TerminalNotifier) Format(n Notification) string {
	var sb strings.Builder
	sb.WriteString(tn.dim.Sprintf("[%s]", n.Timestamp.Format("15:04:05")))
	sb.WriteString(" ")

	switch n.Type {
	case NotificationAlert:
		sb.WriteString(tn.alert.Sprint("ALERT"))
	case NotificationError:
		sb.WriteString(tn.errc.Sprint("ERROR"))
	default:
		sb.WriteString("INFO")
	}

	sb.WriteString(" | ")
	sb.WriteString(n.Title)
	if n.Message != "" {
		sb.WriteString(" | ")
		sb.WriteString(n.Message)
	}
	return sb.String()
}
