package security

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	AuditInputValidation AuditEventType = "INPUT_VALIDATION"
	AuditRateLimited     AuditEventType = "RATE_LIMITED"
	AuditAlertCreated    AuditEventType = "ALERT_CREATED"
	AuditAlertDeleted    AuditEventType = "ALERT_DELETED"
	AuditAlertReset      AuditEventType = "ALERT_RESET"
	AuditAlertTriggered  AuditEventType = "ALERT_TRIGGERED"
	AuditCredentialSaved AuditEventType = "CREDENTIAL_SAVED"
	AuditCredentialOpen  AuditEventType = "CREDENTIAL_ACCESS"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType AuditEventType         `json:"event_type"`
	Symbol    string                 `json:"symbol,omitempty"`
	AlertID   string                 `json:"alert_id,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Success   bool                   `json:"success"`
	ErrorMsg  string                 `json:"error,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
}

// AuditLogger appends JSON lines describing security-relevant actions.
type AuditLogger struct {
	writer    io.WriteCloser
	mu        sync.Mutex
	sessionID string
	now       func() time.Time
}

// AuditConfig holds audit logger configuration.
type AuditConfig struct {
	LogDir     string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultAuditConfig returns the default audit configuration.
func DefaultAuditConfig() AuditConfig {
	home, _ := os.UserHomeDir()
	return AuditConfig{
		LogDir:     filepath.Join(home, ".config", "market-tracker", "audit"),
		MaxSize:    20,
		MaxBackups: 10,
		MaxAge:     90,
		Compress:   true,
	}
}

// NewAuditLogger creates an audit logger writing to a rotating file.
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	return NewAuditLoggerWithWriter(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "audit.log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}), nil
}

// NewAuditLoggerWithWriter creates an audit logger on an arbitrary sink.
func NewAuditLoggerWithWriter(w io.WriteCloser) *AuditLogger {
	return &AuditLogger{
		writer:    w,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
}

// Log logs an audit event.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if al == nil {
		return nil
	}
	al.mu.Lock()
	defer al.mu.Unlock()

	event.Timestamp = al.now().UTC()
	event.SessionID = al.sessionID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}
	if _, err := al.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// LogInputValidation logs an input validation failure.
func (al *AuditLogger) LogInputValidation(ctx context.Context, field, value, reason string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditInputValidation,
		Success:   false,
		ErrorMsg:  reason,
		Details: map[string]interface{}{
			"field": field,
			"value": MaskSensitive(SanitizeText(value)),
		},
	})
}

// LogRateLimited logs a request refused by the limiter.
func (al *AuditLogger) LogRateLimited(ctx context.Context, category, symbol string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditRateLimited,
		Symbol:    symbol,
		Action:    category,
		Success:   false,
	})
}

// LogAlertChange logs a user action on an alert.
func (al *AuditLogger) LogAlertChange(ctx context.Context, eventType AuditEventType, alertID, symbol string, err error) error {
	ev := AuditEvent{
		EventType: eventType,
		AlertID:   alertID,
		Symbol:    symbol,
		Success:   err == nil,
	}
	if err != nil {
		ev.ErrorMsg = err.Error()
	}
	return al.Log(ctx, ev)
}

// LogAlertTriggered logs an alert transition to triggered.
func (al *AuditLogger) LogAlertTriggered(ctx context.Context, alertID, symbol string, threshold, price float64) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditAlertTriggered,
		AlertID:   alertID,
		Symbol:    symbol,
		Success:   true,
		Details: map[string]interface{}{
			"threshold": threshold,
			"price":     price,
		},
	})
}

// Close closes the audit logger.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	return al.writer.Close()
}
