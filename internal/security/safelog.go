package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// sensitiveFields contains field names that should be masked in logs.
var sensitiveFields = map[string]bool{
	"api_key":      true,
	"apikey":       true,
	"token":        true,
	"access_token": true,
	"auth_token":   true,
	"bearer":       true,
	"password":     true,
	"secret":       true,
	"bot_token":    true,
}

// sensitiveQueryParams are stripped from URLs before they are logged.
var sensitiveQueryParams = []string{"token", "apikey", "api_key", "access_token"}

var sensitivePattern = regexp.MustCompile(`(?i)(api[_-]?key|token|access[_-]?token|auth[_-]?token|bearer|password)[=:\s]+["']?([^\s"'&]+)["']?`)

// SafeLogger wraps zerolog.Logger to automatically mask sensitive data.
type SafeLogger struct {
	logger zerolog.Logger
}

// NewSafeLogger creates a new safe logger that masks sensitive data.
func NewSafeLogger(logger zerolog.Logger) *SafeLogger {
	return &SafeLogger{logger: logger}
}

// Debug starts a debug event.
func (sl *SafeLogger) Debug() *SafeEvent {
	return &SafeEvent{event: sl.logger.Debug()}
}

// Info starts an info event.
func (sl *SafeLogger) Info() *SafeEvent {
	return &SafeEvent{event: sl.logger.Info()}
}

// Warn starts a warning event.
func (sl *SafeLogger) Warn() *SafeEvent {
	return &SafeEvent{event: sl.logger.Warn()}
}

// Error starts an error event.
func (sl *SafeLogger) Error() *SafeEvent {
	return &SafeEvent{event: sl.logger.Error()}
}

// SafeEvent wraps zerolog.Event to mask sensitive data.
type SafeEvent struct {
	event *zerolog.Event
}

// Str adds a string field, masking if sensitive.
func (se *SafeEvent) Str(key, val string) *SafeEvent {
	if isSensitiveField(key) {
		se.event = se.event.Str(key, MaskCredential(val))
	} else {
		se.event = se.event.Str(key, maskSensitiveInString(val))
	}
	return se
}

// URL adds a URL field with credential query parameters removed.
func (se *SafeEvent) URL(key, raw string) *SafeEvent {
	se.event = se.event.Str(key, MaskURL(raw))
	return se
}

// Int adds an integer field.
func (se *SafeEvent) Int(key string, val int) *SafeEvent {
	se.event = se.event.Int(key, val)
	return se
}

// Float64 adds a float64 field.
func (se *SafeEvent) Float64(key string, val float64) *SafeEvent {
	se.event = se.event.Float64(key, val)
	return se
}

// Err adds an error field, masking sensitive data in the error message.
func (se *SafeEvent) Err(err error) *SafeEvent {
	if err != nil {
		se.event = se.event.Err(fmt.Errorf("%s", maskSensitiveInString(err.Error())))
	}
	return se
}

// Msg sends the event with a message.
func (se *SafeEvent) Msg(msg string) {
	se.event.Msg(maskSensitiveInString(msg))
}

// MaskURL removes credential query parameters from raw. Unparseable input is
// masked as free text.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return maskSensitiveInString(raw)
	}
	q := u.Query()
	changed := false
	for _, p := range sensitiveQueryParams {
		if q.Has(p) {
			q.Set(p, "***")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	u.User = nil
	return u.String()
}

func isSensitiveField(field string) bool {
	return sensitiveFields[strings.ToLower(field)]
}

func maskSensitiveInString(input string) string {
	return sensitivePattern.ReplaceAllStringFunc(input, func(match string) string {
		for _, sep := range []string{"=", ":", " "} {
			if parts := strings.SplitN(match, sep, 2); len(parts) == 2 {
				return parts[0] + sep + MaskCredential(strings.Trim(parts[1], "\"' "))
			}
		}
		return MaskCredential(match)
	})
}

// MaskSecrets masks key=value style credentials such as password=... in a
// free-form string.
func MaskSecrets(s string) string {
	return maskSensitiveInString(s)
}
