package ldap

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
)

// Logger interface for directory and resolution operations.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Trace(msg string, fields map[string]any)
}

// HCLogger adapts an hclog.Logger to Logger. Fields are sanitized and emitted
// as sorted key/value pairs.
type HCLogger struct {
	log hclog.Logger
}

// NewHCLogger wraps l as a Logger for the named subsystem.
func NewHCLogger(l hclog.Logger, subsystem string) *HCLogger {
	if l == nil {
		l = hclog.NewNullLogger()
	}
	if subsystem != "" {
		l = l.Named(subsystem)
	}
	return &HCLogger{log: l}
}

// Named returns a logger for a nested subsystem.
func (l *HCLogger) Named(subsystem string) *HCLogger {
	return &HCLogger{log: l.log.Named(subsystem)}
}

func (l *HCLogger) Debug(msg string, fields map[string]any) {
	l.log.Debug(msg, pairs(fields)...)
}

func (l *HCLogger) Info(msg string, fields map[string]any) {
	l.log.Info(msg, pairs(fields)...)
}

func (l *HCLogger) Warn(msg string, fields map[string]any) {
	l.log.Warn(msg, pairs(fields)...)
}

func (l *HCLogger) Error(msg string, fields map[string]any) {
	l.log.Error(msg, pairs(fields)...)
}

func (l *HCLogger) Trace(msg string, fields map[string]any) {
	l.log.Trace(msg, pairs(fields)...)
}

func pairs(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	sanitized := SanitizeFields(fields)
	keys := make([]string, 0, len(sanitized))
	for k := range sanitized {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, sanitized[k])
	}
	return args
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]any) {}
func (NopLogger) Info(string, map[string]any)  {}
func (NopLogger) Warn(string, map[string]any)  {}
func (NopLogger) Error(string, map[string]any) {}
func (NopLogger) Trace(string, map[string]any) {}

// LogOperation is a helper function to log an operation with timing.
func LogOperation(ctx context.Context, log Logger, operation string, fields map[string]any, fn func(ctx context.Context) error) error {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	log.Debug("Starting operation", fields)

	err := fn(ctx)

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		log.Error("Operation failed", fields)
	} else {
		log.Debug("Operation completed successfully", fields)
	}

	return err
}

// LogLDAPError logs LDAP-specific error information.
func LogLDAPError(log Logger, operation string, err error, fields map[string]any) {
	out := make(map[string]any, len(fields)+4)
	maps.Copy(out, fields)

	out["operation"] = operation
	out["error"] = err.Error()

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		out["ldap_result_code"] = ldapErr.ResultCode
		if ldapErr.MatchedDN != "" {
			out["ldap_matched_dn"] = ldapErr.MatchedDN
		}
		if ldapErr.Err != nil {
			out["ldap_diagnostic_message"] = ldapErr.Err.Error()
		}
	}

	log.Error("LDAP operation failed", out)
}

// LogConnectionEvent logs connection-related events.
func LogConnectionEvent(log Logger, event string, fields map[string]any) {
	out := make(map[string]any, len(fields)+1)
	maps.Copy(out, fields)
	out["event"] = event

	switch event {
	case "connection_established", "authentication_success":
		log.Info("Connection event", out)
	case "connection_failed", "authentication_failed", "connection_lost":
		log.Error("Connection event", out)
	default:
		log.Debug("Connection event", out)
	}
}

// SanitizeFields removes sensitive information from log fields.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	sensitiveKeys := map[string]bool{
		"password":    true,
		"passwd":      true,
		"pw":          true,
		"secret":      true,
		"token":       true,
		"credential":  true,
		"credentials": true,
	}

	for k, v := range fields {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

// containsSensitivePattern checks if a string contains patterns that might be sensitive.
func containsSensitivePattern(s string) bool {
	patterns := []string{
		"password=",
		"passwd=",
		"secret=",
		"token=",
	}

	lower := strings.ToLower(s)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}
