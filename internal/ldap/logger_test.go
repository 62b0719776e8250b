package ldap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "dlsync",
		Level:      hclog.Trace,
		Output:     buf,
		JSONFormat: true,
	})
}

func TestHCLogger_SanitizesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewHCLogger(newBufferLogger(&buf), "ldap")

	log.Info("binding", map[string]any{
		"bind_dn":  "CN=svc,DC=example,DC=com",
		"password": "hunter2",
	})

	out := buf.String()
	assert.Contains(t, out, `"@module":"dlsync.ldap"`)
	assert.Contains(t, out, `"bind_dn":"CN=svc,DC=example,DC=com"`)
	assert.Contains(t, out, `"password":"[REDACTED]"`)
	assert.NotContains(t, out, "hunter2")
}

func TestHCLogger_NilBackend(t *testing.T) {
	log := NewHCLogger(nil, "ldap")
	assert.NotPanics(t, func() {
		log.Error("nothing", nil)
		log.Named("child").Trace("nothing", map[string]any{"k": 1})
	})
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	log := NewHCLogger(newBufferLogger(&buf), "")

	err := LogOperation(context.Background(), log, "build", nil, func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Operation completed successfully")

	buf.Reset()
	boom := errors.New("boom")
	err = LogOperation(context.Background(), log, "build", map[string]any{"attempt": 1}, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "Operation failed")
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestLogLDAPError(t *testing.T) {
	var buf bytes.Buffer
	log := NewHCLogger(newBufferLogger(&buf), "")

	fields := map[string]any{"filter": "(mail=*)"}
	LogLDAPError(log, "search", ldap.NewError(ldap.LDAPResultSizeLimitExceeded, errors.New("too many")), fields)

	out := buf.String()
	assert.Contains(t, out, `"ldap_result_code":4`)
	assert.Contains(t, out, `"ldap_diagnostic_message":"too many"`)
	// Caller's map is left untouched.
	assert.Len(t, fields, 1)
}

func TestSanitizeFields(t *testing.T) {
	in := map[string]any{
		"Password": "x",
		"token":    "y",
		"query":    "uid=a,password=b",
		"count":    3,
		"user":     "alice",
	}

	out := SanitizeFields(in)
	assert.Equal(t, "[REDACTED]", out["Password"])
	assert.Equal(t, "[REDACTED]", out["token"])
	assert.Equal(t, "[REDACTED]", out["query"])
	assert.Equal(t, 3, out["count"])
	assert.Equal(t, "alice", out["user"])
	assert.Equal(t, "x", in["Password"])
}
