package ldap

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLDAPError(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		err       error
		wantNil   bool
	}{
		{
			name:      "nil error",
			operation: "search",
			err:       nil,
			wantNil:   true,
		},
		{
			name:      "ldap error",
			operation: "bind",
			err:       ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad password")),
			wantNil:   false,
		},
		{
			name:      "generic error",
			operation: "connect",
			err:       errors.New("connection refused"),
			wantNil:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewLDAPError(tt.operation, tt.err)

			if tt.wantNil && result != nil {
				t.Errorf("NewLDAPError() = %v, want nil", result)
			}

			if !tt.wantNil && result == nil {
				t.Error("NewLDAPError() = nil, want non-nil")
			}

			if result != nil {
				if result.Operation != tt.operation {
					t.Errorf("Operation = %s, want %s", result.Operation, tt.operation)
				}

				if result.Cause != tt.err {
					t.Errorf("Cause = %v, want %v", result.Cause, tt.err)
				}
			}
		})
	}
}

func TestNewLDAPError_ResultCode(t *testing.T) {
	err := NewLDAPError("bind", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("80090308: LdapErr")))
	require.NotNil(t, err)

	assert.Equal(t, uint16(ldap.LDAPResultInvalidCredentials), err.LDAPCode)
	assert.Equal(t, ErrorCategoryAuthentication, err.Category)
	assert.Equal(t, "Invalid Credentials", err.Message)
	assert.Contains(t, err.ServerMsg, "80090308")
	assert.False(t, err.IsRetryable())
}

func TestLDAPError_Error(t *testing.T) {
	tests := []struct {
		name    string
		ldapErr *LDAPError
		want    string
	}{
		{
			name: "basic error",
			ldapErr: &LDAPError{
				Operation: "search",
				Message:   "operation failed",
			},
			want: "LDAP search failed - operation failed",
		},
		{
			name: "error with code",
			ldapErr: &LDAPError{
				Operation: "bind",
				LDAPCode:  ldap.LDAPResultInvalidCredentials,
				Message:   "authentication failed",
			},
			want: "LDAP bind failed (code 49) - authentication failed",
		},
		{
			name: "error with server message",
			ldapErr: &LDAPError{
				Operation: "search",
				Message:   "validation failed",
				ServerMsg: "attribute required",
			},
			want: "LDAP search failed - validation failed - server: attribute required",
		},
		{
			name: "error with DN",
			ldapErr: &LDAPError{
				Operation: "search",
				Message:   "access denied",
				DN:        "cn=user,dc=example,dc=com",
			},
			want: "LDAP search failed - access denied - DN: cn=user,dc=example,dc=com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ldapErr.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		code uint16
		want ErrorCategory
	}{
		{"authentication error", ldap.LDAPResultInvalidCredentials, ErrorCategoryAuthentication},
		{"strong auth required", ldap.LDAPResultStrongAuthRequired, ErrorCategoryAuthentication},
		{"permission error", ldap.LDAPResultInsufficientAccessRights, ErrorCategoryPermission},
		{"not found error", ldap.LDAPResultNoSuchObject, ErrorCategoryNotFound},
		{"validation error", ldap.LDAPResultFilterError, ErrorCategoryValidation},
		{"server error", ldap.LDAPResultBusy, ErrorCategoryServer},
		{"connection error", ldap.LDAPResultConnectError, ErrorCategoryConnection},
		{"network error", ldap.ErrorNetwork, ErrorCategoryConnection},
		{"server down", ldap.LDAPResultServerDown, ErrorCategoryConnection},
		{"unknown error", 9999, ErrorCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := categorizeError(tt.code)
			if got != tt.want {
				t.Errorf("categorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategorizeGenericError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"connection error", errors.New("connection refused"), ErrorCategoryConnection},
		{"timeout error", errors.New("operation timeout"), ErrorCategoryConnection},
		{"eof", fmt.Errorf("read: %w", io.EOF), ErrorCategoryConnection},
		{"authentication error", errors.New("authentication rejected"), ErrorCategoryAuthentication},
		{"kerberos error", errors.New("kerberos ticket expired"), ErrorCategoryAuthentication},
		{"unknown error", errors.New("something odd"), ErrorCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, categorizeGenericError(tt.err))
		})
	}
}

func TestIsLDAPCodeRetryable(t *testing.T) {
	tests := []struct {
		code uint16
		want bool
	}{
		{ldap.LDAPResultBusy, true},
		{ldap.LDAPResultUnavailable, true},
		{ldap.LDAPResultServerDown, true},
		{ldap.ErrorNetwork, true},
		{ldap.LDAPResultInvalidCredentials, false},
		{ldap.LDAPResultNoSuchObject, false},
		{ldap.LDAPResultFilterError, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("code_%d", tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, isLDAPCodeRetryable(tt.code))
		})
	}
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError("search", nil))

	wrapped := WrapError("search", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object")))
	var ldapErr *LDAPError
	require.True(t, errors.As(wrapped, &ldapErr))
	assert.Equal(t, "search", ldapErr.Operation)
	assert.Equal(t, ErrorCategoryNotFound, ldapErr.Category)

	// Already-wrapped errors keep their original operation.
	original := &LDAPError{Operation: "bind", Message: "x"}
	assert.Same(t, original, WrapError("search", original))

	unnamed := &LDAPError{Message: "x"}
	WrapError("search", unnamed)
	assert.Equal(t, "search", unnamed.Operation)
}

func TestGetErrorCategory(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ErrorCategoryUnknown},
		{"wrapped LDAPError", fmt.Errorf("ctx: %w", &LDAPError{Category: ErrorCategoryPermission}), ErrorCategoryPermission},
		{"raw ldap error", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad")), ErrorCategoryAuthentication},
		{"closed connection", ldap.NewError(ldap.ErrorNetwork, errors.New("ldap: connection closed")), ErrorCategoryConnection},
		{"generic", errors.New("network unreachable"), ErrorCategoryConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorCategory(tt.err))
		})
	}
}

func TestErrorHelperFunctions(t *testing.T) {
	authErr := ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad"))
	lostErr := ldap.NewError(ldap.ErrorNetwork, errors.New("ldap: connection closed"))
	notFoundErr := ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("gone"))

	assert.True(t, IsAuthenticationError(authErr))
	assert.False(t, IsAuthenticationError(lostErr))

	assert.True(t, IsConnectionLost(lostErr))
	assert.False(t, IsConnectionLost(notFoundErr))

	assert.True(t, IsNotFoundError(notFoundErr))
	assert.False(t, IsNotFoundError(authErr))
}

func TestConnectionError(t *testing.T) {
	cause := ldap.NewError(ldap.ErrorNetwork, errors.New("dial tcp: connection refused"))
	err := NewConnectionError("ldaps://dc.example.com", "dial", cause)

	assert.Contains(t, err.Error(), "during dial")
	assert.Contains(t, err.Error(), "ldaps://dc.example.com")
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsRetryable())

	bindErr := NewConnectionError("ldaps://dc.example.com", "bind", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad")))
	assert.False(t, bindErr.IsRetryable())

	var target *ConnectionError
	assert.True(t, errors.As(fmt.Errorf("build: %w", err), &target))
	assert.Equal(t, "dial", target.Stage)
}

func TestSearchError(t *testing.T) {
	cause := errors.New("size limit exceeded")
	err := &SearchError{BaseDN: "DC=example,DC=com", Filter: "(mail=*)", Cause: cause}

	assert.Equal(t, `directory search "(mail=*)" under "DC=example,DC=com" failed: size limit exceeded`, err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestGetLDAPCodeMessage(t *testing.T) {
	assert.Equal(t, "Invalid Credentials", getLDAPCodeMessage(ldap.LDAPResultInvalidCredentials))
	assert.Equal(t, "Network Error", getLDAPCodeMessage(ldap.ErrorNetwork))
	assert.Equal(t, "Unknown LDAP error (code 9999)", getLDAPCodeMessage(9999))
}
