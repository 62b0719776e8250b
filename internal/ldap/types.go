package ldap

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// ConnectionConfig holds configuration for the directory session.
type ConnectionConfig struct {
	// Connection settings
	URL      string        // ldap:// or ldaps:// endpoint
	BaseDN   string        // Base DN for searches
	Timeout  time.Duration // Dial and request timeout
	PageSize uint32        // Paged search page size, 0 disables paging

	// Authentication settings
	BindDN         string // DN (or UPN) used for simple bind
	Password       string // Password for simple bind
	KerberosRealm  string // Kerberos realm for GSSAPI authentication
	KerberosKeytab string // Path to Kerberos keytab file
	KerberosCCache string // Path to Kerberos credential cache
	KerberosConfig string // Path to Kerberos config file (krb5.conf)

	// TLS settings
	TLSConfig *tls.Config // Custom TLS configuration
	StartTLS  bool        // Upgrade plain ldap:// connections with StartTLS
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Timeout:  30 * time.Second,
		PageSize: 1000,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// Client provides the directory operations consumed by the snapshot builder.
//
// The session behind a Client is established lazily and reused; a lost
// session is reported as *ConnectionError and re-established on the next call.
// Implementations never retry internally.
type Client interface {
	// Connect establishes (or verifies) an authenticated session.
	Connect(ctx context.Context) error

	// Search performs a subtree search and returns all matching entries.
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)

	// Close releases the session.
	Close() error
}

// SearchRequest encapsulates LDAP search parameters.
type SearchRequest struct {
	BaseDN     string
	Scope      SearchScope
	Filter     string
	Attributes []string
	SizeLimit  int
	TimeLimit  time.Duration
}

// SearchResult contains search results and metadata.
type SearchResult struct {
	Entries []*ldap.Entry
	Total   int
	Pages   int
}

// SearchScope defines LDAP search scope.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

// String returns the go-ldap name for the scope.
func (s SearchScope) String() string {
	if name, ok := ldap.ScopeMap[int(s)]; ok {
		return name
	}
	return "Unknown"
}

// AuthMethod defines authentication method types.
type AuthMethod int

const (
	AuthMethodSimpleBind AuthMethod = iota // DN/password authentication
	AuthMethodKerberos                     // GSSAPI/Kerberos authentication
	AuthMethodAnonymous                    // No credentials configured
)

// String returns string representation of authentication method.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	case AuthMethodAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// GetAuthMethod determines the authentication method from the configuration.
func (c *ConnectionConfig) GetAuthMethod() AuthMethod {
	// Kerberos authentication takes precedence
	if c.KerberosRealm != "" && (c.KerberosKeytab != "" || c.KerberosCCache != "" || c.BindDN != "") {
		return AuthMethodKerberos
	}

	if c.BindDN != "" {
		return AuthMethodSimpleBind
	}

	return AuthMethodAnonymous
}
