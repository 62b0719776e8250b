package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// client implements the Client interface over a single lazily established session.
type client struct {
	config *ConnectionConfig
	log    Logger

	mu   sync.Mutex
	conn *ldap.Conn
}

// NewClient creates a directory client. No connection is made until the
// first Connect or Search.
func NewClient(config *ConnectionConfig, log Logger) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = NopLogger{}
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	log.Debug("Creating directory client", map[string]any{
		"url":         config.URL,
		"base_dn":     config.BaseDN,
		"auth_method": config.GetAuthMethod().String(),
		"start_tls":   config.StartTLS,
		"page_size":   config.PageSize,
	})

	return &client{
		config: config,
		log:    log,
	}, nil
}

func validateConfig(config *ConnectionConfig) error {
	if config.URL == "" {
		return fmt.Errorf("directory URL is required")
	}

	u, err := url.Parse(config.URL)
	if err != nil {
		return fmt.Errorf("invalid directory URL %q: %w", config.URL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ldap", "ldaps", "ldapi":
	default:
		return fmt.Errorf("unsupported directory URL scheme %q", u.Scheme)
	}

	if config.StartTLS && strings.EqualFold(u.Scheme, "ldaps") {
		return fmt.Errorf("start_tls cannot be combined with an ldaps:// URL")
	}

	if config.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}

	return nil
}

// Connect establishes the session if none is open.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.session(ctx)
	return err
}

// Close closes the session. The client may be used again afterwards.
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	LogConnectionEvent(c.log, "connection_closed", map[string]any{"url": c.config.URL})
	return err
}

// session returns the open connection, dialling and binding first if
// needed. Callers must hold c.mu.
func (c *client) session(ctx context.Context) (*ldap.Conn, error) {
	if c.conn != nil && !c.conn.IsClosing() {
		return c.conn, nil
	}
	c.conn = nil

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	fields := map[string]any{
		"url":         c.config.URL,
		"auth_method": c.config.GetAuthMethod().String(),
	}

	conn, err := c.dial()
	if err != nil {
		fields["error"] = err.Error()
		LogConnectionEvent(c.log, "connection_failed", fields)
		return nil, NewConnectionError(c.config.URL, "dial", err)
	}

	if c.config.StartTLS {
		if err := conn.StartTLS(c.tlsConfig()); err != nil {
			conn.Close()
			fields["error"] = err.Error()
			LogConnectionEvent(c.log, "connection_failed", fields)
			return nil, NewConnectionError(c.config.URL, "starttls", err)
		}
	}

	if c.config.Timeout > 0 {
		conn.SetTimeout(c.config.Timeout)
	}

	if err := c.authenticate(conn); err != nil {
		conn.Close()
		fields["error"] = err.Error()
		LogConnectionEvent(c.log, "authentication_failed", fields)
		return nil, NewConnectionError(c.config.URL, "bind", err)
	}

	fields["duration_ms"] = time.Since(start).Milliseconds()
	LogConnectionEvent(c.log, "connection_established", fields)

	c.conn = conn
	return conn, nil
}

func (c *client) dial() (*ldap.Conn, error) {
	opts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: c.config.Timeout}),
	}
	if strings.HasPrefix(strings.ToLower(c.config.URL), "ldaps://") {
		opts = append(opts, ldap.DialWithTLSConfig(c.tlsConfig()))
	}
	return ldap.DialURL(c.config.URL, opts...)
}

// tlsConfig returns the configured TLS settings with ServerName filled in
// from the URL.
func (c *client) tlsConfig() *tls.Config {
	var cfg *tls.Config
	if c.config.TLSConfig != nil {
		cfg = c.config.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		if host, err := extractHostFromURL(c.config.URL); err == nil {
			cfg.ServerName = host
		}
	}
	return cfg
}

func (c *client) authenticate(conn *ldap.Conn) error {
	authMethod := c.config.GetAuthMethod()

	switch authMethod {
	case AuthMethodSimpleBind:
		if c.config.Password == "" {
			return fmt.Errorf("password is required for simple bind as %s", c.config.BindDN)
		}
		return conn.Bind(c.config.BindDN, c.config.Password)
	case AuthMethodKerberos:
		return performKerberosAuth(conn, c.config)
	case AuthMethodAnonymous:
		return conn.UnauthenticatedBind("")
	default:
		return fmt.Errorf("unsupported authentication method: %s", authMethod.String())
	}
}

// Search runs req on the shared session, following paging cookies until
// the server reports no more pages.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	baseDN := req.BaseDN
	if baseDN == "" {
		baseDN = c.config.BaseDN
	}

	fields := map[string]any{
		"base_dn":    baseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	c.log.Debug("Starting paged search", fields)

	var paging *ldap.ControlPaging
	if c.config.PageSize > 0 {
		paging = ldap.NewControlPaging(c.config.PageSize)
	}

	result := &SearchResult{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var controls []ldap.Control
		if paging != nil {
			controls = []ldap.Control{paging}
		}

		ldapReq := ldap.NewSearchRequest(
			baseDN,
			int(req.Scope),
			ldap.NeverDerefAliases,
			req.SizeLimit,
			int(req.TimeLimit.Seconds()),
			false,
			req.Filter,
			req.Attributes,
			controls,
		)

		page, err := conn.Search(ldapReq)
		if err != nil {
			LogLDAPError(c.log, "search", err, fields)
			if IsConnectionLost(err) {
				conn.Close()
				c.conn = nil
				LogConnectionEvent(c.log, "connection_lost", map[string]any{"url": c.config.URL})
				return nil, NewConnectionError(c.config.URL, "session", err)
			}
			return nil, &SearchError{BaseDN: baseDN, Filter: req.Filter, Cause: WrapError("search", err)}
		}

		result.Pages++
		result.Entries = append(result.Entries, page.Entries...)

		c.log.Trace("Completed search page", map[string]any{
			"page_number":     result.Pages,
			"entries_in_page": len(page.Entries),
			"total_entries":   len(result.Entries),
		})

		if paging == nil {
			break
		}
		response, ok := ldap.FindControl(page.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
		if !ok || len(response.Cookie) == 0 {
			break
		}
		paging.SetCookie(response.Cookie)
	}

	result.Total = len(result.Entries)

	fields["total_entries"] = result.Total
	fields["pages"] = result.Pages
	fields["duration_ms"] = time.Since(start).Milliseconds()
	c.log.Debug("Paged search completed", fields)

	return result, nil
}
