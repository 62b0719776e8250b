package ldap

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

const defaultKrb5Conf = "/etc/krb5.conf"

// kerberosCredentials is the resolved principal for a GSSAPI bind.
type kerberosCredentials struct {
	Username string
	Realm    string
	Password string
	Keytab   string
	CCache   string
	Config   string
}

// performKerberosAuth performs a GSSAPI bind on conn for the service
// principal of the configured URL.
func performKerberosAuth(conn *ldap.Conn, cfg *ConnectionConfig) error {
	creds, err := prepareKerberosConfig(cfg)
	if err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	gssapiClient, err := createGSSAPIClient(creds)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	return nil
}

// createGSSAPIClient creates a GSSAPI client.
// Priority order: credential cache, keytab, password.
func createGSSAPIClient(creds *kerberosCredentials) (ldap.GSSAPIClient, error) {
	if !fileExists(creds.Config) {
		return nil, fmt.Errorf("kerberos configuration file not found at %s; create it or set settings.kerberos.config. Example:\n%s",
			creds.Config, exampleKrb5Conf(creds.Realm))
	}

	if creds.CCache != "" && fileExists(creds.CCache) {
		return gssapi.NewClientFromCCache(creds.CCache, creds.Config, krb5client.DisablePAFXFAST(true))
	}

	if creds.Keytab != "" && fileExists(creds.Keytab) {
		return gssapi.NewClientWithKeytab(creds.Username, creds.Realm, creds.Keytab, creds.Config, krb5client.DisablePAFXFAST(true))
	}

	if creds.Username != "" && creds.Password != "" {
		return gssapi.NewClientWithPassword(creds.Username, creds.Realm, creds.Password, creds.Config, krb5client.DisablePAFXFAST(true))
	}

	return nil, fmt.Errorf("no suitable credentials found for Kerberos authentication")
}

// buildServicePrincipal returns ldap/<host> for the directory URL.
func buildServicePrincipal(ldapURL string) (string, error) {
	host, err := extractHostFromURL(ldapURL)
	if err != nil {
		return "", err
	}
	return "ldap/" + host, nil
}

// extractHostFromURL extracts the hostname (without port) from an LDAP URL.
func extractHostFromURL(ldapURL string) (string, error) {
	if ldapURL == "" {
		return "", fmt.Errorf("LDAP URL cannot be empty")
	}

	parsedURL, err := url.Parse(ldapURL)
	if err != nil {
		return "", fmt.Errorf("invalid LDAP URL: %w", err)
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return "", fmt.Errorf("no hostname found in URL: %s", ldapURL)
	}

	return hostname, nil
}

// prepareKerberosConfig derives Kerberos credentials from cfg. A BindDN of
// the form user@REALM supplies the realm when none is configured.
func prepareKerberosConfig(cfg *ConnectionConfig) (*kerberosCredentials, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	creds := &kerberosCredentials{
		Username: cfg.BindDN,
		Realm:    cfg.KerberosRealm,
		Password: cfg.Password,
		Keytab:   cfg.KerberosKeytab,
		CCache:   cfg.KerberosCCache,
		Config:   cfg.KerberosConfig,
	}
	if creds.Config == "" {
		creds.Config = defaultKrb5Conf
	}

	if user, realm, ok := strings.Cut(creds.Username, "@"); ok {
		creds.Username = user
		if creds.Realm == "" {
			creds.Realm = realm
		}
	}

	if creds.Realm == "" {
		return nil, fmt.Errorf("kerberos realm is required (set settings.kerberos.realm or bind as user@REALM)")
	}

	hasCCache := creds.CCache != "" && fileExists(creds.CCache)
	hasKeytab := creds.Keytab != "" && fileExists(creds.Keytab)
	hasPassword := creds.Password != ""

	if !hasCCache && (hasKeytab || hasPassword) && creds.Username == "" {
		return nil, fmt.Errorf("principal is required for keytab or password Kerberos authentication")
	}

	if !hasCCache && !hasKeytab && !hasPassword {
		return nil, fmt.Errorf("no suitable Kerberos credentials found: provide a credential cache, keytab or password")
	}

	return creds, nil
}

// fileExists checks if a file exists and is readable.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()
	return true
}

// exampleKrb5Conf generates example krb5.conf content for error messages.
func exampleKrb5Conf(realm string) string {
	if realm == "" {
		realm = "EXAMPLE.COM"
	}
	realm = strings.ToUpper(realm)
	domain := strings.ToLower(realm)
	kdc := "dc." + domain

	return fmt.Sprintf(`[libdefaults]
    default_realm = %s
    dns_lookup_realm = false
    dns_lookup_kdc = false

[realms]
    %s = {
        kdc = %s:88
    }

[domain_realm]
    .%s = %s`,
		realm, realm, kdc, domain, realm)
}
