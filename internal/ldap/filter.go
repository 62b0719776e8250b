package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// AddressToken is replaced with the escaped, lower-cased recipient address by ExpandFilter.
const AddressToken = "%u"

// Default search filters for mail-enabled directory objects.
const (
	DefaultUserFilter  = "(&(objectCategory=person)(objectClass=user)(mail=*))"
	DefaultGroupFilter = "(&(objectClass=group)(mail=*))"
	DefaultProbeFilter = "(|(mail=%u)(proxyAddresses=smtp:%u))"
)

// ExpandFilter substitutes every AddressToken in template with address,
// lower-cased and escaped per RFC 4515.
func ExpandFilter(template, address string) string {
	if !strings.Contains(template, AddressToken) {
		return template
	}
	return strings.ReplaceAll(template, AddressToken, ldap.EscapeFilter(strings.ToLower(address)))
}

// ValidateFilter checks that filter compiles. Templates are checked with a
// placeholder address.
func ValidateFilter(filter string) error {
	if strings.TrimSpace(filter) == "" {
		return fmt.Errorf("filter cannot be empty")
	}
	if _, err := ldap.CompileFilter(ExpandFilter(filter, "probe@example.invalid")); err != nil {
		return fmt.Errorf("invalid filter %q: %w", filter, err)
	}
	return nil
}
