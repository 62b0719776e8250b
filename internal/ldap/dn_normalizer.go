package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// NormalizeDNCase normalizes the attribute type descriptors in a Distinguished Name
// to uppercase to match Active Directory's canonical format.
//
// Input:  "cn=john,ou=users,dc=example,dc=com"
// Output: "CN=john,OU=users,DC=example,DC=com"
func NormalizeDNCase(dn string) (string, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return "", nil
	}

	parsedDN, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	return reconstructDNWithUppercaseTypes(parsedDN), nil
}

// reconstructDNWithUppercaseTypes rebuilds a DN from parsed components
// with attribute type descriptors in uppercase. Values are re-escaped so
// that an escaped separator never reads as an RDN boundary.
func reconstructDNWithUppercaseTypes(parsedDN *ldap.DN) string {
	rdnStrings := make([]string, 0, len(parsedDN.RDNs))

	for _, rdn := range parsedDN.RDNs {
		attrStrings := make([]string, 0, len(rdn.Attributes))
		for _, attr := range rdn.Attributes {
			attrStrings = append(attrStrings, strings.ToUpper(attr.Type)+"="+ldap.EscapeDN(attr.Value))
		}
		rdnStrings = append(rdnStrings, strings.Join(attrStrings, "+"))
	}

	return strings.Join(rdnStrings, ",")
}

// DNKey returns a key under which two spellings of the same DN compare equal:
// attribute types and values are case-folded and insignificant spacing is
// dropped. DNs that do not parse fall back to their lower-cased, trimmed form.
func DNKey(dn string) string {
	normalized, err := NormalizeDNCase(dn)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(dn))
	}
	return strings.ToLower(normalized)
}

// ValidateDNSyntax validates that a string is a properly formatted Distinguished Name.
func ValidateDNSyntax(dn string) error {
	if dn == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	if _, err := ldap.ParseDN(dn); err != nil {
		return fmt.Errorf("invalid DN syntax: %w", err)
	}

	return nil
}

// ExtractRDNValue extracts the value of the first RDN component with the specified attribute type.
// For example, extracting "CN" from "CN=John Doe,OU=Users,DC=example,DC=com" returns "John Doe".
func ExtractRDNValue(dn, attrType string) (string, error) {
	parsedDN, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	for _, rdn := range parsedDN.RDNs {
		for _, attr := range rdn.Attributes {
			if strings.EqualFold(attr.Type, attrType) {
				return attr.Value, nil
			}
		}
	}

	return "", fmt.Errorf("attribute type '%s' not found in DN '%s'", attrType, dn)
}
