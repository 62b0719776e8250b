/*
Package ldap provides the Active Directory access layer used to build the
address snapshot.

# Architecture Overview

  - Client: a single lazily established, authenticated session with paged
    subtree search
  - AttributeCoercer: turns raw search entries into DirectoryEntry values
    according to an AttributePolicy
  - Handlers: utility conversions (GUID, SID, groupType, DN keys)

# Connection Management

NewClient validates the configuration but does not connect. The first
Connect or Search dials the configured URL, optionally upgrades with
StartTLS, and binds using one of:

  - Simple bind (BindDN and Password)
  - Kerberos/GSSAPI (credential cache, keytab or password)
  - Anonymous bind when no credentials are configured

The session is shared by all searches. A search that fails because the
connection dropped returns a *ConnectionError and discards the session;
the next call reconnects. Other failures return a *SearchError. The client
never retries on its own; retry cadence belongs to the caller.

# Attribute Coercion

Each attribute is interpreted by kind:

	policy := ldap.AttributePolicy{
		"objectGUID":     ldap.KindBinary,
		"proxyAddresses": ldap.KindMultiValued,
	}
	entry := ldap.NewAttributeCoercer(policy).Coerce(raw)
	guid, _ := entry.Binary("objectGUID")   // raw bytes
	addrs := entry.Values("proxyAddresses") // never nil

Binary attributes are exposed as lower-case hex (Scalar) and raw bytes
(Binary). Multi-valued attributes are always a slice, even when the
directory returned one value or none.

# Error Handling

Errors are categorized (connection, authentication, permission, not_found,
validation, server) so callers can tell transient from persistent
failures:

	var connErr *ldap.ConnectionError
	if errors.As(err, &connErr) && connErr.IsRetryable() {
		// try again on the next refresh
	}
*/
package ldap
