package ldap

import (
	"encoding/hex"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// AttributeKind declares how raw values of an attribute are interpreted.
type AttributeKind int

const (
	KindScalar      AttributeKind = iota // First value, as a string
	KindMultiValued                      // Ordered slice, even for a single value
	KindBinary                           // First value rendered as lower-case hex
)

func (k AttributeKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMultiValued:
		return "multi"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// AttributePolicy maps attribute names to their kind. Names not listed are
// scalar. Lookups are case-insensitive, as are LDAP attribute descriptions.
type AttributePolicy map[string]AttributeKind

// DefaultAttributePolicy covers the attributes requested by the snapshot builder.
var DefaultAttributePolicy = AttributePolicy{
	"objectGUID":     KindBinary,
	"objectSid":      KindBinary,
	"member":         KindMultiValued,
	"proxyAddresses": KindMultiValued,
}

// KindOf returns the declared kind for name.
func (p AttributePolicy) KindOf(name string) AttributeKind {
	if k, ok := p[name]; ok {
		return k
	}
	for n, k := range p {
		if strings.EqualFold(n, name) {
			return k
		}
	}
	return KindScalar
}

// AttributeValue is a coerced attribute. The zero value means "not present".
type AttributeValue struct {
	Present bool
	Kind    AttributeKind
	Scalar  string   // KindScalar and KindBinary (hex)
	Values  []string // KindMultiValued, never nil when Present
	Raw     []byte   // KindBinary, first raw value
}

// DirectoryEntry is a single coerced search hit.
type DirectoryEntry struct {
	DN         string
	attributes map[string]AttributeValue // keyed by lower-cased name
}

// Get returns the coerced attribute, or a value with Present == false.
func (e *DirectoryEntry) Get(name string) AttributeValue {
	if e == nil {
		return AttributeValue{}
	}
	return e.attributes[strings.ToLower(name)]
}

// Scalar returns the scalar (or hex) rendering of name and whether it was present.
func (e *DirectoryEntry) Scalar(name string) (string, bool) {
	v := e.Get(name)
	return v.Scalar, v.Present
}

// Values returns the multi-valued rendering of name. A missing attribute
// yields nil; a present attribute always yields a non-nil slice.
func (e *DirectoryEntry) Values(name string) []string {
	return e.Get(name).Values
}

// Binary returns the raw bytes of the first value of a binary attribute.
func (e *DirectoryEntry) Binary(name string) ([]byte, bool) {
	v := e.Get(name)
	return v.Raw, v.Present && v.Kind == KindBinary
}

// AttributeCoercer converts raw LDAP entries according to a fixed policy.
type AttributeCoercer struct {
	policy AttributePolicy
}

// NewAttributeCoercer returns a coercer for policy. A nil policy means
// DefaultAttributePolicy.
func NewAttributeCoercer(policy AttributePolicy) *AttributeCoercer {
	if policy == nil {
		policy = DefaultAttributePolicy
	}
	return &AttributeCoercer{policy: policy}
}

// Coerce converts entry. The returned DirectoryEntry shares no memory with entry.
func (c *AttributeCoercer) Coerce(entry *ldap.Entry) *DirectoryEntry {
	out := &DirectoryEntry{
		DN:         entry.DN,
		attributes: make(map[string]AttributeValue, len(entry.Attributes)),
	}

	for _, attr := range entry.Attributes {
		if attr == nil {
			continue
		}
		out.attributes[strings.ToLower(attr.Name)] = c.CoerceAttribute(attr)
	}

	return out
}

// CoerceAttribute applies the policy to a single attribute.
func (c *AttributeCoercer) CoerceAttribute(attr *ldap.EntryAttribute) AttributeValue {
	kind := c.policy.KindOf(attr.Name)
	v := AttributeValue{Present: true, Kind: kind}

	switch kind {
	case KindBinary:
		raw := firstBytes(attr)
		v.Raw = append([]byte(nil), raw...)
		v.Scalar = hex.EncodeToString(raw)

	case KindMultiValued:
		// Collapse single values into a one-element slice.
		v.Values = make([]string, 0, max(len(attr.Values), len(attr.ByteValues)))
		if len(attr.Values) > 0 {
			v.Values = append(v.Values, attr.Values...)
		} else {
			for _, b := range attr.ByteValues {
				v.Values = append(v.Values, string(b))
			}
		}

	default:
		if len(attr.Values) > 0 {
			v.Scalar = attr.Values[0]
		} else if b := firstBytes(attr); b != nil {
			v.Scalar = string(b)
		}
	}

	return v
}

func firstBytes(attr *ldap.EntryAttribute) []byte {
	if len(attr.ByteValues) > 0 {
		return attr.ByteValues[0]
	}
	if len(attr.Values) > 0 {
		return []byte(attr.Values[0])
	}
	return nil
}
