package directory

import (
	"strings"

	"github.com/google/uuid"
)

// EntityKind tells users and groups apart.
type EntityKind int

const (
	KindUser EntityKind = iota
	KindGroup
)

func (k EntityKind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Entity is a resolved directory object reachable by one or more addresses.
// Entities are immutable once their snapshot is published.
type Entity interface {
	Kind() EntityKind
	// Identifier is the DN of the directory entry.
	Identifier() string
	// PrimaryAddress is the mail attribute, or the primary SMTP proxy
	// address when mail is unset. Empty if the entity has neither.
	PrimaryAddress() string
	// SnapshotGeneration is the generation of the snapshot that built the entity.
	SnapshotGeneration() uint64
}

// ResolvedUser is a mail-enabled user.
type ResolvedUser struct {
	DN             string
	Name           string
	Mail           string
	ProxyAddresses []string // SMTP proxy addresses, type prefix removed
	ObjectGUID     uuid.UUID
	SID            string
	Generation     uint64

	primaryProxy string
}

func (u *ResolvedUser) Kind() EntityKind {
	return KindUser
}

func (u *ResolvedUser) Identifier() string {
	if u == nil {
		return ""
	}
	return u.DN
}

func (u *ResolvedUser) SnapshotGeneration() uint64 {
	return u.Generation
}

func (u *ResolvedUser) PrimaryAddress() string {
	if u.Mail != "" {
		return u.Mail
	}
	return u.primaryProxy
}

// ResolvedGroup is a mail-enabled group. Members is populated only for
// distribution lists.
type ResolvedGroup struct {
	DN                 string
	Name               string
	Mail               string
	ProxyAddresses     []string
	ObjectGUID         uuid.UUID
	SID                string
	GroupType          uint32
	IsDistributionList bool
	Members            []string
	Generation         uint64

	primaryProxy string
}

func (g *ResolvedGroup) Kind() EntityKind {
	return KindGroup
}

func (g *ResolvedGroup) Identifier() string {
	if g == nil {
		return ""
	}
	return g.DN
}

func (g *ResolvedGroup) SnapshotGeneration() uint64 {
	return g.Generation
}

func (g *ResolvedGroup) PrimaryAddress() string {
	if g.Mail != "" {
		return g.Mail
	}
	return g.primaryProxy
}

// NormalizeAddress returns the lookup key for an address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// smtpProxyAddress interprets an Exchange proxyAddresses value. Values with
// an SMTP type prefix are returned without it; "SMTP:" marks the primary
// address. Values with any other type prefix are not mail addresses.
// Values without a prefix are taken as-is.
func smtpProxyAddress(value string) (address string, primary, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false, false
	}

	prefix, rest, found := strings.Cut(value, ":")
	if !found || strings.Contains(prefix, "@") {
		return value, false, true
	}
	if !strings.EqualFold(prefix, "smtp") {
		return "", false, false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", false, false
	}
	return rest, prefix == "SMTP", true
}
