package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/isometry/dlsync/internal/ldap"
	"github.com/isometry/dlsync/internal/metrics"
)

// BuilderConfig holds the search parameters of a build.
type BuilderConfig struct {
	BaseDN      string
	UserFilter  string
	GroupFilter string
	ProbeFilter string // template for Probe, may contain ldap.AddressToken
}

var errGroupTypeMissing = errors.New("attribute not present")

var (
	userAttributes  = []string{"dn", "cn", "objectGUID", "objectSid", "mail", "proxyAddresses"}
	groupAttributes = []string{"dn", "cn", "objectGUID", "objectSid", "mail", "proxyAddresses", "member", "groupType"}
)

// Builder produces snapshots from the directory. Build is not safe for
// concurrent use; the Scheduler serializes builds.
type Builder struct {
	client  ldap.Client
	config  BuilderConfig
	coercer *ldap.AttributeCoercer
	guids   *ldap.GUIDHandler
	sids    *ldap.SIDHandler
	log     ldap.Logger
	now     func() time.Time

	generations atomic.Uint64
}

// NewBuilder returns a builder searching through client. Empty filters are
// replaced with the package defaults.
func NewBuilder(client ldap.Client, config BuilderConfig, log ldap.Logger) *Builder {
	if log == nil {
		log = ldap.NopLogger{}
	}
	if config.UserFilter == "" {
		config.UserFilter = ldap.DefaultUserFilter
	}
	if config.GroupFilter == "" {
		config.GroupFilter = ldap.DefaultGroupFilter
	}
	if config.ProbeFilter == "" {
		config.ProbeFilter = ldap.DefaultProbeFilter
	}

	return &Builder{
		client:  client,
		config:  config,
		coercer: ldap.NewAttributeCoercer(ldap.DefaultAttributePolicy),
		guids:   ldap.NewGUIDHandler(),
		sids:    ldap.NewSIDHandler(),
		log:     log,
		now:     time.Now,
	}
}

// Client returns the directory client used by the builder.
func (b *Builder) Client() ldap.Client {
	return b.client
}

// Config returns the effective search configuration.
func (b *Builder) Config() BuilderConfig {
	return b.config
}

// ensureGenerationAbove makes the next generation larger than g.
func (b *Builder) ensureGenerationAbove(g uint64) {
	for {
		cur := b.generations.Load()
		if cur >= g || b.generations.CompareAndSwap(cur, g) {
			return
		}
	}
}

// Build searches users, then groups, and assembles a new snapshot. Any
// directory failure aborts the build; nothing partial is returned.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	start := b.now()
	generation := b.generations.Add(1)

	fields := map[string]any{
		"generation": generation,
		"base_dn":    b.config.BaseDN,
	}
	b.log.Debug("Starting snapshot build", fields)

	if err := b.client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("build %d: %w", generation, err)
	}

	users, err := b.search(ctx, b.config.UserFilter, userAttributes)
	if err != nil {
		return nil, b.searchFailed(generation, "users", err)
	}

	asm := newAssembly(generation, b.log)

	byDN := make(map[string]*ResolvedUser, len(users))
	for _, entry := range users {
		u := b.resolveUser(entry, generation)
		byDN[ldap.DNKey(u.DN)] = u
		asm.register(u, u.Mail, u.ProxyAddresses)
		asm.stats.Users++
	}

	groups, err := b.search(ctx, b.config.GroupFilter, groupAttributes)
	if err != nil {
		return nil, b.searchFailed(generation, "groups", err)
	}

	for _, entry := range groups {
		g := b.resolveGroup(entry, generation, asm)
		asm.register(g, g.Mail, g.ProxyAddresses)
		asm.stats.Groups++

		if !g.IsDistributionList {
			continue
		}
		asm.stats.DistributionLists++
		g.Members = asm.expand(g, entry.Values("member"), byDN)
	}

	asm.stats.Addresses = len(asm.entries)

	snap := newSnapshot(generation, start, asm.entries)
	snap.Duration = b.now().Sub(start)
	snap.Stats = asm.stats

	metrics.BuildWarningsAdd("duplicate_address", asm.stats.DuplicateAddresses)
	metrics.BuildWarningsAdd("unresolved_member", asm.stats.UnresolvedMembers)
	metrics.BuildWarningsAdd("member_without_mail", asm.stats.MembersWithoutMail)
	metrics.BuildWarningsAdd("invalid_group_type", asm.stats.InvalidGroupTypes)

	fields["users"] = asm.stats.Users
	fields["groups"] = asm.stats.Groups
	fields["distribution_lists"] = asm.stats.DistributionLists
	fields["addresses"] = asm.stats.Addresses
	fields["duplicates"] = asm.stats.DuplicateAddresses
	fields["unresolved_members"] = asm.stats.UnresolvedMembers
	fields["duration_ms"] = snap.Duration.Milliseconds()
	b.log.Info("Snapshot built", fields)

	return snap, nil
}

func (b *Builder) searchFailed(generation uint64, what string, err error) error {
	if ldap.IsNotFoundError(err) {
		return fmt.Errorf("build %d: searching %s: base DN %q does not exist: %w", generation, what, b.config.BaseDN, err)
	}
	return fmt.Errorf("build %d: searching %s: %w", generation, what, err)
}

// Probe runs the probe filter for address and returns the matching
// entries. It is a diagnostic aid and is never used on the lookup path.
func (b *Builder) Probe(ctx context.Context, address string) ([]*ldap.DirectoryEntry, error) {
	if err := b.client.Connect(ctx); err != nil {
		return nil, err
	}
	return b.search(ctx, ldap.ExpandFilter(b.config.ProbeFilter, NormalizeAddress(address)), groupAttributes)
}

func (b *Builder) search(ctx context.Context, filter string, attributes []string) ([]*ldap.DirectoryEntry, error) {
	res, err := b.client.Search(ctx, &ldap.SearchRequest{
		BaseDN:     b.config.BaseDN,
		Scope:      ldap.ScopeWholeSubtree,
		Filter:     filter,
		Attributes: attributes,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*ldap.DirectoryEntry, 0, len(res.Entries))
	for _, raw := range res.Entries {
		if raw == nil {
			continue
		}
		entries = append(entries, b.coercer.Coerce(raw))
	}
	return entries, nil
}

func (b *Builder) resolveUser(entry *ldap.DirectoryEntry, generation uint64) *ResolvedUser {
	u := &ResolvedUser{
		DN:         entry.DN,
		Name:       entryName(entry),
		Generation: generation,
	}
	u.Mail = scalar(entry, "mail")
	u.ProxyAddresses, u.primaryProxy = proxyAddresses(entry.Values("proxyAddresses"))
	u.ObjectGUID = b.objectGUID(entry)
	u.SID = b.objectSID(entry)
	return u
}

func (b *Builder) resolveGroup(entry *ldap.DirectoryEntry, generation uint64, asm *assembly) *ResolvedGroup {
	g := &ResolvedGroup{
		DN:         entry.DN,
		Name:       entryName(entry),
		Generation: generation,
	}
	g.Mail = scalar(entry, "mail")
	g.ProxyAddresses, g.primaryProxy = proxyAddresses(entry.Values("proxyAddresses"))
	g.ObjectGUID = b.objectGUID(entry)
	g.SID = b.objectSID(entry)

	raw, ok := entry.Scalar("groupType")
	if !ok {
		asm.invalidGroupType(&InvalidGroupTypeWarning{Group: g.DN, Cause: errGroupTypeMissing})
		return g
	}
	groupType, err := ldap.ParseGroupType(raw)
	if err != nil {
		asm.invalidGroupType(&InvalidGroupTypeWarning{Group: g.DN, Value: raw, Cause: err})
		return g
	}

	g.GroupType = groupType
	g.IsDistributionList = ldap.IsDistributionList(groupType)
	return g
}

func (b *Builder) objectGUID(entry *ldap.DirectoryEntry) uuid.UUID {
	raw, ok := entry.Binary("objectGUID")
	if !ok {
		return uuid.Nil
	}
	u, err := b.guids.GUIDBytesToUUID(raw)
	if err != nil {
		b.log.Debug("Ignoring malformed objectGUID", map[string]any{"dn": entry.DN, "error": err.Error()})
		return uuid.Nil
	}
	return u
}

func (b *Builder) objectSID(entry *ldap.DirectoryEntry) string {
	raw, ok := entry.Binary("objectSid")
	if !ok {
		return ""
	}
	return b.sids.ConvertBinarySIDToStringSafe(raw)
}

func scalar(entry *ldap.DirectoryEntry, name string) string {
	v, _ := entry.Scalar(name)
	return strings.TrimSpace(v)
}

func entryName(entry *ldap.DirectoryEntry) string {
	if cn := scalar(entry, "cn"); cn != "" {
		return cn
	}
	cn, _ := ldap.ExtractRDNValue(entry.DN, "CN")
	return cn
}

// proxyAddresses keeps the SMTP values of a proxyAddresses attribute and
// reports the primary one.
func proxyAddresses(values []string) (addrs []string, primary string) {
	addrs = make([]string, 0, len(values))
	for _, v := range values {
		addr, isPrimary, ok := smtpProxyAddress(v)
		if !ok {
			continue
		}
		addrs = append(addrs, addr)
		if isPrimary && primary == "" {
			primary = addr
		}
	}
	return addrs, primary
}

// assembly is the mutable state of one build.
type assembly struct {
	generation uint64
	entries    map[string]Entity
	stats      BuildStats
	log        ldap.Logger
}

func newAssembly(generation uint64, log ldap.Logger) *assembly {
	return &assembly{
		generation: generation,
		entries:    make(map[string]Entity),
		log:        log,
	}
}

// register adds the mail and proxy addresses of e. The first entity to
// claim an address keeps it.
func (a *assembly) register(e Entity, mail string, proxies []string) {
	a.registerAddress(e, mail)
	for _, p := range proxies {
		a.registerAddress(e, p)
	}
}

func (a *assembly) registerAddress(e Entity, address string) {
	key := NormalizeAddress(address)
	if key == "" {
		return
	}

	existing, ok := a.entries[key]
	if !ok {
		a.entries[key] = e
		return
	}
	if existing == e {
		return
	}

	w := &DuplicateAddressWarning{Address: key, Kept: existing.Identifier(), Discarded: e.Identifier()}
	a.stats.DuplicateAddresses++
	a.log.Warn("Duplicate address", map[string]any{
		"generation": a.generation,
		"address":    w.Address,
		"kept":       w.Kept,
		"discarded":  w.Discarded,
		"warning":    w.Error(),
	})
}

// expand resolves member DNs of g against the users of this build.
func (a *assembly) expand(g *ResolvedGroup, memberDNs []string, byDN map[string]*ResolvedUser) []string {
	members := make([]string, 0, len(memberDNs))
	seen := make(map[string]struct{}, len(memberDNs))

	for _, dn := range memberDNs {
		u, ok := byDN[ldap.DNKey(dn)]
		if !ok {
			a.stats.UnresolvedMembers++
			a.unresolved(&UnresolvedMemberWarning{Group: g.DN, Member: dn, Reason: ReasonNotInBuild})
			continue
		}

		addr := u.PrimaryAddress()
		if addr == "" {
			a.stats.MembersWithoutMail++
			a.unresolved(&UnresolvedMemberWarning{Group: g.DN, Member: dn, Reason: ReasonNoAddress})
			continue
		}

		key := NormalizeAddress(addr)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		members = append(members, addr)
	}

	return members
}

func (a *assembly) unresolved(w *UnresolvedMemberWarning) {
	a.log.Warn("Unresolved distribution list member", map[string]any{
		"generation": a.generation,
		"group":      w.Group,
		"member":     w.Member,
		"reason":     w.Reason,
	})
}

func (a *assembly) invalidGroupType(w *InvalidGroupTypeWarning) {
	a.stats.InvalidGroupTypes++
	a.log.Warn("Group not expanded", map[string]any{
		"generation": a.generation,
		"group":      w.Group,
		"group_type": w.Value,
		"error":      w.Cause.Error(),
	})
}
