package directory

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mjl-/mox/smtp"

	"github.com/isometry/dlsync/internal/ldap"
	"github.com/isometry/dlsync/internal/metrics"
)

// ErrNotFound is returned by Resolve for addresses absent from the snapshot.
var ErrNotFound = errors.New("address not found in directory")

// AddressError reports a recipient address that cannot be looked up.
type AddressError struct {
	Address string
	Err     error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid recipient address %q: %v", e.Address, e.Err)
}

func (e *AddressError) Unwrap() error {
	return e.Err
}

// MissingDomain reports whether the address lacks a domain part.
func (e *AddressError) MissingDomain() bool {
	return missingDomain(e.Address)
}

func missingDomain(address string) bool {
	i := strings.LastIndexByte(address, '@')
	return i < 0 || strings.TrimSpace(address[i+1:]) == ""
}

// Resolver answers recipient lookups against the published snapshot. It is
// safe for concurrent use and never triggers a build.
type Resolver struct {
	table *LookupTable
	log   ldap.Logger
}

func NewResolver(table *LookupTable, log ldap.Logger) *Resolver {
	if log == nil {
		log = ldap.NopLogger{}
	}
	return &Resolver{table: table, log: log}
}

// Resolve returns the entity registered for address. Errors are
// *AddressError for an address without a domain, ErrNotReady before the
// first snapshot is published, and ErrNotFound.
//
// Addresses held in the directory resolve even when they are not valid
// RFC 5321 mailboxes; strict parsing only classifies misses.
func (r *Resolver) Resolve(address string) (Entity, error) {
	address = strings.TrimSpace(address)
	if missingDomain(address) {
		metrics.LookupInc("invalid")
		return nil, &AddressError{Address: address, Err: smtp.ErrBadAddress}
	}

	snap, err := r.table.Current()
	if err != nil {
		metrics.LookupInc("not_ready")
		return nil, err
	}

	e, ok := snap.Lookup(address)
	if !ok {
		if _, perr := smtp.ParseAddress(address); perr != nil {
			metrics.LookupInc("invalid")
			r.log.Debug("Unparsable recipient is not in the directory", map[string]any{
				"recipient": address,
				"error":     perr.Error(),
			})
			return nil, fmt.Errorf("%w: %w", ErrNotFound, perr)
		}
		metrics.LookupInc("not_found")
		return nil, ErrNotFound
	}

	metrics.LookupInc("found")
	return e, nil
}

// ExpandMembers returns the member addresses of a distribution list. Any
// other entity yields an empty list and a warning.
func (r *Resolver) ExpandMembers(e Entity) []string {
	g, ok := e.(*ResolvedGroup)
	if !ok || g == nil || !g.IsDistributionList {
		fields := map[string]any{}
		if e != nil {
			fields["identifier"] = e.Identifier()
			fields["kind"] = e.Kind().String()
		}
		r.log.Warn("Member expansion requested for an entity that is not a distribution list", fields)
		return []string{}
	}
	if len(g.Members) == 0 {
		return []string{}
	}
	return slices.Clone(g.Members)
}
