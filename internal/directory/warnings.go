package directory

import (
	"fmt"
)

// DuplicateAddressWarning reports an address claimed by a second entity in
// one build. The first entity keeps the address.
type DuplicateAddressWarning struct {
	Address   string
	Kept      string // DN of the entity that owns the address
	Discarded string // DN of the entity whose claim was ignored
}

func (w *DuplicateAddressWarning) Error() string {
	return fmt.Sprintf("address %s of %s already registered by %s", w.Address, w.Discarded, w.Kept)
}

// UnresolvedMemberWarning reports a distribution-list member that is not a
// user of the same build, or a user with no address to deliver to.
type UnresolvedMemberWarning struct {
	Group  string
	Member string
	Reason string
}

func (w *UnresolvedMemberWarning) Error() string {
	return fmt.Sprintf("member %s of %s not expanded: %s", w.Member, w.Group, w.Reason)
}

// InvalidGroupTypeWarning reports a group whose groupType could not be
// read. Such groups are not expanded.
type InvalidGroupTypeWarning struct {
	Group string
	Value string
	Cause error
}

func (w *InvalidGroupTypeWarning) Error() string {
	return fmt.Sprintf("group %s has unusable groupType %q: %v", w.Group, w.Value, w.Cause)
}

func (w *InvalidGroupTypeWarning) Unwrap() error {
	return w.Cause
}

// Reasons attached to UnresolvedMemberWarning.
const (
	ReasonNotInBuild = "not a user of this build"
	ReasonNoAddress  = "user has no mail address"
)

// BuildStats summarises a build.
type BuildStats struct {
	Users              int
	Groups             int
	DistributionLists  int
	Addresses          int
	DuplicateAddresses int
	UnresolvedMembers  int
	MembersWithoutMail int
	InvalidGroupTypes  int
}
