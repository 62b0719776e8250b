package ldap

import (
	"fmt"
	"strconv"
	"strings"
)

// GroupScope represents the scope of an Active Directory group.
type GroupScope string

const (
	GroupScopeGlobal      GroupScope = "Global"      // Global groups can contain members from the same domain
	GroupScopeUniversal   GroupScope = "Universal"   // Universal groups can contain members from any domain in the forest
	GroupScopeDomainLocal GroupScope = "DomainLocal" // Domain Local groups can contain members from any domain
)

// String returns the string representation of the group scope.
func (gs GroupScope) String() string {
	return string(gs)
}

// GroupCategory represents the category of an Active Directory group.
type GroupCategory string

const (
	GroupCategorySecurity     GroupCategory = "Security"     // Security group for access control
	GroupCategoryDistribution GroupCategory = "Distribution" // Distribution group for email distribution lists
)

// String returns the string representation of the group category.
func (gc GroupCategory) String() string {
	return string(gc)
}

// Active Directory group type bit flags.
const (
	// Group scope flags (mutually exclusive).
	GroupTypeFlagGlobal      uint32 = 0x00000002 // ADS_GROUP_TYPE_GLOBAL_GROUP
	GroupTypeFlagDomainLocal uint32 = 0x00000004 // ADS_GROUP_TYPE_DOMAIN_LOCAL_GROUP
	GroupTypeFlagUniversal   uint32 = 0x00000008 // ADS_GROUP_TYPE_UNIVERSAL_GROUP

	// Group category flag.
	GroupTypeFlagSecurity uint32 = 0x80000000 // ADS_GROUP_TYPE_SECURITY_ENABLED
)

// IsDistributionList reports whether groupType describes a distribution
// group, i.e. the security-enabled bit (bit 31) is clear.
func IsDistributionList(groupType uint32) bool {
	return groupType&GroupTypeFlagSecurity == 0
}

// ParseGroupType parses a groupType attribute value. Active Directory
// returns it as a signed 32-bit decimal ("-2147483646"); the unsigned
// rendering ("2147483650") is accepted as well.
func ParseGroupType(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty groupType")
	}

	if v, err := strconv.ParseInt(s, 10, 32); err == nil {
		return uint32(int32(v)), nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid groupType %q: %w", s, err)
	}
	return uint32(v), nil
}

// DescribeGroupType extracts scope and category from an Active Directory groupType value.
func DescribeGroupType(groupType uint32) (GroupScope, GroupCategory) {
	var scope GroupScope
	var category GroupCategory

	switch {
	case groupType&GroupTypeFlagGlobal != 0:
		scope = GroupScopeGlobal
	case groupType&GroupTypeFlagDomainLocal != 0:
		scope = GroupScopeDomainLocal
	case groupType&GroupTypeFlagUniversal != 0:
		scope = GroupScopeUniversal
	default:
		scope = GroupScopeGlobal
	}

	if IsDistributionList(groupType) {
		category = GroupCategoryDistribution
	} else {
		category = GroupCategorySecurity
	}

	return scope, category
}
