package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGroupType(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    uint32
		expectError bool
	}{
		{name: "global security (signed)", input: "-2147483646", expected: 0x80000002},
		{name: "universal security (signed)", input: "-2147483640", expected: 0x80000008},
		{name: "domain local security (signed)", input: "-2147483644", expected: 0x80000004},
		{name: "global distribution", input: "2", expected: 0x2},
		{name: "universal distribution", input: "8", expected: 0x8},
		{name: "unsigned rendering", input: "2147483650", expected: 0x80000002},
		{name: "surrounding whitespace", input: " 8 ", expected: 0x8},
		{name: "empty", input: "", expectError: true},
		{name: "not a number", input: "security", expectError: true},
		{name: "out of range", input: "99999999999", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGroupType(tt.input)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIsDistributionList(t *testing.T) {
	tests := []struct {
		name      string
		groupType uint32
		expected  bool
	}{
		{"global distribution", GroupTypeFlagGlobal, true},
		{"universal distribution", GroupTypeFlagUniversal, true},
		{"domain local distribution", GroupTypeFlagDomainLocal, true},
		{"global security", GroupTypeFlagGlobal | GroupTypeFlagSecurity, false},
		{"universal security", GroupTypeFlagUniversal | GroupTypeFlagSecurity, false},
		{"only security bit", GroupTypeFlagSecurity, false},
		{"zero", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsDistributionList(tt.groupType))
		})
	}
}

func TestIsDistributionList_SignedValues(t *testing.T) {
	// groupType as returned by the directory, parsed end to end.
	for input, want := range map[string]bool{
		"-2147483646": false,
		"-2147483640": false,
		"2":           true,
		"4":           true,
		"8":           true,
	} {
		gt, err := ParseGroupType(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, IsDistributionList(gt), input)
	}
}

func TestDescribeGroupType(t *testing.T) {
	tests := []struct {
		name          string
		groupType     uint32
		expectedScope GroupScope
		expectedCat   GroupCategory
	}{
		{"global security", 0x80000002, GroupScopeGlobal, GroupCategorySecurity},
		{"domain local security", 0x80000004, GroupScopeDomainLocal, GroupCategorySecurity},
		{"universal security", 0x80000008, GroupScopeUniversal, GroupCategorySecurity},
		{"global distribution", 0x2, GroupScopeGlobal, GroupCategoryDistribution},
		{"universal distribution", 0x8, GroupScopeUniversal, GroupCategoryDistribution},
		{"no scope bits", 0x0, GroupScopeGlobal, GroupCategoryDistribution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, category := DescribeGroupType(tt.groupType)
			assert.Equal(t, tt.expectedScope, scope)
			assert.Equal(t, tt.expectedCat, category)
		})
	}
}

func TestGroupScopeAndCategoryStrings(t *testing.T) {
	assert.Equal(t, "Global", GroupScopeGlobal.String())
	assert.Equal(t, "Universal", GroupScopeUniversal.String())
	assert.Equal(t, "DomainLocal", GroupScopeDomainLocal.String())
	assert.Equal(t, "Security", GroupCategorySecurity.String())
	assert.Equal(t, "Distribution", GroupCategoryDistribution.String())
}
