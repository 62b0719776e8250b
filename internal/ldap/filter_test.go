package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandFilter(t *testing.T) {
	tests := []struct {
		name     string
		template string
		address  string
		expected string
	}{
		{
			name:     "no token",
			template: DefaultGroupFilter,
			address:  "sales@example.com",
			expected: DefaultGroupFilter,
		},
		{
			name:     "every token replaced and lower-cased",
			template: DefaultProbeFilter,
			address:  "Sales@Example.COM",
			expected: "(|(mail=sales@example.com)(proxyAddresses=smtp:sales@example.com))",
		},
		{
			name:     "filter metacharacters escaped",
			template: "(mail=%u)",
			address:  "a*(b)@example.com",
			expected: `(mail=a\2a\28b\29@example.com)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExpandFilter(tt.template, tt.address))
		})
	}
}

func TestValidateFilter(t *testing.T) {
	assert.NoError(t, ValidateFilter(DefaultUserFilter))
	assert.NoError(t, ValidateFilter(DefaultGroupFilter))
	assert.NoError(t, ValidateFilter(DefaultProbeFilter))

	assert.Error(t, ValidateFilter(""))
	assert.Error(t, ValidateFilter("   "))
	assert.Error(t, ValidateFilter("(&(objectClass=group)"))
}
