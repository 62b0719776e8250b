package directory

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mjl-/mox/smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/dlsync/internal/ldap"
)

func newTestResolver(entries map[string]Entity) *Resolver {
	table := NewLookupTable()
	table.Publish(newSnapshot(1, time.Now(), entries))
	return NewResolver(table, nil)
}

func TestResolver_NotReady(t *testing.T) {
	resolver := NewResolver(NewLookupTable(), nil)

	for _, addr := range []string{"alice@example.com", "dl@example.com", "nobody@example.org"} {
		e, err := resolver.Resolve(addr)
		assert.Nil(t, e)
		assert.ErrorIs(t, err, ErrNotReady, addr)
	}
}

func TestResolver_Resolve(t *testing.T) {
	user := &ResolvedUser{DN: aliceDN, Mail: "alice@example.com"}
	resolver := newTestResolver(map[string]Entity{"alice@example.com": user})

	tests := []struct {
		name    string
		address string
		want    Entity
		wantErr error
	}{
		{name: "exact", address: "alice@example.com", want: user},
		{name: "mixed case", address: "Alice@EXAMPLE.com", want: user},
		{name: "surrounding space", address: " alice@example.com ", want: user},
		{name: "unknown", address: "bob@example.com", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.Resolve(tt.address)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Same(t, tt.want, got)
		})
	}
}

func TestResolver_InvalidAddress(t *testing.T) {
	resolver := newTestResolver(map[string]Entity{})

	for _, address := range []string{"alice", "alice@", "alice@ ", "", "a@b@"} {
		t.Run(address, func(t *testing.T) {
			_, err := resolver.Resolve(address)

			var addrErr *AddressError
			require.True(t, errors.As(err, &addrErr))
			assert.True(t, addrErr.MissingDomain())
			assert.ErrorIs(t, err, smtp.ErrBadAddress)
			assert.NotErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestResolver_UnparsableAddresses(t *testing.T) {
	legacy := &ResolvedUser{DN: aliceDN, Mail: "john..doe@example.com"}
	literal := &ResolvedUser{DN: "CN=Ops,DC=example,DC=com", Mail: "ops@[192.0.2.1]"}
	resolver := newTestResolver(map[string]Entity{
		"john..doe@example.com": legacy,
		"ops@[192.0.2.1]":       literal,
	})

	got, err := resolver.Resolve("John..Doe@example.com")
	require.NoError(t, err)
	assert.Same(t, legacy, got)

	got, err = resolver.Resolve("ops@[192.0.2.1]")
	require.NoError(t, err)
	assert.Same(t, literal, got)

	for _, address := range []string{"jane..doe@example.com", "al ice@example.com"} {
		_, err = resolver.Resolve(address)
		assert.ErrorIs(t, err, ErrNotFound, address)

		var addrErr *AddressError
		assert.False(t, errors.As(err, &addrErr), address)
	}
}

func TestResolver_InvalidAddressBeforeLoad(t *testing.T) {
	// Validation failures are permanent and do not depend on readiness.
	resolver := NewResolver(NewLookupTable(), nil)

	_, err := resolver.Resolve("no-domain")
	var addrErr *AddressError
	assert.True(t, errors.As(err, &addrErr))
	assert.False(t, errors.Is(err, ErrNotReady))
}

func TestResolver_ExpandMembers(t *testing.T) {
	var buf bytes.Buffer
	log := ldap.NewHCLogger(hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Warn}), "resolver")
	resolver := NewResolver(NewLookupTable(), log)

	dl := &ResolvedGroup{DN: "CN=DL,DC=example,DC=com", IsDistributionList: true, Members: []string{"alice@example.com", "bob@example.com"}}
	members := resolver.ExpandMembers(dl)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, members)

	// The caller gets a copy.
	members[0] = "mallory@example.com"
	assert.Equal(t, "alice@example.com", dl.Members[0])
	assert.Empty(t, buf.String())

	emptyDL := &ResolvedGroup{DN: "CN=Empty,DC=example,DC=com", IsDistributionList: true}
	assert.NotNil(t, resolver.ExpandMembers(emptyDL))
	assert.Empty(t, resolver.ExpandMembers(emptyDL))

	var nilGroup *ResolvedGroup
	for name, e := range map[string]Entity{
		"security group": &ResolvedGroup{DN: "CN=SG,DC=example,DC=com", GroupType: 0x80000002},
		"user":           &ResolvedUser{DN: aliceDN},
		"nil":            nil,
		"typed nil":      nilGroup,
	} {
		buf.Reset()
		got := resolver.ExpandMembers(e)
		assert.NotNil(t, got, name)
		assert.Empty(t, got, name)
		assert.Contains(t, buf.String(), "not a distribution list", name)
	}
}
