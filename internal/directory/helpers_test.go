package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/mock"

	"github.com/isometry/dlsync/internal/ldap"
)

const (
	testBaseDN      = "DC=example,DC=com"
	testUserFilter  = "(&(objectClass=user)(mail=*))"
	testGroupFilter = "(&(objectClass=group)(mail=*))"
)

// MockClient implements ldap.Client for testing builder behaviour.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*ldap.SearchResult)
	return res, args.Error(1)
}

func (m *MockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func filterIs(filter string) any {
	return mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req != nil && req.Filter == filter
	})
}

func result(entries ...*goldap.Entry) *ldap.SearchResult {
	return &ldap.SearchResult{Entries: entries, Total: len(entries), Pages: 1}
}

func userEntry(dn string, attrs map[string][]string) *goldap.Entry {
	return goldap.NewEntry(dn, attrs)
}

func groupEntry(dn, mail, groupType string, members ...string) *goldap.Entry {
	attrs := map[string][]string{
		"mail":      {mail},
		"groupType": {groupType},
	}
	if len(members) > 0 {
		attrs["member"] = members
	}
	return goldap.NewEntry(dn, attrs)
}

func newMockBuilder(users, groups []*goldap.Entry) (*Builder, *MockClient) {
	client := &MockClient{}
	client.On("Connect", mock.Anything).Return(nil)
	client.On("Search", mock.Anything, filterIs(testUserFilter)).Return(result(users...), nil)
	client.On("Search", mock.Anything, filterIs(testGroupFilter)).Return(result(groups...), nil)

	return NewBuilder(client, BuilderConfig{
		BaseDN:      testBaseDN,
		UserFilter:  testUserFilter,
		GroupFilter: testGroupFilter,
	}, ldap.NopLogger{}), client
}

// fakeDirectory is an ldap.Client whose contents and failures can be
// changed between builds.
type fakeDirectory struct {
	mu      sync.Mutex
	users   []*goldap.Entry
	groups  []*goldap.Entry
	err     error
	gate    chan struct{} // when set, Connect blocks until it is closed
	started chan struct{} // receives once per Connect, if set

	connects atomic.Int32
	closed   atomic.Int32
}

func (f *fakeDirectory) set(users, groups []*goldap.Entry, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users, f.groups, f.err = users, groups, err
}

func (f *fakeDirectory) Connect(ctx context.Context) error {
	f.connects.Add(1)

	f.mu.Lock()
	gate, started, err := f.gate, f.started, f.err
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var connErr *ldap.ConnectionError
	if err != nil && errors.As(err, &connErr) {
		return err
	}
	return nil
}

func (f *fakeDirectory) Search(_ context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if req.Filter == testGroupFilter {
		return result(f.groups...), nil
	}
	return result(f.users...), nil
}

func (f *fakeDirectory) Close() error {
	f.closed.Add(1)
	return nil
}

func newFakeBuilder(f *fakeDirectory) *Builder {
	return NewBuilder(f, BuilderConfig{
		BaseDN:      testBaseDN,
		UserFilter:  testUserFilter,
		GroupFilter: testGroupFilter,
	}, ldap.NopLogger{})
}

var (
	aliceDN = "CN=Alice,OU=Users,DC=example,DC=com"
	bobDN   = "CN=Bob,OU=Users,DC=example,DC=com"

	alice = userEntry(aliceDN, map[string][]string{"mail": {"alice@example.com"}})
	bob   = userEntry(bobDN, map[string][]string{"mail": {"bob@example.com"}})
)
