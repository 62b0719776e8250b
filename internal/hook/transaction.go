package hook

import (
	"slices"
	"sync"
)

// Transaction is the in-flight mail transaction as exposed by the host.
// Results attached by one hook are visible to hooks fired later in the
// same transaction.
type Transaction interface {
	Recipients() []string
	SetRecipients(recipients []string)
	SetResult(key string, value any)
	Result(key string) (any, bool)
}

// MemoryTransaction is a Transaction held in memory. It is used by the
// command line resolver and by hosts that do not carry their own results.
type MemoryTransaction struct {
	mu         sync.Mutex
	recipients []string
	results    map[string]any
}

// NewTransaction returns a transaction addressed to recipients.
func NewTransaction(recipients ...string) *MemoryTransaction {
	return &MemoryTransaction{
		recipients: slices.Clone(recipients),
		results:    make(map[string]any),
	}
}

func (t *MemoryTransaction) Recipients() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.recipients)
}

func (t *MemoryTransaction) SetRecipients(recipients []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recipients = slices.Clone(recipients)
}

func (t *MemoryTransaction) SetResult(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.results[key] = value
}

func (t *MemoryTransaction) Result(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.results[key]
	return v, ok
}
