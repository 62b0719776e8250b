// Package hook connects the recipient resolver to a mail host's
// per-recipient and pre-queue hooks.
package hook

import (
	"errors"

	"github.com/mjl-/mox/smtp"

	"github.com/isometry/dlsync/internal/directory"
	"github.com/isometry/dlsync/internal/ldap"
	"github.com/isometry/dlsync/internal/metrics"
)

// ResultKey is the transaction result key under which the rcpt hook
// leaves its Result for the queue hook.
const ResultKey = "distribution-list-ldap"

// Event names in the registration table.
const (
	EventRcpt  = "rcpt"
	EventQueue = "queue"
)

// Result is attached to the transaction by the rcpt hook.
type Result struct {
	Recipients []directory.Entity
	Fail       string
}

// HandlerFunc handles one hook event for a transaction.
type HandlerFunc func(txn Transaction) Outcome

// Plugin answers mail host hooks from a Resolver.
type Plugin struct {
	resolver *directory.Resolver
	log      ldap.Logger
}

// New returns a plugin answering from resolver.
func New(resolver *directory.Resolver, log ldap.Logger) *Plugin {
	if log == nil {
		log = ldap.NopLogger{}
	}
	return &Plugin{resolver: resolver, log: log}
}

// Handlers returns the registration table mapping event names to handlers.
func (p *Plugin) Handlers() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		EventRcpt: func(txn Transaction) Outcome {
			return p.observe(EventRcpt, p.Rcpt(txn))
		},
		EventQueue: func(txn Transaction) Outcome {
			return p.observe(EventQueue, p.Queue(txn))
		},
	}
}

func (p *Plugin) observe(event string, o Outcome) Outcome {
	metrics.HookOutcomeInc(event, o.Action.String())
	return o
}

// Rcpt handles a RCPT TO. The transaction is expected to carry exactly the
// recipient being added; anything else is left to other hooks.
func (p *Plugin) Rcpt(txn Transaction) Outcome {
	if txn == nil {
		return outcomeContinue
	}

	recipients := txn.Recipients()
	switch {
	case len(recipients) == 0:
		return outcomeContinue
	case len(recipients) > 1:
		p.log.Error("Received more than one recipient", map[string]any{
			"recipients": len(recipients),
		})
		return outcomeContinue
	}

	rcpt := recipients[0]
	entity, err := p.resolver.Resolve(rcpt)

	var addrErr *directory.AddressError
	switch {
	case err == nil:
		txn.SetResult(ResultKey, &Result{Recipients: []directory.Entity{entity}})
		p.log.Debug("Recipient resolved", map[string]any{
			"recipient":  rcpt,
			"identifier": entity.Identifier(),
			"kind":       entity.Kind().String(),
			"generation": entity.SnapshotGeneration(),
		})
		return outcomeAccept

	case errors.As(err, &addrErr):
		if addrErr.MissingDomain() {
			txn.SetResult(ResultKey, &Result{Fail: "!domain"})
		}
		p.log.Info("Rejecting malformed recipient", map[string]any{
			"recipient": rcpt,
			"error":     err.Error(),
		})
		return reject(smtp.SeAddr1MailboxSyntax3, msgBadAddress)

	case errors.Is(err, directory.ErrNotReady):
		p.log.Error("Not loaded yet", map[string]any{"recipient": rcpt})
		return tempFail(smtp.SeSys3Other0, msgBackendFailure)

	case errors.Is(err, directory.ErrNotFound):
		return outcomeContinue

	default:
		p.log.Error("Recipient lookup failed", map[string]any{
			"recipient": rcpt,
			"error":     err.Error(),
		})
		return tempFail(smtp.SeSys3Other0, msgBackendFailure)
	}
}

// Queue runs once before the message is queued. When the rcpt hook resolved
// the recipient to a distribution list, the recipient list is replaced with
// the list's members. A list with no deliverable members is deferred and
// the recipients are left unchanged.
func (p *Plugin) Queue(txn Transaction) Outcome {
	if txn == nil {
		return outcomeContinue
	}

	v, ok := txn.Result(ResultKey)
	if !ok {
		return outcomeContinue
	}
	res, ok := v.(*Result)
	if !ok || len(res.Recipients) == 0 || res.Recipients[0] == nil {
		return outcomeContinue
	}

	recipient := res.Recipients[0]
	group, ok := recipient.(*directory.ResolvedGroup)
	if !ok || !group.IsDistributionList {
		return outcomeAccept
	}

	members := p.resolver.ExpandMembers(group)
	if len(members) == 0 {
		p.log.Warn("Distribution list has no deliverable members", map[string]any{
			"identifier": group.Identifier(),
			"generation": group.Generation,
		})
		return tempFail(smtp.SeMailbox2MailListExpansion4, msgEmptyList)
	}

	p.log.Debug("Expanding distribution list", map[string]any{
		"identifier": group.Identifier(),
		"members":    len(members),
		"generation": group.Generation,
	})
	txn.SetRecipients(members)
	return outcomeAccept
}
