package cli

import (
	"fmt"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/hashicorp/go-hclog"

	"github.com/isometry/dlsync/internal/config"
	"github.com/isometry/dlsync/internal/directory"
	"github.com/isometry/dlsync/internal/hook"
	"github.com/isometry/dlsync/internal/ldap"
)

// newBuilder returns a snapshot builder for cfg. When reuse is not nil its
// directory session is kept; otherwise a new client is created.
func newBuilder(cfg *config.Config, log hclog.Logger, reuse ldap.Client) (*directory.Builder, error) {
	client := reuse
	if client == nil {
		start := time.Now()
		c, err := ldap.NewClient(cfg.ToConnectionConfig(), ldap.NewHCLogger(log, "ldap"))
		if err != nil {
			log.Error("Failed to create LDAP client", "error", err, "duration_ms", time.Since(start).Milliseconds())
			return nil, fmt.Errorf("creating directory client: %w", err)
		}
		client = c
		log.Debug("LDAP client created", "url", cfg.Settings.URL, "auth", cfg.ToConnectionConfig().GetAuthMethod().String())
	}
	return directory.NewBuilder(client, cfg.BuilderConfig(), ldap.NewHCLogger(log, "builder")), nil
}

// resolution is the outcome of running both mail hooks for one address.
type resolution struct {
	Address      string   `json:"address"`
	Outcome      string   `json:"outcome"`
	Code         int      `json:"code,omitempty"`
	EnhancedCode string   `json:"enhanced_code,omitempty"`
	Message      string   `json:"message,omitempty"`
	Kind         string   `json:"kind,omitempty"`
	Identifier   string   `json:"identifier,omitempty"`
	Distribution bool     `json:"distribution_list,omitempty"`
	Generation   uint64   `json:"generation,omitempty"`
	Recipients   []string `json:"recipients"`
}

// resolveAddress runs the rcpt hook for address and, when it accepts, the
// queue hook, as the mail host would for a single-recipient message.
func resolveAddress(handlers map[string]hook.HandlerFunc, address string) resolution {
	txn := hook.NewTransaction(address)

	out := handlers[hook.EventRcpt](txn)
	if out.Action == hook.Accept {
		if q := handlers[hook.EventQueue](txn); q.Action != hook.Continue {
			out = q
		}
	}

	r := resolution{
		Address:    address,
		Outcome:    out.Action.String(),
		Recipients: txn.Recipients(),
	}
	if out.Reply != nil {
		r.Code = out.Reply.Code
		r.Message = out.Reply.Message
		if out.Reply.EnhancedCode != gosmtp.NoEnhancedCode {
			ec := out.Reply.EnhancedCode
			r.EnhancedCode = fmt.Sprintf("%d.%d.%d", ec[0], ec[1], ec[2])
		}
	}

	if v, ok := txn.Result(hook.ResultKey); ok {
		if res, ok := v.(*hook.Result); ok && len(res.Recipients) > 0 && res.Recipients[0] != nil {
			e := res.Recipients[0]
			r.Kind = e.Kind().String()
			r.Identifier = e.Identifier()
			r.Generation = e.SnapshotGeneration()
			if g, ok := e.(*directory.ResolvedGroup); ok {
				r.Distribution = g.IsDistributionList
			}
		}
	}
	return r
}
