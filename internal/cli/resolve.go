package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/isometry/dlsync/internal/directory"
	"github.com/isometry/dlsync/internal/hook"
	"github.com/isometry/dlsync/internal/ldap"
)

var errAddressRequired = errors.New("an address argument is required")

func cmdResolve(g *globals) *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:      "resolve",
		Usage:     "Build one snapshot and show how the mail hooks treat each address",
		ArgsUsage: "ADDRESS [ADDRESS...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "Print results as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			addresses := c.Args().Slice()
			if len(addresses) == 0 {
				return errAddressRequired
			}

			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			builder, err := newBuilder(cfg, g.log, nil)
			if err != nil {
				return err
			}

			table := directory.NewLookupTable()
			sched := directory.NewScheduler(builder, table, cfg.RefreshInterval(), ldap.NewHCLogger(g.log, "scheduler"))
			defer func() { _ = sched.Close() }()

			if err := sched.Refresh(ctx); err != nil {
				return err
			}

			resolver := directory.NewResolver(table, ldap.NewHCLogger(g.log, "resolver"))
			handlers := hook.New(resolver, ldap.NewHCLogger(g.log, "hook")).Handlers()

			results := make([]resolution, 0, len(addresses))
			for _, address := range addresses {
				results = append(results, resolveAddress(handlers, address))
			}
			return printResolutions(c.Root().Writer, results, asJSON)
		},
	}
}

func printResolutions(w io.Writer, results []resolution, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, r := range results {
		fmt.Fprintf(w, "%s: %s", r.Address, r.Outcome)
		if r.Code != 0 {
			fmt.Fprintf(w, " %d %s %s", r.Code, r.EnhancedCode, r.Message)
		}
		fmt.Fprintln(w)
		if r.Identifier != "" {
			kind := r.Kind
			if r.Distribution {
				kind = "distribution list"
			}
			fmt.Fprintf(w, "  %s %s (generation %d)\n", kind, r.Identifier, r.Generation)
		}
		fmt.Fprintf(w, "  recipients: %s\n", strings.Join(r.Recipients, ", "))
	}
	return nil
}

func cmdProbe(g *globals) *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     "Search the directory for an address with the probe filter",
		ArgsUsage: "ADDRESS",
		Action: func(ctx context.Context, c *cli.Command) error {
			address := c.Args().First()
			if address == "" {
				return errAddressRequired
			}

			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			builder, err := newBuilder(cfg, g.log, nil)
			if err != nil {
				return err
			}
			defer func() { _ = builder.Client().Close() }()

			entries, err := builder.Probe(ctx, address)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if len(entries) == 0 {
				fmt.Fprintf(w, "no entries match %s\n", address)
				return nil
			}
			for _, e := range entries {
				printEntry(w, e)
			}
			return nil
		},
	}
}

func printEntry(w io.Writer, e *ldap.DirectoryEntry) {
	fmt.Fprintln(w, e.DN)
	if mail, ok := e.Scalar("mail"); ok {
		fmt.Fprintf(w, "  mail: %s\n", mail)
	}
	for _, p := range e.Values("proxyAddresses") {
		fmt.Fprintf(w, "  proxyAddresses: %s\n", p)
	}
	if raw, ok := e.Scalar("groupType"); ok {
		if gt, err := ldap.ParseGroupType(raw); err == nil {
			scope, category := ldap.DescribeGroupType(gt)
			fmt.Fprintf(w, "  groupType: %s (%s %s, distribution list: %t)\n", raw, scope, category, ldap.IsDistributionList(gt))
		} else {
			fmt.Fprintf(w, "  groupType: %s (invalid)\n", raw)
		}
	}
	if members := e.Values("member"); len(members) > 0 {
		fmt.Fprintf(w, "  member: %d values\n", len(members))
	}
	if raw, ok := e.Binary("objectGUID"); ok {
		if guid, err := ldap.NewGUIDHandler().GUIDBytesToString(raw); err == nil {
			fmt.Fprintf(w, "  objectGUID: %s\n", guid)
		}
	}
}
