// Command scsctl operates on a source-control repository's derived data: it
// ingests changesets, derives kinds, converts ids between identity schemes
// and inspects what has been derived.
//
// Repository state lives in a filesystem kv directory (--repo).  With --etcd,
// derivation leases go through etcd so several scsctl invocations (or a
// server) can derive against the same repository concurrently.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/jamestiotio/sapling/src/commitgraph"
	"github.com/jamestiotio/sapling/src/derived"
	"github.com/jamestiotio/sapling/src/derived/identity"
	"github.com/jamestiotio/sapling/src/derived/kinds"
	"github.com/jamestiotio/sapling/src/derived/mapstore"
	"github.com/jamestiotio/sapling/src/derived/scheduler"
	"github.com/jamestiotio/sapling/src/internal/cmdutil"
	"github.com/jamestiotio/sapling/src/internal/dlock"
	"github.com/jamestiotio/sapling/src/internal/errors"
	"github.com/jamestiotio/sapling/src/internal/kv"
	"github.com/jamestiotio/sapling/src/internal/pctx"
)

// Exit codes; scripts branch on these.
const (
	codeUnknownChangeset = 2
	codeNotDerived       = 3
)

type env struct {
	store  kv.Store
	graph  *commitgraph.KVGraph
	maps   *mapstore.Store
	leaser dlock.Leaser
	config derived.Config
}

type rootFlags struct {
	repo       string
	configPath string
	etcdHosts  string
	verbose    bool
}

func (f *rootFlags) open() (*env, error) {
	if f.repo == "" {
		return nil, errors.New("--repo is required")
	}
	e := &env{
		store:  kv.NewFSStore(f.repo),
		config: derived.DefaultConfig(),
		leaser: dlock.NewLocalLeaser(),
	}
	e.graph = commitgraph.NewKVGraph(e.store)
	e.maps = mapstore.New(e.store)
	if f.configPath != "" {
		b, err := os.ReadFile(f.configPath)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", f.configPath)
		}
		cfg, err := derived.ParseConfig(b)
		if err != nil {
			return nil, err
		}
		e.config = cfg
	}
	if f.etcdHosts != "" {
		client, err := etcd.New(etcd.Config{
			Endpoints:   strings.Split(f.etcdHosts, ","),
			DialTimeout: 10 * time.Second,
		})
		if err != nil {
			return nil, errors.Wrap(err, "connect to etcd")
		}
		e.leaser = dlock.NewEtcdLeaser(client, "/scs/derive")
	}
	return e, nil
}

// exitTyped maps the error taxonomy onto exit codes, so operators and scripts
// can tell "not derived yet" from "no such changeset" without parsing text.
func exitTyped(err error) error {
	if commitgraph.IsUnknownChangeset(err) {
		cmdutil.ErrorAndExitCode(codeUnknownChangeset, "%v", err)
	}
	if identity.IsNotDerived(err) {
		cmdutil.ErrorAndExitCode(codeNotDerived, "%v", err)
	}
	return err
}

func deriveCmd(flags *rootFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "derive <changeset> <kind>",
		Short: "Derive a kind for a changeset, and everything it depends on.",
		Long: `Derive a kind for a changeset.

Ancestors and dependency kinds are derived first as needed.  With --force the
named changeset is recomputed and its mapping replaced; already-derived
ancestors and dependencies are NOT recomputed.`,
		Run: cmdutil.RunFixedArgs(2, func(args []string) error {
			csid, err := commitgraph.ParseID(args[0])
			if err != nil {
				return err
			}
			e, err := flags.open()
			if err != nil {
				return err
			}
			ctx := pctx.Background("scsctl")
			s := scheduler.New(e.graph, e.maps, kinds.Registry(), e.leaser, e.config)
			v, err := s.Derive(ctx, csid, args[1], force)
			if err != nil {
				return exitTyped(err)
			}
			fmt.Printf("%s %s %s\n", args[0], args[1], v.ExternalID)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "recompute the target even if already derived, replacing its mapping")
	return cmd
}

func convertCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <changeset> <to-kind>",
		Short: "Convert a changeset id into a kind's external id.",
		Long: `Convert a changeset id into a kind's external id.

Conversion never derives anything: if the kind has not been derived for the
changeset the command fails with exit code 3.`,
		Run: cmdutil.RunFixedArgs(2, func(args []string) error {
			csid, err := commitgraph.ParseID(args[0])
			if err != nil {
				return err
			}
			e, err := flags.open()
			if err != nil {
				return err
			}
			r, err := identity.New(e.graph, e.maps)
			if err != nil {
				return err
			}
			ext, err := r.Convert(pctx.Background("scsctl"), csid, args[1])
			if err != nil {
				return exitTyped(err)
			}
			fmt.Println(ext)
			return nil
		}),
	}
}

func inspectCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <changeset>",
		Short: "Show a changeset and the kinds derived for it.",
		Run: cmdutil.RunFixedArgs(1, func(args []string) error {
			csid, err := commitgraph.ParseID(args[0])
			if err != nil {
				return err
			}
			e, err := flags.open()
			if err != nil {
				return err
			}
			ctx := pctx.Background("scsctl")
			cs, err := e.graph.Get(ctx, csid)
			if err != nil {
				return exitTyped(err)
			}
			fmt.Printf("changeset: %s\n", cs.ID.HexString())
			fmt.Printf("author:    %s\n", cs.Author)
			fmt.Printf("committer: %s\n", cs.Committer)
			fmt.Printf("date:      %s\n", cs.Timestamp.Format(time.RFC3339))
			for _, parent := range cs.Parents {
				fmt.Printf("parent:    %s\n", parent.HexString())
			}
			fmt.Printf("message:   %s\n", cs.Message)
			derivedKinds, err := e.maps.ListKinds(ctx, csid)
			if err != nil {
				return err
			}
			for _, kind := range derivedKinds {
				ext, err := e.maps.LookupExternal(ctx, csid, kind)
				if err != nil {
					return err
				}
				fmt.Printf("derived:   %s = %s\n", kind, ext)
			}
			return nil
		}),
	}
}

func ingestCmd(flags *rootFlags) *cobra.Command {
	var nativeID string
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a changeset from its canonical JSON serialization.",
		Long: `Ingest a changeset from its canonical JSON serialization.

The changeset's id is the hash of the file content.  Every parent must
already be in the repository.  Prints the new changeset id.

With --native-id, the source system's id for this changeset is recorded as a
source_native mapping, so "scsctl convert <changeset> source_native" works
without any derivation.`,
		Run: cmdutil.RunFixedArgs(1, func(args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return errors.EnsureStack(err)
			}
			cs, err := commitgraph.ParseChangeset(content)
			if err != nil {
				return err
			}
			e, err := flags.open()
			if err != nil {
				return err
			}
			ctx := pctx.Background("scsctl")
			for _, parent := range cs.Parents {
				if _, err := e.graph.Get(ctx, parent); err != nil {
					return exitTyped(err)
				}
			}
			if err := commitgraph.WriteChangeset(ctx, e.store, cs); err != nil {
				return err
			}
			if nativeID != "" {
				// Re-ingesting the same changeset is idempotent, so
				// overwrite rather than conflict.
				err := e.maps.Put(ctx, mapstore.Derivation{
					ChangesetID: cs.ID,
					Kind:        kinds.SourceNative,
					ExternalID:  nativeID,
				}, true)
				if err != nil {
					return err
				}
			}
			fmt.Println(cs.ID.HexString())
			return nil
		}),
	}
	cmd.Flags().StringVar(&nativeID, "native-id", "", "the source system's id for this changeset, recorded as a source_native mapping")
	return cmd
}

func main() {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "scsctl",
		Short: "Operate on a repository's derived data.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmdutil.PrintErrorStacks = flags.verbose
		},
	}
	root.PersistentFlags().StringVar(&flags.repo, "repo", "", "path to the repository's kv directory")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a derivation config YAML file")
	root.PersistentFlags().StringVar(&flags.etcdHosts, "etcd", "", "comma-separated etcd endpoints for distributed derivation leases")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "print error stacks")
	root.AddCommand(deriveCmd(flags), convertCmd(flags), inspectCmd(flags), ingestCmd(flags))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
