// Command ankurah is the interactive client for a local Ankurah store: it
// creates and mutates entities, runs one-shot predicate queries, and
// renders results with the same terminal styling idioms as the rest of
// this codebase's tooling.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ankurah/ankurah/internal/ast"
	"github.com/ankurah/ankurah/internal/config"
	"github.com/ankurah/ankurah/internal/daemon"
	"github.com/ankurah/ankurah/internal/entity"
	"github.com/ankurah/ankurah/internal/eventbus"
	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/idgen"
	"github.com/ankurah/ankurah/internal/metrics"
	"github.com/ankurah/ankurah/internal/storage/sqlitestore"
	"github.com/ankurah/ankurah/internal/subscription"
	"github.com/ankurah/ankurah/internal/value"
	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	dataDir    string
	jsonOutput bool
)

var (
	keyStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}).Bold(true)
	idStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"})
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
)

var rootCmd = &cobra.Command{
	Use:   "ankurah",
	Short: "ankurah - query and mutate a local Ankurah entity store",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		if dataDir == "" {
			dataDir = config.GetString("data-dir")
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "path to the node's data directory (default: config data-dir)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of styled text")
	rootCmd.AddCommand(putCmd, getCmd, queryCmd)

	shutdownMetrics, err := metrics.Init(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
		os.Exit(1)
	}
	defer shutdownMetrics(context.Background())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func openStore() (*sqlitestore.Store, error) {
	return sqlitestore.New(filepath.Join(dataDir, "ankurah.sqlite3"))
}

// publishToDaemon broadcasts a local commit to a running ankurahd over its
// NATS bus, if one is up on this data directory; if not (no nats-info.json,
// connection refused), it returns an error the caller treats as a notice,
// not a failure — a local write is valid whether or not anyone is listening
// for it. ev is nil when the commit produced no operations.
func publishToDaemon(ctx context.Context, collection string, ent *entity.Entity, ev *eventdag.Event) error {
	data, err := os.ReadFile(filepath.Join(dataDir, daemon.ConnectionInfoFile))
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	var info daemon.NATSConnectionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("malformed %s: %w", daemon.ConnectionInfoFile, err)
	}

	// The daemon may still be finishing NATS startup right after it drops
	// the connection-info file, so a couple of quick retries beat a flaky
	// "not broadcast" notice on the very first put after `ankurahd serve`.
	var ext *daemon.ExternalNATSConn
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 1 * time.Second
	err = backoff.Retry(func() error {
		var connErr error
		ext, connErr = daemon.ConnectExternalNATS(info.URL, info.Token)
		return connErr
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", info.URL, err)
	}
	defer ext.Close()

	js, err := ext.Conn().JetStream()
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}

	bus := eventbus.New()
	bus.SetJetStream(js)
	broadcaster := subscription.NewBroadcaster(&eventbus.BusPeerRegistry{Bus: bus}, nil)
	if err := broadcaster.Publish(ctx, collection, ent, ev); err != nil {
		return err
	}
	metrics.RecordItemPublished(ctx)
	return nil
}

var putCmd = &cobra.Command{
	Use:   "put <collection> [id] [field=value ...]",
	Short: "Create or update an entity",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection := args[0]
		rest := args[1:]

		var id value.EntityID
		var existing *entity.Entity

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if len(rest) > 0 {
			if parsed, err := value.ParseEntityID(rest[0]); err == nil {
				id = parsed
				rest = rest[1:]
				if ent, ok, err := store.LoadState(cmd.Context(), collection, id); err != nil {
					return err
				} else if ok {
					existing = ent
				}
			}
		}
		if existing == nil {
			if id == (value.EntityID{}) {
				id = idgen.NewEntityID()
			}
			existing = entity.New(id, collection)
		}

		fields, err := parseFields(rest)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			if fields, err = promptFields(); err != nil {
				return err
			}
		}

		lww := existing.Backend(entity.BackendLWW).(*entity.LWW)
		for k, v := range fields {
			lww.Set(k, v)
		}

		commitStart := time.Now()
		ev, err := existing.Commit()
		if err != nil {
			return fmt.Errorf("ankurah: commit: %w", err)
		}
		metrics.RecordCommit(cmd.Context(), float64(time.Since(commitStart).Milliseconds()))
		if ev != nil {
			if err := store.PutEvent(cmd.Context(), collection, ev); err != nil {
				return fmt.Errorf("ankurah: persist event: %w", err)
			}
		}
		state, err := existing.ToState()
		if err != nil {
			return fmt.Errorf("ankurah: snapshot state: %w", err)
		}
		if err := store.SaveState(cmd.Context(), collection, id, state, nil); err != nil {
			return fmt.Errorf("ankurah: persist state: %w", err)
		}

		if err := publishToDaemon(cmd.Context(), collection, existing, ev); err != nil {
			fmt.Fprintln(os.Stderr, idStyle.Render(fmt.Sprintf("not broadcast: %v", err)))
		}

		if jsonOutput {
			fmt.Printf("{\"id\":%q,\"collection\":%q}\n", id.String(), collection)
		} else {
			fmt.Printf("%s %s\n", keyStyle.Render("saved"), idStyle.Render(id.String()))
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <collection> <id>",
	Short: "Fetch an entity's current properties",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, idStr := args[0], args[1]
		id, err := value.ParseEntityID(idStr)
		if err != nil {
			return fmt.Errorf("ankurah: invalid id %q: %w", idStr, err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ent, ok, err := store.LoadState(cmd.Context(), collection, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("ankurah: no such entity %s in %s", idStr, collection)
		}
		printEntity(ent)
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <collection> <predicate>",
	Short: "Scan a collection and print entities matching a predicate",
	Long: `Evaluates predicate against every entity with saved state in collection.
This is a full table scan, not an indexed query: it exists for ad hoc
inspection, not as a substitute for a live subscription.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, predicateSrc := args[0], args[1]
		predicate, err := ast.ParsePredicate(predicateSrc)
		if err != nil {
			return fmt.Errorf("ankurah: parse predicate: %w", err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ids, err := store.ListEntityIDs(cmd.Context(), collection)
		if err != nil {
			return err
		}

		matched := 0
		for _, id := range ids {
			ent, ok, err := store.LoadState(cmd.Context(), collection, id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			ok, err = ast.Evaluate(predicate, ent)
			if err != nil {
				return fmt.Errorf("ankurah: evaluate predicate against %s: %w", id, err)
			}
			if ok {
				matched++
				printEntity(ent)
			}
		}
		if matched == 0 && !jsonOutput {
			fmt.Println(idStyle.Render("no matches"))
		}
		return nil
	},
}

func printEntity(ent *entity.Entity) {
	props := ent.PropertyValues()
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if jsonOutput {
		var b strings.Builder
		b.WriteString("{")
		b.WriteString(fmt.Sprintf("\"id\":%q,\"collection\":%q", ent.ID().String(), ent.Collection()))
		for _, k := range keys {
			b.WriteString(fmt.Sprintf(",%q:%q", k, props[k].String()))
		}
		b.WriteString("}")
		fmt.Println(b.String())
		return
	}

	fmt.Printf("%s %s (%s)\n", keyStyle.Render(ent.Collection()), idStyle.Render(ent.ID().String()), idgen.ShortEntityID(ent.ID()))
	for _, k := range keys {
		fmt.Printf("  %s: %s\n", keyStyle.Render(k), props[k].String())
	}
}

// parseFields turns "key=value" CLI arguments into typed values: an int64,
// float64, or bool if the value parses as one, otherwise a string. This is
// a CLI convenience, not the query engine's type coercion.
func parseFields(args []string) (map[string]value.Value, error) {
	out := map[string]value.Value{}
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("ankurah: expected field=value, got %q", arg)
		}
		out[k] = inferValue(v)
	}
	return out, nil
}

func inferValue(s string) value.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.I64(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return value.F64(f)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return value.Bool(b)
	}
	return value.String(s)
}

// promptFields runs an interactive huh form for ad hoc property entry when
// put is invoked with no field=value arguments.
func promptFields() (map[string]value.Value, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("ankurah: no field=value arguments given and stdin is not a terminal")
	}

	var raw string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Properties").
				Description("One field=value pair per line").
				Value(&raw),
		),
	)
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("ankurah: form: %w", err)
	}

	fields := map[string]value.Value{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("ankurah: expected field=value, got %q", line)
		}
		fields[strings.TrimSpace(k)] = inferValue(strings.TrimSpace(v))
	}
	return fields, nil
}
