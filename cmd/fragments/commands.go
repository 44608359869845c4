package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	fragments "github.com/goliatone/go-fragments"
	"github.com/goliatone/go-fragments/pkg/state"
	"github.com/goliatone/go-fragments/schema"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	cfg        fragments.Config
	logger     zerolog.Logger
	schemaPath string
	jsonOutput bool
}

func newRootCommand(cfg fragments.Config, logger zerolog.Logger) *cobra.Command {
	opts := &rootOptions{cfg: cfg, logger: logger}

	root := &cobra.Command{
		Use:           "fragments",
		Short:         "Inspect fragment model schemas",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.schemaPath, "schema", "s", "fragments.yaml", "schema file path")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")

	root.AddCommand(newCheckCommand(opts))
	root.AddCommand(newDescribeCommand(opts))
	root.AddCommand(newSaveCommand(opts))
	return root
}

// loadStore parses the schema and registers it with a new store.
func (o *rootOptions) loadStore(extra ...fragments.Option) (*fragments.Store, error) {
	loader := schema.NewLoader()
	doc, err := loader.LoadFile(o.schemaPath)
	if err != nil {
		return nil, err
	}
	opts := append([]fragments.Option{fragments.WithConfig(o.cfg, nil), fragments.WithLogger(o.logger)}, extra...)
	store := fragments.NewStore(opts...)
	if err := loader.Register(store, doc); err != nil {
		return nil, err
	}
	o.logger.Debug().Str("schema", o.schemaPath).Int("models", len(doc.Models)).Msg("schema loaded")
	return store, nil
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the schema file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := opts.loadStore()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ok: %d models\n", len(store.Models()))
			return nil
		},
	}
}

func newDescribeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <model>",
		Short: "List the attribute paths of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.loadStore()
			if err != nil {
				return err
			}
			fields, err := store.Describe(args[0])
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), fields)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tKIND\tTYPE")
			for _, field := range fields {
				fmt.Fprintf(w, "%s\t%s\t%s\n", field.Path, field.Kind, field.Type)
			}
			return w.Flush()
		},
	}
}

func newSaveCommand(opts *rootOptions) *cobra.Command {
	var (
		id     string
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "save <model> <payload.json>",
		Short: "Create a record from a JSON payload and persist it to SQLite",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sqliteCfg := opts.cfg.SQLite
			if dbPath != "" {
				sqliteCfg.Path = dbPath
			}
			persistence, err := state.OpenSQLiteStore[map[string]any](ctx, sqliteCfg)
			if err != nil {
				return err
			}
			defer persistence.Close()

			extra := []fragments.Option{fragments.WithPersistence(persistence)}
			if id != "" {
				extra = append(extra, fragments.WithIDGenerator(func() string { return id }))
			}
			store, err := opts.loadStore(extra...)
			if err != nil {
				return err
			}

			payload, err := readPayload(args[1])
			if err != nil {
				return err
			}
			record, err := store.CreateRecord(args[0], payload)
			if err != nil {
				return err
			}
			if err := store.Save(ctx, record); err != nil {
				return err
			}
			snapshot, err := record.Snapshot()
			if err != nil {
				return err
			}
			opts.logger.Info().Str("model", record.ModelName()).Str("id", record.ID()).Str("etag", record.Meta().ETag).Msg("record saved")
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"id":       record.ID(),
				"model":    record.ModelName(),
				"snapshot": snapshot,
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "record id (generated when empty)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides FRAGMENTS_SQLITE_PATH)")
	return cmd
}

func readPayload(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	return payload, nil
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
