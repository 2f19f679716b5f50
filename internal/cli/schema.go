package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drewjocham/parsemodel/internal/jsonutil"
	"github.com/drewjocham/parsemodel/schema"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Publish and inspect class schemas",
	}
	cmd.AddCommand(newSchemaSyncCmd(), newSchemaStatusCmd())
	return cmd
}

func newSyncer(cmd *cobra.Command) (*schema.Syncer, []schema.Class, error) {
	ctx := cmd.Context()
	cfg, err := getConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	reg, err := getRegistry(ctx)
	if err != nil {
		return nil, nil, err
	}
	db, err := getDatabase(ctx)
	if err != nil {
		return nil, nil, err
	}

	classes, err := schema.FromRegistry(reg)
	if err != nil {
		return nil, nil, err
	}
	syncer := schema.NewSyncer(db,
		schema.WithCollection(cfg.SchemaCollection),
		schema.WithLogger(zap.L()),
	)
	return syncer, classes, nil
}

func newSchemaSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Add registered classes and their fields to the schema collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			syncer, classes, err := newSyncer(cmd)
			if err != nil {
				return err
			}

			res, err := syncer.Sync(cmd.Context(), classes)
			out := cmd.OutOrStdout()
			for _, c := range res.Created {
				fmt.Fprintf(out, "  \033[32m[+]\033[0m %s created\n", c)
			}
			for _, c := range res.Updated {
				fmt.Fprintf(out, "  \033[32m[✓]\033[0m %s updated\n", c)
			}
			for _, c := range res.Unchanged {
				fmt.Fprintf(out, "  [=] %s unchanged\n", c)
			}
			for _, c := range res.Skipped {
				fmt.Fprintf(out, "  \033[31m[!]\033[0m %s skipped\n", c)
			}
			if err != nil {
				return fmt.Errorf("schema sync: %w", err)
			}
			return nil
		},
	}
}

func newSchemaStatusCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Compare registered classes with the schema collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			syncer, classes, err := newSyncer(cmd)
			if err != nil {
				return err
			}

			status, err := syncer.Status(cmd.Context(), classes)
			if err != nil {
				return fmt.Errorf("failed to get schema status: %w", err)
			}

			out := cmd.OutOrStdout()
			switch strings.ToLower(output) {
			case "json":
				return jsonutil.WriteIndented(out, status)
			default:
				renderStatusTable(out, status)
				return nil
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table|json)")
	return cmd
}

func renderStatusTable(w io.Writer, status []schema.Status) {
	if len(status) == 0 {
		fmt.Fprintln(w, "∅ No typed classes registered.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)

	const (
		iconPending  = "  [ ]"
		iconSynced   = "  \033[32m[✓]\033[0m"
		iconConflict = "  \033[31m[!]\033[0m"
	)

	fmt.Fprintln(tw, "STATE\tCLASS\tSYNCED\tDETAILS")
	fmt.Fprintln(tw, "-----\t-----\t------\t-------")

	for _, s := range status {
		state := iconPending
		synced := "-"
		if s.SyncedAt != nil {
			synced = humanize.Time(*s.SyncedAt)
		}

		var details []string
		switch {
		case len(s.Conflicts) > 0:
			state = iconConflict
			for _, c := range s.Conflicts {
				details = append(details, c.String())
			}
		case s.UpToDate():
			state = iconSynced
		case !s.InBackend:
			details = append(details, "not in backend")
		default:
			details = append(details, "missing: "+strings.Join(s.MissingFields, ", "))
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", state, s.Class, synced, strings.Join(details, "; "))
	}

	tw.Flush()
}

func newUnlockCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Release a schema sync lock left by an interrupted run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !promptConfirmation(cmd, "⚠️  Only unlock when no other sync is running. Continue? (y/N): ") {
				zap.L().Info("Operation cancelled")
				return nil
			}

			syncer, _, err := newSyncer(cmd)
			if err != nil {
				return err
			}
			if err := syncer.ForceUnlock(cmd.Context()); err != nil {
				return fmt.Errorf("failed to release lock: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Schema lock released.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
