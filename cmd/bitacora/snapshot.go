package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SlimBron57/bitacora-sub000/internal/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Create, compare and prune snapshots of the record set",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Freeze the current records into a compressed snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, _ := cmd.Flags().GetString("description")
		tags, _ := cmd.Flags().GetString("tags")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.snapshots.Create(args[0], desc, a.records.All(),
			snapshot.WithTags(splitTags(tags)...),
			snapshot.WithCreatedBy("cli"),
		)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		list := a.snapshots.List()
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No snapshots.")
			return nil
		}
		for _, s := range list {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-20s  %4d records  %7d bytes  %s ratio=%.2f\n",
				colorize(colorCyan, s.ID),
				s.CreatedAt.Format(time.RFC3339),
				s.Name,
				len(s.RecordIDs),
				s.CompressedSize,
				s.Compression,
				s.CompressionRatio,
			)
		}
		return nil
	},
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show snapshot metadata as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		withRecords, _ := cmd.Flags().GetBool("records")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		s, ok := a.snapshots.Get(args[0])
		if !ok {
			return fmt.Errorf("snapshot %s not found", args[0])
		}
		if !withRecords {
			return printJSON(cmd.OutOrStdout(), s)
		}
		recs, err := a.snapshots.Records(s.ID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), struct {
			snapshot.Snapshot
			Records []snapshot.Frozen `json:"records"`
		}{s, recs})
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a snapshot and its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if _, ok := a.snapshots.Get(args[0]); !ok {
			printWarning("Snapshot %s does not exist", args[0])
			return nil
		}
		if err := a.snapshots.Delete(args[0]); err != nil {
			return err
		}
		printSuccess("Deleted snapshot %s", args[0])
		return nil
	},
}

var snapshotCompareCmd = &cobra.Command{
	Use:   "compare <old-id> <new-id>",
	Short: "Show records added, deleted and unchanged between two snapshots",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.snapshots.Compare(args[0], args[1])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), c)
		}
		out := cmd.OutOrStdout()
		printStatus(out, "Similarity", "%.3f", c.Similarity)
		printStatus(out, "Added", "%d %s", len(c.Added), shortList(c.Added))
		printStatus(out, "Deleted", "%d %s", len(c.Deleted), shortList(c.Deleted))
		printStatus(out, "Unchanged", "%d", len(c.Unchanged))
		return nil
	},
}

var snapshotWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Snapshot the record set periodically until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		interval := a.cfg.Snapshot.Interval()
		if cmd.Flags().Changed("interval") {
			interval, _ = cmd.Flags().GetDuration("interval")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		auto := snapshot.NewAutoSnapshotter(a.snapshots, a.records, interval)
		printStep("Taking a snapshot every %s (Ctrl-C to stop)", interval)
		auto.Run(ctx)
		fmt.Fprintln(cmd.ErrOrStderr(), "shutting down...")
		return nil
	},
}

func shortList(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	short := make([]string, 0, 5)
	for i, id := range ids {
		if i == 5 {
			short = append(short, "...")
			break
		}
		short = append(short, shortID(id))
	}
	return "[" + strings.Join(short, " ") + "]"
}

func init() {
	snapshotCreateCmd.Flags().String("description", "", "snapshot description")
	snapshotCreateCmd.Flags().String("tags", "", "comma-separated tags")
	snapshotShowCmd.Flags().Bool("records", false, "include the frozen record states")
	snapshotCompareCmd.Flags().Bool("json", false, "print the comparison as JSON")
	snapshotWatchCmd.Flags().Duration("interval", time.Hour, "interval between snapshots (default from config)")

	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)
	snapshotCmd.AddCommand(snapshotCompareCmd)
	snapshotCmd.AddCommand(snapshotWatchCmd)
}
