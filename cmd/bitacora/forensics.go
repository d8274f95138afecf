package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/SlimBron57/bitacora-sub000/internal/forensics"
	"github.com/SlimBron57/bitacora-sub000/internal/record"
)

var forensicsCmd = &cobra.Command{
	Use:   "forensics",
	Short: "Inspect the timeline and mine patterns",
}

var forensicsTimelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show timeline events, optionally within a time range",
	RunE: func(cmd *cobra.Command, args []string) error {
		sinceStr, _ := cmd.Flags().GetString("since")
		untilStr, _ := cmd.Flags().GetString("until")

		var since, until time.Time
		var err error
		if sinceStr != "" {
			if since, err = time.Parse(time.RFC3339, sinceStr); err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}
		}
		if untilStr != "" {
			if until, err = time.Parse(time.RFC3339, untilStr); err != nil {
				return fmt.Errorf("parsing --until: %w", err)
			}
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var events []forensics.Event
		if sinceStr == "" && untilStr == "" {
			events = a.forensics.Timeline()
		} else {
			if untilStr == "" {
				until = time.Now().UTC()
			}
			events = a.forensics.ReconstructTimeline(since, until)
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events.")
			return nil
		}
		for _, ev := range events {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-16s %s%s\n",
				ev.At.Format(time.RFC3339Nano),
				colorize(colorBold, string(ev.Kind)),
				shortID(ev.RecordID),
				formatMeta(ev.Metadata),
			)
		}
		return nil
	},
}

func formatMeta(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	return fmt.Sprintf(" %v", m)
}

var forensicsDiffCmd = &cobra.Command{
	Use:   "diff <old-id> [new-id]",
	Short: "Compare two records, or one record against its state in a snapshot",
	Long: `Compare two records, or one record against its state in a snapshot.

Examples:
  bitacora forensics diff 3f2a... 9c1b...
  bitacora forensics diff 3f2a... --from <snapshot-id>`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		if from == "" && len(args) != 2 {
			return fmt.Errorf("two record ids are required unless --from is set")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var before, after record.Record
		if from != "" {
			old, err := a.recordsFor(from)
			if err != nil {
				return err
			}
			found := false
			for _, r := range old {
				if r.ID == args[0] {
					before, found = r, true
					break
				}
			}
			if !found {
				return fmt.Errorf("record %s is not in snapshot %s", args[0], from)
			}
			target := args[0]
			if len(args) == 2 {
				target = args[1]
			}
			cur, err := a.records.Lookup([]string{target})
			if err != nil {
				return err
			}
			after = cur[0]
		} else {
			pair, err := a.records.Lookup(args)
			if err != nil {
				return err
			}
			before, after = pair[0], pair[1]
		}

		d := a.forensics.Diff(before, after)
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return printJSON(cmd.OutOrStdout(), d)
		}
		out := cmd.OutOrStdout()
		for _, ax := range d.Axes {
			fmt.Fprintf(out, "  %-13s %.3f -> %.3f  (%+.3f)\n", ax.Axis, ax.Old, ax.New, ax.Delta)
		}
		printStatus(out, "Coordinate delta", "%.4f %.4f %.4f", d.CoordDelta[0], d.CoordDelta[1], d.CoordDelta[2])
		printStatus(out, "Spatial distance", "%.4f", d.SpatialDistance)
		printStatus(out, "Feature distance", "%.4f", d.FeatureDistance)
		printStatus(out, "Distance", "%.4f", d.Distance)
		return nil
	},
}

func printPatterns(w io.Writer, ps []forensics.Pattern) {
	if len(ps) == 0 {
		fmt.Fprintln(w, "No patterns found.")
		return
	}
	for _, p := range ps {
		fmt.Fprintf(w, "%s  %-17s conf=%.2f  %s\n",
			colorize(colorCyan, shortID(p.ID)), p.Kind, p.Confidence, p.Description)
		for _, m := range p.Members {
			fmt.Fprintf(w, "    %s\n", m)
		}
	}
}

var forensicsClustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Group records that lie within the cluster threshold of each other",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, _ := cmd.Flags().GetString("snapshot")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.recordsFor(snap)
		if err != nil {
			return err
		}
		printPatterns(cmd.OutOrStdout(), a.forensics.DetectSpatialClustering(recs))
		return nil
	},
}

var forensicsSequencesCmd = &cobra.Command{
	Use:   "sequences",
	Short: "Find runs of timeline events closer than the temporal window",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		printPatterns(cmd.OutOrStdout(), a.forensics.DetectTemporalSequences())
		return nil
	},
}

var forensicsDriftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Find records that keep moving in one direction or back and forth",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		printPatterns(cmd.OutOrStdout(), a.forensics.DetectDrift())
		return nil
	},
}

var forensicsAnomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Find records far from every other record",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, _ := cmd.Flags().GetString("snapshot")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.recordsFor(snap)
		if err != nil {
			return err
		}
		printPatterns(cmd.OutOrStdout(), a.forensics.DetectAnomalies(recs))
		return nil
	},
}

var forensicsPatternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List every pattern detected so far",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var ps []forensics.Pattern
		for _, p := range a.forensics.Patterns() {
			if kind == "" || string(p.Kind) == kind {
				ps = append(ps, p)
			}
		}
		printPatterns(cmd.OutOrStdout(), ps)
		return nil
	},
}

var forensicsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the timeline and the pattern log",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.forensics.TimelineStats()
		out := cmd.OutOrStdout()
		printStatus(out, "Events", "%d", st.TotalEvents)
		for _, k := range forensics.EventKinds {
			if n := st.ByKind[k]; n > 0 {
				printStatus(out, "  "+string(k), "%d", n)
			}
		}
		if st.TotalEvents > 0 {
			printStatus(out, "First", "%s", st.First.Format(time.RFC3339))
			printStatus(out, "Last", "%s", st.Last.Format(time.RFC3339))
		}
		printStatus(out, "Patterns", "%d", st.TotalPatterns)
		for k, n := range st.PatternsByKind {
			printStatus(out, "  "+string(k), "%d", n)
		}
		return nil
	},
}

func init() {
	forensicsTimelineCmd.Flags().String("since", "", "start of range (RFC 3339)")
	forensicsTimelineCmd.Flags().String("until", "", "end of range (RFC 3339, default now)")
	forensicsDiffCmd.Flags().String("from", "", "take the old state from this snapshot")
	forensicsDiffCmd.Flags().Bool("json", false, "print the diff as JSON")
	forensicsClustersCmd.Flags().String("snapshot", "", "mine a snapshot instead of the current records")
	forensicsAnomaliesCmd.Flags().String("snapshot", "", "mine a snapshot instead of the current records")
	forensicsPatternsCmd.Flags().String("kind", "", "only patterns of this kind")

	forensicsCmd.AddCommand(forensicsTimelineCmd)
	forensicsCmd.AddCommand(forensicsDiffCmd)
	forensicsCmd.AddCommand(forensicsClustersCmd)
	forensicsCmd.AddCommand(forensicsSequencesCmd)
	forensicsCmd.AddCommand(forensicsDriftCmd)
	forensicsCmd.AddCommand(forensicsAnomaliesCmd)
	forensicsCmd.AddCommand(forensicsPatternsCmd)
	forensicsCmd.AddCommand(forensicsStatsCmd)
}
