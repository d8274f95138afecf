package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/SlimBron57/bitacora-sub000/internal/config"
	"github.com/SlimBron57/bitacora-sub000/internal/record"
	"github.com/SlimBron57/bitacora-sub000/internal/space"
)

// --- record ---

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Insert, inspect and update records",
}

var recordInsertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Insert a record positioned by its feature vector",
	Long: `Insert a record positioned by its feature vector.

The vector has one value in [0,1] per axis, in this order:
  ` + strings.Join(space.AxisNames(), ", ") + `

Examples:
  bitacora record insert --vector 0.9,0.9,0,0,0,0,0 --payload "debugging session" --meta source=cli
  bitacora record insert --vector 0.2,0.4,0.6,0.1,0,0,0 --payload-file ./notes.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		vecStr, _ := cmd.Flags().GetString("vector")
		payload, _ := cmd.Flags().GetString("payload")
		payloadFile, _ := cmd.Flags().GetString("payload-file")
		metaStr, _ := cmd.Flags().GetString("meta")

		if vecStr == "" {
			return fmt.Errorf("--vector is required")
		}
		if payload != "" && payloadFile != "" {
			return fmt.Errorf("--payload and --payload-file are mutually exclusive")
		}
		v, err := parseVector(vecStr)
		if err != nil {
			return err
		}
		meta, err := parseMeta(metaStr)
		if err != nil {
			return err
		}
		data := []byte(payload)
		if payloadFile != "" {
			data, err = os.ReadFile(payloadFile)
			if err != nil {
				return fmt.Errorf("reading payload file: %w", err)
			}
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.records.Insert(v, data, meta)
		if err != nil {
			return err
		}
		a.autoSnapshot(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var recordGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("payload")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rec, ok := a.records.Get(args[0])
		if !ok {
			return fmt.Errorf("record %s not found", args[0])
		}
		if raw {
			_, err := cmd.OutOrStdout().Write(rec.Payload)
			return err
		}
		return printJSON(cmd.OutOrStdout(), struct {
			record.Record
			PayloadSize int `json:"payload_size"`
		}{rec, len(rec.Payload)})
	},
}

var recordListCmd = &cobra.Command{
	Use:   "list",
	Short: "List records in insertion order",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		recs := a.records.All()
		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No records.")
			return nil
		}
		for _, r := range recs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  score=%.3f\n",
				colorize(colorCyan, shortID(r.ID)),
				r.CreatedAt.Format(time.RFC3339),
				r.Coords,
				r.Usage.Score,
			)
		}
		return nil
	},
}

var recordUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Replace a record's feature vector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vecStr, _ := cmd.Flags().GetString("vector")
		if vecStr == "" {
			return fmt.Errorf("--vector is required")
		}
		v, err := parseVector(vecStr)
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.records.UpdateFeatureVector(args[0], v); err != nil {
			return err
		}
		a.autoSnapshot(cmd.Context())
		rec, _ := a.records.Get(args[0])
		printSuccess("Record %s moved to %s", shortID(args[0]), rec.Coords)
		return nil
	},
}

var recordDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a record and its payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.records.Delete(args[0]); err != nil {
			return err
		}
		a.autoSnapshot(cmd.Context())
		printSuccess("Deleted record %s", shortID(args[0]))
		return nil
	},
}

var recordUseCmd = &cobra.Command{
	Use:   "use <id>",
	Short: "Report one use of a record and update its effectiveness",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		completeness, _ := cmd.Flags().GetFloat64("completeness")
		validated, _ := cmd.Flags().GetBool("validated")
		iterations, _ := cmd.Flags().GetInt("iterations")
		feedback, _ := cmd.Flags().GetInt("feedback")
		if feedback < -1 || feedback > 1 {
			return fmt.Errorf("--feedback must be -1, 0 or 1")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		eff, err := a.records.RecordUsage(args[0], record.Usage{
			Completeness:     completeness,
			ValidationPassed: validated,
			Iterations:       iterations,
			Feedback:         feedback,
		})
		if err != nil {
			return err
		}
		a.autoSnapshot(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "score=%.3f uses=%d\n", eff.Score, eff.UsageCount)
		return nil
	},
}

var recordLinkCmd = &cobra.Command{
	Use:   "link <id> <target-id>",
	Short: "Record that one record refers to another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.records.Link(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Linked %s -> %s", shortID(args[0]), shortID(args[1]))
		return nil
	},
}

var recordTopCmd = &cobra.Command{
	Use:   "top",
	Short: "List the most effective records",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		for i, r := range a.records.TopEffective(limit) {
			fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s  score=%.3f  uses=%d\n",
				i+1, colorize(colorCyan, shortID(r.ID)), r.Usage.Score, r.Usage.UsageCount)
		}
		return nil
	},
}

func init() {
	recordInsertCmd.Flags().String("vector", "", "comma-separated feature vector")
	recordInsertCmd.Flags().String("payload", "", "payload text")
	recordInsertCmd.Flags().String("payload-file", "", "read the payload from a file")
	recordInsertCmd.Flags().String("meta", "", "comma-separated key=value metadata")
	recordGetCmd.Flags().Bool("payload", false, "write the raw payload instead of JSON")
	recordUpdateCmd.Flags().String("vector", "", "comma-separated feature vector")
	recordUseCmd.Flags().Float64("completeness", 1, "completeness of the outcome in [0,1]")
	recordUseCmd.Flags().Bool("validated", false, "the outcome passed validation")
	recordUseCmd.Flags().Int("iterations", 0, "iterations needed")
	recordUseCmd.Flags().Int("feedback", 0, "user feedback: -1, 0 or 1")
	recordTopCmd.Flags().Int("limit", 10, "number of records")

	recordCmd.AddCommand(recordInsertCmd)
	recordCmd.AddCommand(recordGetCmd)
	recordCmd.AddCommand(recordListCmd)
	recordCmd.AddCommand(recordUpdateCmd)
	recordCmd.AddCommand(recordDeleteCmd)
	recordCmd.AddCommand(recordUseCmd)
	recordCmd.AddCommand(recordTopCmd)
	recordCmd.AddCommand(recordLinkCmd)
}

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query records by position or similarity",
}

var queryRadiusCmd = &cobra.Command{
	Use:   "radius",
	Short: "Records within a radius of a point, nearest first",
	Long: `Records within a radius of a point, nearest first.

The center is given in the configured shape: r,theta,phi for spherical or
x,y,z for cubic. --vector positions the center from a feature vector
instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		centerStr, _ := cmd.Flags().GetString("center")
		vecStr, _ := cmd.Flags().GetString("vector")
		radius, _ := cmd.Flags().GetFloat64("radius")
		if (centerStr == "") == (vecStr == "") {
			return fmt.Errorf("exactly one of --center or --vector is required")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sp := a.records.Space()
		var center space.Coordinates
		if centerStr != "" {
			vals, err := parseFloats(centerStr)
			if err != nil {
				return fmt.Errorf("parsing --center: %w", err)
			}
			if len(vals) != 3 {
				return fmt.Errorf("--center needs 3 components, got %d", len(vals))
			}
			center, err = space.NewCoordinates(sp.Shape(), vals[0], vals[1], vals[2])
			if err != nil {
				return err
			}
		} else {
			v, err := parseVector(vecStr)
			if err != nil {
				return err
			}
			center, err = sp.ToCoordinates(v)
			if err != nil {
				return err
			}
		}

		hits, err := a.records.QueryRadius(center, radius)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No records in range.")
			return nil
		}
		for _, h := range hits {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  distance=%.4f  %s\n",
				colorize(colorCyan, h.Record.ID), h.Distance, h.Record.Coords)
		}
		return nil
	},
}

var querySimilarCmd = &cobra.Command{
	Use:   "similar",
	Short: "Records ranked by cosine similarity to a feature vector",
	RunE: func(cmd *cobra.Command, args []string) error {
		vecStr, _ := cmd.Flags().GetString("vector")
		if vecStr == "" {
			return fmt.Errorf("--vector is required")
		}
		v, err := parseVector(vecStr)
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		minScore := a.cfg.Record.SimilarityMinScore
		if cmd.Flags().Changed("min") {
			minScore, _ = cmd.Flags().GetFloat64("min")
		}
		hits, err := a.records.QuerySimilarity(v, minScore)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No similar records.")
			return nil
		}
		for _, h := range hits {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  score=%.4f\n", colorize(colorCyan, h.Record.ID), h.Score)
		}
		return nil
	},
}

var queryMetaCmd = &cobra.Command{
	Use:   "meta <key> [value]",
	Short: "Records whose metadata key equals value, or carries key at all",
	Long: `Records whose metadata key equals value, or carries key at all.

Examples:
  bitacora query meta category debugging
  bitacora query meta name "first session"
  bitacora query meta source`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := ""
		if len(args) == 2 {
			value = args[1]
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		recs := a.records.QueryMetadata(args[0], value)
		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No matching records.")
			return nil
		}
		for _, r := range recs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s=%s  %s\n",
				colorize(colorCyan, r.ID), args[0], r.Metadata[args[0]], r.Coords)
		}
		return nil
	},
}

func init() {
	queryRadiusCmd.Flags().String("center", "", "comma-separated center coordinates")
	queryRadiusCmd.Flags().String("vector", "", "comma-separated feature vector to use as center")
	queryRadiusCmd.Flags().Float64("radius", 0.1, "search radius")
	querySimilarCmd.Flags().String("vector", "", "comma-separated feature vector")
	querySimilarCmd.Flags().Float64("min", 0, "minimum similarity (default from config)")

	queryCmd.AddCommand(queryRadiusCmd)
	queryCmd.AddCommand(querySimilarCmd)
	queryCmd.AddCommand(queryMetaCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store, snapshot and timeline statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMetrics, _ := cmd.Flags().GetBool("metrics")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		st := a.records.Stats()
		printStatus(out, "Shape", "%s", st.Shape)
		printStatus(out, "Records", "%d", st.Records)
		printStatus(out, "Index", "%d nodes, %d leaves, depth %d, %d outside bounds",
			st.Index.Nodes, st.Index.Leaves, st.Index.MaxDepth, st.Index.Overflow)
		printStatus(out, "Snapshots", "%d (max %d)", a.snapshots.Len(), a.cfg.Snapshot.MaxSnapshots)
		if latest, ok := a.snapshots.Latest(); ok {
			printStatus(out, "Latest snapshot", "%s %q at %s", shortID(latest.ID), latest.Name, latest.CreatedAt.Format(time.RFC3339))
		}
		ts := a.forensics.TimelineStats()
		printStatus(out, "Timeline events", "%d", ts.TotalEvents)
		printStatus(out, "Patterns", "%d", ts.TotalPatterns)
		printStatus(out, "Data dir", "%s", a.cfg.Storage.DataDir)

		if withMetrics {
			families, err := a.registry.Gather()
			if err != nil {
				return fmt.Errorf("gathering metrics: %w", err)
			}
			fmt.Fprintln(out)
			for _, line := range metricLines(families) {
				fmt.Fprintln(out, line)
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().Bool("metrics", false, "also print the metrics collected by this invocation")
}

// metricLines renders counters, gauges and histogram counts one sample per
// line, sorted by name.
func metricLines(families []*dto.MetricFamily) []string {
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			if labels := m.GetLabel(); len(labels) > 0 {
				parts := make([]string, len(labels))
				for i, l := range labels {
					parts[i] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
				}
				name += "{" + strings.Join(parts, ",") + "}"
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case dto.MetricType_GAUGE:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetGauge().GetValue()))
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%g", name, h.GetSampleCount(), h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)
	return lines
}
