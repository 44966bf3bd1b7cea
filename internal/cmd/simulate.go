package cmd

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/stockroom/internal/errors"
	"github.com/Iron-Ham/stockroom/internal/inventory"
	"github.com/Iron-Ham/stockroom/internal/metrics"
	"github.com/Iron-Ham/stockroom/internal/scenario"
	"github.com/Iron-Ham/stockroom/internal/styles"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a store simulation",
	Long: `Run a store simulation: customers place orders, then shipments arrive
one after another and each customer is told when their item comes in.

Without --scenario the built-in scenario is used: Jake waits for a widget
while three shipments arrive, two of them with widgets. Jake is notified
once.

Scenario file format:
  customers:
    - name: Jake
      wants: [widget]
  shipments:
    - items: [hammer, baseball, cheese]
    - id: second
      items: [rope, cheese, widget]`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

var simulateScenario string

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVarP(&simulateScenario, "scenario", "s", "", "scenario file (default: built-in widget scenario)")
	simulateCmd.Flags().Bool("metrics", false, "print dispatch metrics after the run")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	sc := scenario.Default()
	if simulateScenario != "" {
		if sc, err = scenario.Load(simulateScenario); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	collector := metrics.New()

	title := "stockroom simulation"
	if sc.Name != "" {
		title += ": " + sc.Name
	}
	fmt.Fprintln(out, styles.Title.Render(title))
	for _, c := range sc.Customers {
		fmt.Fprintf(out, "%s waits for %s\n", c.Name, kindList(c.Wants))
	}
	fmt.Fprintln(out)

	report, err := scenario.Run(cmd.Context(), sc,
		scenario.WithPolicy(cfg.Bus.Policy()),
		scenario.WithLogger(logger),
		scenario.WithRecorder(collector),
		scenario.OnArrival(func(a inventory.Arrival) {
			fmt.Fprintf(out, "  %s %s, your %s arrived!\n",
				styles.Arrival.Render("Hey!"), a.Customer, a.Item.Kind)
		}),
		scenario.OnShipment(func(r scenario.ShipmentResult) {
			printShipment(out, r.Shipment, r.Err)
		}),
	)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	printSummary(out, report)

	if cfg.Simulate.ShowMetrics {
		stats, err := collector.Snapshot()
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, metricsTable(stats))
	}

	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d shipments failed", n, len(report.Shipments))
	}
	return nil
}

func printShipment(w io.Writer, s inventory.Shipment, err error) {
	badges := make([]string, len(s.Items))
	for i, it := range s.Items {
		badges[i] = styles.Badge.Render(it.Kind.String())
	}
	fmt.Fprintf(w, "%s %s\n", styles.Muted.Render("received "+shortID(s.ID)), strings.Join(badges, " "))
	if err != nil {
		fmt.Fprintf(w, "  %s %s\n", styles.Error.Render("failed:"), err)
		if errors.GetSeverity(err) >= errors.SeverityCritical {
			fmt.Fprintf(w, "  %s\n", styles.Warning.Render("a listener panicked; see the log for the stack"))
		}
	}
}

func printSummary(w io.Writer, r *scenario.Report) {
	fmt.Fprintf(w, "%d shipments, %d notifications\n", len(r.Shipments), len(r.Arrivals))

	if len(r.Waiting) == 0 {
		fmt.Fprintln(w, styles.Secondary.Render("every order was fulfilled"))
	} else {
		fmt.Fprintln(w, styles.Warning.Render("still waiting:"))
		for _, o := range r.Waiting {
			fmt.Fprintf(w, "  %s for %s\n", o.Customer, o.Kind)
		}
	}

	kinds := make([]inventory.Kind, 0, len(r.Stock))
	for k := range r.Stock {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, r.Stock[k])
	}
	fmt.Fprintf(w, "stock: %s\n", strings.Join(parts, " "))
}

func metricsTable(stats []metrics.TopicStats) string {
	rows := make([][]string, len(stats))
	for i, s := range stats {
		rows[i] = []string{
			s.Topic,
			strconv.FormatUint(s.Passes, 10),
			strconv.FormatUint(s.Invocations, 10),
			strconv.FormatUint(s.Failures, 10),
			strconv.FormatUint(s.Unrouted, 10),
		}
	}
	return styles.Table([]string{"TOPIC", "PASSES", "LISTENERS", "FAILURES", "UNROUTED"}, rows)
}

func kindList(kinds []inventory.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}

// shortID trims generated UUIDs for display; named ids are shown in full.
func shortID(id string) string {
	if len(id) == 36 && strings.Count(id, "-") == 4 {
		return id[:8]
	}
	return id
}
