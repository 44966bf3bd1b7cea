package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/stockroom/internal/dropwatch"
	"github.com/Iron-Ham/stockroom/internal/errors"
	"github.com/Iron-Ham/stockroom/internal/event"
	"github.com/Iron-Ham/stockroom/internal/inventory"
	"github.com/Iron-Ham/stockroom/internal/styles"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Receive shipments from manifest files dropped into a directory",
	Long: `Watch a directory for shipment manifests. Every YAML file written into
the directory is received as a shipment; customers given with --want are
told when their item arrives. Stop with Ctrl+C.

Manifest format:
  id: monday        # optional
  items: [hammer, rope, widget]

Examples:
  # Receive everything dropped into ./drop
  stockroom watch ./drop

  # Jake waits for a widget, Ann for two ropes
  stockroom watch ./drop --want jake=widget --want ann=rope --want ann=rope`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var watchWants []string

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringArrayVar(&watchWants, "want", nil, "customer order as name=item (repeatable)")
	watchCmd.Flags().Int("debounce-ms", 0, "quiet period before a changed file is read (overrides watch.debounce_ms)")
	watchCmd.Flags().Bool("scan-existing", true, "receive manifests already in the directory (overrides watch.scan_existing)")
}

// order is a parsed --want flag.
type order struct {
	customer string
	kind     inventory.Kind
}

func parseWants(wants []string) ([]order, error) {
	orders := make([]order, 0, len(wants))
	for _, w := range wants {
		name, item, ok := strings.Cut(w, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.NewValidationError("expected name=item").WithField("want").WithValue(w)
		}
		kind, err := inventory.ParseKind(item)
		if err != nil {
			return nil, fmt.Errorf("--want %s: %w", w, err)
		}
		orders = append(orders, order{customer: name, kind: kind})
	}
	return orders, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	orders, err := parseWants(watchWants)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	// Results and arrivals are printed from the watcher goroutine.
	out := &syncWriter{w: cmd.OutOrStdout()}

	items := event.NewBus[inventory.Kind, inventory.Item](
		event.WithFailurePolicy(cfg.Bus.Policy()),
		event.WithLogger(logger))
	manager := inventory.NewManager(items, inventory.WithManagerLogger(logger))
	store := inventory.NewStore(items, manager, logger)

	customers := make(map[string]*inventory.Customer)
	for _, o := range orders {
		c, ok := customers[o.customer]
		if !ok {
			c = inventory.NewCustomer(o.customer, func(a inventory.Arrival) {
				fmt.Fprintf(out, "  %s %s, your %s arrived!\n",
					styles.Arrival.Render("Hey!"), a.Customer, a.Item.Kind)
			})
			customers[o.customer] = c
		}
		store.NotifyWhenArrives(c, o.kind)
	}

	w, err := dropwatch.New(args[0], store.ReceiveInventory,
		dropwatch.WithDebounce(cfg.Watch.Debounce()),
		dropwatch.WithExtensions(cfg.Watch.Extensions...),
		dropwatch.WithLogger(logger))
	if err != nil {
		return err
	}
	w.SetResultCallback(func(r dropwatch.Result) {
		printDrop(out, r)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Watch.ScanExisting {
		if err := w.Scan(ctx); err != nil {
			_ = w.Close()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	fmt.Fprintln(out, styles.Title.Render("watching "+args[0]))
	fmt.Fprintln(out, styles.Subtitle.Render("drop manifest files here; Ctrl+C to stop"))

	if err := w.Run(ctx); err != nil {
		return err
	}

	if waiting := store.Waiting(); len(waiting) > 0 {
		fmt.Fprintln(out, styles.Warning.Render("still waiting:"))
		for _, o := range waiting {
			fmt.Fprintf(out, "  %s for %s\n", o.Customer, o.Kind)
		}
	}
	return nil
}

func printDrop(w io.Writer, r dropwatch.Result) {
	name := r.Path
	if r.Shipment.Source != "" {
		name = r.Shipment.Source
	}
	if r.Err != nil && len(r.Shipment.Items) == 0 {
		fmt.Fprintf(w, "%s %s: %v\n", styles.Error.Render("rejected"), name, r.Err)
		return
	}
	printShipment(w, r.Shipment, r.Err)
}

// syncWriter serializes writes from the watcher goroutine and the command.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
