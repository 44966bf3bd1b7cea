package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/stockroom/internal/logging"
	"github.com/Iron-Ham/stockroom/internal/styles"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View stockroom logs",
	Long: `View and filter the stockroom log file.

Logging must be enabled (logging.enabled: true) for simulate and watch
to write a log. The log lives in logging.dir, by default
~/.config/stockroom/logs/stockroom.log.

Examples:
  # Show the last 50 entries
  stockroom logs

  # Show everything
  stockroom logs -n 0

  # Follow the log while a watch is running
  stockroom logs -f

  # Only listener failures on the widget topic
  stockroom logs --level warn --topic widget

  # Entries from the bus in the last ten minutes
  stockroom logs --component bus --since 10m

  # Search messages and attributes
  stockroom logs --grep "panicked|failed"`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsDir       string
	logsTail      int
	logsFollow    bool
	logsLevel     string
	logsSince     string
	logsComponent string
	logsTopic     string
	logsGrep      string
)

const logsPollInterval = 100 * time.Millisecond

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsDir, "dir", "", "log directory (default: logging.dir)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Filter by component (bus, inventory, store, dropwatch)")
	logsCmd.Flags().StringVar(&logsTopic, "topic", "", "Filter by event topic")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
}

// logQuery is the parsed form of the logs flags.
type logQuery struct {
	filter logging.LogFilter
	grep   *regexp.Regexp
}

func (q logQuery) keep(entries []logging.LogEntry) []logging.LogEntry {
	entries = logging.FilterLogs(entries, q.filter)
	if q.grep == nil {
		return entries
	}
	kept := entries[:0]
	for _, e := range entries {
		if q.grep.MatchString(searchText(e)) {
			kept = append(kept, e)
		}
	}
	return kept
}

func searchText(e logging.LogEntry) string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, k := range slices.Sorted(maps.Keys(e.Attrs)) {
		fmt.Fprintf(&sb, " %v", e.Attrs[k])
	}
	return sb.String()
}

func parseLogQuery(now time.Time) (logQuery, error) {
	q := logQuery{filter: logging.LogFilter{
		Component: logsComponent,
		Topic:     logsTopic,
	}}
	if logsLevel != "" {
		q.filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return q, fmt.Errorf("invalid duration format: %w", err)
		}
		q.filter.Since = now.Add(-d)
	}
	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return q, fmt.Errorf("invalid grep pattern: %w", err)
		}
		q.grep = re
	}
	return q, nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	q, err := parseLogQuery(time.Now())
	if err != nil {
		return err
	}

	dir := logsDir
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Logging.ResolveDir()
	}

	out := cmd.OutOrStdout()
	logPath := filepath.Join(dir, logging.LogFileName)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "No logs found.")
		fmt.Fprintln(out, "Logs are stored at:", logPath)
		return nil
	}

	if logsFollow {
		return followLogs(cmd.Context(), out, logPath, q)
	}

	entries, err := logging.ReadLogs(dir)
	if err != nil {
		return err
	}
	entries = q.keep(entries)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(out, formatLogEntry(e))
	}
	return nil
}

// followLogs prints entries appended to the log until ctx is done.
func followLogs(ctx context.Context, w io.Writer, logPath string, q logQuery) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(w, "Following logs... (Ctrl+C to stop)\n\n")

	ticker := time.NewTicker(logsPollInterval)
	defer ticker.Stop()

	reader := bufio.NewReader(file)
	var partial string
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			partial += line
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("error reading log file: %w", err)
		}

		line, partial = partial+line, ""
		entries, err := logging.ParseLogs(strings.NewReader(line))
		if err != nil {
			return err
		}
		for _, e := range q.keep(entries) {
			fmt.Fprintln(w, formatLogEntry(e))
		}
	}
}

// formatLogEntry renders one entry for the terminal.
func formatLogEntry(e logging.LogEntry) string {
	var sb strings.Builder

	sb.WriteString(styles.Muted.Render("[" + e.Timestamp.Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	sb.WriteString(styles.LevelStyle(e.Level).Render(fmt.Sprintf("[%-5s]", e.Level)))
	sb.WriteString(" ")
	sb.WriteString(e.Message)

	if e.Component != "" {
		sb.WriteString(" ")
		sb.WriteString(styles.Secondary.Render("component=" + e.Component))
	}
	if e.Topic != "" {
		sb.WriteString(" ")
		sb.WriteString(styles.Secondary.Render("topic=" + e.Topic))
	}
	for _, k := range slices.Sorted(maps.Keys(e.Attrs)) {
		v := styles.Truncate(fmt.Sprintf("%v", e.Attrs[k]), 120)
		sb.WriteString(" ")
		sb.WriteString(styles.Muted.Render(k + "="))
		sb.WriteString(v)
	}
	return sb.String()
}
