package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"icalevents/internal/caltime"
	"icalevents/internal/ics"
	"icalevents/internal/web"
)

type expandOptions struct {
	from           string
	to             string
	tz             string
	includeDTStart bool
	asJSON         bool
	maxPerEvent    int
	cacheDir       string
}

var expandOpts expandOptions

var expandCmd = &cobra.Command{
	Use:   "expand <file-or-url>",
	Short: "Print the occurrences of a calendar inside a time window",
	Long: `Reads an iCalendar document from a file, file:// URL or http(s) URL and prints
every occurrence between --from and --to. Without a window the range runs from
the start of the current month to the end of the month eleven months later.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExpand(cmd.Context(), cmd.OutOrStdout(), expandOpts, args[0], time.Now())
	},
}

func init() {
	f := expandCmd.Flags()
	f.StringVar(&expandOpts.from, "from", "", "window start (YYYY-MM-DD or RFC 3339)")
	f.StringVar(&expandOpts.to, "to", "", "window end, inclusive (YYYY-MM-DD or RFC 3339)")
	f.StringVar(&expandOpts.tz, "tz", "", "zone for floating times and output (default: local zone)")
	f.BoolVar(&expandOpts.includeDTStart, "include-dtstart", false, "emit DTSTART even when it does not match the RRULE")
	f.BoolVar(&expandOpts.asJSON, "json", false, "print JSON instead of a table")
	f.IntVar(&expandOpts.maxPerEvent, "max-per-event", 5000, "cap on occurrences per event")
	f.StringVar(&expandOpts.cacheDir, "cache-dir", defaultCacheDir(), "HTTP feed cache directory")
	rootCmd.AddCommand(expandCmd)
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "icalevents")
	}
	return filepath.Join(dir, "icalevents")
}

func runExpand(ctx context.Context, out io.Writer, opts expandOptions, target string, now time.Time) error {
	zones := caltime.Zones{Default: time.Local}
	if opts.tz != "" {
		loc, err := zones.Resolve(opts.tz)
		if err != nil {
			return err
		}
		zones.Default = loc
	}

	window := caltime.YearFrom(now)
	var err error
	if opts.from != "" {
		if window.Start, err = caltime.ParseBound(opts.from, zones.Location(), false); err != nil {
			return fmt.Errorf("--from: %w", err)
		}
	}
	if opts.to != "" {
		if window.End, err = caltime.ParseBound(opts.to, zones.Location(), true); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}

	feed := ics.Source{ID: filepath.Base(target), URL: target}
	loaded, err := ics.NewFetcher(opts.cacheDir).Load(ctx, feed)
	if err != nil {
		return err
	}
	sources, err := loaded.Parse(zones)
	if err != nil {
		return err
	}

	result, err := ics.ExpandAll(sources, ics.ExpandConfig{
		Range:                  window,
		IncludeDTStart:         opts.includeDTStart,
		DisplayLocation:        zones.Location(),
		MaxOccurrencesPerEvent: opts.maxPerEvent,
	})
	if err != nil {
		return err
	}

	if opts.asJSON {
		return web.EncodeJSON(out, web.NewOccurrenceDTOs(result.Occurrences))
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tSUMMARY\tUID")
	for _, o := range result.Occurrences {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Start, o.End, o.Summary, o.UID)
	}
	for _, uid := range result.TruncatedEvents {
		fmt.Fprintf(tw, "# truncated\t\t\t%s\n", uid)
	}
	return tw.Flush()
}
