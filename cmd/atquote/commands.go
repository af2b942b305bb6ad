package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/pflag"

	"github.com/activetick-http/activetick-go/internal/ctxtime"
	"github.com/activetick-http/activetick-go/marketdata"
	"github.com/activetick-http/activetick-go/marketdata/fields"
	"github.com/activetick-http/activetick-go/marketdata/table"
)

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

// instantLayouts are tried in order after RFC 3339. They are read in the
// proxy's time zone.
var instantLayouts = []string{
	marketdata.RequestTimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseInstant(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

func writeTable(w io.Writer, t *table.Table) error {
	b, err := t.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

func runQuote(ctx context.Context, e *env, args []string) error {
	if len(args) < 2 {
		return errors.New("quote: want SYMBOL[,SYMBOL...] FIELD...")
	}
	t, err := e.client.GetQuotes(ctx, strings.Split(args[0], ","), args[1:]...)
	if err != nil {
		return err
	}
	return writeTable(e.out, t)
}

func runBars(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("bars")
	history := fs.String("history", "D", "history type: I, D or W")
	minutes := fs.Int("minutes", 1, "intraday bar size in minutes")
	from := fs.String("from", "", "inclusive start, defaults to the first of the month")
	to := fs.String("to", "", "inclusive end, defaults to now")
	window := fs.Int("ma", 0, "print the moving average of close over this many bars")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("bars: want exactly one SYMBOL")
	}

	kind, err := marketdata.ParseHistoryKind(*history)
	if err != nil {
		return err
	}
	req := marketdata.BarRequest{History: kind, IntradayMinutes: *minutes}
	if req.Start, err = parseInstant(*from, e.loc); err != nil {
		return err
	}
	if req.End, err = parseInstant(*to, e.loc); err != nil {
		return err
	}

	t, err := e.client.GetBars(ctx, fs.Arg(0), req)
	if err != nil {
		return err
	}
	if *window <= 0 {
		return writeTable(e.out, t)
	}

	avg, err := table.MovingAverage(t, "close", *window)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Time\tClose\tMA")
	for i := range t.Rows {
		c, _ := t.Value(i, "close")
		fmt.Fprintf(tw, "%s\t%s\t%.4f\n", t.Index(i), c, avg[i])
	}
	return tw.Flush()
}

func runTicks(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("ticks")
	trades := fs.Bool("trades", false, "include trades")
	quotes := fs.Bool("quotes", false, "include quotes")
	from := fs.String("from", "", "inclusive start, defaults to 15 minutes ago")
	to := fs.String("to", "", "inclusive end, defaults to now")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("ticks: want exactly one SYMBOL")
	}

	req := marketdata.TickRequest{Trades: *trades, Quotes: *quotes}
	if !req.Trades && !req.Quotes {
		req.Trades, req.Quotes = true, true
	}
	var err error
	if req.Start, err = parseInstant(*from, e.loc); err != nil {
		return err
	}
	if req.End, err = parseInstant(*to, e.loc); err != nil {
		return err
	}

	t, err := e.client.GetTicks(ctx, fs.Arg(0), req)
	if err != nil {
		return err
	}
	return writeTable(e.out, t)
}

func runStream(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("stream")
	reconnect := fs.Duration("reconnect", 0, "reopen the stream after this pause when it ends, 0 to exit")
	count := fs.Int("count", 0, "exit after this many lines, 0 for no limit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("stream: want at least one SYMBOL")
	}

	remaining := *count
	for {
		s, err := e.client.StreamQuotes(ctx, fs.Args()...)
		if err == nil {
			err = printStream(e.out, s, &remaining)
		}
		if ctx.Err() != nil || (*count > 0 && remaining == 0) {
			return nil
		}
		if *reconnect <= 0 {
			return err
		}
		e.log.Warn().Err(err).Dur("pause", *reconnect).Msg("stream ended, reconnecting")
		if ctxtime.Sleep(ctx, *reconnect) != nil {
			return nil
		}
	}
}

// printStream writes one JSON object per line until the stream ends or
// remaining, when positive, drops to zero.
func printStream(w io.Writer, s *marketdata.Stream, remaining *int) error {
	defer s.Close()
	for s.Next() {
		b, err := s.Table().MarshalRowJSON(0)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n", b); err != nil {
			return err
		}
		if *remaining > 0 {
			*remaining--
			if *remaining == 0 {
				return nil
			}
		}
	}
	return s.Err()
}

func runChain(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("chain: want exactly one SYMBOL")
	}
	contracts, err := e.client.GetOptionContracts(ctx, args[0])
	if err != nil {
		return err
	}
	sort.Slice(contracts, func(i, j int) bool {
		a, b := contracts[i], contracts[j]
		if a.Expiry != b.Expiry {
			return a.Expiry.Before(b.Expiry)
		}
		if !a.Strike.Equal(b.Strike) {
			return a.Strike.LessThan(b.Strike)
		}
		return a.Type < b.Type
	})

	tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Symbol\tUnderlying\tExpiry\tType\tStrike")
	for _, c := range contracts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Symbol, c.Underlying, c.Expiry, c.Type, c.Strike)
	}
	return tw.Flush()
}

func runADTV(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("adtv")
	from := fs.String("from", "", "first day, YYYY-MM-DD")
	to := fs.String("to", "", "last day, YYYY-MM-DD, defaults to from")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("adtv: want exactly one SYMBOL")
	}

	start, err := civil.ParseDate(*from)
	if err != nil {
		return fmt.Errorf("adtv: invalid --from: %w", err)
	}
	end := start
	if *to != "" {
		if end, err = civil.ParseDate(*to); err != nil {
			return fmt.Errorf("adtv: invalid --to: %w", err)
		}
	}

	ind := marketdata.NewIndicators(marketdata.IndicatorsOpts{Client: e.client})
	adtv, err := ind.ADTV(ctx, fs.Arg(0), marketdata.ADTVParams{From: start, To: end})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.out, "%s ADTV %s..%s: %.2f over %d days\n", fs.Arg(0), start, end, adtv.AverageVolume, adtv.Days)
	return err
}

func runFields(_ context.Context, e *env, _ []string) error {
	tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tName\tType")
	for _, s := range fields.All() {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.WireID, s.Name, s.Type)
	}
	return tw.Flush()
}
