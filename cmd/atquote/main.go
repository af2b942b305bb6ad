// Command atquote queries an ActiveTick HTTP proxy from the command line.
//
//	atquote [flags] quote SPY,QQQ LastPrice BidPrice
//	atquote --cache bolt bars SPY --history D --from 2023-01-03 --to 2023-01-31
//	atquote ticks SPY --trades --quotes --from 20230103093000 --to 20230103093100
//	atquote stream SPY QQQ
//	atquote chain SPXW
//	atquote adtv SPY --from 2023-01-03 --to 2023-01-31
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/activetick-http/activetick-go/internal/config"
	"github.com/activetick-http/activetick-go/internal/logger"
	"github.com/activetick-http/activetick-go/marketdata"
	"github.com/activetick-http/activetick-go/marketdata/cache"
)

var errUsage = errors.New("usage")

type env struct {
	client marketdata.Client
	loc    *time.Location
	out    io.Writer
	log    zerolog.Logger
}

type command struct {
	Name  string
	Args  string
	Usage string
	Run   func(ctx context.Context, e *env, args []string) error
}

var commands = []command{
	{Name: "quote", Args: "SYMBOL[,SYMBOL...] FIELD...", Usage: "current field values", Run: runQuote},
	{Name: "bars", Args: "SYMBOL", Usage: "intraday, daily or weekly bars", Run: runBars},
	{Name: "ticks", Args: "SYMBOL", Usage: "historical trades and quotes", Run: runTicks},
	{Name: "stream", Args: "SYMBOL...", Usage: "live trades and quotes", Run: runStream},
	{Name: "chain", Args: "SYMBOL", Usage: "option chain", Run: runChain},
	{Name: "adtv", Args: "SYMBOL", Usage: "average daily trading volume", Run: runADTV},
	{Name: "fields", Usage: "quote field catalog", Run: runFields},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.Name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: atquote [flags] COMMAND [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s %s\t%s\n", c.Name, c.Args, c.Usage)
	}
	tw.Flush()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, fs.FlagUsages())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "atquote: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("atquote", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	config.RegisterFlags(fs)
	fs.Usage = func() { usage(os.Stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	path, _ := fs.GetString("config")
	cfg, err := config.Load(path, fs)
	if err != nil {
		return err
	}
	logger.Setup(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	log := logger.Get("atquote")

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errUsage
	}
	cmd, ok := lookup(rest[0])
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}

	loc, err := time.LoadLocation(cfg.Proxy.Location)
	if err != nil {
		return err
	}
	store, closeStore, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn().Err(err).Msg("failed to close cache")
		}
	}()

	client := marketdata.NewClient(marketdata.ClientOpts{
		Host:     cfg.Proxy.Host,
		Port:     cfg.Proxy.Port,
		Timeout:  cfg.Proxy.Timeout,
		Location: loc,
		Cache:    store,
	})
	log.Debug().
		Str("command", cmd.Name).
		Str("host", cfg.Proxy.Host).
		Int("port", cfg.Proxy.Port).
		Str("cache", cfg.Cache.Backend).
		Msg("starting")

	return cmd.Run(ctx, &env{client: client, loc: loc, out: out, log: log}, rest[1:])
}

// openCache opens the configured history cache. A nil store disables
// caching.
func openCache(ctx context.Context, cfg config.CacheConfig) (marketdata.Cache, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", "none":
		return nil, noop, nil
	case "memory":
		return cache.NewMemory(cfg.Size, cfg.TTL), noop, nil
	case "bolt":
		b, err := cache.OpenBolt(cfg.BoltPath)
		if err != nil {
			return nil, noop, err
		}
		return b, b.Close, nil
	case "redis":
		r, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, noop, err
		}
		return r, r.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}
