package marketdata

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"cloud.google.com/go/civil"
	"github.com/klauspost/compress/gzip"

	"github.com/activetick-http/activetick-go/marketdata/table"
)

const (
	defaultHost     = "127.0.0.1"
	defaultPort     = 5000
	defaultLocation = "America/New_York"

	maxErrorBody = 4096
)

// ClientOpts contains options for the ActiveTick proxy client.
type ClientOpts struct {
	// Host and Port address the HTTP proxy. They default to the
	// ACTIVETICK_HOST and ACTIVETICK_PORT environment variables, then to
	// 127.0.0.1:5000.
	Host string
	Port int
	// BaseURL overrides Host and Port.
	BaseURL string
	// Timeout bounds batch requests. Streams are not subject to it.
	Timeout time.Duration
	// Location is the proxy's time zone. Request instants are sent and
	// response timestamps are read in it. Defaults to America/New_York.
	Location *time.Location
	// Cache enables lookaside caching of bar and tick history.
	Cache  Cache
	Logger Logger
}

// Client is the ActiveTick proxy client. It is safe for concurrent use.
type Client interface {
	GetQuotes(ctx context.Context, symbols []string, fields ...string) (*table.Table, error)
	GetBars(ctx context.Context, symbol string, req BarRequest) (*table.Table, error)
	GetTicks(ctx context.Context, symbol string, req TickRequest) (*table.Table, error)
	GetOptionChain(ctx context.Context, symbol string) (*table.Table, error)
	StreamQuotes(ctx context.Context, symbols ...string) (*Stream, error)
	GetBarEntities(ctx context.Context, symbol string, req BarRequest) ([]Bar, error)
	GetDailyBars(ctx context.Context, symbol string, from, to civil.Date) ([]Bar, error)
	GetTickEntities(ctx context.Context, symbol string, req TickRequest) ([]Tick, error)
	GetDayTicks(ctx context.Context, symbol string, day civil.Date, trades, quotes bool) ([]Tick, error)
	GetOptionContracts(ctx context.Context, symbol string) ([]OptionContract, error)
	// Builder returns the request builder the client validates requests with.
	Builder() Builder
}

type client struct {
	opts    ClientOpts
	builder Builder
	decoder table.Decoder
	cache   *cacheLayer

	httpClient   *http.Client
	streamClient *http.Client

	do func(c *client, req *http.Request) (*http.Response, error)
}

// NewClient creates a new proxy client using the given opts.
func NewClient(opts ClientOpts) Client {
	return newClient(opts)
}

func newClient(opts ClientOpts) *client {
	if opts.Host == "" {
		if s := os.Getenv("ACTIVETICK_HOST"); s != "" {
			opts.Host = s
		} else {
			opts.Host = defaultHost
		}
	}
	if opts.Port == 0 {
		opts.Port = defaultPort
		if s := os.Getenv("ACTIVETICK_PORT"); s != "" {
			if p, err := strconv.Atoi(s); err == nil && p > 0 {
				opts.Port = p
			}
		}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://" + net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Location == nil {
		opts.Location = proxyLocation()
	}
	if opts.Logger == nil {
		opts.Logger = DefaultLogger()
	}
	return &client{
		opts:         opts,
		builder:      Builder{Location: opts.Location},
		decoder:      table.NewDecoder(opts.Location),
		cache:        newCacheLayer(opts.Cache, opts.Logger),
		httpClient:   &http.Client{Timeout: opts.Timeout},
		streamClient: &http.Client{},

		do: defaultDo,
	}
}

func proxyLocation() *time.Location {
	loc, err := time.LoadLocation(defaultLocation)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DefaultClient uses options from environment variables, or the defaults.
var DefaultClient = NewClient(ClientOpts{})

// Builder returns the request builder of the client.
func (c *client) Builder() Builder {
	return c.builder
}

func defaultDo(c *client, req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", userAgent())

	client := c.httpClient
	if req.URL.Path == StreamOp.Path() {
		client = c.streamClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if err = verify(resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func verify(resp *http.Response) error {
	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var path string
		if resp.Request != nil {
			path = resp.Request.URL.Path
		}
		return &TransportError{
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return nil
}

func (c *client) get(ctx context.Context, q Query) (*http.Response, error) {
	u := c.opts.BaseURL + q.Op.Path() + "?" + q.RawQuery()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &TransportError{Path: q.Op.Path(), Err: err}
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.do(c, req)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			return nil, err
		}
		return nil, &TransportError{Path: q.Op.Path(), Err: err}
	}
	return resp, nil
}

// body returns the response body, decompressed when needed.
func body(resp *http.Response) (io.ReadCloser, error) {
	if resp.Header.Get("Content-Encoding") != "gzip" {
		return resp.Body, nil
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, err
	}
	return &gzipBody{Reader: zr, body: resp.Body}, nil
}

type gzipBody struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipBody) Close() error {
	g.Reader.Close()
	return g.body.Close()
}

// fetch reads the whole response of a batch query and decodes it.
func (c *client) fetch(ctx context.Context, q Query) (*table.Table, error) {
	resp, err := c.get(ctx, q)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	r, err := body(resp)
	if err != nil {
		return nil, &TransportError{Path: q.Op.Path(), Err: err}
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &TransportError{Path: q.Op.Path(), Err: err}
	}

	if q.Op == TickOp {
		records, err := c.decoder.ReadRecords(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return mergeTicks(c.decoder, records, q.Trades, q.Quotes)
	}
	return c.decoder.DecodeBatch(bytes.NewReader(data), q.Schema())
}

// GetQuotes returns a snapshot of the given fields for symbols, one row per
// symbol indexed by symbol.
func (c *client) GetQuotes(ctx context.Context, symbols []string, fields ...string) (*table.Table, error) {
	q, err := c.builder.Quote(symbols, fields...)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, q)
}

// GetBars returns the bar history of symbol indexed by datetime.
func (c *client) GetBars(ctx context.Context, symbol string, req BarRequest) (*table.Table, error) {
	q, err := c.builder.Bar(symbol, req)
	if err != nil {
		return nil, err
	}
	return c.cache.do(ctx, q, func(ctx context.Context) (*table.Table, error) {
		return c.fetch(ctx, q)
	})
}

// GetTicks returns the trade and/or quote history of symbol ordered by
// datetime. Asking for neither returns an empty table without contacting
// the proxy.
func (c *client) GetTicks(ctx context.Context, symbol string, req TickRequest) (*table.Table, error) {
	q, err := c.builder.Tick(symbol, req)
	if err != nil {
		return nil, err
	}
	if q.Empty() {
		return table.New(q.Schema()), nil
	}
	return c.cache.do(ctx, q, func(ctx context.Context) (*table.Table, error) {
		return c.fetch(ctx, q)
	})
}

// GetOptionChain returns the option symbols listed for an underlying.
func (c *client) GetOptionChain(ctx context.Context, symbol string) (*table.Table, error) {
	q, err := c.builder.OptionChain(symbol)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, q)
}

// StreamQuotes opens a live stream of trades and quotes for symbols.
func (c *client) StreamQuotes(ctx context.Context, symbols ...string) (*Stream, error) {
	q, err := c.builder.Stream(symbols...)
	if err != nil {
		return nil, err
	}
	resp, err := c.get(ctx, q)
	if err != nil {
		return nil, err
	}
	r, err := body(resp)
	if err != nil {
		resp.Body.Close()
		return nil, &TransportError{Path: q.Op.Path(), Err: err}
	}
	return newStream(ctx, q, r, c.decoder, c.opts.Logger), nil
}

// GetBarEntities returns the bar history of symbol as bars.
func (c *client) GetBarEntities(ctx context.Context, symbol string, req BarRequest) ([]Bar, error) {
	t, err := c.GetBars(ctx, symbol, req)
	if err != nil {
		return nil, err
	}
	return BarsFromTable(t), nil
}

// GetDailyBars returns the daily bars of the calendar days from and to,
// inclusive, in the proxy's time zone.
func (c *client) GetDailyBars(ctx context.Context, symbol string, from, to civil.Date) ([]Bar, error) {
	start, end := c.builder.Days(from, to)
	return c.GetBarEntities(ctx, symbol, BarRequest{History: Daily, Start: start, End: end})
}

// GetTickEntities returns the tick history of symbol as ticks.
func (c *client) GetTickEntities(ctx context.Context, symbol string, req TickRequest) ([]Tick, error) {
	t, err := c.GetTicks(ctx, symbol, req)
	if err != nil {
		return nil, err
	}
	ticks := TicksFromTable(t)
	for i, tick := range ticks {
		switch v := tick.(type) {
		case Trade:
			v.Symbol = symbol
			ticks[i] = v
		case Quote:
			v.Symbol = symbol
			ticks[i] = v
		}
	}
	return ticks, nil
}

// GetDayTicks returns the ticks of one calendar day in the proxy's time zone.
func (c *client) GetDayTicks(ctx context.Context, symbol string, day civil.Date, trades, quotes bool) ([]Tick, error) {
	start, end := c.builder.Days(day, day)
	return c.GetTickEntities(ctx, symbol, TickRequest{Trades: trades, Quotes: quotes, Start: start, End: end})
}

// GetOptionContracts returns the parsed option chain of an underlying.
func (c *client) GetOptionContracts(ctx context.Context, symbol string) ([]OptionContract, error) {
	t, err := c.GetOptionChain(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return OptionContractsFromTable(t)
}

// GetQuotes returns a quote snapshot using the default client.
func GetQuotes(ctx context.Context, symbols []string, fields ...string) (*table.Table, error) {
	return DefaultClient.GetQuotes(ctx, symbols, fields...)
}

// GetBars returns bar history using the default client.
func GetBars(ctx context.Context, symbol string, req BarRequest) (*table.Table, error) {
	return DefaultClient.GetBars(ctx, symbol, req)
}

// GetTicks returns tick history using the default client.
func GetTicks(ctx context.Context, symbol string, req TickRequest) (*table.Table, error) {
	return DefaultClient.GetTicks(ctx, symbol, req)
}

// GetOptionChain returns an option chain using the default client.
func GetOptionChain(ctx context.Context, symbol string) (*table.Table, error) {
	return DefaultClient.GetOptionChain(ctx, symbol)
}

// StreamQuotes opens a live stream using the default client.
func StreamQuotes(ctx context.Context, symbols ...string) (*Stream, error) {
	return DefaultClient.StreamQuotes(ctx, symbols...)
}

// GetBarEntities returns bars using the default client.
func GetBarEntities(ctx context.Context, symbol string, req BarRequest) ([]Bar, error) {
	return DefaultClient.GetBarEntities(ctx, symbol, req)
}

// GetDailyBars returns daily bars using the default client.
func GetDailyBars(ctx context.Context, symbol string, from, to civil.Date) ([]Bar, error) {
	return DefaultClient.GetDailyBars(ctx, symbol, from, to)
}

// GetTickEntities returns ticks using the default client.
func GetTickEntities(ctx context.Context, symbol string, req TickRequest) ([]Tick, error) {
	return DefaultClient.GetTickEntities(ctx, symbol, req)
}

// GetOptionContracts returns option contracts using the default client.
func GetOptionContracts(ctx context.Context, symbol string) ([]OptionContract, error) {
	return DefaultClient.GetOptionContracts(ctx, symbol)
}
