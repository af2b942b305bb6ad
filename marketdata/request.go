package marketdata

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/activetick-http/activetick-go/marketdata/fields"
	"github.com/activetick-http/activetick-go/marketdata/table"
)

// RequestTimeLayout is the layout of instants sent to the proxy.
const RequestTimeLayout = "20060102150405"

// Operation is a proxy endpoint.
type Operation int

// List of operations.
const (
	QuoteOp Operation = iota + 1
	BarOp
	TickOp
	StreamOp
	OptionChainOp
)

// Path returns the endpoint path of the operation.
func (o Operation) Path() string {
	switch o {
	case QuoteOp:
		return "/quoteData"
	case BarOp:
		return "/barData"
	case TickOp:
		return "/tickData"
	case StreamOp:
		return "/quoteStream"
	case OptionChainOp:
		return "/optionChain"
	}
	return ""
}

func (o Operation) String() string {
	switch o {
	case QuoteOp:
		return "quote"
	case BarOp:
		return "bar"
	case TickOp:
		return "tick"
	case StreamOp:
		return "stream"
	case OptionChainOp:
		return "optionChain"
	}
	return "Operation(" + strconv.Itoa(int(o)) + ")"
}

// HistoryKind is the granularity of a bar request.
type HistoryKind int

// List of history kinds. The values are the proxy's historyType codes.
const (
	Intraday HistoryKind = 0
	Daily    HistoryKind = 1
	Weekly   HistoryKind = 2
)

func (h HistoryKind) String() string {
	switch h {
	case Intraday:
		return "I"
	case Daily:
		return "D"
	case Weekly:
		return "W"
	}
	return "HistoryKind(" + strconv.Itoa(int(h)) + ")"
}

func (h HistoryKind) valid() bool {
	return h >= Intraday && h <= Weekly
}

// ParseHistoryKind accepts the one letter codes I, D and W as well as the
// full names, case insensitively.
func ParseHistoryKind(s string) (HistoryKind, error) {
	switch strings.ToLower(s) {
	case "i", "intraday":
		return Intraday, nil
	case "d", "daily":
		return Daily, nil
	case "w", "weekly":
		return Weekly, nil
	}
	return 0, fmt.Errorf("unknown history kind %q", s)
}

// BarRequest contains the parameters of a bar history request.
type BarRequest struct {
	History HistoryKind
	// IntradayMinutes is the bar size in minutes, 0 to 60. Only used for
	// Intraday history.
	IntradayMinutes int
	// Start is the inclusive beginning of the interval. Defaults to the
	// first day of the current month.
	Start time.Time
	// End is the inclusive end of the interval. Defaults to now.
	End time.Time
}

// TickRequest contains the parameters of a tick history request.
type TickRequest struct {
	Trades bool
	Quotes bool
	// Start is the inclusive beginning of the interval. Defaults to 15
	// minutes ago.
	Start time.Time
	// End is the inclusive end of the interval. Defaults to now.
	End time.Time
}

// Param is one query parameter. Multiple values are joined with '+'.
type Param struct {
	Key    string
	Values []string
}

// Query is the canonical description of one proxy request. It is built by
// a Builder and not modified afterwards.
type Query struct {
	Op      Operation
	Symbols []string
	Fields  []fields.Spec

	History         HistoryKind
	IntradayMinutes int
	Begin           time.Time
	End             time.Time

	Trades bool
	Quotes bool
}

// Empty reports whether the query can only produce an empty table, so the
// proxy need not be asked.
func (q Query) Empty() bool {
	return q.Op == TickOp && !q.Trades && !q.Quotes
}

// Params returns the query parameters in wire order.
func (q Query) Params() []Param {
	params := []Param{{Key: "symbol", Values: q.Symbols}}
	switch q.Op {
	case QuoteOp:
		ids := make([]string, len(q.Fields))
		for i, f := range q.Fields {
			ids[i] = strconv.Itoa(int(f.WireID))
		}
		params = append(params, Param{Key: "field", Values: ids})
	case BarOp:
		params = append(params, param("historyType", strconv.Itoa(int(q.History))))
		if q.History == Intraday {
			params = append(params, param("intradayMinutes", strconv.Itoa(q.IntradayMinutes)))
		}
		params = append(params,
			param("beginTime", q.Begin.Format(RequestTimeLayout)),
			param("endTime", q.End.Format(RequestTimeLayout)),
		)
	case TickOp:
		params = append(params,
			param("trades", flag(q.Trades)),
			param("quotes", flag(q.Quotes)),
			param("beginTime", q.Begin.Format(RequestTimeLayout)),
			param("endTime", q.End.Format(RequestTimeLayout)),
		)
	}
	return params
}

// RawQuery renders the parameters as a URL query string. Each value is
// escaped on its own and multiple values are joined by a literal '+'.
func (q Query) RawQuery() string {
	var sb strings.Builder
	for i, p := range q.Params() {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(p.Key)
		sb.WriteByte('=')
		for j, v := range p.Values {
			if j > 0 {
				sb.WriteByte('+')
			}
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String()
}

// CacheKey returns the lookaside cache key of the query. Only bar and tick
// history queries are cacheable.
func (q Query) CacheKey() (string, bool) {
	switch q.Op {
	case BarOp:
		minutes := 0
		if q.History == Intraday {
			minutes = q.IntradayMinutes
		}
		return fmt.Sprintf("AT:BARDATA:%s:%d:%d:%s:%s",
			q.symbol(), int(q.History), minutes,
			q.Begin.Format(RequestTimeLayout), q.End.Format(RequestTimeLayout)), true
	case TickOp:
		return fmt.Sprintf("AT:TICKDATA:%s:%s:%s:%s:%s",
			q.symbol(), flag(q.Trades), flag(q.Quotes),
			q.Begin.Format(RequestTimeLayout), q.End.Format(RequestTimeLayout)), true
	}
	return "", false
}

// Schema returns the schema of the response. Stream lines carry their own
// schema, so stream queries return an empty one.
func (q Query) Schema() table.Schema {
	switch q.Op {
	case QuoteOp:
		return quoteSchema(q.Fields)
	case BarOp:
		return barSchema
	case TickOp:
		switch {
		case q.Trades && q.Quotes:
			return table.MergedTickSchema()
		case q.Trades:
			return table.TradeTick.HistorySchema()
		case q.Quotes:
			return table.QuoteTick.HistorySchema()
		}
	case OptionChainOp:
		return optionChainSchema
	}
	return table.NewSchema("", false)
}

func (q Query) symbol() string {
	return strings.Join(q.Symbols, "+")
}

func (q Query) String() string {
	return q.Op.Path() + "?" + q.RawQuery()
}

func param(key, value string) Param {
	return Param{Key: key, Values: []string{value}}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

var (
	barSchema = table.NewSchema(table.ColDateTime, true,
		table.TimeCol(table.ColDateTime, table.SecondFormat),
		table.Col("open", table.Float32),
		table.Col("high", table.Float32),
		table.Col("low", table.Float32),
		table.Col("close", table.Float32),
		table.Col("volume", table.UInt32),
	)
	optionChainSchema = table.NewSchema(table.ColSymbol, true,
		table.Col(table.ColSymbol, table.Text),
	)
)

// quoteSchema is the symbol and its status followed by four columns per
// requested field: wire id, status, data type and the value itself.
func quoteSchema(specs []fields.Spec) table.Schema {
	cols := make([]table.Column, 0, 2+4*len(specs))
	cols = append(cols,
		table.Col(table.ColSymbol, table.Text),
		table.Col("symbol_status", table.UInt8),
	)
	for _, s := range specs {
		cols = append(cols,
			table.Col(s.Name+"_field_id", table.UInt16),
			table.Col(s.Name+"_status", table.UInt8),
			table.Col(s.Name+"_datatype", table.UInt8),
			s.Column(),
		)
	}
	return table.NewSchema(table.ColSymbol, true, cols...)
}

// Builder validates logical requests and turns them into queries. Instants
// are converted to Location and truncated to whole seconds.
type Builder struct {
	Location *time.Location
	// Now overrides the clock used for default time ranges.
	Now func() time.Time
}

func (b Builder) location() *time.Location {
	if b.Location == nil {
		return time.UTC
	}
	return b.Location
}

func (b Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b Builder) normalize(t time.Time) time.Time {
	return t.In(b.location()).Truncate(time.Second)
}

// Days returns the instants covering the calendar days from and to,
// inclusive, in the builder's location.
func (b Builder) Days(from, to civil.Date) (time.Time, time.Time) {
	loc := b.location()
	return from.In(loc), to.AddDays(1).In(loc).Add(-time.Second)
}

func checkSymbols(symbols []string) error {
	if len(symbols) == 0 {
		return ErrNoSymbols
	}
	for _, s := range symbols {
		if s == "" {
			return fmt.Errorf("%w: empty symbol", ErrNoSymbols)
		}
	}
	return nil
}

// interval validates the range before truncation so that an end a fraction
// of a second before the start is still rejected.
func (b Builder) interval(start, end time.Time) (time.Time, time.Time, error) {
	if end.Before(start) {
		loc := b.location()
		return time.Time{}, time.Time{}, &InvalidRangeError{Begin: start.In(loc), End: end.In(loc)}
	}
	return b.normalize(start), b.normalize(end), nil
}

// Quote builds a quote snapshot query. Field order is kept and determines
// the column order of the result.
func (b Builder) Quote(symbols []string, names ...string) (Query, error) {
	if err := checkSymbols(symbols); err != nil {
		return Query{}, err
	}
	if len(names) == 0 {
		return Query{}, ErrEmptyFields
	}
	specs, err := fields.ResolveAll(names)
	if err != nil {
		return Query{}, err
	}
	return Query{
		Op:      QuoteOp,
		Symbols: append([]string(nil), symbols...),
		Fields:  specs,
	}, nil
}

// Bar builds a bar history query for a single symbol.
func (b Builder) Bar(symbol string, req BarRequest) (Query, error) {
	if err := checkSymbols([]string{symbol}); err != nil {
		return Query{}, err
	}
	if !req.History.valid() {
		return Query{}, fmt.Errorf("invalid history kind %d", int(req.History))
	}
	minutes := 0
	if req.History == Intraday {
		if req.IntradayMinutes < 0 || req.IntradayMinutes > 60 {
			return Query{}, &InvalidGranularityError{Minutes: req.IntradayMinutes}
		}
		minutes = req.IntradayMinutes
	}
	start, end := req.Start, req.End
	if start.IsZero() || end.IsZero() {
		now := b.now().In(b.location())
		if start.IsZero() {
			start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, b.location())
		}
		if end.IsZero() {
			end = now
		}
	}
	begin, finish, err := b.interval(start, end)
	if err != nil {
		return Query{}, err
	}
	return Query{
		Op:              BarOp,
		Symbols:         []string{symbol},
		History:         req.History,
		IntradayMinutes: minutes,
		Begin:           begin,
		End:             finish,
	}, nil
}

// Tick builds a tick history query for a single symbol. A request for
// neither trades nor quotes yields an empty query.
func (b Builder) Tick(symbol string, req TickRequest) (Query, error) {
	if err := checkSymbols([]string{symbol}); err != nil {
		return Query{}, err
	}
	start, end := req.Start, req.End
	if start.IsZero() || end.IsZero() {
		now := b.now()
		if start.IsZero() {
			start = now.Add(-15 * time.Minute)
		}
		if end.IsZero() {
			end = now
		}
	}
	begin, finish, err := b.interval(start, end)
	if err != nil {
		return Query{}, err
	}
	return Query{
		Op:      TickOp,
		Symbols: []string{symbol},
		Begin:   begin,
		End:     finish,
		Trades:  req.Trades,
		Quotes:  req.Quotes,
	}, nil
}

// Stream builds a live quote stream query.
func (b Builder) Stream(symbols ...string) (Query, error) {
	if err := checkSymbols(symbols); err != nil {
		return Query{}, err
	}
	return Query{Op: StreamOp, Symbols: append([]string(nil), symbols...)}, nil
}

// OptionChain builds an option chain query for an underlying symbol.
func (b Builder) OptionChain(symbol string) (Query, error) {
	if err := checkSymbols([]string{symbol}); err != nil {
		return Query{}, err
	}
	return Query{Op: OptionChainOp, Symbols: []string{symbol}}, nil
}
