package marketdata

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/activetick-http/activetick-go/marketdata/table"
)

// Bar is an aggregated OHLCV record.
type Bar struct {
	Timestamp time.Time `json:"t"`
	Open      float32   `json:"o"`
	High      float32   `json:"h"`
	Low       float32   `json:"l"`
	Close     float32   `json:"c"`
	Volume    uint32    `json:"v"`
}

// Tick is a single trade or quote event: either a Trade or a Quote.
type Tick interface {
	Kind() table.TickKind
	Time() time.Time
	tick()
}

// Trade is a trade tick. Symbol and Flags are only set for live ticks.
type Trade struct {
	Timestamp  time.Time `json:"t"`
	Symbol     string    `json:"S,omitempty"`
	Flags      string    `json:"f,omitempty"`
	Price      float32   `json:"p"`
	Size       uint32    `json:"s"`
	Exchange   string    `json:"x"`
	Conditions [4]int    `json:"c"`
}

// Kind returns TradeTick.
func (Trade) Kind() table.TickKind { return table.TradeTick }

// Time returns the trade timestamp.
func (t Trade) Time() time.Time { return t.Timestamp }

func (Trade) tick() {}

// Quote is a quote tick. Symbol is only set for live ticks.
type Quote struct {
	Timestamp   time.Time `json:"t"`
	Symbol      string    `json:"S,omitempty"`
	Bid         float32   `json:"bp"`
	Ask         float32   `json:"ap"`
	BidSize     uint32    `json:"bs"`
	AskSize     uint32    `json:"as"`
	BidExchange string    `json:"bx"`
	AskExchange string    `json:"ax"`
	Condition   uint8     `json:"c"`
}

// Kind returns QuoteTick.
func (Quote) Kind() table.TickKind { return table.QuoteTick }

// Time returns the quote timestamp.
func (q Quote) Time() time.Time { return q.Timestamp }

func (Quote) tick() {}

// OptionType is the right of an option contract.
type OptionType = string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// OptionContract is a listed option parsed from its proxy symbol.
type OptionContract struct {
	Symbol     string          `json:"symbol"`
	Underlying string          `json:"underlying"`
	Expiry     civil.Date      `json:"expiry"`
	Type       OptionType      `json:"type"`
	Strike     decimal.Decimal `json:"strike"`
}

// ErrInvalidOptionSymbol is returned for symbols that are not of the form
// [OPTION:]ROOT--YYMMDD{C|P}SSSSSSSS.
var ErrInvalidOptionSymbol = errors.New("invalid option symbol")

const optionSymbolPrefix = "OPTION:"

// ParseOptionSymbol parses an option symbol such as
// OPTION:SPXW--161230C02166000. The root is padded with '-' to six
// characters, the strike is given in thousandths.
func ParseOptionSymbol(symbol string) (OptionContract, error) {
	s := strings.TrimPrefix(symbol, optionSymbolPrefix)
	if len(s) < 16 {
		return OptionContract{}, fmt.Errorf("%w: %q", ErrInvalidOptionSymbol, symbol)
	}
	root := strings.TrimRight(s[:len(s)-15], "-")
	tail := s[len(s)-15:]
	if root == "" {
		return OptionContract{}, fmt.Errorf("%w: %q: no underlying", ErrInvalidOptionSymbol, symbol)
	}

	date, err := time.Parse("060102", tail[:6])
	if err != nil {
		return OptionContract{}, fmt.Errorf("%w: %q: %v", ErrInvalidOptionSymbol, symbol, err)
	}
	var typ OptionType
	switch tail[6] {
	case 'C':
		typ = Call
	case 'P':
		typ = Put
	default:
		return OptionContract{}, fmt.Errorf("%w: %q: bad right %q", ErrInvalidOptionSymbol, symbol, tail[6])
	}
	strike, err := strconv.ParseUint(tail[7:], 10, 32)
	if err != nil {
		return OptionContract{}, fmt.Errorf("%w: %q: %v", ErrInvalidOptionSymbol, symbol, err)
	}

	return OptionContract{
		Symbol:     symbol,
		Underlying: root,
		Expiry:     civil.DateOf(date),
		Type:       typ,
		Strike:     decimal.New(int64(strike), -3),
	}, nil
}

// rowReader reads typed cells of one table row by column name. Missing
// columns read as zero values.
type rowReader struct {
	t *table.Table
	i int
}

func (r rowReader) value(name string) table.Value {
	v, _ := r.t.Value(r.i, name)
	return v
}

func (r rowReader) text(name string) string { return r.value(name).Text() }
func (r rowReader) float32(name string) float32 { return r.value(name).Float32() }
func (r rowReader) time(name string) time.Time { return r.value(name).Time() }
func (r rowReader) uint32(name string) uint32 { return uint32(r.value(name).Uint()) }
func (r rowReader) int(name string) int { return int(r.value(name).Int()) }
func (r rowReader) kind() table.TickKind { return table.KindOf(r.text(table.ColType)) }
func (r rowReader) conditions() (c [4]int) {
	for i, name := range table.TradeConditions {
		c[i] = r.int(name)
	}
	return c
}

// BarsFromTable converts a bar table to bars.
func BarsFromTable(t *table.Table) []Bar {
	bars := make([]Bar, t.Len())
	for i := range bars {
		r := rowReader{t: t, i: i}
		bars[i] = Bar{
			Timestamp: r.time(table.ColDateTime),
			Open:      r.float32("open"),
			High:      r.float32("high"),
			Low:       r.float32("low"),
			Close:     r.float32("close"),
			Volume:    r.uint32("volume"),
		}
	}
	return bars
}

// TicksFromTable converts a tick table, either history or a live stream
// line, to ticks in row order.
func TicksFromTable(t *table.Table) []Tick {
	ticks := make([]Tick, t.Len())
	for i := range ticks {
		ticks[i] = tickAt(rowReader{t: t, i: i})
	}
	return ticks
}

func tickAt(r rowReader) Tick {
	if r.kind() == table.QuoteTick {
		return Quote{
			Timestamp:   r.time(table.ColDateTime),
			Symbol:      r.text(table.ColSymbol),
			Bid:         r.float32(table.ColBid),
			Ask:         r.float32(table.ColAsk),
			BidSize:     r.uint32(table.ColBidSize),
			AskSize:     r.uint32(table.ColAskSize),
			BidExchange: r.text(table.ColBidExchange),
			AskExchange: r.text(table.ColAskExchange),
			Condition:   uint8(r.value(table.ColCondition).Uint()),
		}
	}
	return Trade{
		Timestamp:  r.time(table.ColDateTime),
		Symbol:     r.text(table.ColSymbol),
		Flags:      r.text(table.ColFlags),
		Price:      r.float32(table.ColLast),
		Size:       r.uint32(table.ColLastSize),
		Exchange:   r.text(table.ColLastExchange),
		Conditions: r.conditions(),
	}
}

// OptionContractsFromTable parses every symbol of an option chain table.
func OptionContractsFromTable(t *table.Table) ([]OptionContract, error) {
	contracts := make([]OptionContract, t.Len())
	for i := range contracts {
		c, err := ParseOptionSymbol(rowReader{t: t, i: i}.text(table.ColSymbol))
		if err != nil {
			return nil, err
		}
		contracts[i] = c
	}
	return contracts, nil
}
