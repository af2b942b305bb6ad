// Package fields is the catalog of quote fields understood by the ActiveTick
// HTTP proxy. The proxy identifies fields by numeric wire ids; the catalog
// maps the human readable names (QuoteField prefix removed, so
// QuoteFieldLastPrice becomes LastPrice) to those ids and their value types.
package fields

import (
	"fmt"

	"github.com/activetick-http/activetick-go/marketdata/table"
)

// Spec describes a single quote field.
type Spec struct {
	Name   string
	WireID uint16
	Type   table.ValueType
}

// UnknownFieldError is returned when a field name is not in the catalog.
type UnknownFieldError struct {
	Name string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown quote field %q", e.Name)
}

// The order of definitions is the wire id order, starting at 1.
var definitions = []struct {
	name string
	typ  table.ValueType
}{
	{"Symbol", table.Text},
	{"OpenPrice", table.Float32},
	{"PreviousClosePrice", table.Float32},
	{"ClosePrice", table.Float32},
	{"LastPrice", table.Float32},
	{"BidPrice", table.Float32},
	{"AskPrice", table.Float32},
	{"HighPrice", table.Float32},
	{"LowPrice", table.Float32},
	{"DayHighPrice", table.Float32},
	{"DayLowPrice", table.Float32},
	{"PreMarketOpenPrice", table.Float32},
	{"ExtendedHoursLastPrice", table.Float32},
	{"AfterMarketClosePrice", table.Float32},
	{"BidExchange", table.UInt16},
	{"AskExchange", table.Text},
	{"LastExchange", table.Text},
	{"LastCondition", table.UInt16},
	{"QuoteCondition", table.UInt16},
	{"LastTradeDateTime", table.Text},
	{"LastQuoteDateTime", table.Text},
	{"DayHighDateTime", table.Text},
	{"DayLowDateTime", table.Text},
	{"LastSize", table.UInt32},
	{"BidSize", table.UInt32},
	{"AskSize", table.UInt32},
	{"Volume", table.UInt32},
	{"PreMarketVolume", table.UInt32},
	{"AfterMarketVolume", table.UInt32},
	{"TradeCount", table.UInt32},
	{"PreMarketTradeCount", table.UInt32},
	{"AfterMarketTradeCount", table.UInt32},
	{"FundamentalEquityName", table.Text},
	{"FundamentalEquityPrimaryExchange", table.Text},
}

var (
	catalog = make([]Spec, len(definitions))
	byName  = make(map[string]Spec, len(definitions))
)

func init() {
	for i, d := range definitions {
		s := Spec{Name: d.name, WireID: uint16(i + 1), Type: d.typ}
		catalog[i] = s
		byName[s.Name] = s
	}
}

// Resolve returns the spec of the named field.
func Resolve(name string) (Spec, error) {
	s, ok := byName[name]
	if !ok {
		return Spec{}, &UnknownFieldError{Name: name}
	}
	return s, nil
}

// ResolveAll resolves names in order. It fails on the first unknown name
// without returning a partial result.
func ResolveAll(names []string) ([]Spec, error) {
	specs := make([]Spec, len(names))
	for i, name := range names {
		s, err := Resolve(name)
		if err != nil {
			return nil, err
		}
		specs[i] = s
	}
	return specs, nil
}

// ByWireID returns the spec with the given wire id.
func ByWireID(id uint16) (Spec, bool) {
	if id == 0 || int(id) > len(catalog) {
		return Spec{}, false
	}
	return catalog[id-1], true
}

// All returns every field in wire id order.
func All() []Spec {
	return append([]Spec(nil), catalog...)
}

// Column returns the table column carrying the field's value. The date time
// fields are passed through as text: the proxy does not pin their layout.
func (s Spec) Column() table.Column {
	return table.Col(s.Name, s.Type)
}
