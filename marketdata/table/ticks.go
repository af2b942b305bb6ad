package table

import "errors"

// ErrUnknownTickType is returned when a historical tick record carries a
// type tag other than T or Q.
var ErrUnknownTickType = errors.New("unknown tick type")

// TickKind is the one-character type tag leading every tick record.
type TickKind byte

// List of tick kinds.
const (
	TradeTick TickKind = 'T'
	QuoteTick TickKind = 'Q'
)

// KindOf selects the tick kind for a type tag. Q is a quote; every other
// tag is decoded as a trade.
func KindOf(tag string) TickKind {
	if tag == string(QuoteTick) {
		return QuoteTick
	}
	return TradeTick
}

func (k TickKind) String() string { return string(k) }

// Column names shared by the tick schemas.
const (
	ColType         = "type"
	ColSymbol       = "symbol"
	ColDateTime     = "datetime"
	ColFlags        = "flags"
	ColLast         = "last"
	ColLastSize     = "lastSize"
	ColLastExchange = "lastExchange"
	ColCondition    = "condition"
	ColBid          = "bid"
	ColAsk          = "ask"
	ColBidSize      = "bidSize"
	ColAskSize      = "askSize"
	ColBidExchange  = "bidExchange"
	ColAskExchange  = "askExchange"
)

// TradeConditions are the four trade condition columns.
var TradeConditions = [4]string{"condition1", "condition2", "condition3", "condition4"}

var (
	quoteStreamSchema = NewSchema(ColType, false,
		Col(ColType, Text),
		Col(ColSymbol, Text),
		Col(ColCondition, UInt8),
		Col(ColBidExchange, Text),
		Col(ColAskExchange, Text),
		Col(ColBid, Float32),
		Col(ColAsk, Float32),
		Col(ColBidSize, UInt32),
		Col(ColAskSize, UInt32),
		TimeCol(ColDateTime, MicroFormat),
	)
	tradeStreamSchema = NewSchema(ColType, false,
		Col(ColType, Text),
		Col(ColSymbol, Text),
		Col(ColFlags, Text),
		Col(TradeConditions[0], Int8),
		Col(TradeConditions[1], Int8),
		Col(TradeConditions[2], Int8),
		Col(TradeConditions[3], Int8),
		Col(ColLastExchange, Text),
		Col(ColLast, Float32),
		Col(ColLastSize, UInt32),
		TimeCol(ColDateTime, MicroFormat),
	)
	tradeHistorySchema = NewSchema(ColDateTime, false,
		Col(ColType, Text),
		TimeCol(ColDateTime, MicroFormat),
		Col(ColLast, Float32),
		Col(ColLastSize, UInt32),
		Col(ColLastExchange, Text),
		Col(TradeConditions[0], UInt8),
		Col(TradeConditions[1], UInt8),
		Col(TradeConditions[2], UInt8),
		Col(TradeConditions[3], UInt8),
	)
	quoteHistorySchema = NewSchema(ColDateTime, false,
		Col(ColType, Text),
		TimeCol(ColDateTime, MicroFormat),
		Col(ColBid, Float32),
		Col(ColAsk, Float32),
		Col(ColBidSize, UInt32),
		Col(ColAskSize, UInt32),
		Col(ColBidExchange, Text),
		Col(ColAskExchange, Text),
		Col(ColCondition, UInt8),
	)
)

// StreamSchema returns the schema of a live stream line of this kind.
func (k TickKind) StreamSchema() Schema {
	if k == QuoteTick {
		return quoteStreamSchema
	}
	return tradeStreamSchema
}

// HistorySchema returns the schema of a historical tick row of this kind.
func (k TickKind) HistorySchema() Schema {
	if k == QuoteTick {
		return quoteHistorySchema
	}
	return tradeHistorySchema
}

// MergedTickSchema is the union of the trade and quote history schemas:
// type, datetime, then the trade columns, then the quote columns.
func MergedTickSchema() Schema {
	cols := append([]Column(nil), tradeHistorySchema.Columns...)
	for _, c := range quoteHistorySchema.Columns {
		if tradeHistorySchema.Lookup(c.Name) < 0 {
			cols = append(cols, c)
		}
	}
	return NewSchema(ColDateTime, false, cols...)
}
