package marketdata

import (
	"context"

	"cloud.google.com/go/civil"
)

// TechnicalIndicators can be used to calculate technical indicators.
type TechnicalIndicators interface {
	// ADTV calculates the average daily trading volume.
	ADTV(ctx context.Context, symbol string, params ADTVParams) (*ADTV, error)
}

// ADTVParams contains the calendar days the average is taken over.
type ADTVParams struct {
	// From is the inclusive first day of the interval
	From civil.Date
	// To is the inclusive last day of the interval
	To civil.Date
}

type indicators struct {
	c Client

	// mockable functions
	getDailyBars func(ctx context.Context, symbol string, from, to civil.Date) ([]Bar, error)
}

type IndicatorsOpts struct {
	Client Client
}

func NewIndicators(opts IndicatorsOpts) TechnicalIndicators {
	c := opts.Client
	if c == nil {
		c = DefaultClient
	}
	return &indicators{
		c:            c,
		getDailyBars: c.GetDailyBars,
	}
}

// Indicators can be used to query technical indicators using the default client.
var Indicators = NewIndicators(IndicatorsOpts{})

// ADTV calculates the average daily trading volume.
func (i *indicators) ADTV(ctx context.Context, symbol string, params ADTVParams) (*ADTV, error) {
	bars, err := i.getDailyBars(ctx, symbol, params.From, params.To)
	if err != nil {
		return nil, err
	}
	adtv := ComputeADTV(bars)
	return &adtv, nil
}

// ComputeADTV averages the volume of daily bars.
func ComputeADTV(bars []Bar) ADTV {
	if len(bars) == 0 {
		return ADTV{}
	}
	var totalVolume uint64
	for _, bar := range bars {
		totalVolume += uint64(bar.Volume)
	}
	return ADTV{
		AverageVolume: float64(totalVolume) / float64(len(bars)),
		Days:          len(bars),
	}
}

// ADTV is the average daily trading volume. It also contains the number of trading days
// the average contains.
type ADTV struct {
	AverageVolume float64
	Days          int
}
