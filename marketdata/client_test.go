package marketdata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/klauspost/compress/gzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/activetick-http/activetick-go/marketdata/table"
)

const spyBars = `20230103000000,384.37,386.43,377.83,380.82,74850731
20230104000000,383.18,385.88,380.00,383.76,85934098
`

func testClient() *client {
	return newClient(ClientOpts{
		BaseURL:  "http://proxy.invalid",
		Location: time.UTC,
		Logger:   &testLogger{},
	})
}

func mockResp(resp string) func(c *client, req *http.Request) (*http.Response, error) {
	return func(c *client, req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(resp)),
		}, nil
	}
}

func mockErrResp() func(c *client, req *http.Request) (*http.Response, error) {
	return func(c *client, req *http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("fail")
	}
}

func mockNoCall(t *testing.T) func(c *client, req *http.Request) (*http.Response, error) {
	return func(c *client, req *http.Request) (*http.Response, error) {
		require.Fail(t, "the proxy should not have been called")
		return nil, nil
	}
}

var (
	jan3 = time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)
	jan5 = time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
)

func TestDefaultDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/barData", r.URL.Path)
		assert.Equal(t, "symbol=SPY&historyType=1&beginTime=20230103000000&endTime=20230105000000", r.URL.RawQuery)
		assert.Contains(t, r.Header.Get("User-Agent"), "activetick-go/")
		fmt.Fprint(w, spyBars)
	}))
	defer server.Close()
	client := NewClient(ClientOpts{
		BaseURL:  server.URL,
		Location: time.UTC,
	})
	bars, err := client.GetBars(context.Background(), "SPY", BarRequest{History: Daily, Start: jan3, End: jan5})
	require.NoError(t, err)
	require.Equal(t, 2, bars.Len())
	low, _ := bars.Value(0, "low")
	assert.EqualValues(t, float32(377.83), low.Float32())
	vol, _ := bars.Value(1, "volume")
	assert.EqualValues(t, 85934098, vol.Uint())
	assert.Equal(t, jan3, bars.Index(0).Time())
}

func TestDefaultDo_InternalServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}))
	defer server.Close()
	client := NewClient(ClientOpts{BaseURL: server.URL + "/"})
	_, err := client.GetQuotes(context.Background(), []string{"SPY"}, "LastPrice")
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
	assert.Equal(t, "/quoteData", te.Path)
	assert.Equal(t, "internal server error", te.Body)
	assert.Contains(t, err.Error(), "500")
}

func TestDefaultDo_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
		fmt.Fprint(w, spyBars)
	}))
	defer server.Close()
	client := NewClient(ClientOpts{
		BaseURL: server.URL,
		Timeout: time.Millisecond,
	})
	_, err := client.GetBars(context.Background(), "SPY", BarRequest{History: Daily, Start: jan3, End: jan5})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 0, te.StatusCode)
	assert.Contains(t, err.Error(), "Timeout")
}

func TestNewClient_Env(t *testing.T) {
	t.Setenv("ACTIVETICK_HOST", "10.0.0.7")
	t.Setenv("ACTIVETICK_PORT", "5100")
	c := newClient(ClientOpts{})
	assert.Equal(t, "http://10.0.0.7:5100", c.opts.BaseURL)

	c = newClient(ClientOpts{Port: 6000})
	assert.Equal(t, "http://10.0.0.7:6000", c.opts.BaseURL)

	t.Setenv("ACTIVETICK_HOST", "")
	t.Setenv("ACTIVETICK_PORT", "not a port")
	c = newClient(ClientOpts{})
	assert.Equal(t, "http://127.0.0.1:5000", c.opts.BaseURL)
	assert.Equal(t, "America/New_York", c.opts.Location.String())
}

func TestGet_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(ClientOpts{BaseURL: url})
	_, err := client.GetOptionChain(context.Background(), "SPY")
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "/optionChain", te.Path)
	assert.Error(t, te.Err)
}

func TestGet_Error(t *testing.T) {
	c := testClient()
	c.do = mockErrResp()
	_, err := c.GetBars(context.Background(), "SPY", BarRequest{History: Daily, Start: jan3, End: jan5})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "/barData", te.Path)
	assert.EqualError(t, te.Err, "fail")
}

func TestGetBars_Gzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(spyBars))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	c := testClient()
	c.do = func(c *client, req *http.Request) (*http.Response, error) {
		assert.Equal(t, "gzip", req.Header.Get("Accept-Encoding"))
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(&buf),
			Header: http.Header{
				"Content-Encoding": []string{"gzip"},
			},
		}, nil
	}
	bars, err := c.GetBarEntities(context.Background(), "SPY", BarRequest{History: Daily, Start: jan3, End: jan5})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, Bar{
		Timestamp: jan3,
		Open:      384.37,
		High:      386.43,
		Low:       377.83,
		Close:     380.82,
		Volume:    74850731,
	}, bars[0])
}

func TestGetBars_Malformed(t *testing.T) {
	c := testClient()
	c.do = mockResp("20230103000000,384.37,386.43,377.83,380.82,-5\n")
	_, err := c.GetBars(context.Background(), "SPY", BarRequest{History: Daily, Start: jan3, End: jan5})
	var mre *MalformedRowError
	require.True(t, errors.As(err, &mre))
	assert.Equal(t, "volume", mre.Column)
	assert.Equal(t, "-5", mre.Raw)
}

func TestGetBars_DuplicateDatetime(t *testing.T) {
	c := testClient()
	c.do = mockResp("20230103000000,1,1,1,1,1\n20230103000000,2,2,2,2,2\n")
	_, err := c.GetBars(context.Background(), "SPY", BarRequest{History: Daily, Start: jan3, End: jan5})
	assert.ErrorIs(t, err, table.ErrDuplicateIndex)
}

func TestGetBars_Validation(t *testing.T) {
	c := testClient()
	c.do = mockNoCall(t)
	_, err := c.GetBars(context.Background(), "SPY", BarRequest{History: Daily, Start: jan5, End: jan3})
	var ire *InvalidRangeError
	assert.True(t, errors.As(err, &ire))

	_, err = c.GetBars(context.Background(), "SPY", BarRequest{History: Intraday, IntradayMinutes: 61, Start: jan3, End: jan5})
	var ige *InvalidGranularityError
	assert.True(t, errors.As(err, &ige))
}

func TestGetBars_EmptyRange(t *testing.T) {
	c := testClient()
	c.do = mockResp("")
	bars, err := c.GetBars(context.Background(), "SPY", BarRequest{History: Daily, Start: jan3, End: jan3})
	require.NoError(t, err)
	assert.Equal(t, 0, bars.Len())
}

func TestGetBars_Cached(t *testing.T) {
	store := newFakeCache()
	c := newClient(ClientOpts{BaseURL: "http://proxy.invalid", Location: time.UTC, Cache: store, Logger: &testLogger{}})
	calls := 0
	c.do = func(c *client, req *http.Request) (*http.Response, error) {
		calls++
		return mockResp(spyBars)(c, req)
	}
	req := BarRequest{History: Daily, Start: jan3, End: jan5}
	first, err := c.GetBars(context.Background(), "SPY", req)
	require.NoError(t, err)
	assert.Contains(t, store.data, "AT:BARDATA:SPY:1:0:20230103000000:20230105000000")

	second, err := c.GetBars(context.Background(), "SPY", req)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestGetBars_CacheFailures(t *testing.T) {
	store := newFakeCache()
	store.existsErr = errors.New("connection refused")
	store.setErr = errors.New("connection refused")
	log := &testLogger{}
	c := newClient(ClientOpts{BaseURL: "http://proxy.invalid", Location: time.UTC, Cache: store, Logger: log})
	c.do = mockResp(spyBars)

	bars, err := c.GetBars(context.Background(), "SPY", BarRequest{History: Daily, Start: jan3, End: jan5})
	require.NoError(t, err)
	assert.Equal(t, 2, bars.Len())
	assert.Len(t, log.warnings(), 2)
}

func TestGetQuotes(t *testing.T) {
	c := testClient()
	c.do = func(c *client, req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/quoteData", req.URL.Path)
		assert.Equal(t, "symbol=SPY+GDX&field=5+25", req.URL.RawQuery)
		return mockResp("SPY,1,5,1,7,380.5,25,1,9,1200\nGDX,1,5,1,7,30.25,25,1,9,300\n")(c, req)
	}
	quotes, err := c.GetQuotes(context.Background(), []string{"SPY", "GDX"}, "LastPrice", "BidSize")
	require.NoError(t, err)
	require.Equal(t, 2, quotes.Len())
	row, ok := quotes.Find("GDX")
	require.True(t, ok)
	assert.EqualValues(t, float32(30.25), row[quotes.Schema.Lookup("LastPrice")].Float32())
	assert.EqualValues(t, 300, row[quotes.Schema.Lookup("BidSize")].Uint())
}

func TestGetQuotes_DateTimeFieldsPassThrough(t *testing.T) {
	c := testClient()
	c.do = func(c *client, req *http.Request) (*http.Response, error) {
		assert.Equal(t, "symbol=SPY&field=20+22", req.URL.RawQuery)
		return mockResp("SPY,1,20,1,10,20230103155959,22,1,10,20230103100512000\n")(c, req)
	}
	quotes, err := c.GetQuotes(context.Background(), []string{"SPY"}, "LastTradeDateTime", "DayHighDateTime")
	require.NoError(t, err)
	v, _ := quotes.Value(0, "LastTradeDateTime")
	assert.Equal(t, "20230103155959", v.Text())
	v, _ = quotes.Value(0, "DayHighDateTime")
	assert.Equal(t, "20230103100512000", v.Text())
}

func TestGetQuotes_UnknownField(t *testing.T) {
	c := testClient()
	c.do = mockNoCall(t)
	_, err := c.GetQuotes(context.Background(), []string{"SPY"}, "LastPrice", "Bogus")
	var ufe *UnknownFieldError
	require.True(t, errors.As(err, &ufe))
	assert.Equal(t, "Bogus", ufe.Name)

	_, err = c.GetQuotes(context.Background(), []string{"SPY"})
	assert.ErrorIs(t, err, ErrEmptyFields)
}

func TestGetTicks(t *testing.T) {
	c := testClient()
	c.do = func(c *client, req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/tickData", req.URL.Path)
		assert.Equal(t, "symbol=SPY&trades=0&quotes=1&beginTime=20230103000000&endTime=20230105000000", req.URL.RawQuery)
		return mockResp(mixedTicks)(c, req)
	}
	ticks, err := c.GetTickEntities(context.Background(), "SPY", TickRequest{Quotes: true, Start: jan3, End: jan5})
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	q, ok := ticks[0].(Quote)
	require.True(t, ok)
	assert.Equal(t, "SPY", q.Symbol)
	assert.EqualValues(t, float32(380.4), q.Bid)
	assert.EqualValues(t, 300, q.AskSize)
	assert.Equal(t, "P", q.BidExchange)
	assert.Equal(t, table.QuoteTick, ticks[1].Kind())
	assert.True(t, ticks[0].Time().Before(ticks[1].Time()))
}

func TestGetTicks_Mixed(t *testing.T) {
	c := testClient()
	c.do = mockResp(mixedTicks)
	ticks, err := c.GetTickEntities(context.Background(), "SPY", TickRequest{Trades: true, Quotes: true, Start: jan3, End: jan5})
	require.NoError(t, err)
	require.Len(t, ticks, 4)
	tr, ok := ticks[0].(Trade)
	require.True(t, ok)
	assert.Equal(t, Trade{
		Timestamp:  time.Date(2023, 1, 3, 9, 30, 0, 0, time.UTC),
		Symbol:     "SPY",
		Price:      380.3,
		Size:       50,
		Exchange:   "Q",
		Conditions: [4]int{12, 0, 0, 0},
	}, tr)
}

func TestGetTicks_NeitherKind(t *testing.T) {
	c := testClient()
	c.do = mockNoCall(t)
	got, err := c.GetTicks(context.Background(), "SPY", TickRequest{Start: jan3, End: jan5})
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestGetOptionContracts(t *testing.T) {
	c := testClient()
	c.do = mockResp("OPTION:SPXW--161230C02166000\nOPTION:SPXW--161230P02166000\n")
	contracts, err := c.GetOptionContracts(context.Background(), "SPXW")
	require.NoError(t, err)
	require.Len(t, contracts, 2)
	assert.Equal(t, "SPXW", contracts[0].Underlying)
	assert.Equal(t, civil.Date{Year: 2016, Month: 12, Day: 30}, contracts[0].Expiry)
	assert.Equal(t, Call, contracts[0].Type)
	assert.Equal(t, Put, contracts[1].Type)
	assert.True(t, decimal.NewFromInt(2166).Equal(contracts[1].Strike))
}

func TestGetDailyBars(t *testing.T) {
	c := testClient()
	c.do = func(c *client, req *http.Request) (*http.Response, error) {
		assert.Equal(t, "symbol=SPY&historyType=1&beginTime=20230103000000&endTime=20230104235959", req.URL.RawQuery)
		return mockResp(spyBars)(c, req)
	}
	bars, err := c.GetDailyBars(context.Background(), "SPY",
		civil.Date{Year: 2023, Month: 1, Day: 3}, civil.Date{Year: 2023, Month: 1, Day: 4})
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, ComputeADTV(bars).Days, 2)
}
