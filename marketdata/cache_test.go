package marketdata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/activetick-http/activetick-go/marketdata/table"
)

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte

	existsErr error
	getErr    error
	setErr    error
	sets      int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}}
}

func (f *fakeCache) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.data[key]
	return ok, nil
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.data[key], nil
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	return nil
}

func barQuery(t *testing.T) Query {
	t.Helper()
	start := time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)
	q, err := Builder{Location: time.UTC}.Bar("SPY", BarRequest{History: Daily, Start: start, End: start.AddDate(0, 0, 5)})
	require.NoError(t, err)
	return q
}

func sampleBars() *table.Table {
	tbl := table.New(barSchema)
	tbl.Append(table.Row{
		table.DateTimeValue(time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)),
		table.Float32Value(380), table.Float32Value(385), table.Float32Value(379), table.Float32Value(384),
		table.UInt32Value(1000),
	})
	return tbl
}

func TestCacheLayer_NilStore(t *testing.T) {
	c := newCacheLayer(nil, &testLogger{})
	q := barQuery(t)
	c.store(context.Background(), q, sampleBars())
	_, hit := c.lookup(context.Background(), q)
	assert.False(t, hit)

	calls := 0
	for i := 0; i < 2; i++ {
		_, err := c.do(context.Background(), q, func(context.Context) (*table.Table, error) {
			calls++
			return sampleBars(), nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
}

func TestCacheLayer_StoreLookup(t *testing.T) {
	store := newFakeCache()
	c := newCacheLayer(store, &testLogger{})
	q := barQuery(t)

	_, hit := c.lookup(context.Background(), q)
	assert.False(t, hit)

	c.store(context.Background(), q, sampleBars())
	key, _ := q.CacheKey()
	assert.Contains(t, store.data, key)

	got, hit := c.lookup(context.Background(), q)
	require.True(t, hit)
	assert.Equal(t, sampleBars(), got)
}

func TestCacheLayer_Do(t *testing.T) {
	c := newCacheLayer(newFakeCache(), &testLogger{})
	q := barQuery(t)
	calls := 0
	fetch := func(context.Context) (*table.Table, error) {
		calls++
		return sampleBars(), nil
	}
	first, err := c.do(context.Background(), q, fetch)
	require.NoError(t, err)
	second, err := c.do(context.Background(), q, fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	_, err = c.do(context.Background(), q, func(context.Context) (*table.Table, error) {
		return nil, errors.New("unreachable")
	})
	assert.NoError(t, err, "hit must not fetch")
}

func TestCacheLayer_FetchErrorNotCached(t *testing.T) {
	store := newFakeCache()
	c := newCacheLayer(store, &testLogger{})
	boom := errors.New("boom")
	_, err := c.do(context.Background(), barQuery(t), func(context.Context) (*table.Table, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.sets)
}

func TestCacheLayer_LookupFailureIsMiss(t *testing.T) {
	for name, store := range map[string]*fakeCache{
		"exists": {data: map[string][]byte{}, existsErr: errors.New("down")},
		"get":    {data: map[string][]byte{"AT:BARDATA:SPY:1:0:20230103000000:20230108000000": {1}}, getErr: errors.New("down")},
		"decode": {data: map[string][]byte{"AT:BARDATA:SPY:1:0:20230103000000:20230108000000": []byte("garbage")}},
	} {
		t.Run(name, func(t *testing.T) {
			log := &testLogger{}
			c := newCacheLayer(store, log)
			got, err := c.do(context.Background(), barQuery(t), func(context.Context) (*table.Table, error) {
				return sampleBars(), nil
			})
			require.NoError(t, err)
			assert.Equal(t, sampleBars(), got)
			assert.NotEmpty(t, log.warnings())
		})
	}
}

func TestCacheLayer_StoreFailureStillReturns(t *testing.T) {
	store := newFakeCache()
	store.setErr = errors.New("read only")
	log := &testLogger{}
	c := newCacheLayer(store, log)
	got, err := c.do(context.Background(), barQuery(t), func(context.Context) (*table.Table, error) {
		return sampleBars(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, sampleBars(), got)
	assert.Equal(t, 1, store.sets)
	require.Len(t, log.warnings(), 1)
	assert.Contains(t, log.warnings()[0], "read only")
}

func TestCacheLayer_NotCacheable(t *testing.T) {
	store := newFakeCache()
	c := newCacheLayer(store, &testLogger{})
	q, err := Builder{}.Quote([]string{"SPY"}, "LastPrice")
	require.NoError(t, err)
	_, err = c.do(context.Background(), q, func(context.Context) (*table.Table, error) {
		return table.New(q.Schema()), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, store.sets)
}

func TestCacheLayer_CollapsesConcurrentMisses(t *testing.T) {
	c := newCacheLayer(newFakeCache(), &testLogger{})
	q := barQuery(t)

	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) (*table.Table, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return sampleBars(), nil
	}

	const n = 8
	results := make([]*table.Table, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := c.do(context.Background(), q, fetch)
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, sampleBars(), r)
	}
	// callers sharing a fetch get their own copies
	results[0].Rows[0][0] = table.NullValue()
	assert.False(t, results[1].Rows[0][0].IsNull())
}

func TestCacheLayer_CancelledCallerDoesNotFailOthers(t *testing.T) {
	store := newFakeCache()
	c := newCacheLayer(store, &testLogger{})
	q := barQuery(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var fetchErr error
	fetch := func(ctx context.Context) (*table.Table, error) {
		close(started)
		<-release
		fetchErr = ctx.Err()
		return sampleBars(), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := c.do(ctx, q, fetch)
		firstDone <- err
	}()
	<-started

	secondDone := make(chan *table.Table, 1)
	go func() {
		got, err := c.do(context.Background(), q, fetch)
		assert.NoError(t, err)
		secondDone <- got
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstDone, context.Canceled)

	close(release)
	assert.Equal(t, sampleBars(), <-secondDone)
	assert.NoError(t, fetchErr)
	assert.Equal(t, 1, store.sets)
}
