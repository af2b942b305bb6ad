package marketdata

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/activetick-http/activetick-go/marketdata/table"
)

// Stream is a live sequence of one-row tables, one per line sent by the
// proxy. It is pull based: each call to Next blocks until the next line
// arrives or the stream ends.
//
//	s, err := client.StreamQuotes(ctx, "SPY")
//	...
//	defer s.Close()
//	for s.Next() {
//		fmt.Println(s.Tick())
//	}
//	if err := s.Err(); err != nil {
//		...
//	}
//
// Close may be called from another goroutine to stop a blocked Next.
type Stream struct {
	id    ulid.ULID
	query Query
	ctx   context.Context
	body  io.ReadCloser
	r     *bufio.Reader
	dec   table.Decoder
	log   Logger

	closeOnce sync.Once
	closed    atomic.Bool

	cur   *table.Table
	err   error
	done  bool
	lines int
}

func newStream(ctx context.Context, q Query, body io.ReadCloser, dec table.Decoder, log Logger) *Stream {
	s := &Stream{
		id:    ulid.MustNew(ulid.Timestamp(time.Now()), ulid.DefaultEntropy()),
		query: q,
		ctx:   ctx,
		body:  body,
		r:     bufio.NewReader(body),
		dec:   dec,
		log:   log,
	}
	s.log.Infof("stream %s: opened %s", s.id, q)
	return s
}

// ID identifies the stream in log messages.
func (s *Stream) ID() string {
	return s.id.String()
}

// Next advances to the next line. It returns false when the stream ended,
// either because it was closed, its context was cancelled, the proxy ended
// the response or an error occurred. Err tells these apart.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	for {
		if s.stopped() {
			return s.finish(nil)
		}
		line, err := s.r.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			s.lines++
			t, derr := s.dec.DecodeLine(line)
			if derr != nil {
				var mre *table.MalformedRowError
				if errors.As(derr, &mre) {
					mre.Row = s.lines
				}
				return s.finish(derr)
			}
			s.cur = t
			return true
		}
		if err != nil {
			if errors.Is(err, io.EOF) || s.stopped() {
				return s.finish(nil)
			}
			return s.finish(&TransportError{Path: s.query.Op.Path(), Err: err})
		}
	}
}

func (s *Stream) stopped() bool {
	return s.closed.Load() || s.ctx.Err() != nil
}

func (s *Stream) finish(err error) bool {
	s.done = true
	s.cur = nil
	s.err = err
	if err != nil {
		s.log.Errorf("stream %s: %v", s.id, err)
	}
	s.log.Infof("stream %s: ended after %d lines", s.id, s.lines)
	s.Close()
	return false
}

// Table returns the one-row table of the current line, indexed by type.
func (s *Stream) Table() *table.Table {
	return s.cur
}

// Tick returns the current line as a Trade or a Quote.
func (s *Stream) Tick() Tick {
	if s.cur == nil || s.cur.Len() == 0 {
		return nil
	}
	return tickAt(rowReader{t: s.cur, i: 0})
}

// Err returns the error that ended the stream, if any. A closed or
// cancelled stream has no error.
func (s *Stream) Err() error {
	return s.err
}

// Close ends the stream and releases the connection. It is safe to call
// more than once and from another goroutine.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.body.Close()
	})
	return err
}
