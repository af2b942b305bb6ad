package table

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/vmihailenco/msgpack/v5"
)

const codecVersion = 1

type wireTable struct {
	Version int    `msgpack:"v"`
	Schema  Schema `msgpack:"s"`
	Rows    []Row  `msgpack:"r"`
}

// Marshal serializes t to zlib compressed msgpack. Every value type round
// trips exactly, timestamps including their nanoseconds and zone.
func Marshal(t *Table) ([]byte, error) {
	raw, err := msgpack.Marshal(&wireTable{Version: codecVersion, Schema: t.Schema, Rows: t.Rows})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(data []byte) (*Table, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	var w wireTable
	if err := msgpack.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.Version != codecVersion {
		return nil, fmt.Errorf("unsupported table encoding version %d", w.Version)
	}
	if w.Rows == nil {
		w.Rows = []Row{}
	}
	return &Table{Schema: w.Schema, Rows: w.Rows}, nil
}

var _ msgpack.CustomEncoder = Value{}
var _ msgpack.CustomDecoder = (*Value)(nil)

// EncodeMsgpack writes v as [type, payload...].
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.typ {
	case 0:
		if err := enc.EncodeArrayLen(1); err != nil {
			return err
		}
		return enc.EncodeUint8(0)
	case DateTime:
		if err := enc.EncodeArrayLen(5); err != nil {
			return err
		}
		name := v.t.Location().String()
		_, offset := v.t.Zone()
		for _, err := range []error{
			enc.EncodeUint8(uint8(v.typ)),
			enc.EncodeInt64(v.t.Unix()),
			enc.EncodeInt64(int64(v.t.Nanosecond())),
			enc.EncodeString(name),
			enc.EncodeInt64(int64(offset)),
		} {
			if err != nil {
				return err
			}
		}
		return nil
	}
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeUint8(uint8(v.typ)); err != nil {
		return err
	}
	switch v.typ {
	case Text:
		return enc.EncodeString(v.s)
	case Float32:
		return enc.EncodeFloat32(v.f)
	default:
		return enc.EncodeInt64(v.n)
	}
}

// DecodeMsgpack reads a value written by EncodeMsgpack.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("empty value")
	}
	typ, err := dec.DecodeUint8()
	if err != nil {
		return err
	}
	*v = Value{typ: ValueType(typ)}
	switch v.typ {
	case 0:
		return nil
	case Text:
		v.s, err = dec.DecodeString()
	case Float32:
		v.f, err = dec.DecodeFloat32()
	case UInt8, UInt16, UInt32, Int8:
		v.n, err = dec.DecodeInt64()
	case DateTime:
		if n != 5 {
			return fmt.Errorf("datetime value has %d elements", n)
		}
		var sec, nsec, offset int64
		var name string
		if sec, err = dec.DecodeInt64(); err != nil {
			return err
		}
		if nsec, err = dec.DecodeInt64(); err != nil {
			return err
		}
		if name, err = dec.DecodeString(); err != nil {
			return err
		}
		if offset, err = dec.DecodeInt64(); err != nil {
			return err
		}
		t := time.Unix(sec, nsec)
		v.t = t.In(zone(name, int(offset), t))
	default:
		return fmt.Errorf("unknown value type %d", typ)
	}
	return err
}

var zones sync.Map // name -> *time.Location

// zone resolves an encoded zone. Named locations are loaded once and reused;
// names that do not load, or load with a different offset, become fixed zones.
func zone(name string, offset int, at time.Time) *time.Location {
	switch name {
	case "UTC":
		return time.UTC
	case "Local":
		return time.Local
	}
	if cached, ok := zones.Load(name); ok {
		loc := cached.(*time.Location)
		if _, off := at.In(loc).Zone(); off == offset {
			return loc
		}
	} else if loc, err := time.LoadLocation(name); err == nil {
		zones.Store(name, loc)
		if _, off := at.In(loc).Zone(); off == offset {
			return loc
		}
	}
	return time.FixedZone(name, offset)
}
