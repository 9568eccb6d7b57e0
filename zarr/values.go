package zarr

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

func (dt Dtype) order() binary.ByteOrder {
	if dt.ByteOrder == BOBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// floatReader returns a function reading one element of a numeric dtype as
// a float64
func floatReader(dt Dtype) (func(b []byte) float64, error) {
	item := dt.ItemSize()
	bo := dt.order()
	var at func(b []byte) float64
	switch dt.BasicType {
	case BTFloatingPoint:
		switch item {
		case 4:
			at = func(b []byte) float64 { return float64(math.Float32frombits(bo.Uint32(b))) }
		case 8:
			at = func(b []byte) float64 { return math.Float64frombits(bo.Uint64(b)) }
		}
	case BTInteger:
		switch item {
		case 1:
			at = func(b []byte) float64 { return float64(int8(b[0])) }
		case 2:
			at = func(b []byte) float64 { return float64(int16(bo.Uint16(b))) }
		case 4:
			at = func(b []byte) float64 { return float64(int32(bo.Uint32(b))) }
		case 8:
			at = func(b []byte) float64 { return float64(int64(bo.Uint64(b))) }
		}
	case BTUnsigned, BTBoolean:
		switch item {
		case 1:
			at = func(b []byte) float64 { return float64(b[0]) }
		case 2:
			at = func(b []byte) float64 { return float64(bo.Uint16(b)) }
		case 4:
			at = func(b []byte) float64 { return float64(bo.Uint32(b)) }
		case 8:
			at = func(b []byte) float64 { return float64(bo.Uint64(b)) }
		}
	}
	if at == nil {
		return nil, fmt.Errorf("cannot read %s (%s) as float64", dt, dt.BasicType.Human())
	}
	return at, nil
}

// floatWriter returns a function writing a float64 as one element of a
// floating point dtype
func floatWriter(dt Dtype) (func(b []byte, v float64), error) {
	if dt.BasicType != BTFloatingPoint || (dt.ByteSize != 4 && dt.ByteSize != 8) {
		return nil, fmt.Errorf("cannot write float64 values as %s", dt)
	}
	bo := dt.order()
	if dt.ByteSize == 4 {
		return func(b []byte, v float64) { bo.PutUint32(b, math.Float32bits(float32(v))) }, nil
	}
	return func(b []byte, v float64) { bo.PutUint64(b, math.Float64bits(v)) }, nil
}

// decodeFloat64 converts raw element bytes of a numeric dtype to float64s
func decodeFloat64(dt Dtype, raw []byte) ([]float64, error) {
	item := dt.ItemSize()
	if item == 0 || len(raw)%item != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %s elements", len(raw), dt)
	}
	at, err := floatReader(dt)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(raw)/item)
	for i := range out {
		out[i] = at(raw[i*item : (i+1)*item])
	}
	return out, nil
}

// encodeFloat64 writes vals into raw element bytes of a floating point dtype
func encodeFloat64(dt Dtype, vals []float64) ([]byte, error) {
	put, err := floatWriter(dt)
	if err != nil {
		return nil, err
	}
	item := dt.ItemSize()
	raw := make([]byte, len(vals)*item)
	for i, v := range vals {
		put(raw[i*item:(i+1)*item], v)
	}
	return raw, nil
}

func decodeStrings(dt Dtype, raw []byte) ([]string, error) {
	item := dt.ItemSize()
	if !dt.IsText() || item == 0 || len(raw)%item != 0 {
		return nil, fmt.Errorf("cannot read %s as strings", dt)
	}
	bo := dt.order()
	out := make([]string, len(raw)/item)
	for i := range out {
		b := raw[i*item : (i+1)*item]
		if dt.BasicType == BTString {
			out[i] = strings.TrimRight(string(b), "\x00")
			continue
		}
		var sb strings.Builder
		for j := 0; j < len(b); j += 4 {
			r := rune(bo.Uint32(b[j:]))
			if r == 0 {
				break
			}
			sb.WriteRune(r)
		}
		out[i] = sb.String()
	}
	return out, nil
}

func encodeStrings(dt Dtype, vals []string) ([]byte, error) {
	if !dt.IsText() {
		return nil, fmt.Errorf("cannot write strings as %s", dt)
	}
	bo := dt.order()
	item := dt.ItemSize()
	raw := make([]byte, len(vals)*item)
	for i, s := range vals {
		b := raw[i*item : (i+1)*item]
		if dt.BasicType == BTString {
			if len(s) > item {
				return nil, fmt.Errorf("value %q does not fit in %s", s, dt)
			}
			copy(b, s)
			continue
		}
		if utf8.RuneCountInString(s) > dt.ByteSize {
			return nil, fmt.Errorf("value %q does not fit in %s", s, dt)
		}
		j := 0
		for _, r := range s {
			bo.PutUint32(b[j:], uint32(r))
			j += 4
		}
	}
	return raw, nil
}

// fillBytes encodes a fill_value as one element of dt. Unknown or null fill
// values produce zeroed bytes.
func fillBytes(dt Dtype, fill interface{}) []byte {
	zero := make([]byte, dt.ItemSize())
	if dt.BasicType != BTFloatingPoint {
		return zero
	}
	var v float64
	switch x := fill.(type) {
	case string:
		switch x {
		case FillValueNaN:
			v = math.NaN()
		case FillValueInfinity:
			v = math.Inf(1)
		case FillValueNegativeInfinity:
			v = math.Inf(-1)
		default:
			return zero
		}
	case float64:
		v = x
	default:
		return zero
	}
	b, err := encodeFloat64(dt, []float64{v})
	if err != nil {
		return zero
	}
	return b
}
