package zarr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Dtype is a zarr data type, written as a NumPy array protocol type string.
// The string has three parts:
//  * the byte order: "<" little-endian, ">" big-endian, "|" not relevant
//  * the basic type code, one of b i u f c m M S U V
//  * the item size. For "S" this is a byte count, for "U" a count of
//    UCS4 characters
//
// Datetime types may carry a trailing unit, eg. "<M8[ns]".
type Dtype struct {
	ByteOrder ByteOrder
	BasicType BasicType
	ByteSize  int
	Units     string
}

var (
	_ json.Unmarshaler = (*Dtype)(nil)
	_ json.Marshaler   = Dtype{}
)

// Float64 is the dtype labelled arrays are written with
var Float64 = Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 8}

// UnicodeOf returns a fixed width unicode dtype holding n characters
func UnicodeOf(n int) Dtype {
	if n < 1 {
		n = 1
	}
	return Dtype{ByteOrder: BOLittleEndian, BasicType: BTUnicode, ByteSize: n}
}

func ParseDtype(s string) (dt Dtype, err error) {
	// python writers sometimes HTML-escape the byte order
	s = strings.Replace(s, "&lt;", "<", 1)
	s = strings.Replace(s, "&gt;", ">", 1)

	if len(s) < 3 {
		return dt, fmt.Errorf("invalid dtype string. %q is too short", s)
	}

	boByte, s := s[0], s[1:]
	if dt.ByteOrder, err = ParseByteOrder(rune(boByte)); err != nil {
		return dt, err
	}

	typeByte, s := s[0], s[1:]
	if dt.BasicType, err = ParseBasicType(rune(typeByte)); err != nil {
		return dt, err
	}

	sizeStr := s
	if i := strings.IndexByte(s, '['); i >= 0 {
		sizeStr, dt.Units = s[:i], s[i:]
	}

	size, err := strconv.ParseInt(sizeStr, 10, 0)
	if err != nil {
		return dt, fmt.Errorf("invalid dtype item size %q: %w", sizeStr, err)
	}
	dt.ByteSize = int(size)
	return dt, nil
}

func (dt Dtype) String() string {
	return fmt.Sprintf("%s%s%d%s", string(dt.ByteOrder), string(dt.BasicType), dt.ByteSize, dt.Units)
}

// ItemSize is the number of bytes one element occupies in a chunk
func (dt Dtype) ItemSize() int {
	if dt.BasicType == BTUnicode {
		return 4 * dt.ByteSize
	}
	return dt.ByteSize
}

// IsText reports whether values of this type decode to strings
func (dt Dtype) IsText() bool {
	return dt.BasicType == BTUnicode || dt.BasicType == BTString
}

func (dt Dtype) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.String())
}

func (dt *Dtype) UnmarshalJSON(d []byte) error {
	var s string
	if err := json.Unmarshal(d, &s); err != nil {
		return err
	}
	t, err := ParseDtype(s)
	if err != nil {
		return err
	}
	*dt = t
	return nil
}

type ByteOrder rune

func ParseByteOrder(r rune) (ByteOrder, error) {
	o := ByteOrder(r)
	if _, ok := byteOrders[o]; !ok {
		return o, fmt.Errorf("unsupported byte order: %q", r)
	}
	return o, nil
}

const (
	BONotRelevant  ByteOrder = '|'
	BOLittleEndian ByteOrder = '<'
	BOBigEndian    ByteOrder = '>'
)

var byteOrders = map[ByteOrder]struct{}{
	BONotRelevant:  {},
	BOLittleEndian: {},
	BOBigEndian:    {},
}

type BasicType rune

func ParseBasicType(r rune) (BasicType, error) {
	t := BasicType(r)
	if _, ok := supportedBasicTypes[t]; !ok {
		return t, fmt.Errorf("unsupported basic type: %q", r)
	}
	return t, nil
}

func (bt BasicType) Human() string {
	return supportedBasicTypes[bt]
}

const (
	BTBoolean       BasicType = 'b'
	BTInteger       BasicType = 'i'
	BTUnsigned      BasicType = 'u'
	BTFloatingPoint BasicType = 'f'
	BTComplex       BasicType = 'c'
	BTTimedelta     BasicType = 'm'
	BTDatetime      BasicType = 'M'
	BTString        BasicType = 'S'
	BTUnicode       BasicType = 'U'
	BTOther         BasicType = 'V'
)

var supportedBasicTypes = map[BasicType]string{
	BTBoolean:       "bool",
	BTInteger:       "int",
	BTUnsigned:      "uint",
	BTFloatingPoint: "float",
	BTComplex:       "complex",
	BTTimedelta:     "timedelta",
	BTDatetime:      "datetime",
	BTString:        "bytes",
	BTUnicode:       "str",
	BTOther:         "void",
}

// StructuredType is either a plain Dtype or a named record of fields.
// Only plain types can be read or written as values; records are parsed so
// that their metadata round-trips.
type StructuredType struct {
	Fieldname string
	Dtype     Dtype
	Shape     interface{}
	Children  []StructuredType
}

var (
	_ json.Unmarshaler = (*StructuredType)(nil)
	_ json.Marshaler   = StructuredType{}
)

// Basic wraps a plain dtype
func Basic(dt Dtype) StructuredType { return StructuredType{Dtype: dt} }

func ParseStructuredType(d interface{}) (StructuredType, error) {
	switch v := d.(type) {
	case string:
		dt, err := ParseDtype(v)
		if err != nil {
			return StructuredType{}, err
		}
		return StructuredType{Dtype: dt}, nil
	case []interface{}:
		return parseStructuredTypeSlice(v)
	default:
		return StructuredType{}, fmt.Errorf("unexpected dtype type %T", d)
	}
}

func parseStructuredTypeSlice(d []interface{}) (StructuredType, error) {
	if len(d) == 0 {
		return StructuredType{}, fmt.Errorf("invalid structured dtype: no fields")
	}
	// a list of field tuples describes a record
	if _, ok := d[0].([]interface{}); ok {
		parent := StructuredType{}
		for i, el := range d {
			field, ok := el.([]interface{})
			if !ok {
				return StructuredType{}, fmt.Errorf("field %d: expected a [name, dtype] list, got %T", i, el)
			}
			ch, err := parseStructuredTypeSlice(field)
			if err != nil {
				return StructuredType{}, fmt.Errorf("field %d: %w", i, err)
			}
			parent.Children = append(parent.Children, ch)
		}
		return parent, nil
	} else if len(d) < 2 {
		return StructuredType{}, fmt.Errorf("invalid structured dtype: %d elements is too short", len(d))
	}

	fieldName, ok := d[0].(string)
	if !ok {
		return StructuredType{}, fmt.Errorf("invalid structured dtype: field name must be a string. got %T", d[0])
	}
	t := StructuredType{Fieldname: fieldName}

	switch x := d[1].(type) {
	case string:
		dtype, err := ParseDtype(x)
		if err != nil {
			return StructuredType{}, err
		}
		t.Dtype = dtype
	case []interface{}:
		ch, err := ParseStructuredType(x)
		if err != nil {
			return StructuredType{}, err
		}
		t.Children = append(t.Children, ch)
	default:
		return t, fmt.Errorf("invalid structured dtype: want either string or structured type. got %T", d[1])
	}

	if len(d) > 2 {
		t.Shape = d[2]
	}
	return t, nil
}

func (st StructuredType) IsBasic() bool {
	return st.Fieldname == "" && st.Shape == nil && len(st.Children) == 0
}

func (st StructuredType) Human() string {
	if st.IsBasic() {
		return st.Dtype.BasicType.Human()
	}
	return "struct"
}

func (st StructuredType) MarshalJSON() ([]byte, error) {
	if st.IsBasic() {
		return st.Dtype.MarshalJSON()
	}

	if st.Fieldname == "" {
		return json.Marshal(st.Children)
	}
	d := []interface{}{st.Fieldname, st.Dtype}
	if len(st.Children) == 1 {
		d[1] = st.Children[0]
	}
	if st.Shape != nil {
		d = append(d, st.Shape)
	}
	return json.Marshal(d)
}

func (st *StructuredType) UnmarshalJSON(d []byte) error {
	var v interface{}
	if err := json.Unmarshal(d, &v); err != nil {
		return err
	}
	t, err := ParseStructuredType(v)
	if err != nil {
		return err
	}
	*st = t
	return nil
}
