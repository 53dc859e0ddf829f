package encrypteddata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
)

// valueKind is the serializer-level kind of a value. Two values can only be
// equal when their kinds match.
type valueKind uint8

const (
	kindInvalid valueKind = iota
	kindNull
	kindBool
	kindNumber
	kindString
	kindList
	kindMap
	kindStruct
)

var (
	jsonNumberType = reflect.TypeOf(json.Number(""))
	byteSliceType  = reflect.TypeOf([]byte(nil))
)

// Equal reports whether a and b are structurally equal with matching kinds.
//
// Numbers compare by value across Go numeric types and json.Number, so int 5
// equals float64 5, but the string "5" never equals the number 5. Nil
// pointers, interfaces, slices and maps are null. Structs compare exported,
// serialized fields; a type with an Equal(T) bool method (time.Time) is
// compared with that method.
func Equal(a, b any) bool {
	return equalValues(reflect.ValueOf(a), reflect.ValueOf(b))
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func kindOf(v reflect.Value) valueKind {
	if !v.IsValid() {
		return kindNull
	}
	if v.Type() == jsonNumberType {
		return kindNumber
	}
	switch v.Kind() {
	case reflect.Bool:
		return kindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return kindNumber
	case reflect.String:
		return kindString
	case reflect.Slice:
		if v.IsNil() {
			return kindNull
		}
		return kindList
	case reflect.Array:
		return kindList
	case reflect.Map:
		if v.IsNil() {
			return kindNull
		}
		return kindMap
	case reflect.Struct:
		return kindStruct
	default:
		return kindInvalid
	}
}

func equalValues(a, b reflect.Value) bool {
	a, b = indirect(a), indirect(b)

	if eq, ok := callEqualMethod(a, b); ok {
		return eq
	}

	ka, kb := kindOf(a), kindOf(b)
	if ka != kb || ka == kindInvalid {
		return false
	}

	switch ka {
	case kindNull:
		return true
	case kindBool:
		return a.Bool() == b.Bool()
	case kindNumber:
		return equalNumbers(a, b)
	case kindString:
		return a.String() == b.String()
	case kindList:
		return equalLists(a, b)
	case kindMap:
		return equalMaps(a, b)
	case kindStruct:
		return equalStructs(a, b)
	}
	return false
}

func callEqualMethod(a, b reflect.Value) (bool, bool) {
	if !a.IsValid() || !b.IsValid() || a.Type() != b.Type() || !a.CanInterface() {
		return false, false
	}
	m := a.MethodByName("Equal")
	if !m.IsValid() {
		return false, false
	}
	mt := m.Type()
	if mt.NumIn() != 1 || mt.In(0) != b.Type() || mt.NumOut() != 1 || mt.Out(0).Kind() != reflect.Bool {
		return false, false
	}
	return m.Call([]reflect.Value{b})[0].Bool(), true
}

// numberRat converts a numeric value to a rational. Floats go through their
// shortest decimal form, which is what serializers emit, so 0.1 matches
// json.Number("0.1"). ok is false for NaN, infinities and malformed
// json.Number strings.
func numberRat(v reflect.Value) (*big.Rat, bool) {
	if v.Type() == jsonNumberType {
		return new(big.Rat).SetString(v.String())
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return new(big.Rat).SetInt64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Rat).SetInt(new(big.Int).SetUint64(v.Uint())), true
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, v.Type().Bits()))
	}
	return nil, false
}

func equalNumbers(a, b reflect.Value) bool {
	ra, okA := numberRat(a)
	rb, okB := numberRat(b)
	if !okA || !okB {
		// infinities can still match each other
		if a.Kind() == reflect.Float64 || a.Kind() == reflect.Float32 {
			if b.Kind() == reflect.Float64 || b.Kind() == reflect.Float32 {
				return a.Float() == b.Float()
			}
		}
		return false
	}
	return ra.Cmp(rb) == 0
}

func equalLists(a, b reflect.Value) bool {
	if a.Len() != b.Len() {
		return false
	}
	if a.Type() == byteSliceType && b.Type() == byteSliceType {
		return bytes.Equal(a.Bytes(), b.Bytes())
	}
	for i := 0; i < a.Len(); i++ {
		if !equalValues(a.Index(i), b.Index(i)) {
			return false
		}
	}
	return true
}

func equalMaps(a, b reflect.Value) bool {
	if a.Len() != b.Len() {
		return false
	}

	if a.Type().Key() == b.Type().Key() {
		iter := a.MapRange()
		for iter.Next() {
			other := b.MapIndex(iter.Key())
			if !other.IsValid() || !equalValues(iter.Value(), other) {
				return false
			}
		}
		return true
	}

	// Differently typed keys are matched on their printed form, which is
	// how they appear once serialized.
	byName := make(map[string]reflect.Value, b.Len())
	iter := b.MapRange()
	for iter.Next() {
		byName[fmt.Sprint(iter.Key().Interface())] = iter.Value()
	}
	iter = a.MapRange()
	for iter.Next() {
		other, ok := byName[fmt.Sprint(iter.Key().Interface())]
		if !ok || !equalValues(iter.Value(), other) {
			return false
		}
	}
	return true
}

func equalStructs(a, b reflect.Value) bool {
	if a.Type() != b.Type() {
		return false
	}
	t := a.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("json") == "-" || f.Tag.Get("yaml") == "-" {
			continue
		}
		if !equalValues(a.Field(i), b.Field(i)) {
			return false
		}
	}
	return true
}
