// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrbuilder

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lucask07/instrbuilder/lib/block"
	"github.com/shopspring/decimal"
)

// ConvertFunc converts a raw instrument response into a typed value.
type ConvertFunc func(raw string) (any, error)

// Converter is a named getter conversion.
type Converter struct {
	Name    string
	Convert ConvertFunc
	// Array marks conversions that return a slice.
	Array bool
	// Float marks floating point conversions, which are compared with a
	// relative tolerance by the command tester.
	Float bool
}

// Converters is a registry of named conversions. Build one with
// DefaultConverters and pass it to the table loader; it is not shared
// process-wide state.
type Converters map[string]Converter

// DefaultConverterName is used when a table names an unknown conversion.
const DefaultConverterName = "string"

// DefaultConverters returns the conversions understood by command tables:
//
//	string, nan, pass          response unchanged
//	str                        trailing whitespace removed
//	float, double              float64
//	int                        int, integral floats accepted
//	decimal                    decimal.Decimal
//	str_array_to_numarray      "2.3,5.4" as []float64
//	byte_array_to_numarray     "1,0\r" as []int
//	byte_array_to_numarray_floats
//	                           "-3e-4,-3e-4,\r" as []float64, empty fields dropped
//	pass_array                 response unchanged, flagged as an array
//	tek_pack                   Tektronix "%" binary pack as []int, checksum verified
//	keysight_error             true unless the response starts with "+0"
//	bit0_set ... bit7_set      true when the bit of the integer response is set
//	bit0_cleared ... bit7_cleared
func DefaultConverters() Converters {
	c := Converters{}
	c.Register(Converter{Name: "string", Convert: passthrough})
	c.Register(Converter{Name: "nan", Convert: passthrough})
	c.Register(Converter{Name: "pass", Convert: passthrough})
	c.Register(Converter{Name: "pass_array", Convert: passthrough, Array: true})
	c.Register(Converter{Name: "str", Convert: func(raw string) (any, error) {
		return strings.TrimRight(raw, " \t\r\n\v\f"), nil
	}})
	c.Register(Converter{Name: "float", Convert: parseFloat, Float: true})
	c.Register(Converter{Name: "double", Convert: parseFloat, Float: true})
	c.Register(Converter{Name: "int", Convert: parseInt})
	c.Register(Converter{Name: "decimal", Convert: func(raw string) (any, error) {
		return decimal.NewFromString(strings.TrimSpace(raw))
	}})
	c.Register(Converter{Name: "str_array_to_numarray", Array: true, Convert: func(raw string) (any, error) {
		return floatFields(strings.Split(raw, ","))
	}})
	c.Register(Converter{Name: "byte_array_to_numarray", Array: true, Convert: func(raw string) (any, error) {
		fields := strings.Split(strings.TrimRight(raw, " \t\r\n"), ",")
		out := make([]int, 0, len(fields))
		for _, f := range fields {
			i, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				return nil, err
			}
			out = append(out, i)
		}
		return out, nil
	}})
	c.Register(Converter{Name: "byte_array_to_numarray_floats", Array: true, Convert: func(raw string) (any, error) {
		var fields []string
		for _, f := range strings.Split(strings.TrimRight(raw, " \t\r\n"), ",") {
			if f != "" {
				fields = append(fields, f)
			}
		}
		return floatFields(fields)
	}})
	c.Register(Converter{Name: "tek_pack", Array: true, Convert: unpackTek})
	c.Register(Converter{Name: "keysight_error", Convert: func(raw string) (any, error) {
		return !strings.HasPrefix(raw, "+0"), nil
	}})
	for bit := 0; bit < 8; bit++ {
		c.Register(Converter{Name: fmt.Sprintf("bit%d_set", bit), Convert: bitTest(bit, true)})
		c.Register(Converter{Name: fmt.Sprintf("bit%d_cleared", bit), Convert: bitTest(bit, false)})
	}
	return c
}

// Register adds or replaces a conversion.
func (c Converters) Register(conv Converter) {
	c[conv.Name] = conv
}

// Resolve returns the conversion called name. Unknown names resolve to the
// plain string conversion and report false.
func (c Converters) Resolve(name string) (Converter, bool) {
	if conv, ok := c[name]; ok {
		return conv, true
	}
	if conv, ok := c[DefaultConverterName]; ok {
		return conv, false
	}
	return Converter{Name: DefaultConverterName, Convert: passthrough}, false
}

func passthrough(raw string) (any, error) { return raw, nil }

// parseInt also accepts integral floats such as "4.0", which is how a
// float set on an int command reads back in simulation.
func parseInt(raw string) (any, error) {
	t := strings.TrimSpace(raw)
	i, err := strconv.Atoi(t)
	if err == nil {
		return i, nil
	}
	f, ferr := strconv.ParseFloat(t, 64)
	if ferr != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil, err
	}
	return int(f), nil
}

func parseFloat(raw string) (any, error) {
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}

func unpackTek(raw string) (any, error) {
	words, err := block.UnpackTek([]byte(strings.TrimRight(raw, "\r\n")))
	if err != nil {
		return nil, err
	}
	out := make([]int, len(words))
	for i, w := range words {
		out[i] = int(w)
	}
	return out, nil
}

func floatFields(fields []string) ([]float64, error) {
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// GetBit returns bit of value as 0 or 1.
func GetBit(value, bit int) int {
	if value&(1<<bit) != 0 {
		return 1
	}
	return 0
}

// SetBit returns value with bit set.
func SetBit(value, bit int) int { return value | 1<<bit }

// ClearBit returns value with bit cleared.
func ClearBit(value, bit int) int { return value &^ (1 << bit) }

func bitTest(bit int, wantSet bool) ConvertFunc {
	return func(raw string) (any, error) {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		return (GetBit(v, bit) == 1) == wantSet, nil
	}
}
