// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrbuilder

import "strings"

// Limits are the allowed set values of a command: nil for no limits, an
// inclusive numeric range when there are exactly two non-string elements, or
// an enumerated set of legal values otherwise.
type Limits []any

// IsRange reports whether l is an inclusive [min, max] range.
func (l Limits) IsRange() bool {
	if len(l) != 2 {
		return false
	}
	_, isString := l[0].(string)
	return !isString
}

// Contains reports whether v is allowed. A nil Limits allows everything.
func (l Limits) Contains(v any) bool {
	if l == nil {
		return true
	}
	if l.IsRange() {
		x, ok := toFloat(v)
		lo, okLo := toFloat(l[0])
		hi, okHi := toFloat(l[1])
		if !ok || !okLo || !okHi {
			return false
		}
		return x >= lo && x <= hi
	}
	for _, allowed := range l {
		if Equal(allowed, v) {
			return true
		}
	}
	return false
}

// translate maps every element through lookup when the first element is a
// lookup label, so limits written in human-readable terms end up at the wire
// level. Elements without a label are kept.
func (l Limits) translate(lookup Lookup) Limits {
	if len(l) == 0 || len(lookup) == 0 {
		return l
	}
	if _, ok := lookup.Wire(l[0]); !ok {
		return l
	}
	out := make(Limits, len(l))
	for i, v := range l {
		if w, ok := lookup.Wire(v); ok {
			out[i] = w
			continue
		}
		out[i] = v
	}
	return out
}

func (l Limits) String() string {
	if l == nil {
		return "None"
	}
	parts := make([]string, 0, len(l))
	for _, v := range l {
		parts = append(parts, quoteValue(v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
