// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrbuilder

import (
	"fmt"
	"strings"
)

// LookupEntry maps a human-readable label to the value the instrument sends
// and receives.
type LookupEntry struct {
	Label any
	Wire  any
}

// Lookup is an ordered, bidirectional label/wire translation table. For
// example {SLOW: 0, FAST: 1} for a filter speed setting.
type Lookup []LookupEntry

// Wire returns the wire value for label.
func (l Lookup) Wire(label any) (any, bool) {
	for _, e := range l {
		if Equal(e.Label, label) {
			return e.Wire, true
		}
	}
	return nil, false
}

// Label returns the first label whose wire value equals wire.
func (l Lookup) Label(wire any) (any, bool) {
	for _, e := range l {
		if Equal(e.Wire, wire) {
			return e.Label, true
		}
	}
	return nil, false
}

// Set adds or replaces the entry for label.
func (l Lookup) Set(label, wire any) Lookup {
	for i, e := range l {
		if Equal(e.Label, label) {
			l[i].Wire = wire
			return l
		}
	}
	return append(l, LookupEntry{Label: label, Wire: wire})
}

func (l Lookup) String() string {
	parts := make([]string, 0, len(l))
	for _, e := range l {
		parts = append(parts, fmt.Sprintf("%s: %s", quoteValue(e.Label), quoteValue(e.Wire)))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func quoteValue(v any) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return FormatValue(v)
}
