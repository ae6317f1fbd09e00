// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrbuilder

import (
	"fmt"
	"regexp"
	"strings"
)

// ValueKey is the placeholder that receives the value passed to Set.
const ValueKey = "value"

var placeholderRE = regexp.MustCompile(`{\s*(.*?)\s*}`)

// Template is an ASCII command with named {placeholders}, for example
// ":TRIG:LEV {value}, CHAN{chan}".
type Template struct {
	text string
	keys []string
}

// ParseTemplate extracts the placeholder names of s in order of appearance.
func ParseTemplate(s string) Template {
	t := Template{text: s}
	for _, m := range placeholderRE.FindAllStringSubmatch(s, -1) {
		t.keys = append(t.keys, m[1])
	}
	return t
}

// String returns the template text.
func (t Template) String() string { return t.text }

// Keys returns the placeholder names, including ValueKey when present.
func (t Template) Keys() []string {
	return append([]string(nil), t.keys...)
}

// Format substitutes every placeholder with the matching entry of values.
func (t Template) Format(values map[string]any) (string, error) {
	var missing []string
	out := placeholderRE.ReplaceAllStringFunc(t.text, func(m string) string {
		key := placeholderRE.FindStringSubmatch(m)[1]
		v, ok := values[key]
		if !ok {
			missing = append(missing, key)
			return m
		}
		return FormatValue(v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s in %q", ErrMissingConfig, strings.Join(missing, ", "), t.text)
	}
	return out, nil
}

// without returns keys minus the first occurrence of key.
func without(keys []string, key string) ([]string, bool) {
	for i, k := range keys {
		if k == key {
			out := append([]string(nil), keys[:i]...)
			return append(out, keys[i+1:]...), true
		}
	}
	return keys, false
}
