package cmdtable

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/expr-lang/expr"
	"github.com/lucask07/instrbuilder"
)

// ParseLimits evaluates a setter_range literal such as "[0, 10]",
// "(0.1, 1e6)" or "['POS', 'NEG']". Blank cells mean no limits. Only
// literals are accepted; names other than True, False and None are errors.
func ParseLimits(s string) (instrbuilder.Limits, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "nan" || s == "None" {
		return nil, nil
	}
	program, err := expr.Compile(rangeLiteral(s), expr.Env(map[string]interface{}{}))
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(program, map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	switch v := out.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		limits := make(instrbuilder.Limits, len(v))
		copy(limits, v)
		return limits, nil
	case map[string]interface{}:
		return nil, fmt.Errorf("mapping is not a range")
	}
	return instrbuilder.Limits{out}, nil
}

var literalNames = map[string]string{
	"True":  "true",
	"False": "false",
	"None":  "nil",
}

// rangeLiteral rewrites the tuple, set and constant spellings of a
// literal into expression syntax. Quoted text is left alone.
func rangeLiteral(s string) string {
	var (
		b     strings.Builder
		quote rune
		ident strings.Builder
	)
	flush := func() {
		if ident.Len() == 0 {
			return
		}
		name := ident.String()
		if repl, ok := literalNames[name]; ok {
			name = repl
		}
		b.WriteString(name)
		ident.Reset()
	}
	isSet := !strings.Contains(s, ":")
	for _, r := range s {
		if quote != 0 {
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}
		if unicode.IsLetter(r) || r == '_' || (ident.Len() > 0 && unicode.IsDigit(r)) {
			ident.WriteRune(r)
			continue
		}
		flush()
		switch {
		case r == '\'' || r == '"':
			quote = r
		case r == '(':
			r = '['
		case r == ')':
			r = ']'
		case r == '{' && isSet:
			r = '['
		case r == '}' && isSet:
			r = ']'
		}
		b.WriteRune(r)
	}
	flush()
	return b.String()
}
