package parser

import (
	"regexp"
)

var fallbackPatterns = func() map[Field]*regexp.Regexp {
	patterns := make(map[Field]*regexp.Regexp, len(Fields))
	for _, f := range Fields {
		patterns[f] = regexp.MustCompile(
			`(?is)` +
				`<strong[^>]*>` + space + `*([0-9][0-9,\.]*` + space + `*[km]?)` + space + `*</strong>` +
				space + `*` +
				`(?:<(?:span|small|em|i|b)[^>]*>` + space + `*)?` +
				`(` + fieldStems[f] + `s?)\b`,
		)
	}
	return patterns
}()

// BindFallback scans raw markup for "<strong>N</strong> label" sequences for every field not
// already resolved in bound. It only returns newly bound fields; callers merge the result.
func BindFallback(raw string, bound Counts) Counts {
	var found Counts
	for _, f := range Fields {
		if bound.Has(f) {
			continue
		}
		m := fallbackPatterns[f].FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		if v, ok := DecodeCompact(m[1]); ok {
			found = found.With(f, v)
		}
	}
	return found
}
