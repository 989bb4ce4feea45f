package frame

import (
	"strconv"
	"strings"
)

// naValues are the tokens read as missing, the pandas default set.
var naValues = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

// IsNA reports whether a raw cell is read as missing.
func IsNA(cell string) bool {
	_, ok := naValues[cell]
	return ok
}

// NewColumn infers the column type from raw text cells.
//
// Non-missing cells decide the kind: all integers give KindInt, all numbers
// KindFloat, all True/False spellings KindBool, anything else KindString.
// An integer column with missing cells is promoted to KindFloat and a bool
// column with missing cells becomes KindString.
func NewColumn(name string, cells []string) *Column {
	c := &Column{name: name, missing: make([]bool, len(cells))}

	isInt, isFloat, isBool := true, true, true
	anyMissing, anyValue := false, false
	for i, cell := range cells {
		if IsNA(cell) {
			c.missing[i] = true
			anyMissing = true
			continue
		}
		anyValue = true
		v := strings.TrimSpace(cell)
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat && !isInt {
			if _, ok := parseFloat(v); !ok {
				isFloat = false
			}
		}
		if isBool {
			if _, ok := parseBool(v); !ok {
				isBool = false
			}
		}
	}

	switch {
	case !anyValue:
		c.kind = KindFloat
	case isInt:
		c.kind = KindInt
		if anyMissing {
			c.kind = KindFloat
		}
	case isFloat:
		c.kind = KindFloat
	case isBool && !anyMissing:
		c.kind = KindBool
	default:
		c.kind = KindString
	}

	if c.kind == KindString {
		c.texts = make([]string, len(cells))
		for i, cell := range cells {
			if !c.missing[i] {
				c.texts[i] = cell
			}
		}
		return c
	}

	if c.kind == KindInt {
		c.ints = make([]int64, len(cells))
		for i, cell := range cells {
			c.ints[i], _ = strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
		}
		return c
	}

	c.nums = make([]float64, len(cells))
	for i, cell := range cells {
		if c.missing[i] {
			continue
		}
		v := strings.TrimSpace(cell)
		if c.kind == KindBool {
			if b, _ := parseBool(v); b {
				c.nums[i] = 1
			}
			continue
		}
		c.nums[i], _ = parseFloat(v)
	}
	return c
}

// parseFloat accepts decimal notation only; Go's hex floats and digit
// separators are text.
func parseFloat(s string) (float64, bool) {
	if strings.ContainsAny(s, "xX_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseBool(s string) (value, ok bool) {
	switch s {
	case "True", "true", "TRUE":
		return true, true
	case "False", "false", "FALSE":
		return false, true
	}
	return false, false
}
