package spreadsheet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

func (bf *BuiltInFunctions) LEFT(args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LEFT requires 1 or 2 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	s := toString(args[0])
	n := 1
	if len(args) == 2 {
		num, ok := toNumber(args[1])
		if !ok || num < 0 {
			return nil, NewSpreadsheetError(ErrorCodeValue, "LEFT requires a non-negative character count")
		}
		n = int(num)
	}
	runes := []rune(s)
	if n > len(runes) {
		n = len(runes)
	}
	return string(runes[:n]), nil
}

func (bf *BuiltInFunctions) RIGHT(args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "RIGHT requires 1 or 2 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	s := toString(args[0])
	n := 1
	if len(args) == 2 {
		num, ok := toNumber(args[1])
		if !ok || num < 0 {
			return nil, NewSpreadsheetError(ErrorCodeValue, "RIGHT requires a non-negative character count")
		}
		n = int(num)
	}
	runes := []rune(s)
	if n > len(runes) {
		n = len(runes)
	}
	return string(runes[len(runes)-n:]), nil
}

func (bf *BuiltInFunctions) MID(args ...any) (Primitive, error) {
	if len(args) != 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MID requires 3 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	s := toString(args[0])
	start, ok1 := toNumber(args[1])
	length, ok2 := toNumber(args[2])
	if !ok1 || !ok2 || start < 1 || length < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "MID requires a start position >= 1 and non-negative length")
	}
	runes := []rune(s)
	from := int(start) - 1
	if from >= len(runes) {
		return "", nil
	}
	to := from + int(length)
	if to > len(runes) {
		to = len(runes)
	}
	return string(runes[from:to]), nil
}

func (bf *BuiltInFunctions) FIND(args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "FIND requires 2 or 3 arguments")
	}
	needle := toString(args[0])
	haystack := toString(args[1])
	start := 1
	if len(args) == 3 {
		num, ok := toNumber(args[2])
		if !ok || num < 1 {
			return nil, NewSpreadsheetError(ErrorCodeValue, "FIND requires a start position >= 1")
		}
		start = int(num)
	}
	runes := []rune(haystack)
	if start-1 > len(runes) {
		return nil, NewSpreadsheetError(ErrorCodeValue, "FIND start position is beyond the text")
	}
	idx := strings.Index(string(runes[start-1:]), needle)
	if idx < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "FIND did not locate the substring")
	}
	return float64(start + len([]rune(string(runes[start-1:])[:idx]))), nil
}

func (bf *BuiltInFunctions) SEARCH(args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SEARCH requires 2 or 3 arguments")
	}
	needle := strings.ToLower(toString(args[0]))
	haystack := toString(args[1])
	start := 1
	if len(args) == 3 {
		num, ok := toNumber(args[2])
		if !ok || num < 1 {
			return nil, NewSpreadsheetError(ErrorCodeValue, "SEARCH requires a start position >= 1")
		}
		start = int(num)
	}
	runes := []rune(haystack)
	if start-1 > len(runes) {
		return nil, NewSpreadsheetError(ErrorCodeValue, "SEARCH start position is beyond the text")
	}
	lowerTail := strings.ToLower(string(runes[start-1:]))
	if re, err := bf.compileWildcard(needle); err == nil && strings.ContainsAny(needle, "*?") {
		// compileWildcard anchors the pattern at both ends; SEARCH looks for it anywhere in the tail
		unanchored := regexp.MustCompile("(?is)" + strings.TrimSuffix(strings.TrimPrefix(re.String(), "(?is)^"), "$"))
		loc := unanchored.FindStringIndex(lowerTail)
		if loc == nil {
			return nil, NewSpreadsheetError(ErrorCodeValue, "SEARCH did not locate the substring")
		}
		return float64(start + len([]rune(lowerTail[:loc[0]]))), nil
	}
	idx := strings.Index(lowerTail, needle)
	if idx < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "SEARCH did not locate the substring")
	}
	return float64(start + len([]rune(lowerTail[:idx]))), nil
}

func (bf *BuiltInFunctions) SUBSTITUTE(args ...any) (Primitive, error) {
	if len(args) < 3 || len(args) > 4 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SUBSTITUTE requires 3 or 4 arguments")
	}
	text := toString(args[0])
	old := toString(args[1])
	new := toString(args[2])
	if old == "" {
		return text, nil
	}
	if len(args) == 3 {
		return strings.ReplaceAll(text, old, new), nil
	}
	occNum, ok := toNumber(args[3])
	if !ok || occNum < 1 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "SUBSTITUTE occurrence must be a positive number")
	}
	occurrence := int(occNum)
	count := 0
	var b strings.Builder
	rest := text
	for {
		idx := strings.Index(rest, old)
		if idx < 0 {
			b.WriteString(rest)
			break
		}
		count++
		b.WriteString(rest[:idx])
		if count == occurrence {
			b.WriteString(new)
		} else {
			b.WriteString(old)
		}
		rest = rest[idx+len(old):]
	}
	return b.String(), nil
}

// TEXT renders a number according to a small set of the most common Excel
// format codes. A full format-code interpreter belongs to a formatting
// package, not this formula engine, so only the patterns that map cleanly
// onto Go's strconv/fmt verbs are supported; anything else falls back to
// the plain decimal rendering.
func (bf *BuiltInFunctions) TEXT(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "TEXT requires 2 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return toString(args[0]), nil
	}
	format := toString(args[1])

	switch {
	case strings.Contains(format, "%"):
		decimals := 0
		if dot := strings.Index(format, "."); dot >= 0 {
			decimals = strings.Count(format[dot:], "0")
		}
		return fmt.Sprintf("%.*f%%", decimals, num*100), nil
	case strings.Contains(format, "0.00"):
		return strconv.FormatFloat(num, 'f', 2, 64), nil
	case strings.Contains(format, "0.0"):
		return strconv.FormatFloat(num, 'f', 1, 64), nil
	case format == "0" || format == "#":
		return strconv.FormatFloat(num, 'f', 0, 64), nil
	case strings.Contains(format, "#,##0"):
		return formatThousands(num), nil
	default:
		return strconv.FormatFloat(num, 'f', -1, 64), nil
	}
}

func formatThousands(num float64) string {
	whole := strconv.FormatFloat(num, 'f', 0, 64)
	neg := strings.HasPrefix(whole, "-")
	if neg {
		whole = whole[1:]
	}
	var parts []string
	for len(whole) > 3 {
		parts = append([]string{whole[len(whole)-3:]}, parts...)
		whole = whole[:len(whole)-3]
	}
	parts = append([]string{whole}, parts...)
	result := strings.Join(parts, ",")
	if neg {
		result = "-" + result
	}
	return result
}
