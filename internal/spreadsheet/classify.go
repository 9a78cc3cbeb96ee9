package spreadsheet

import (
	"strconv"
	"strings"
)

// classifyFormula checks whether formulaText (without the leading "=")
// parses cleanly; if it doesn't, it retries once with a single trailing
// ")" appended, tolerating the single unbalanced-paren typo spreadsheet
// users routinely make. Returns the text that should actually be parsed.
func (s *Spreadsheet) classifyFormula(formulaText string, worksheetID uint32, row, col uint32) string {
	tryParse := func(text string) bool {
		lexer := NewLexer("=" + text)
		tokens, lexErrors := lexer.Tokenize()
		if len(lexErrors) > 0 {
			return false
		}
		parser := NewParser(tokens, &ParserContext{
			CurrentWorksheetID: worksheetID,
			CurrentRow:         int32(row),
			CurrentColumn:      int32(col),
			ResolveWorksheet:   s.resolveWorksheetByName,
		})
		_, err := parser.Parse()
		return err == nil
	}

	if tryParse(formulaText) {
		return formulaText
	}
	withParen := formulaText + ")"
	if tryParse(withParen) {
		return withParen
	}
	return formulaText
}

// parseFormattedNumber implements the "formatted number" branch of
// set_user_input's classifier: currency/percent-decorated and
// thousands-separated numeric text. Returns the numeric value and whether
// the text matched.
func (s *Spreadsheet) parseFormattedNumber(raw string) (float64, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, false
	}

	percent := false
	if strings.HasSuffix(text, "%") {
		percent = true
		text = strings.TrimSuffix(text, "%")
	}

	currencySymbols := []string{"$", "€"}
	if sym := s.Locale().CurrencySymbol; sym != "" {
		currencySymbols = append(currencySymbols, sym)
	}
	for _, sym := range currencySymbols {
		text = strings.TrimPrefix(text, sym)
		text = strings.TrimSuffix(text, sym)
	}
	text = strings.TrimSpace(text)

	// strip thousands separators (commas only; the locale's
	// ThousandsSeparator is not consulted)
	text = strings.ReplaceAll(text, ",", "")

	if text == "" {
		return 0, false
	}
	num, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	if percent {
		num *= 0.01
	}
	return num, true
}

// parseISOLikeDate recognizes a YYYY-MM-DD (or YYYY/MM/DD) date literal and
// converts it to its Excel serial-date form.
func (s *Spreadsheet) parseISOLikeDate(raw string) (float64, bool) {
	text := strings.TrimSpace(raw)
	sep := "-"
	if strings.Contains(text, "/") {
		sep = "/"
	}
	parts := strings.Split(text, sep)
	if len(parts) != 3 {
		return 0, false
	}
	year, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	day, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || len(parts[0]) != 4 {
		return 0, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, false
	}
	result, err := s.functions.DATE(float64(year), float64(month), float64(day))
	if err != nil {
		return 0, false
	}
	num, _ := result.(float64)
	return num, true
}

// parseLocalizedErrorName matches one of the wire-exact error tokens
// (case-insensitive) and returns the corresponding error value.
func parseLocalizedErrorName(raw string) (Primitive, bool) {
	text := strings.ToUpper(strings.TrimSpace(raw))
	for code, name := range ErrorMapper {
		if strings.ToUpper(name) == text {
			return NewSpreadsheetError(code, ""), true
		}
	}
	return nil, false
}

// SetUserInput classifies a raw string the way a user typing into a cell
// expects: quote-prefixed forces plain text, a leading "=" is a formula
// (single unbalanced-paren tolerant), otherwise the text is tried in turn
// as a formatted number, an ISO-like YYYY-MM-DD date, a boolean, a
// localized error name, and finally
// falls back to plain string storage in the shared-string table.
func (s *Spreadsheet) SetUserInput(address string, raw string) error {
	if strings.HasPrefix(raw, "'") {
		return s.Set(address, strings.TrimPrefix(raw, "'"))
	}

	if strings.HasPrefix(raw, "=") {
		worksheetID, row, col, err := s.resolveAddress(address)
		if err != nil {
			return err
		}
		if worksheetID == 0 {
			worksheetID = s.currentAddress.WorksheetID
		}
		formulaText := s.classifyFormula(strings.TrimPrefix(raw, "="), worksheetID, row, col)
		return s.Set(address, "="+formulaText)
	}

	if num, ok := s.parseFormattedNumber(raw); ok {
		return s.Set(address, num)
	}

	if num, ok := s.parseISOLikeDate(raw); ok {
		return s.Set(address, num)
	}

	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "true" {
		return s.Set(address, true)
	}
	if lower == "false" {
		return s.Set(address, false)
	}

	if errVal, ok := parseLocalizedErrorName(raw); ok {
		return s.Set(address, errVal)
	}

	return s.Set(address, raw)
}
