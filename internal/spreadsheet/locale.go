package spreadsheet

import (
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Locale carries the settings that vary by region: the character that
// separates function arguments in formula text, the decimal and thousands
// separators, the default currency symbol, and an upper-casing transformer.
//
// A Spreadsheet holds its Locale explicitly (Spreadsheet.Locale); nothing
// in this package reads a process-global locale. Of these settings only
// CurrencySymbol changes behavior, in SetUserInput's formatted-number
// branch. The lexer and parser do not take a Locale, and the text
// functions do not consult one: they use fixed ',' and '.' separators and
// strings.ToUpper/ToLower casing whatever the Locale says.
type Locale struct {
	ID                string
	Tag               language.Tag
	ArgumentSeparator  rune
	DecimalSeparator   rune
	ThousandsSeparator rune
	CurrencySymbol     string
	caser              cases.Caser
}

// ToUpper applies the locale's upper-casing rules. No function in this
// package calls it; UPPER() and function-name lookup use strings.ToUpper.
func (l *Locale) ToUpper(s string) string {
	return l.caser.String(s)
}

var knownLocales = map[string]*Locale{
	"en-US": {ID: "en-US", ArgumentSeparator: ',', DecimalSeparator: '.', ThousandsSeparator: ',', CurrencySymbol: "$"},
	"en-GB": {ID: "en-GB", ArgumentSeparator: ',', DecimalSeparator: '.', ThousandsSeparator: ',', CurrencySymbol: "£"},
	"de-DE": {ID: "de-DE", ArgumentSeparator: ';', DecimalSeparator: ',', ThousandsSeparator: '.', CurrencySymbol: "€"},
	"fr-FR": {ID: "fr-FR", ArgumentSeparator: ';', DecimalSeparator: ',', ThousandsSeparator: ' ', CurrencySymbol: "€"},
	"es-ES": {ID: "es-ES", ArgumentSeparator: ';', DecimalSeparator: ',', ThousandsSeparator: '.', CurrencySymbol: "€"},
}

func init() {
	for id, loc := range knownLocales {
		tag, err := language.Parse(id)
		if err != nil {
			panic(fmt.Sprintf("sheetengine: built-in locale %q does not parse: %v", id, err))
		}
		loc.Tag = tag
		loc.caser = cases.Upper(tag)
	}
}

// DefaultLocale returns the locale used by NewSpreadsheet and by any
// Spreadsheet that has not been given one through NewEmpty.
func DefaultLocale() *Locale {
	return knownLocales["en-US"]
}

// LookupLocale resolves a BCP 47 locale identifier (e.g. "en-US", "de-DE")
// to a Locale. Unknown-but-valid tags fall back to the closest built-in
// locale with the same base language (the region is not compared); tags
// that do not parse at all, or whose language has no built-in locale, are
// rejected.
func LookupLocale(localeID string) (*Locale, error) {
	if localeID == "" {
		return DefaultLocale(), nil
	}
	if loc, ok := knownLocales[localeID]; ok {
		return loc, nil
	}
	tag, err := language.Parse(localeID)
	if err != nil {
		return nil, fmt.Errorf("invalid locale: %q", localeID)
	}
	base, _ := tag.Base()
	for _, loc := range knownLocales {
		locBase, _ := loc.Tag.Base()
		if locBase == base {
			return loc, nil
		}
	}
	return nil, fmt.Errorf("invalid locale: %q", localeID)
}

// LookupTimezone resolves an IANA timezone identifier (e.g. "UTC",
// "America/New_York") against the system tzdata. NewEmpty calls it only to
// validate the identifier; DATE/TODAY/NOW do not consult the result (DATE
// and NOW work in UTC, TODAY takes midnight in the clock's own location).
// There is no
// third-party timezone database in play, so this is one of the few
// places this package reaches for the standard library instead of an
// ecosystem package.
func LookupTimezone(timezoneID string) (*time.Location, error) {
	if timezoneID == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(timezoneID)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %q", timezoneID)
	}
	return loc, nil
}
