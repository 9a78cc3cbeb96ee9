package spreadsheet

import "time"

// excelEpoch is the Excel serial-date origin (December 30 1899), reusing
// the same day-zero the teacher's EXCEL_EPOCH_MS/MS_PER_DAY constants
// already encode for NOW()/TODAY().
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

func serialToTime(serial float64) time.Time {
	days := int(serial)
	frac := serial - float64(days)
	return excelEpoch.AddDate(0, 0, days).Add(time.Duration(frac * float64(24*time.Hour)))
}

func timeToSerial(t time.Time) float64 {
	d := t.Sub(excelEpoch)
	return d.Hours() / 24
}

func (bf *BuiltInFunctions) DATE(args ...any) (Primitive, error) {
	if len(args) != 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "DATE requires 3 arguments")
	}
	year, ok1 := toNumber(args[0])
	month, ok2 := toNumber(args[1])
	day, ok3 := toNumber(args[2])
	if !ok1 || !ok2 || !ok3 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "DATE requires numeric year/month/day")
	}
	t := time.Date(int(year), time.Month(1), 1, 0, 0, 0, 0, time.UTC)
	t = t.AddDate(0, int(month)-1, int(day)-1)
	return timeToSerial(t), nil
}

func (bf *BuiltInFunctions) YEAR(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "YEAR requires 1 argument")
	}
	serial, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "YEAR requires a numeric serial date")
	}
	return float64(serialToTime(serial).Year()), nil
}

func (bf *BuiltInFunctions) MONTH(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MONTH requires 1 argument")
	}
	serial, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "MONTH requires a numeric serial date")
	}
	return float64(serialToTime(serial).Month()), nil
}

func (bf *BuiltInFunctions) DAY(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "DAY requires 1 argument")
	}
	serial, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "DAY requires a numeric serial date")
	}
	return float64(serialToTime(serial).Day()), nil
}

func (bf *BuiltInFunctions) EDATE(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "EDATE requires 2 arguments")
	}
	serial, ok1 := toNumber(args[0])
	months, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "EDATE requires a numeric date and month offset")
	}
	t := serialToTime(serial)
	firstOfTarget := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, int(months), 0)
	day := t.Day()
	if lastDay := firstOfTarget.AddDate(0, 1, -1).Day(); day > lastDay {
		day = lastDay
	}
	return timeToSerial(firstOfTarget.AddDate(0, 0, day-1)), nil
}

func (bf *BuiltInFunctions) EOMONTH(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "EOMONTH requires 2 arguments")
	}
	serial, ok1 := toNumber(args[0])
	months, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "EOMONTH requires a numeric date and month offset")
	}
	t := serialToTime(serial)
	firstOfTarget := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, int(months), 0)
	endOfMonth := firstOfTarget.AddDate(0, 1, -1)
	return timeToSerial(endOfMonth), nil
}
