package spreadsheet

import "math"

// cashflowValues flattens NPV/IRR-style arguments (a mix of scalars and
// ranges, in the order given) into a single ordered slice of numbers.
func cashflowValues(args []any) ([]float64, error) {
	var values []float64
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for v := range r.IterateValues() {
				if err := checkForError(v); err != nil {
					return nil, err
				}
				if num, ok := toNumber(v); ok {
					values = append(values, num)
				}
			}
			continue
		}
		if num, ok := toNumber(arg); ok {
			values = append(values, num)
		}
	}
	return values, nil
}

func (bf *BuiltInFunctions) NPV(args ...any) (Primitive, error) {
	if len(args) < 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NPV requires a rate and at least one cash flow")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	rate, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "NPV requires a numeric rate")
	}
	flows, err := cashflowValues(args[1:])
	if err != nil {
		return nil, err
	}
	if len(flows) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NPV requires at least one cash flow")
	}
	npv := 0.0
	for i, cf := range flows {
		npv += cf / math.Pow(1+rate, float64(i+1))
	}
	return npv, nil
}

// xnpvDates pairs each flow argument with an explicit date, required by
// XNPV/XIRR since their cash flows aren't assumed to be evenly spaced.
func xnpvDates(flowsArg, datesArg Primitive) ([]float64, []float64, error) {
	flowR, flowIsRange := flowsArg.(Range)
	dateR, dateIsRange := datesArg.(Range)
	if !flowIsRange || !dateIsRange {
		return nil, nil, NewSpreadsheetError(ErrorCodeValue, "XNPV/XIRR require range arguments for values and dates")
	}
	var flows, dates []float64
	for v := range flowR.IterateValues() {
		if err := checkForError(v); err != nil {
			return nil, nil, err
		}
		num, ok := toNumber(v)
		if !ok {
			return nil, nil, NewSpreadsheetError(ErrorCodeValue, "XNPV/XIRR values must be numeric")
		}
		flows = append(flows, num)
	}
	for v := range dateR.IterateValues() {
		if err := checkForError(v); err != nil {
			return nil, nil, err
		}
		num, ok := toNumber(v)
		if !ok {
			return nil, nil, NewSpreadsheetError(ErrorCodeValue, "XNPV/XIRR dates must be numeric serial dates")
		}
		dates = append(dates, num)
	}
	if len(flows) != len(dates) || len(flows) == 0 {
		return nil, nil, NewSpreadsheetError(ErrorCodeNum, "XNPV/XIRR values and dates must be the same non-empty length")
	}
	for i := 1; i < len(dates); i++ {
		if dates[i] < dates[0] {
			return nil, nil, NewSpreadsheetError(ErrorCodeNum, "XNPV/XIRR dates must not precede the first date")
		}
	}
	return flows, dates, nil
}

func xnpvAt(rate float64, flows, dates []float64) float64 {
	total := 0.0
	for i, cf := range flows {
		years := (dates[i] - dates[0]) / 365.0
		total += cf / math.Pow(1+rate, years)
	}
	return total
}

func (bf *BuiltInFunctions) XNPV(args ...any) (Primitive, error) {
	if len(args) != 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "XNPV requires exactly 3 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	rate, ok := toNumber(args[0])
	if !ok || rate <= 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "XNPV requires a rate greater than 0")
	}
	flows, dates, err := xnpvDates(args[1], args[2])
	if err != nil {
		return nil, err
	}
	return xnpvAt(rate, flows, dates), nil
}

// newtonSolve finds a root of f via Newton's method starting from guess,
// the approach the spec's financial iteratives (IRR/XIRR/RATE) share: no
// pack dependency offers a numerical root-finder, so a bounded Newton loop
// is this engine's one deliberately stdlib-only numerical routine.
func newtonSolve(guess float64, f func(float64) float64, fPrime func(float64) float64) (float64, bool) {
	x := guess
	for i := 0; i < 100; i++ {
		fx := f(x)
		if math.Abs(fx) < 1e-10 {
			return x, true
		}
		dfx := fPrime(x)
		if dfx == 0 {
			return 0, false
		}
		next := x - fx/dfx
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return 0, false
		}
		x = next
	}
	return x, math.Abs(f(x)) < 1e-6
}

func numericDerivative(f func(float64) float64, x float64) float64 {
	const h = 1e-6
	return (f(x+h) - f(x-h)) / (2 * h)
}

func (bf *BuiltInFunctions) IRR(args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IRR requires 1 or 2 arguments")
	}
	flows, err := cashflowValues(args[:1])
	if err != nil {
		return nil, err
	}
	if len(flows) < 2 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "IRR requires at least two cash flows")
	}
	guess := 0.1
	if len(args) == 2 {
		if g, ok := toNumber(args[1]); ok {
			guess = g
		}
	}
	f := func(rate float64) float64 {
		total := 0.0
		for i, cf := range flows {
			total += cf / math.Pow(1+rate, float64(i))
		}
		return total
	}
	rate, ok := newtonSolve(guess, f, func(r float64) float64 { return numericDerivative(f, r) })
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeNum, "IRR did not converge")
	}
	return rate, nil
}

func (bf *BuiltInFunctions) XIRR(args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "XIRR requires 2 or 3 arguments")
	}
	flows, dates, err := xnpvDates(args[0], args[1])
	if err != nil {
		return nil, err
	}
	guess := 0.1
	if len(args) == 3 {
		if g, ok := toNumber(args[2]); ok {
			guess = g
		}
	}
	f := func(rate float64) float64 { return xnpvAt(rate, flows, dates) }
	rate, ok := newtonSolve(guess, f, func(r float64) float64 { return numericDerivative(f, r) })
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeNum, "XIRR did not converge")
	}
	return rate, nil
}

func (bf *BuiltInFunctions) RATE(args ...any) (Primitive, error) {
	if len(args) < 3 || len(args) > 6 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "RATE requires 3 to 6 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	nper, ok1 := toNumber(args[0])
	pmt, ok2 := toNumber(args[1])
	pv, ok3 := toNumber(args[2])
	if !ok1 || !ok2 || !ok3 || nper <= 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "RATE requires numeric nper/pmt/pv with nper > 0")
	}
	fv := 0.0
	if len(args) >= 4 {
		if v, ok := toNumber(args[3]); ok {
			fv = v
		}
	}
	guess := 0.1
	if len(args) >= 6 {
		if v, ok := toNumber(args[5]); ok {
			guess = v
		}
	}
	f := func(rate float64) float64 {
		if rate == 0 {
			return pv + pmt*nper + fv
		}
		return pv*math.Pow(1+rate, nper) + pmt*(math.Pow(1+rate, nper)-1)/rate + fv
	}
	rate, ok := newtonSolve(guess, f, func(r float64) float64 { return numericDerivative(f, r) })
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeNum, "RATE did not converge")
	}
	return rate, nil
}

func (bf *BuiltInFunctions) PV(args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 5 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "PV requires 2 to 5 arguments")
	}
	rate, ok1 := toNumber(args[0])
	nper, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "PV requires a numeric rate and nper")
	}
	pmt := 0.0
	if len(args) >= 3 {
		pmt, _ = toNumber(args[2])
	}
	fv := 0.0
	if len(args) >= 4 {
		fv, _ = toNumber(args[3])
	}
	if rate == 0 {
		return -(fv + pmt*nper), nil
	}
	return -(fv + pmt*(math.Pow(1+rate, nper)-1)/rate) / math.Pow(1+rate, nper), nil
}

func (bf *BuiltInFunctions) FV(args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 5 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "FV requires 2 to 5 arguments")
	}
	rate, ok1 := toNumber(args[0])
	nper, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "FV requires a numeric rate and nper")
	}
	pmt := 0.0
	if len(args) >= 3 {
		pmt, _ = toNumber(args[2])
	}
	pv := 0.0
	if len(args) >= 4 {
		pv, _ = toNumber(args[3])
	}
	if rate == 0 {
		return -(pv + pmt*nper), nil
	}
	return -(pv*math.Pow(1+rate, nper) + pmt*(math.Pow(1+rate, nper)-1)/rate), nil
}
