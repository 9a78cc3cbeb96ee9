package spreadsheet

import (
	"fmt"
	"strings"
)

// rangeGrid flattens a Range into a row-major 2D grid of values, the shape
// VLOOKUP/HLOOKUP/INDEX need to address by (row, column) rather than by
// flat position. A bare scalar argument becomes a 1x1 grid so the same
// lookup code can also be called with a single cell.
func rangeGrid(arg Primitive) ([][]Primitive, error) {
	cr, ok := arg.(*CellRange)
	if !ok {
		if r, ok := arg.(Range); ok {
			// a Range that isn't a *CellRange (shouldn't happen in this
			// engine, but keep lookups from panicking if it ever does)
			var flat []Primitive
			for v := range r.IterateValues() {
				flat = append(flat, v)
			}
			return [][]Primitive{flat}, nil
		}
		return [][]Primitive{{arg}}, nil
	}

	rows := int(cr.endRow-cr.startRow) + 1
	cols := int(cr.endCol-cr.startCol) + 1
	grid := make([][]Primitive, rows)
	for i := range grid {
		grid[i] = make([]Primitive, cols)
	}
	if cr.worksheet == nil {
		return grid, nil
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cell := cr.worksheet.GetCell(cr.startRow+uint32(r), cr.startCol+uint32(c))
			if cell != nil {
				grid[r][c] = cell.Value
			}
		}
	}
	return grid, nil
}

// lookupMatch reports whether a cell value matches a lookup key the way
// VLOOKUP/HLOOKUP/MATCH do: numeric comparison when both sides are
// numbers, case-insensitive text comparison (with wildcard support)
// otherwise.
func (bf *BuiltInFunctions) lookupMatch(cellVal, key Primitive) bool {
	if numA, okA := toNumber(cellVal); okA {
		if numB, okB := toNumber(key); okB {
			return numA == numB
		}
	}
	keyStr, isStr := key.(string)
	if isStr && strings.ContainsAny(keyStr, "*?") {
		re, err := bf.compileWildcard(keyStr)
		if err == nil {
			return re.MatchString(toString(cellVal))
		}
	}
	return strings.EqualFold(toString(cellVal), toString(key))
}

// VLOOKUP returns the value in column col_index of the first row whose
// first cell matches the key (case-insensitive, wildcard-aware). The
// fourth argument (range_lookup) is accepted but not acted on: every
// lookup is this exact match, and there is no approximate sorted search.
func (bf *BuiltInFunctions) VLOOKUP(args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 4 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "VLOOKUP requires 2 to 4 arguments")
	}
	key := args[0]
	grid, err := rangeGrid(args[1])
	if err != nil {
		return nil, err
	}
	colIndex, ok := toNumber(args[2])
	if !ok || int(colIndex) < 1 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "VLOOKUP column index must be a positive number")
	}
	exact := len(args) == 4 && !isTruthy(args[3])

	for _, row := range grid {
		if len(row) == 0 {
			continue
		}
		if bf.lookupMatch(row[0], key) {
			idx := int(colIndex) - 1
			if idx >= len(row) {
				return nil, NewSpreadsheetError(ErrorCodeRef, "VLOOKUP column index out of range")
			}
			return row[idx], nil
		}
		_ = exact
	}
	return nil, NewSpreadsheetError(ErrorCodeNA, "VLOOKUP found no match")
}

// HLOOKUP is VLOOKUP transposed: it matches the key against the first row
// and returns from the given row. As with VLOOKUP, range_lookup is accepted
// but every lookup is an exact, case-insensitive, wildcard-aware match.
func (bf *BuiltInFunctions) HLOOKUP(args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 4 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "HLOOKUP requires 2 to 4 arguments")
	}
	key := args[0]
	grid, err := rangeGrid(args[1])
	if err != nil {
		return nil, err
	}
	rowIndex, ok := toNumber(args[2])
	if !ok || int(rowIndex) < 1 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "HLOOKUP row index must be a positive number")
	}
	if len(grid) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "HLOOKUP found no match")
	}

	cols := len(grid[0])
	for c := 0; c < cols; c++ {
		if bf.lookupMatch(grid[0][c], key) {
			idx := int(rowIndex) - 1
			if idx >= len(grid) {
				return nil, NewSpreadsheetError(ErrorCodeRef, "HLOOKUP row index out of range")
			}
			if c >= len(grid[idx]) {
				return nil, NewSpreadsheetError(ErrorCodeRef, "HLOOKUP row index out of range")
			}
			return grid[idx][c], nil
		}
	}
	return nil, NewSpreadsheetError(ErrorCodeNA, "HLOOKUP found no match")
}

func (bf *BuiltInFunctions) MATCH(args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MATCH requires 2 or 3 arguments")
	}
	key := args[0]
	grid, err := rangeGrid(args[1])
	if err != nil {
		return nil, err
	}
	matchType := 1.0
	if len(args) == 3 {
		if mt, ok := toNumber(args[2]); ok {
			matchType = mt
		}
	}

	var flat []Primitive
	for _, row := range grid {
		flat = append(flat, row...)
	}

	if matchType == 0 {
		for i, v := range flat {
			if bf.lookupMatch(v, key) {
				return float64(i + 1), nil
			}
		}
		return nil, NewSpreadsheetError(ErrorCodeNA, "MATCH found no exact match")
	}

	// approximate match: assumes ascending (matchType 1) or descending
	// (matchType -1) order, matching the closest value on the given side
	bestIdx := -1
	for i, v := range flat {
		numV, okV := toNumber(v)
		numKey, okKey := toNumber(key)
		if !okV || !okKey {
			continue
		}
		if matchType > 0 && numV <= numKey {
			bestIdx = i
		} else if matchType < 0 && numV >= numKey {
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MATCH found no match")
	}
	return float64(bestIdx + 1), nil
}

func (bf *BuiltInFunctions) INDEX(args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "INDEX requires 2 or 3 arguments")
	}
	grid, err := rangeGrid(args[0])
	if err != nil {
		return nil, err
	}
	rowNum, ok := toNumber(args[1])
	if !ok || rowNum < 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "INDEX row number must be a non-negative number")
	}
	colNum := 0.0
	if len(args) == 3 {
		colNum, ok = toNumber(args[2])
		if !ok || colNum < 0 {
			return nil, NewSpreadsheetError(ErrorCodeValue, "INDEX column number must be a non-negative number")
		}
	}

	if int(rowNum) == 0 && int(colNum) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "INDEX requires at least one of row/column to be non-zero")
	}

	// whole-column selection: INDEX(range, 0, c)
	if int(rowNum) == 0 {
		c := int(colNum) - 1
		var col []Primitive
		for _, row := range grid {
			if c < len(row) {
				col = append(col, row[c])
			}
		}
		if len(col) == 1 {
			return col[0], nil
		}
		return nil, NewSpreadsheetError(ErrorCodeNimpl, "INDEX whole-column array results are not supported")
	}

	r := int(rowNum) - 1
	if r >= len(grid) {
		return nil, NewSpreadsheetError(ErrorCodeRef, "INDEX row out of range")
	}
	if int(colNum) == 0 {
		if len(grid[r]) == 1 {
			return grid[r][0], nil
		}
		return nil, NewSpreadsheetError(ErrorCodeNimpl, "INDEX whole-row array results are not supported")
	}
	c := int(colNum) - 1
	if c >= len(grid[r]) {
		return nil, NewSpreadsheetError(ErrorCodeRef, "INDEX column out of range")
	}
	return grid[r][c], nil
}

func (bf *BuiltInFunctions) LOOKUP(args ...any) (Primitive, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LOOKUP requires 2 or 3 arguments")
	}
	key := args[0]
	lookupGrid, err := rangeGrid(args[1])
	if err != nil {
		return nil, err
	}

	var lookupVec, resultVec []Primitive
	for _, row := range lookupGrid {
		lookupVec = append(lookupVec, row...)
	}
	if len(args) == 3 {
		resultGrid, err := rangeGrid(args[2])
		if err != nil {
			return nil, err
		}
		for _, row := range resultGrid {
			resultVec = append(resultVec, row...)
		}
	} else {
		resultVec = lookupVec
	}

	bestIdx := -1
	for i, v := range lookupVec {
		numV, okV := toNumber(v)
		numKey, okKey := toNumber(key)
		if okV && okKey {
			if numV <= numKey {
				bestIdx = i
			}
			continue
		}
		if bf.lookupMatch(v, key) {
			bestIdx = i
		}
	}
	if bestIdx == -1 || bestIdx >= len(resultVec) {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LOOKUP found no match")
	}
	return resultVec[bestIdx], nil
}

// INDIRECT resolves a cell/range address given as text at evaluation time,
// rather than at parse time like every other reference. It is the one
// function in this engine that builds an AST node mid-Call instead of the
// parser doing it, since the address isn't known until the argument is
// evaluated.
func (bf *BuiltInFunctions) INDIRECT(args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "INDIRECT requires 1 or 2 arguments")
	}
	addrText, ok := args[0].(string)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "INDIRECT requires a text address")
	}
	if bf.indirectResolver == nil {
		return nil, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("cannot resolve INDIRECT(%q)", addrText))
	}
	return bf.indirectResolver(addrText)
}
