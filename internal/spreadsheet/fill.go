package spreadsheet

import "fmt"

// resolveWorksheetNameByID looks up a worksheet's display name from its
// internal ID, the callback ToA1String needs to qualify cross-sheet
// references when rendering a formula back to text.
func (s *Spreadsheet) resolveWorksheetNameByID(id uint32) (string, bool) {
	return s.storage.worksheets.GetWorksheetName(id)
}

// GetCellContent returns what a user would see if they opened this cell
// for editing: the A1-form formula text (with the leading "=") if the cell
// holds a formula, or the plain text of its stored value otherwise.
func (s *Spreadsheet) GetCellContent(address string) (string, error) {
	worksheetID, row, col, err := s.resolveAddress(address)
	if err != nil {
		return "", err
	}
	if worksheetID == 0 {
		worksheetID = s.currentAddress.WorksheetID
	}
	cellAddr := CellAddress{WorksheetID: worksheetID, Row: row, Column: col}

	if formulaID, hasFormula := s.storage.formulas.GetFormulaAtCell(cellAddr); hasFormula {
		ast, exists := s.storage.formulas.GetAST(formulaID)
		if !exists {
			return "", NewApplicationError(Internal, "formula ID has no cached AST")
		}
		text := ToA1String(ast, int32(row), int32(col), s.resolveWorksheetNameByID)
		return "=" + text, nil
	}

	worksheet, exists := s.storage.worksheets.GetWorksheet(worksheetID)
	if !exists {
		return "", NewApplicationError(NotFound, "Worksheet not found")
	}
	cell := worksheet.GetCell(row, col)
	if cell == nil {
		return "", nil
	}
	return toString(cell.Value), nil
}

// ExtendTo implements fill/copy: it takes the formula living at srcAddress
// and renders it as if it had been typed directly into targetAddress. The
// underlying AST never moves or gets re-parsed — every reference it holds
// is already a relative offset from its home cell, so only the A1
// rendering anchor changes.
func (s *Spreadsheet) ExtendTo(srcAddress string, targetAddress string) (string, error) {
	srcWorksheetID, srcRow, srcCol, err := s.resolveAddress(srcAddress)
	if err != nil {
		return "", err
	}
	if srcWorksheetID == 0 {
		srcWorksheetID = s.currentAddress.WorksheetID
	}
	srcCell := CellAddress{WorksheetID: srcWorksheetID, Row: srcRow, Column: srcCol}

	formulaID, hasFormula := s.storage.formulas.GetFormulaAtCell(srcCell)
	if !hasFormula {
		return "", NewApplicationError(FailedPrecondition, fmt.Sprintf("cell %s does not hold a formula", srcAddress))
	}
	ast, exists := s.storage.formulas.GetAST(formulaID)
	if !exists {
		return "", NewApplicationError(Internal, "formula ID has no cached AST")
	}

	_, targetRow, targetCol, err := s.resolveAddress(targetAddress)
	if err != nil {
		return "", err
	}

	text := ToA1String(ast, int32(targetRow), int32(targetCol), s.resolveWorksheetNameByID)
	return "=" + text, nil
}
