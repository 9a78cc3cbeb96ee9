package spreadsheet

import "fmt"

// RefErrorNode is what a reference rewrites to when a row/column deletion
// removes the cell it pointed at. It renders as the literal "#REF!" token,
// the same way a broken reference looks after Excel deletes its target.
type RefErrorNode struct {
	Position NodePosition
}

func (n *RefErrorNode) Eval(s *Spreadsheet) (Primitive, error) {
	return NewSpreadsheetError(ErrorCodeRef, "Reference deleted"), nil
}

func (n *RefErrorNode) GetPosition() NodePosition { return n.Position }

func (n *RefErrorNode) ToString() string { return "#REF!" }

type rowColEditKind int

const (
	editInsertRows rowColEditKind = iota
	editDeleteRows
	editInsertCols
	editDeleteCols
)

// rowColEdit describes one row/column insertion or deletion against a
// single worksheet: index is the insertion point (insert) or the first
// removed row/column (delete); count is how many rows/columns move.
type rowColEdit struct {
	kind  rowColEditKind
	wsID  uint32
	index int32
	count int32
}

// shiftRow adjusts an absolute row affected by this edit. ok is false when
// row fell inside a deleted band, meaning whatever reference depended on it
// is now broken.
func (e rowColEdit) shiftRow(row int32) (newRow int32, ok bool) {
	switch e.kind {
	case editInsertRows:
		if row >= e.index {
			return row + e.count, true
		}
		return row, true
	case editDeleteRows:
		if row >= e.index && row < e.index+e.count {
			return 0, false
		}
		if row >= e.index+e.count {
			return row - e.count, true
		}
		return row, true
	default:
		return row, true
	}
}

func (e rowColEdit) shiftCol(col int32) (newCol int32, ok bool) {
	switch e.kind {
	case editInsertCols:
		if col >= e.index {
			return col + e.count, true
		}
		return col, true
	case editDeleteCols:
		if col >= e.index && col < e.index+e.count {
			return 0, false
		}
		if col >= e.index+e.count {
			return col - e.count, true
		}
		return col, true
	default:
		return col, true
	}
}

// shiftRowClamped is the range-endpoint variant of shiftRow: a coordinate
// inside a deleted band collapses to the edit boundary instead of
// invalidating the whole reference, the way a range survives losing some
// of its rows to a delete while a lone cell reference does not.
func (e rowColEdit) shiftRowClamped(row int32) int32 {
	switch e.kind {
	case editInsertRows:
		if row >= e.index {
			return row + e.count
		}
		return row
	case editDeleteRows:
		if row >= e.index && row < e.index+e.count {
			return e.index
		}
		if row >= e.index+e.count {
			return row - e.count
		}
		return row
	default:
		return row
	}
}

func (e rowColEdit) shiftColClamped(col int32) int32 {
	switch e.kind {
	case editInsertCols:
		if col >= e.index {
			return col + e.count
		}
		return col
	case editDeleteCols:
		if col >= e.index && col < e.index+e.count {
			return e.index
		}
		if col >= e.index+e.count {
			return col - e.count
		}
		return col
	default:
		return col
	}
}

// rewriteNodeForEdit rebuilds ast with every reference touching edit.wsID
// re-expressed relative to the formula's new home cell. Offsets are always
// relative to the formula's own cell, so a reference whose absolute target
// shifts by the same amount as the formula's own home cell keeps an
// unchanged offset; only references that cross the edit boundary
// differently than their formula's home cell actually change.
func rewriteNodeForEdit(node ASTNode, homeWsID uint32, oldHomeRow, oldHomeCol, newHomeRow, newHomeCol int32, edit rowColEdit) ASTNode {
	if node == nil {
		return nil
	}

	switch n := node.(type) {
	case *CellRefNode:
		targetWsID := n.WorksheetID
		if targetWsID == 0 {
			targetWsID = homeWsID
		}
		absRow := oldHomeRow + n.RowOffset
		absCol := oldHomeCol + n.ColOffset
		if targetWsID == edit.wsID {
			var rowOK, colOK bool
			absRow, rowOK = edit.shiftRow(absRow)
			absCol, colOK = edit.shiftCol(absCol)
			if !rowOK || !colOK {
				return &RefErrorNode{Position: n.Position}
			}
		}
		return &CellRefNode{
			WorksheetID: n.WorksheetID,
			RowOffset:   absRow - newHomeRow,
			ColOffset:   absCol - newHomeCol,
			Position:    n.Position,
		}

	case *RangeNode:
		targetWsID := n.WorksheetID
		if targetWsID == 0 {
			targetWsID = homeWsID
		}
		startRow := oldHomeRow + n.StartRowOffset
		startCol := oldHomeCol + n.StartColOffset
		endRow := oldHomeRow + n.EndRowOffset
		endCol := oldHomeCol + n.EndColOffset
		if targetWsID == edit.wsID {
			startRow = edit.shiftRowClamped(startRow)
			startCol = edit.shiftColClamped(startCol)
			endRow = edit.shiftRowClamped(endRow)
			endCol = edit.shiftColClamped(endCol)
		}
		return &RangeNode{
			WorksheetID:    n.WorksheetID,
			StartRowOffset: startRow - newHomeRow,
			StartColOffset: startCol - newHomeCol,
			EndRowOffset:   endRow - newHomeRow,
			EndColOffset:   endCol - newHomeCol,
			Position:       n.Position,
		}

	case *ImplicitIntersectionNode:
		return &ImplicitIntersectionNode{
			Operand:  rewriteNodeForEdit(n.Operand, homeWsID, oldHomeRow, oldHomeCol, newHomeRow, newHomeCol, edit),
			Position: n.Position,
		}

	case *UnaryOpNode:
		return &UnaryOpNode{
			Op:       n.Op,
			Operand:  rewriteNodeForEdit(n.Operand, homeWsID, oldHomeRow, oldHomeCol, newHomeRow, newHomeCol, edit),
			Position: n.Position,
		}

	case *BinaryOpNode:
		return &BinaryOpNode{
			Op:       n.Op,
			Left:     rewriteNodeForEdit(n.Left, homeWsID, oldHomeRow, oldHomeCol, newHomeRow, newHomeCol, edit),
			Right:    rewriteNodeForEdit(n.Right, homeWsID, oldHomeRow, oldHomeCol, newHomeRow, newHomeCol, edit),
			Position: n.Position,
		}

	case *FunctionCallNode:
		args := make([]ASTNode, len(n.Args))
		for i, arg := range n.Args {
			args[i] = rewriteNodeForEdit(arg, homeWsID, oldHomeRow, oldHomeCol, newHomeRow, newHomeCol, edit)
		}
		return &FunctionCallNode{Name: n.Name, Args: args, Position: n.Position}

	default:
		// NamedRangeNode, StringNode, NumberNode, BooleanNode, RefErrorNode:
		// nothing row/column-addressed to rewrite.
		return node
	}
}

// pendingCellEdit is a snapshot of one cell's fate under a row/column edit,
// computed before any mutation so that cells read later in the scan are
// never confused by cells already moved earlier in the same pass.
type pendingCellEdit struct {
	oldAddress string
	newAddress string // empty when deleted
	formula    string // "=..." text, empty for plain-value cells
	value      Primitive
}

// planRowColEdit scans every worksheet in the workbook and decides, for
// every occupied cell, whether the edit moves it, deletes it, or merely
// rewrites a cross-sheet formula reference in place.
func (s *Spreadsheet) planRowColEdit(edit rowColEdit) ([]pendingCellEdit, error) {
	var plan []pendingCellEdit

	for _, name := range s.ListWorksheets() {
		ws, exists := s.storage.worksheets.GetWorksheetByName(name)
		if !exists {
			continue
		}
		affected := ws.worksheetID == edit.wsID

		for _, pos := range ws.occupiedPositions() {
			cellAddr := CellAddress{WorksheetID: ws.worksheetID, Row: pos.Row, Column: pos.Col}
			formulaID, hasFormula := s.storage.formulas.GetFormulaAtCell(cellAddr)

			// non-formula cells on an unaffected worksheet can never change.
			if !hasFormula && !affected {
				continue
			}

			oldRow, oldCol := int32(pos.Row), int32(pos.Col)
			newRow, newCol := oldRow, oldCol
			deleted := false
			if affected {
				var rowOK, colOK bool
				newRow, rowOK = edit.shiftRow(oldRow)
				newCol, colOK = edit.shiftCol(oldCol)
				deleted = !rowOK || !colOK
			}

			oldAddrStr := fmt.Sprintf("%s!%s", name, a1CellRef(oldRow, oldCol))

			if deleted {
				plan = append(plan, pendingCellEdit{oldAddress: oldAddrStr})
				continue
			}

			if !hasFormula {
				if newRow == oldRow && newCol == oldCol {
					continue // unaffected, no-op
				}
				cell := ws.GetCell(pos.Row, pos.Col)
				newAddrStr := fmt.Sprintf("%s!%s", name, a1CellRef(newRow, newCol))
				plan = append(plan, pendingCellEdit{oldAddress: oldAddrStr, newAddress: newAddrStr, value: cell.Value})
				continue
			}

			ast, hasAST := s.storage.formulas.GetAST(formulaID)
			if !hasAST {
				continue
			}
			newAST := rewriteNodeForEdit(ast, ws.worksheetID, oldRow, oldCol, newRow, newCol, edit)
			newText := ToA1String(newAST, newRow, newCol, s.resolveWorksheetNameByID)

			newAddrStr := oldAddrStr
			if newRow != oldRow || newCol != oldCol {
				newAddrStr = fmt.Sprintf("%s!%s", name, a1CellRef(newRow, newCol))
			}
			plan = append(plan, pendingCellEdit{oldAddress: oldAddrStr, newAddress: newAddrStr, formula: "=" + newText})
		}
	}

	return plan, nil
}

// applyRowColEdit plans then executes a row/column insert or delete: every
// old address in the plan is cleared first, then every surviving cell is
// written to its new address, so a cell read earlier in planning is never
// clobbered by another cell's move before it has been captured.
func (s *Spreadsheet) applyRowColEdit(edit rowColEdit) error {
	plan, err := s.planRowColEdit(edit)
	if err != nil {
		return err
	}

	for _, e := range plan {
		if err := s.Remove(e.oldAddress); err != nil {
			return err
		}
	}
	for _, e := range plan {
		if e.newAddress == "" {
			continue // deleted
		}
		if e.formula != "" {
			if err := s.Set(e.newAddress, e.formula); err != nil {
				return err
			}
			continue
		}
		if err := s.Set(e.newAddress, e.value); err != nil {
			return err
		}
	}
	return nil
}

// resolveWorksheetIDByName is a thin convenience used by the Insert/Delete
// Rows/Columns entry points to turn a sheet name into the ID rowColEdit
// operates on.
func (s *Spreadsheet) resolveWorksheetIDByName(name string) (uint32, error) {
	ws, exists := s.storage.worksheets.GetWorksheetByName(name)
	if !exists {
		return 0, NewApplicationError(NotFound, fmt.Sprintf("Worksheet '%s' not found", name))
	}
	return ws.worksheetID, nil
}

// InsertRowsBefore shifts every cell at or below beforeRow down by count
// rows, offsetting every formula (on this worksheet or any other) that
// references the affected region.
func (s *Spreadsheet) InsertRowsBefore(worksheetName string, beforeRow uint32, count uint32) error {
	wsID, err := s.resolveWorksheetIDByName(worksheetName)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	return s.applyRowColEdit(rowColEdit{kind: editInsertRows, wsID: wsID, index: int32(beforeRow), count: int32(count)})
}

// DeleteRows removes count rows starting at startRow, shifting everything
// below up; a single-cell reference into the removed band becomes #REF!,
// while a range endpoint inside it is clamped so the range shrinks.
func (s *Spreadsheet) DeleteRows(worksheetName string, startRow uint32, count uint32) error {
	wsID, err := s.resolveWorksheetIDByName(worksheetName)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	return s.applyRowColEdit(rowColEdit{kind: editDeleteRows, wsID: wsID, index: int32(startRow), count: int32(count)})
}

// InsertColumnsBefore shifts every cell at or right of beforeCol right by
// count columns, offsetting every formula that references the affected
// region the same way InsertRowsBefore does for rows.
func (s *Spreadsheet) InsertColumnsBefore(worksheetName string, beforeCol uint32, count uint32) error {
	wsID, err := s.resolveWorksheetIDByName(worksheetName)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	return s.applyRowColEdit(rowColEdit{kind: editInsertCols, wsID: wsID, index: int32(beforeCol), count: int32(count)})
}

// DeleteColumns removes count columns starting at startCol, mirroring
// DeleteRows for the column axis.
func (s *Spreadsheet) DeleteColumns(worksheetName string, startCol uint32, count uint32) error {
	wsID, err := s.resolveWorksheetIDByName(worksheetName)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	return s.applyRowColEdit(rowColEdit{kind: editDeleteCols, wsID: wsID, index: int32(startCol), count: int32(count)})
}

// occupiedPositions enumerates every non-empty cell's (row, col) across all
// allocated chunks. Chunks are only ever allocated lazily for touched
// regions, so this stays proportional to actual sheet contents rather than
// declared sheet dimensions.
func (w *Worksheet) occupiedPositions() []struct{ Row, Col uint32 } {
	var positions []struct{ Row, Col uint32 }
	for key, chunk := range w.chunks {
		baseRow := key.ChunkRow * ChunkRows
		baseCol := key.ChunkCol * ChunkCols
		for idx := 0; idx < len(chunk.Types); idx++ {
			localCol := uint32(idx) / ChunkRows
			localRow := uint32(idx) % ChunkRows
			hasFormula := chunk.FormulaIDs != nil && idx < len(chunk.FormulaIDs) && chunk.FormulaIDs[idx] != 0
			if chunk.Types[idx] == uint8(CellValueTypeEmpty) && !hasFormula {
				continue
			}
			positions = append(positions, struct{ Row, Col uint32 }{Row: baseRow + localRow, Col: baseCol + localCol})
		}
	}
	return positions
}
