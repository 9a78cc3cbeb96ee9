package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
)

// binaryOpText maps a BinaryOp back to the operator text used when
// rendering a formula, shared by both the A1 and R1C1 renderers.
var binaryOpText = map[BinaryOp]string{
	BinOpAdd:          "+",
	BinOpSubtract:     "-",
	BinOpMultiply:     "*",
	BinOpDivide:       "/",
	BinOpModulo:       "%",
	BinOpPower:        "^",
	BinOpConcat:       "&",
	BinOpEqual:        "=",
	BinOpNotEqual:     "<>",
	BinOpLess:         "<",
	BinOpLessEqual:    "<=",
	BinOpGreater:      ">",
	BinOpGreaterEqual: ">=",
}

// r1c1Component renders one axis (row or column) of an R1C1 reference:
// offset 0 is the bare letter ("R"/"C"), any other offset is bracketed
// ("R[-2]", "C[3]").
func r1c1Component(letter byte, offset int32) string {
	if offset == 0 {
		return string(letter)
	}
	return fmt.Sprintf("%c[%d]", letter, offset)
}

// ToR1C1String renders a formula AST using R1C1 notation — the form in
// which shared formulas are persisted, with every reference expressed as
// an offset from the formula's home cell rather than an absolute address.
// This is the inverse of parseR1C1Address/tryScanR1C1: parsing converts
// R1C1 text straight into the RowOffset/ColOffset fields already carried
// by CellRefNode/RangeNode, and this walk converts them straight back.
func ToR1C1String(node ASTNode) string {
	if node == nil {
		return ""
	}
	switch n := node.(type) {
	case *CellRefNode:
		ref := r1c1Component('R', n.RowOffset) + r1c1Component('C', n.ColOffset)
		if n.WorksheetID != 0 {
			return fmt.Sprintf("WS%d!%s", n.WorksheetID, ref)
		}
		return ref

	case *RangeNode:
		start := r1c1Component('R', n.StartRowOffset) + r1c1Component('C', n.StartColOffset)
		end := r1c1Component('R', n.EndRowOffset) + r1c1Component('C', n.EndColOffset)
		ref := start + ":" + end
		if n.WorksheetID != 0 {
			return fmt.Sprintf("WS%d!%s", n.WorksheetID, ref)
		}
		return ref

	case *NamedRangeNode:
		return n.Name

	case *StringNode:
		return n.ToString()

	case *NumberNode:
		return n.ToString()

	case *BooleanNode:
		return n.ToString()

	case *ImplicitIntersectionNode:
		return "@" + ToR1C1String(n.Operand)

	case *UnaryOpNode:
		operand := ToR1C1String(n.Operand)
		if _, ok := n.Operand.(*BinaryOpNode); ok {
			operand = "(" + operand + ")"
		}
		if n.Op == UnaryOpPercent {
			return operand + "%"
		}
		op := "-"
		if n.Op == UnaryOpPlus {
			op = "+"
		}
		return op + operand

	case *BinaryOpNode:
		// the AST keeps no parenthesis node, so nested operations are
		// bracketed to keep the rendered text parsing back to the same tree
		left, right := ToR1C1String(n.Left), ToR1C1String(n.Right)
		if _, ok := n.Left.(*BinaryOpNode); ok {
			left = "(" + left + ")"
		}
		if _, ok := n.Right.(*BinaryOpNode); ok {
			right = "(" + right + ")"
		}
		return left + binaryOpText[n.Op] + right

	case *FunctionCallNode:
		args := make([]string, len(n.Args))
		for i, arg := range n.Args {
			args[i] = ToR1C1String(arg)
		}
		return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))

	default:
		return node.ToString()
	}
}

// a1CellRef renders a (row, col) pair (0-based) as an A1-style cell
// reference, e.g. row=2, col=1 -> "B3".
func a1CellRef(row, col int32) string {
	return columnToLetters(int(col)+1) + strconv.Itoa(int(row)+1)
}

// ToA1String renders a formula AST anchored at (row, col) — the formula's
// home cell — using A1 notation, resolving every relative offset to an
// absolute address the way a spreadsheet UI displays it. This is the
// rendering extend_to/get_cell_content need: the same shared-formula AST
// produces different A1 text depending on which cell it is stringified
// against, since every CellRefNode/RangeNode only carries an offset.
func ToA1String(node ASTNode, row, col int32, resolveWorksheetName func(uint32) (string, bool)) string {
	if node == nil {
		return ""
	}
	switch n := node.(type) {
	case *CellRefNode:
		ref := a1CellRef(row+n.RowOffset, col+n.ColOffset)
		if n.WorksheetID != 0 {
			if name, ok := resolveWorksheetName(n.WorksheetID); ok {
				return name + "!" + ref
			}
		}
		return ref

	case *RangeNode:
		start := a1CellRef(row+n.StartRowOffset, col+n.StartColOffset)
		end := a1CellRef(row+n.EndRowOffset, col+n.EndColOffset)
		ref := start + ":" + end
		if n.WorksheetID != 0 {
			if name, ok := resolveWorksheetName(n.WorksheetID); ok {
				return name + "!" + ref
			}
		}
		return ref

	case *NamedRangeNode:
		return n.Name

	case *StringNode:
		return n.ToString()

	case *NumberNode:
		return n.ToString()

	case *BooleanNode:
		return n.ToString()

	case *ImplicitIntersectionNode:
		return "@" + ToA1String(n.Operand, row, col, resolveWorksheetName)

	case *UnaryOpNode:
		operand := ToA1String(n.Operand, row, col, resolveWorksheetName)
		if _, ok := n.Operand.(*BinaryOpNode); ok {
			operand = "(" + operand + ")"
		}
		if n.Op == UnaryOpPercent {
			return operand + "%"
		}
		op := "-"
		if n.Op == UnaryOpPlus {
			op = "+"
		}
		return op + operand

	case *BinaryOpNode:
		// nested operations are bracketed, as in ToR1C1String
		left := ToA1String(n.Left, row, col, resolveWorksheetName)
		if _, ok := n.Left.(*BinaryOpNode); ok {
			left = "(" + left + ")"
		}
		right := ToA1String(n.Right, row, col, resolveWorksheetName)
		if _, ok := n.Right.(*BinaryOpNode); ok {
			right = "(" + right + ")"
		}
		return left + binaryOpText[n.Op] + right

	case *FunctionCallNode:
		args := make([]string, len(n.Args))
		for i, arg := range n.Args {
			args[i] = ToA1String(arg, row, col, resolveWorksheetName)
		}
		return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))

	default:
		return node.ToString()
	}
}

// ParseFormulaR1C1 parses formula text written in R1C1 notation (as read
// back from the shared-formula table) into an AST anchored at the given
// worksheet/row/column.
func ParseFormulaR1C1(formula string, worksheetID uint32, row, col int32, resolveWorksheet func(string) uint32) (ASTNode, error) {
	lexer := NewLexerForFormula(formula, RefStyleR1C1)
	tokens, lexErrors := lexer.Tokenize()
	if len(lexErrors) > 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("lexer errors: %v", lexErrors))
	}
	parser := NewParser(tokens, &ParserContext{
		CurrentWorksheetID: worksheetID,
		CurrentRow:         row,
		CurrentColumn:      col,
		ResolveWorksheet:   resolveWorksheet,
		RefStyle:           RefStyleR1C1,
	})
	return parser.Parse()
}
