package spreadsheet

// ImplicitIntersectionNode wraps an operand that evaluates to a range and
// collapses it to the single cell at the intersection of that range with
// the row (or column) of the formula's own cell. It is produced two ways:
// a user can type the "@" prefix explicitly ("=@A1:A10"), or
// AddImplicitIntersection inserts one automatically wherever a range-typed
// operand would otherwise reach a scalar-only position (a binary operator,
// or a function argument that isn't itself range-aware).
type ImplicitIntersectionNode struct {
	Operand  ASTNode
	Position NodePosition
}

func (n *ImplicitIntersectionNode) Eval(s *Spreadsheet) (Primitive, error) {
	val, err := n.Operand.Eval(s)
	if err != nil {
		return nil, err
	}

	r, ok := val.(Range)
	if !ok {
		// not a range: intersection is a no-op, matches a plain reference
		return val, nil
	}

	bounds := r.GetBounds()
	addr := s.GetCurrentAddress()

	rowInBounds := uint32(addr.Row) >= bounds.StartRow && uint32(addr.Row) <= bounds.EndRow
	colInBounds := uint32(addr.Column) >= bounds.StartColumn && uint32(addr.Column) <= bounds.EndColumn

	var targetRow, targetCol uint32
	switch {
	case bounds.StartColumn == bounds.EndColumn && colInBounds:
		// single-column range: intersect against the formula's row
		if !rowInBounds && bounds.StartRow != bounds.EndRow {
			return NewSpreadsheetError(ErrorCodeValue, "implicit intersection has no matching cell"), nil
		}
		targetRow = addr.Row
		if !rowInBounds {
			targetRow = bounds.StartRow
		}
		targetCol = bounds.StartColumn

	case bounds.StartRow == bounds.EndRow && rowInBounds:
		// single-row range: intersect against the formula's column
		targetRow = bounds.StartRow
		targetCol = addr.Column
		if !colInBounds {
			targetCol = bounds.StartColumn
		}

	case rowInBounds && colInBounds:
		targetRow = addr.Row
		targetCol = addr.Column

	default:
		return NewSpreadsheetError(ErrorCodeValue, "implicit intersection has no matching cell"), nil
	}

	cr, ok := r.(*CellRange)
	if !ok {
		return NewSpreadsheetError(ErrorCodeValue, "implicit intersection requires a cell range"), nil
	}
	worksheet := cr.worksheet
	if worksheet == nil {
		return nil, nil
	}
	cell := worksheet.GetCell(targetRow, targetCol)
	if cell == nil {
		return nil, nil
	}
	return cell.Value, nil
}

func (n *ImplicitIntersectionNode) GetPosition() NodePosition {
	return n.Position
}

func (n *ImplicitIntersectionNode) ToString() string {
	return "@" + n.Operand.ToString()
}

// rangeAwareFunctions lists builtins whose arguments are meant to receive
// whole ranges rather than a single intersected cell (aggregates, lookups,
// and anything that iterates a range's shape). AddImplicitIntersection
// leaves arguments to these functions untouched.
var rangeAwareFunctions = map[string]bool{
	"SUM": true, "AVERAGE": true, "AVERAGEA": true, "COUNT": true, "COUNTA": true,
	"MAX": true, "MIN": true, "MEDIAN": true, "MODE": true,
	"SUMIF": true, "COUNTIF": true, "AVERAGEIF": true,
	"SUMIFS": true, "COUNTIFS": true, "AVERAGEIFS": true,
	"VLOOKUP": true, "HLOOKUP": true, "MATCH": true, "INDEX": true, "LOOKUP": true,
	"ROWS": true, "COLUMNS": true, "STDEV": true, "VAR": true,
	"LARGE": true, "SMALL": true, "RANK": true, "COUNTBLANK": true,
}

// AddImplicitIntersection walks a freshly parsed AST and inserts
// ImplicitIntersectionNode wherever a range-typed reference would
// otherwise flow into a scalar-only position: a binary/unary operator
// operand, or an argument to a function that does not consume ranges
// directly. Ranges passed to range-aware functions, and ranges already
// wrapped by an explicit "@", are left untouched.
func AddImplicitIntersection(node ASTNode) ASTNode {
	switch n := node.(type) {
	case *RangeNode:
		return &ImplicitIntersectionNode{Operand: n, Position: n.Position}

	case *NamedRangeNode:
		// named ranges may resolve to either a single cell or a range;
		// ImplicitIntersectionNode.Eval is a no-op when the value isn't
		// a Range, so wrapping unconditionally is safe either way
		return &ImplicitIntersectionNode{Operand: n, Position: n.Position}

	case *BinaryOpNode:
		n.Left = AddImplicitIntersection(n.Left)
		n.Right = AddImplicitIntersection(n.Right)
		return n

	case *UnaryOpNode:
		n.Operand = AddImplicitIntersection(n.Operand)
		return n

	case *ImplicitIntersectionNode:
		// user already wrote "@"; don't double-wrap. The operand is
		// returned as-is, not walked ("@" only ever wraps a single
		// reference)
		return n

	case *FunctionCallNode:
		if rangeAwareFunctions[n.Name] {
			return n
		}
		for i, arg := range n.Args {
			n.Args[i] = AddImplicitIntersection(arg)
		}
		return n

	default:
		return node
	}
}
