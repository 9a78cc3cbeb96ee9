package spreadsheet

func (bf *BuiltInFunctions) ISBLANK(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ISBLANK requires 1 argument")
	}
	return args[0] == nil, nil
}

func (bf *BuiltInFunctions) ISNUMBER(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ISNUMBER requires 1 argument")
	}
	_, ok := args[0].(float64)
	return ok, nil
}

func (bf *BuiltInFunctions) ISTEXT(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ISTEXT requires 1 argument")
	}
	_, ok := args[0].(string)
	return ok, nil
}

func (bf *BuiltInFunctions) ISLOGICAL(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ISLOGICAL requires 1 argument")
	}
	_, ok := args[0].(bool)
	return ok, nil
}

func (bf *BuiltInFunctions) ISERROR(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ISERROR requires 1 argument")
	}
	return checkForError(args[0]) != nil, nil
}

func (bf *BuiltInFunctions) ISNA(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ISNA requires 1 argument")
	}
	err := checkForError(args[0])
	return err != nil && err.ErrorCode == ErrorCodeNA, nil
}

// TYPE reports the Excel type-code of a value: 1 number, 2 text, 4
// logical, 16 error, 64 array.
func (bf *BuiltInFunctions) TYPE(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "TYPE requires 1 argument")
	}
	switch args[0].(type) {
	case float64:
		return float64(1), nil
	case string:
		return float64(2), nil
	case bool:
		return float64(4), nil
	case *SpreadsheetError:
		return float64(16), nil
	case nil:
		return float64(1), nil
	default:
		return float64(64), nil
	}
}

// ERRORTYPE returns the numeric error code (matching ErrorCode's own
// numbering) for an error value, or #N/A if the argument isn't an error.
func (bf *BuiltInFunctions) ERRORTYPE(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ERROR.TYPE requires 1 argument")
	}
	err := checkForError(args[0])
	if err == nil {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ERROR.TYPE requires an error value")
	}
	return float64(err.ErrorCode), nil
}

func (bf *BuiltInFunctions) IFERROR(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IFERROR requires 2 arguments")
	}
	if checkForError(args[0]) != nil {
		return args[1], nil
	}
	return args[0], nil
}

func (bf *BuiltInFunctions) IFNA(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IFNA requires 2 arguments")
	}
	if err := checkForError(args[0]); err != nil && err.ErrorCode == ErrorCodeNA {
		return args[1], nil
	}
	return args[0], nil
}
