package spreadsheet

import "testing"

func TestGetCellContentReturnsFormulaText(t *testing.T) {
	tc := NewSpreadsheetTestCase(t, "GetCellContent formula").
		Set("Sheet1!A1", 2.0).
		Set("Sheet1!B1", "=A1+1").
		Run()

	content, err := tc.spreadsheet.GetCellContent("Sheet1!B1")
	if err != nil {
		t.Fatalf("GetCellContent failed: %v", err)
	}
	if content != "=A1+1" {
		t.Fatalf("GetCellContent = %q, want %q", content, "=A1+1")
	}
	tc.End()
}

func TestGetCellContentReturnsPlainValueText(t *testing.T) {
	tc := NewSpreadsheetTestCase(t, "GetCellContent plain value").
		Set("Sheet1!A1", "hello").
		Run()

	content, err := tc.spreadsheet.GetCellContent("Sheet1!A1")
	if err != nil {
		t.Fatalf("GetCellContent failed: %v", err)
	}
	if content != "hello" {
		t.Fatalf("GetCellContent = %q, want %q", content, "hello")
	}
	tc.End()
}

func TestGetCellContentEmptyCellReturnsEmptyString(t *testing.T) {
	tc := NewSpreadsheetTestCase(t, "GetCellContent empty cell").
		Run()

	content, err := tc.spreadsheet.GetCellContent("Sheet1!Z99")
	if err != nil {
		t.Fatalf("GetCellContent failed: %v", err)
	}
	if content != "" {
		t.Fatalf("GetCellContent = %q, want empty string", content)
	}
	tc.End()
}

func TestExtendToRebasesRelativeReferences(t *testing.T) {
	tc := NewSpreadsheetTestCase(t, "ExtendTo rebases relative references").
		Set("Sheet1!A1", 1.0).
		Set("Sheet1!A2", 2.0).
		Set("Sheet1!B1", "=A1*10").
		Run()

	text, err := tc.spreadsheet.ExtendTo("Sheet1!B1", "Sheet1!B2")
	if err != nil {
		t.Fatalf("ExtendTo failed: %v", err)
	}
	if text != "=A2*10" {
		t.Fatalf("ExtendTo = %q, want %q", text, "=A2*10")
	}

	if err := tc.spreadsheet.Set("Sheet1!B2", text); err != nil {
		t.Fatalf("Set(%q) failed: %v", text, err)
	}
	tc.RunAndAssertNoError().
		AssertCellEq("Sheet1!B2", 20.0).
		End()
}

func TestExtendToRequiresFormulaSource(t *testing.T) {
	tc := NewSpreadsheetTestCase(t, "ExtendTo requires a formula source").
		Set("Sheet1!A1", 1.0).
		Run()

	if _, err := tc.spreadsheet.ExtendTo("Sheet1!A1", "Sheet1!A2"); err == nil {
		t.Fatal("expected error extending a non-formula cell, got nil")
	}
	tc.End()
}
