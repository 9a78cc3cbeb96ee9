package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vogtb/sheetengine/internal/spreadsheet"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Drive a workbook interactively from this terminal",
	RunE:  runREPL,
}

func init() {
	bindStringFlag(replCmd.Flags(), "locale", "en-US", "default workbook locale")
	bindStringFlag(replCmd.Flags(), "timezone", "UTC", "default workbook timezone")
}

// enableRawMode puts stdin/stdout into raw mode when both are real
// terminals, and returns a restore func; it is a no-op (ok=false) when
// stdin/stdout are piped, matching how sheetserver behaves under scripts.
func enableRawMode() (restore func(), ok bool) {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return nil, false
	}
	state, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return nil, false
	}
	return func() { term.Restore(int(os.Stdin.Fd()), state) }, true
}

func runREPL(cmd *cobra.Command, args []string) error {
	locale, _ := cmd.Flags().GetString("locale")
	timezone, _ := cmd.Flags().GetString("timezone")

	book, err := spreadsheet.NewEmpty("repl", locale, timezone)
	if err != nil {
		return err
	}
	if err := book.AddWorksheet("Sheet1"); err != nil {
		return err
	}

	// line editing goes through bufio, so raw mode is restored right away,
	// once, before the read loop starts; the session itself runs in the
	// terminal's normal mode.
	restore, raw := enableRawMode()
	if raw {
		restore()
	}

	fmt.Println("sheetserver repl — enter ADDRESS=VALUE, 'calc', or 'quit'")
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		if line == "calc" {
			if err := book.Calculate(cmd.Context()); err != nil {
				fmt.Fprintln(os.Stderr, "calculate error:", err)
			}
			continue
		}

		addr, value, isAssignment := parseREPLLine(line)
		if !isAssignment {
			content, err := book.GetCellContent(addr)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				continue
			}
			fmt.Println(content)
			continue
		}
		if err := book.SetUserInput(addr, value); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

// parseREPLLine splits "ADDRESS=VALUE" into its parts; a line with no "="
// is treated as a bare address lookup instead of an assignment.
func parseREPLLine(line string) (addr, value string, isAssignment bool) {
	before, after, found := strings.Cut(line, "=")
	if !found {
		return strings.TrimSpace(line), "", false
	}
	return strings.TrimSpace(before), after, true
}
