// Command sheetserver hosts a spreadsheet.Spreadsheet over a websocket, and
// doubles as a local REPL for driving one without a browser.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
