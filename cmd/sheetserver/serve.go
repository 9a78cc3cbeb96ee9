package main

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vogtb/sheetengine/internal/engineserver"
	"github.com/vogtb/sheetengine/internal/spreadsheet"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host a workbook over a websocket",
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	bindStringFlag(flags, "addr", ":8686", "address to listen on")
	bindStringFlag(flags, "locale", "en-US", "default workbook locale")
	bindStringFlag(flags, "timezone", "UTC", "default workbook timezone")
}

// bindStringFlag declares a pflag string flag and binds it into viper, so
// the resolved value honors flag > env > config-file precedence uniformly.
func bindStringFlag(flags *pflag.FlagSet, name, def, usage string) {
	flags.String(name, def, usage)
	viper.BindPFlag(name, flags.Lookup(name))
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := viper.GetString("addr")
	locale := viper.GetString("locale")
	timezone := viper.GetString("timezone")

	book, err := spreadsheet.NewEmpty("workbook", locale, timezone)
	if err != nil {
		return err
	}
	if err := book.AddWorksheet("Sheet1"); err != nil {
		return err
	}

	srv := engineserver.New(book, log)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWebSocket)

	log.WithFields(logrus.Fields{"addr": addr, "locale": locale, "timezone": timezone}).Info("sheetserver listening")
	return http.ListenAndServe(addr, mux)
}
