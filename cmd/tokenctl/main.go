// tokenctl is the operator tool for a tokencore deployment: it issues
// bearer tokens, applies the SQL schema and publishes exchange rates.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "tokenctl",
		Usage: "operate a tokencore deployment",
		Commands: []*cli.Command{
			&Token,
			&Migrate,
			&SetRate,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
