// Command thyxel operates a Thyxel ledger stored in SQLite.
package main

import (
	"os"

	"github.com/roach88/thyxel/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
