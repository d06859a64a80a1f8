package main

import (
	"os"

	"github.com/dl-alexandre/syncapp/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
