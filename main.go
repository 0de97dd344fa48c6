package main

import (
	"os"

	"lakeview/cli"
)

func main() {
	os.Exit(cli.Execute())
}
