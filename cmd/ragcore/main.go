package main

import (
	"os"

	"github.com/claritydesk/ragcore/internal/adapters/driving/cli"
)

func main() {
	os.Exit(cli.Execute())
}
