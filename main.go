package main

import (
	"os"

	"github.com/sitepulse/tokenvault/internal/cli"
)

func main() {
	cli.InitCLI()
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
