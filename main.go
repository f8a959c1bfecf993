package main

import (
	"os"

	"github.com/slighter12/qualityos-mcp-go/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
