package main

import (
	"fmt"
	"os"

	"masjid/internal/cli"
)

func main() {
	if err := cli.NewRootCmd(cli.EnvLoader).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
