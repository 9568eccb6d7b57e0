// Command ard converts gridded ocean climatologies into analysis-ready
// Zarr stores and regional extracts.
package main

import (
	"fmt"
	"os"

	"github.com/fishmip/ard-go/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
