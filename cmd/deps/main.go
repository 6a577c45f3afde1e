package main

import (
	"os"

	"github.com/haldor-dev/rtv/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
