// The main package for the scrapeworker executable.
package main

import (
	"os"

	"github.com/JakeFAU/scrapeworker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
