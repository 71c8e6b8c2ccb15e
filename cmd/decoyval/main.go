// DecoyVal - target/decoy validation of scored hit lists
package main

import (
	"fmt"
	"os"

	"github.com/ChrisMcGann/DecoyVal/cmd/decoyval/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
