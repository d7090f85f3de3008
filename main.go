// The main package for the gyik executable.
package main

import (
	"github.com/JakeFAU/gyik-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
