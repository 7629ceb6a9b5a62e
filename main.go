// The main package for the leadcrawler executable.
package main

import (
	"github.com/JakeFAU/remote-lead-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
