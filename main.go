// The main package for the bgg-crawler executable.
package main

import (
	"github.com/pdiaz/bgg-crawler/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
