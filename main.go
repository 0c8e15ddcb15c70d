// The main package for the iattc-monitor executable.
package main

import (
	"github.com/aperez/iattc-monitor/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
