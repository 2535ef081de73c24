// ./main.go
package main

import (
	"github.com/quantum-agi/sdk-go/cmd"
)

// main is the entry point for the quantum-agent binary. All command-line
// parsing, configuration, and execution lives in the cmd package.
func main() {
	cmd.Execute()
}
