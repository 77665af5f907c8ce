// Command askbox asks an OpenAI-compatible endpoint a question and renders
// the streamed answer in the terminal.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "askbox: %v\n", err)
		os.Exit(1)
	}
}
