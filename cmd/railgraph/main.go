// Command railgraph runs agent-step graphs from the command line and serves
// the run engine over HTTP.
//
//	railgraph run --graph research.yaml --question "What changed in Q3?"
//	railgraph serve --config railgraph.yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
