// Command nookcore runs a dragonfly server with NookCore and its plugins, and
// bundles the maintenance tasks of a NookCore installation.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
