// ember-tee multiplexes the build output pipe to both the terminal and a
// log file. The scheduler launches it once per scope; it is not meant to
// be invoked by hand.
package main

import (
	"os"

	"github.com/ember-build/ember/pkg/tee"
)

func main() {
	os.Exit(tee.Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
