package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ember-build/ember/pkg/cli"
	"github.com/ember-build/ember/pkg/types"
)

// version is stamped by the release build.
var version = "0.1.0-dev"

func main() {
	if err := cli.Execute(version); err != nil {
		var exitErr *types.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "ember: %v\n", exitErr)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "ember: %v\n", err)
		os.Exit(1)
	}
}
