// Package tee implements the ember-tee helper process.
//
// Output capture has to survive the boundary into the compiler and linker
// children, which inherit the scheduler's redirected descriptors directly.
// A library call inside the orchestrator would only see its own writes, so
// a separate process reads the shared pipe and multiplexes every chunk to
// both the real terminal and a log file.
package tee

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ember-build/ember/pkg/types"
)

// Sentinel is the byte sequence marking end-of-stream on the tee pipe. The
// scheduler writes it once during shutdown; it is never echoed or logged.
const Sentinel = "__EOF__\n"

// Run is the helper's entry point: args are the command-line arguments
// after the program name, input is the shared pipe, output the terminal.
// It returns the process exit code.
func Run(args []string, input io.Reader, output, errOutput io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(errOutput, "ember-tee: log file argument not specified")
		return types.ExitTeeNoLogfile
	}
	logPath := args[0]
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		fmt.Fprintf(errOutput, "ember-tee: failed to create log directory: %v\n", err)
		return 1
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		fmt.Fprintf(errOutput, "ember-tee: failed to open log file: %v\n", err)
		return 1
	}
	defer logFile.Close()

	if err := pump(input, output, logFile); err != nil {
		fmt.Fprintf(errOutput, "ember-tee: %v\n", err)
		return 1
	}
	return types.ExitOK
}

// pump copies chunks from input to both destinations until the sentinel or
// end of input.
func pump(input io.Reader, output, logFile io.Writer) error {
	sentinel := []byte(Sentinel)
	reader := bufio.NewReader(input)
	for {
		chunk, err := reader.ReadBytes('\n')
		if len(chunk) > 0 {
			if bytes.Equal(chunk, sentinel) {
				return nil
			}
			if _, werr := output.Write(chunk); werr != nil {
				return fmt.Errorf("failed to echo output: %w", werr)
			}
			if _, werr := logFile.Write(chunk); werr != nil {
				return fmt.Errorf("failed to append to log: %w", werr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read pipe: %w", err)
		}
	}
}
