package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// Fake llamafile CLI. Prints a short transcript ending in a START/END name.
// Behavior switches:
//
//	FAKE_CLI_GARBAGE=1        emit an invalid name every run
//	FAKE_ATTEMPT_FILE=<path>  count invocations in <path>
//	FAKE_SUCCEED_ON=<n>       emit garbage until invocation n
func main() {
	prompt := flag.String("p", "", "prompt")
	flag.Parse()
	if *prompt == "" {
		fmt.Fprintln(os.Stderr, "missing prompt")
		os.Exit(2)
	}

	fmt.Println("llamafile: loading model")
	fmt.Println("Prompt evaluation: 42.5%")

	attempt := 1
	if path := os.Getenv("FAKE_ATTEMPT_FILE"); path != "" {
		if b, err := os.ReadFile(path); err == nil {
			if n, err := strconv.Atoi(string(b)); err == nil {
				attempt = n + 1
			}
		}
		_ = os.WriteFile(path, []byte(strconv.Itoa(attempt)), 0o644)
	}
	if need, err := strconv.Atoi(os.Getenv("FAKE_SUCCEED_ON")); err == nil && attempt < need {
		fmt.Println("START Solo END")
		return
	}
	if os.Getenv("FAKE_CLI_GARBAGE") == "1" {
		fmt.Println("START Solo END")
		return
	}
	fmt.Println("START Mira Dawn END")
}
