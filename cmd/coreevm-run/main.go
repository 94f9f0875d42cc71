// Command coreevm-run is a thin harness that exercises the engine against
// a single Ethereum execution-spec-tests state-test fixture and prints the
// resulting per-subtest outcome. It is not a node: no P2P, no RPC, no
// persistent chain — just fixture in, result out.
//
// Usage:
//
//	coreevm-run -file testdata/add.json [-fork Prague] [-index 0]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ethcore/coreevm/core/eftest"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	fs := flag.NewFlagSet("coreevm-run", flag.ContinueOnError)
	file := fs.String("file", "", "path to a state-test JSON fixture (required)")
	fork := fs.String("fork", "", "run only subtests for this fork (default: all)")
	index := fs.Int("index", -1, "run only this subtest index (default: all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "coreevm-run: -file is required")
		return 2
	}

	tests, err := eftest.LoadStateTests(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coreevm-run: %v\n", err)
		return 1
	}

	failures := 0
	for _, st := range tests {
		for _, sub := range st.Subtests() {
			if *fork != "" && sub.Fork != *fork {
				continue
			}
			if *index >= 0 && sub.Index != *index {
				continue
			}
			result := st.Run(sub)
			printResult(result)
			if !result.Passed {
				failures++
			}
		}
	}

	if failures > 0 {
		fmt.Fprintf(os.Stderr, "coreevm-run: %d subtest(s) failed\n", failures)
		return 1
	}
	return 0
}

// summary is the JSON-printable view of an eftest.RunResult: everything
// except the StateDB, which carries only unexported fields and has nothing
// useful to marshal.
type summary struct {
	Name         string `json:"name"`
	Fork         string `json:"fork"`
	Index        int    `json:"index"`
	Passed       bool   `json:"passed"`
	ExpectedRoot string `json:"expectedRoot"`
	GotRoot      string `json:"gotRoot"`
	ExpectedLogs string `json:"expectedLogs"`
	GotLogs      string `json:"gotLogs"`
	Error        string `json:"error,omitempty"`
}

func printResult(r *eftest.RunResult) {
	s := summary{
		Name:         r.Name,
		Fork:         r.Fork,
		Index:        r.Index,
		Passed:       r.Passed,
		ExpectedRoot: r.ExpectedRoot.Hex(),
		GotRoot:      r.GotRoot.Hex(),
		ExpectedLogs: r.ExpectedLogs.Hex(),
		GotLogs:      r.GotLogs.Hex(),
	}
	if r.Error != nil {
		s.Error = r.Error.Error()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.Encode(s)
}
