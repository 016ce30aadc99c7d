// Command agentcollab posts and reads agent mailbox messages.
package main

import (
	stderrors "errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/vinayprograms/agentcollab/tools"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, defaultOpener))
}

// run executes one invocation and returns the process exit code. Errors
// raised before an operation ran, such as unknown operations or bad flags,
// are reported in the same shape as operation failures.
func run(args []string, stdout, stderr io.Writer, open opener) int {
	root := newRootCmd(open)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return 0
	}
	var shown reported
	if !stderrors.As(err, &shown) {
		res := &tools.Result{Operation: operationName(args), Err: coded(err)}
		report(root, &globalFlags{asJSON: wantsJSON(args)}, res)
	}
	return 1
}

// wantsJSON scans raw arguments for --json, which may not have been parsed
// when flag parsing itself failed.
func wantsJSON(args []string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		if a == "--json" {
			return true
		}
		if v, ok := strings.CutPrefix(a, "--json="); ok {
			b, _ := strconv.ParseBool(v)
			return b
		}
	}
	return false
}

// operationName returns the first argument naming a known operation.
func operationName(args []string) string {
	for _, a := range args {
		for _, op := range operations {
			if a == op.name {
				return a
			}
		}
	}
	return ""
}
