// Command templatectl inspects and maintains the template store file used by
// the plugins API.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand(defaultDeps())
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "templatectl:", err)
		os.Exit(exitCode(err))
	}
}
