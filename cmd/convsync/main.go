// Command convsync is a terminal chat client that keeps conversations in
// sync with the server.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/convsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "convsync:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
