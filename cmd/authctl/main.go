package main

import (
	"fmt"
	"os"

	"github.com/GTDGit/gtd_auth/cmd/authctl/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
