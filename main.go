// Command forge is a monorepo build orchestrator: dependency installation,
// local package linking, and change-aware task scheduling across a
// workspace of projects.
package main

import "github.com/forgetool/forge/cmd"

func main() {
	cmd.Execute()
}
