// Command oro is the CLI entry point for the package manager engine.
package main

import "github.com/oro-build/oro/cmd/oro/cmd"

func main() {
	cmd.Execute()
}
