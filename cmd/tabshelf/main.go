// Command tabshelf is the CLI for the tabshelf dashboard storage core.
package main

import "github.com/mesh-intelligence/tabshelf/internal/cli"

func main() {
	cli.Execute()
}
