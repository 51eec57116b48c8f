// gondctl is the command-line client for the gond daemon.
package main

import "github.com/dantte-lp/gond/cmd/gondctl/commands"

func main() {
	commands.Execute()
}
