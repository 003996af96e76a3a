// smppsimctl -- CLI client for the smppsim admin API.
package main

import "github.com/dantte-lp/smppsim/cmd/smppsimctl/commands"

func main() {
	commands.Execute()
}
