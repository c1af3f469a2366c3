// scribesync CLI entry point
//
// scribesync keeps recordings and documents in a durable local outbox and
// uploads them in the background whenever the network allows.
package main

import "github.com/jbctechsolutions/scribesync/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}
