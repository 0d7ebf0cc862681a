// This program provides admin tooling for inspecting a node's chainstate.
package main

import (
	"github.com/utxod/utxod/app/tooling/admin/cmd"
)

func main() {
	cmd.Execute()
}
