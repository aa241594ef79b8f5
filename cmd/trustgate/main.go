// Command trustgate loads a model only after its signature, policy, and
// intent checks pass.
package main

import (
	"os"

	"github.com/meigma/trustgate/cmd/trustgate/cli"
)

func main() {
	os.Exit(cli.ExitCode(cli.Execute()))
}
