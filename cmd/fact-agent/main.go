// Command fact-agent loads the kernel file-activity hooks and streams
// decoded events to an external consumer over gRPC.
package main

import (
	"os"

	"github.com/stackrox/fact-agent/cmd/fact-agent/command"
)

func main() {
	os.Exit(command.Execute())
}
