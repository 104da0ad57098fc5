// Kestrel scores business documents and client companies against
// per-tenant risk rules.
package main

import "github.com/opensource-finance/kestrel/internal/cli"

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cli.Execute(cli.BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}
