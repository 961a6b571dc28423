//	@title			techrag API
//	@version		1.0
//	@description	Agentic question answering over engineering knowledge bases
//	@BasePath		/api/v0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/compozy/techrag/cli"
)

func main() {
	cmd := cli.RootCmd()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
