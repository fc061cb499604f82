// Command kbqa indexes a document directory and answers retrieval queries
// over it from the command line or as an MCP server.
package main

import (
	"os"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/cmd/kbqa/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
