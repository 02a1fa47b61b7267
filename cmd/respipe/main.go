// Command respipe fetches URLs and runs response pipelines over them.
//
//	respipe get https://api.example.com/items -P json
//	respipe batch urls.txt -P info --metrics
//	respipe runs --limit 10
//
// Settings come from respipe.yaml (or --config), RESPIPE_* environment
// variables, and a .env file. Pipelines are the built-in presets (status,
// info, read, text, json) plus any defined in the pipelines file.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
