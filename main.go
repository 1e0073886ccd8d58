package main

import "github.com/viktsys/tt2ingest/cmd"

func main() {
	cmd.Execute()
}
