package main

import (
	"github.com/JakeFAU/jobposting-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
