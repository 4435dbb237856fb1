package main

import (
	"github.com/BioHazard786/doorcall/cmd"
	"github.com/BioHazard786/doorcall/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init("")
	cmd.Execute()
}
