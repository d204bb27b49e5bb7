package main

import (
	"github.com/BioHazard786/Warpcast/cli/cmd"
	"github.com/BioHazard786/Warpcast/cli/internal/logging"
)

func main() {
	closeLog := logging.Init()
	defer closeLog()

	cmd.Execute()
}
