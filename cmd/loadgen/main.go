package main

import (
	"github.com/armadaproject/loadgen/cmd/loadgen/cmd"
	"github.com/armadaproject/loadgen/internal/common/logging"
)

func main() {
	logging.ConfigureCliLogging()
	cmd.Execute()
}
