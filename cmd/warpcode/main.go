package main

import (
	"go.uber.org/zap/zapcore"

	"github.com/BioHazard786/warpcode/internal/cli"
	"github.com/BioHazard786/warpcode/internal/logging"
)

func main() {
	// The terminal UI owns stdout; only errors reach stderr unless LOG_LEVEL says otherwise.
	logging.Init(zapcore.ErrorLevel)
	cli.Execute()
}
