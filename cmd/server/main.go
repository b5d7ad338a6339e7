package main

import (
	"github.com/OFFIS-RIT/proteus/backend/internal/server"
	"github.com/OFFIS-RIT/proteus/backend/internal/util"
	"github.com/OFFIS-RIT/proteus/backend/pkg/logger"
	"github.com/OFFIS-RIT/proteus/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		Format: util.GetEnv("LOG_FORMAT"),
	})
	logger.Init(consoleLogger)

	server.Init()
}
