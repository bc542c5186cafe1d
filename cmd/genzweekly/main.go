package main

import (
	"genzweekly/cmd/handlers"
	"genzweekly/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
