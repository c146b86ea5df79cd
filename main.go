package main

import (
	"github.com/grovegraph/grove/cmd"
	"github.com/grovegraph/grove/internal/logger"
)

func main() {
	defer logger.HandlePanic()
	cmd.Execute()
}
