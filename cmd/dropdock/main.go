// Package main is the entry point for the dropdock client.
package main

import (
	"log/slog"
	"os"

	"github.com/dropdock/dropdock/cmd/dropdock/commands"
	"github.com/dropdock/dropdock/internal/constants"
)

func main() {
	slog.SetLogLoggerLevel(constants.DefaultLogLevel)
	a, err := commands.New()
	if err != nil {
		slog.Error("Failed to create app", "error", err)
		os.Exit(1)
	}

	os.Exit(run(a))
}

type app interface {
	Run() error
	UsageError() bool
}

func run(a app) int {
	if err := a.Run(); err != nil {
		slog.Error(err.Error())

		if a.UsageError() {
			return 2
		}
		return 1
	}

	return 0
}
