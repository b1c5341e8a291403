package main

import (
	"nesram/config"
	"nesram/process"
	"nesram/process_linux"
)

func liveLocator(cfg config.Config) (process.Locator, error) {
	return process_linux.NewLocator(cfg.ProcessName, process.ProcessID(cfg.PID)), nil
}
