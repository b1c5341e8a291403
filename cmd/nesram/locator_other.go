//go:build !linux

package main

import (
	"errors"

	"nesram/config"
	"nesram/process"
)

func liveLocator(cfg config.Config) (process.Locator, error) {
	return nil, errors.New("live targets need Linux, use -dump")
}
