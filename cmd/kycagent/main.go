package main

import (
	"github.com/awnumar/memguard"

	"github.com/jmcleod/kycagent/cmd/kycagent/cmd"
)

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()
	cmd.Execute()
}
