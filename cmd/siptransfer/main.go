package main

import (
	"github.com/alecthomas/kong"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config   string `help:"Path to a YAML configuration file." env:"SIPTRANSFER_CONFIG" type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error). Overrides the configuration." env:"SIPTRANSFER_LOG_LEVEL"`
}

var cli struct {
	Globals

	Transfer TransferCmd `cmd:"" help:"Transfer SIPs to the configured destination."`
	Status   StatusCmd   `cmd:"" help:"Print the stored report of a job as JSON."`
	Version  VersionCmd  `cmd:"" help:"Print the ssh and rsync versions and the effective settings."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("siptransfer"),
		kong.Description("siptransfer: move SIPs to archive storage with rsync"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
