package main

import "flag"

// Options holds CLI options for the coordinator.
type Options struct {
	ConfigPath string
	Connect    bool
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("scada-coordinator", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
	fs.BoolVar(&opts.Connect, "connect", true, "Attempt the supervisor link on startup")
	_ = fs.Parse(args)
	return opts
}
