package main

import (
	"flag"
	"os"

	"github.com/idilsaglam/tada/internal/cli"
	"github.com/idilsaglam/tada/internal/config"
)

func main() {
	// Root flags (apply to every subcommand)
	var f config.Flags
	flag.StringVar(&f.ConfigPath, "config", "", "path to a TOML config file")
	flag.StringVar(&f.Backend, "backend", "", "document store: firestore, redis, json or memory")
	flag.StringVar(&f.Collection, "collection", "", "collection to watch")
	flag.StringVar(&f.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	flag.StringVar(&f.Theme, "theme", "", "color theme: classic, neon or mono")
	flag.Usage = cli.PrintHelp
	flag.Parse()

	// Hand the remaining args to the CLI runner.
	os.Exit(cli.Run(flag.Args(), cli.Options{Flags: f}))
}
