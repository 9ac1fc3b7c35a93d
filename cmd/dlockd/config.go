package main

import (
	"flag"

	"github.com/BurntSushi/toml"
)

// fileConfig is the shape of the optional TOML seed file, e.g.:
//
//	name = "peer-a"
//	address = "127.0.0.1:9001"
//	directory = "http://127.0.0.1:7000"
type fileConfig struct {
	Name      string `toml:"name"`
	Address   string `toml:"address"`
	Directory string `toml:"directory"`
}

// loadConfig merges a TOML seed file (if given) with command-line
// flags; flags win when both are set.
func loadConfig(args []string) (fileConfig, error) {
	fs := flag.NewFlagSet("dlockd", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a TOML seed config file")
	name := fs.String("name", "", "this peer's name")
	address := fs.String("address", "", "this peer's host:port")
	directory := fs.String("directory", "", "name service base URL")
	if err := fs.Parse(args); err != nil {
		return fileConfig{}, err
	}

	var cfg fileConfig
	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, &cfg); err != nil {
			return fileConfig{}, err
		}
	}

	// Only flags the user actually passed should override the TOML
	// file; fs.Visit only calls back for flags set on the command
	// line, so a bare default never clobbers a value loaded above.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			cfg.Name = *name
		case "address":
			cfg.Address = *address
		case "directory":
			cfg.Directory = *directory
		}
	})

	if cfg.Directory == "" {
		cfg.Directory = "http://127.0.0.1:7000"
	}
	return cfg, nil
}
