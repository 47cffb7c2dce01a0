// Command roundtable runs the supervisor: an agent that fronts a team of
// remote specialist agents and routes each inbound task to the right one.
//
// Usage:
//
//	roundtable serve --config config.yaml
//	roundtable serve --agents http://localhost:8000/a,http://localhost:8000/b
//	roundtable validate --config config.yaml
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/roundtable-ai/roundtable"
	"github.com/roundtable-ai/roundtable/config"
	"github.com/roundtable-ai/roundtable/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the supervisor server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (text or json)." default:"text"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(roundtable.GetVersion().String())
	return nil
}

// ValidateCmd checks a configuration file without starting anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("validate requires --config")
	}
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Printf("%s: configuration is valid\n", cli.Config)
	return nil
}

// loadConfig loads the config file, or starts from defaults when no file
// is given.
func loadConfig(cli *CLI) (*config.Config, error) {
	if cli.Config != "" {
		return config.Load(cli.Config)
	}
	cfg := &config.Config{}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	config.LoadDotEnv()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("roundtable"),
		kong.Description("Supervisor agent that delegates tasks to a team of remote agents"),
		kong.UsageOnError(),
	)

	level, _ := logger.ParseLevel(cli.LogLevel)
	logger.Init(level, cli.LogFormat)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
