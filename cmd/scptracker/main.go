package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

type cli struct {
	Config   string `type:"path" env:"SCPTRACKER_CONFIG" help:"Path to the YAML settings file."`
	EnvFile  string `name:"env-file" default:".env" help:"Dotenv file loaded before running."`
	LogLevel string `name:"log-level" help:"Override the configured log level."`

	Watch    watchCmd    `cmd:"" help:"Poll every widget and print status updates until interrupted."`
	Serve    serveCmd    `cmd:"" help:"Serve the dashboard over HTTP."`
	Login    loginCmd    `cmd:"" help:"Sign in with an admin or user account."`
	Logout   logoutCmd   `cmd:"" help:"Sign out and drop the stored session."`
	List     listCmd     `cmd:"" help:"List the configured widgets."`
	Add      addCmd      `cmd:"" help:"Add SCP widgets from a comma or space separated list."`
	Remove   removeCmd   `cmd:"" help:"Remove the widget at a list position."`
	Rename   renameCmd   `cmd:"" help:"Rename the widget at a list position (admin)."`
	Clear    clearCmd    `cmd:"" help:"Remove every widget the current role may remove."`
	Token    tokenCmd    `cmd:"" help:"Store the Basic token used for status requests."`
	Interval intervalCmd `cmd:"" help:"Store the polling interval in seconds."`
	Export   exportCmd   `cmd:"" help:"Write the configuration to a JSON file."`
	Import   importCmd   `cmd:"" help:"Apply a configuration JSON file (admin)."`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var c cli
	parser := kong.Parse(&c,
		kong.Name("scptracker"),
		kong.Description("Track the card capacity of SCP controllers."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	parser.FatalIfErrorf(run(ctx, parser, c))
}

func run(ctx context.Context, parser *kong.Context, c cli) error {
	if err := loadEnv(c.EnvFile); err != nil {
		return err
	}
	settings, err := LoadSettings(c.Config)
	if err != nil {
		return err
	}
	if c.LogLevel != "" {
		settings.LogLevel = c.LogLevel
	}
	rt, err := newRuntime(ctx, settings, os.Stdout)
	if err != nil {
		return err
	}
	return errors.Join(parser.Run(rt), rt.Close())
}

func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
