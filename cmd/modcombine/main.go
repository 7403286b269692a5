// Command modcombine merges a tree of game modlets into one combined
// modlet. It discovers modlets by their ModInfo.xml descriptors, records
// their XML fragments and localization rows in a SQLite intermediate store,
// and assembles the combined output with per-block traceability markers.
package main

import (
	"context"
	"fmt"
	"os"

	"log/slog"

	"github.com/alecthomas/kong"

	"github.com/modlet-tools/combiner/core/codec"
	"github.com/modlet-tools/combiner/core/combine"
	"github.com/modlet-tools/combiner/core/sqlite"
	"github.com/modlet-tools/combiner/core/store"
	"github.com/modlet-tools/combiner/internal/config"
	"github.com/modlet-tools/combiner/internal/console"
	"github.com/modlet-tools/combiner/internal/logging"
	"github.com/modlet-tools/combiner/internal/validation"
)

const version = "1.0.0"

// CLI defines the command-line interface for modcombine.
var CLI struct {
	// Global flags
	Config    string `help:"Configuration file path" default:"combiner.toml" type:"path"`
	LogLevel  string `name:"log-level" help:"Logging level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Log output format (text, json)"`

	Combine CombineCmd `cmd:"" help:"Combine all modlets under a source path"`
	Console ConsoleCmd `cmd:"" help:"Open an interactive SQL console on the intermediate store"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// App carries the resolved configuration and logger into commands.
type App struct {
	Cfg config.Config
	Log *slog.Logger
}

// CombineCmd runs a full combination pass.
type CombineCmd struct {
	SourcePath string `arg:"" help:"Directory tree to search for modlets" type:"path"`

	Name   string `help:"Name of the combined modlet"`
	Author string `help:"Author of the combined modlet"`
	Desc   string `help:"Description of the combined modlet"`
	Ver    string `help:"Version of the combined modlet"`
	URL    string `help:"Website of the combined modlet"`

	SkipDirs []string `name:"skip-dirs" help:"Additional directory names to skip during discovery"`
	DryRun   bool     `name:"dry-run" help:"Discover and record but write no output files"`
	KeepDB   bool     `name:"keep-db" help:"Do not wipe the intermediate store before the run"`
}

func (c *CombineCmd) Run(app *App) error {
	if err := validation.ValidateSourceDir(c.SourcePath); err != nil {
		return err
	}
	if c.Name != "" {
		if err := validation.ValidateModletName(c.Name); err != nil {
			return err
		}
	}

	cdc, err := codec.ForName(app.Cfg.Encoding)
	if err != nil {
		return err
	}
	st, err := store.Open(app.Cfg.DBFile, cdc, app.Log)
	if err != nil {
		return err
	}
	defer st.Close()

	runner := combine.NewRunner(st, app.Log)
	res, err := runner.Run(context.Background(), combine.Options{
		SourcePath:  c.SourcePath,
		Name:        c.Name,
		Author:      c.Author,
		Description: c.Desc,
		Version:     c.Ver,
		Website:     c.URL,
		SkipDirs:    append(app.Cfg.SkipDirectories, c.SkipDirs...),
		DryRun:      c.DryRun,
		KeepDB:      c.KeepDB,
	})
	if err != nil {
		return err
	}
	for _, p := range res.Problems {
		app.Log.Warn("skipped input", "err", p)
	}
	if c.DryRun {
		fmt.Printf("Dry run: %d modlets, %d XML files, %d localization files, %d problems\n",
			len(res.Modlets), res.XMLFiles, res.LocalizationFiles, len(res.Problems))
		return nil
	}
	fmt.Printf("Combined %d modlets into %s (%d blocks, %d rows)\n",
		len(res.Modlets), res.OutputDir, res.Blocks, res.Rows)
	return nil
}

// ConsoleCmd opens the interactive console on an existing store. The
// store is opened read-only so a console session cannot corrupt it.
type ConsoleCmd struct {
	DB string `help:"Intermediate store path (defaults to the configured db_file)" type:"path"`
}

func (c *ConsoleCmd) Run(app *App) error {
	path := c.DB
	if path == "" {
		path = app.Cfg.DBFile
	}
	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return console.New(db, os.Stdin, os.Stdout, app.Log).Run()
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(app *App) error {
	fmt.Printf("modcombine %s (%s driver)\n", version, sqlite.DriverType())
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("modcombine"),
		kong.Description("Merge game modlets into a single combined modlet"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	cfg, err := config.Load(CLI.Config)
	ctx.FatalIfErrorf(err)
	if CLI.LogLevel != "" {
		cfg.LogLevel = CLI.LogLevel
	}
	if CLI.LogFormat != "" {
		cfg.LogFormat = CLI.LogFormat
	}
	app := &App{
		Cfg: cfg,
		Log: logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel), logging.ParseFormat(cfg.LogFormat)),
	}

	err = ctx.Run(app)
	ctx.FatalIfErrorf(err)
}
