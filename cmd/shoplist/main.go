package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	if err := root.Parse(os.Args[1:],
		ff.WithEnvVarPrefix("SHOPLIST"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		selected := root.GetSelected()
		if selected == nil {
			selected = root
		}
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(selected))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := root.Run(ctx); err != nil {
		if errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root))
			os.Exit(1)
		}
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *ff.Command {
	cfg := &rootConfig{}
	fs := ff.NewFlagSet("shoplist")
	cfg.register(fs)

	return &ff.Command{
		Name:      "shoplist",
		Usage:     "shoplist [FLAGS] <SUBCOMMAND>",
		ShortHelp: "turn photos of handwritten shopping lists into priced invoices",
		Flags:     fs,
		Subcommands: []*ff.Command{
			newServeCommand(cfg, fs),
			newScanCommand(cfg, fs),
			newCatalogCommand(cfg, fs),
		},
	}
}
