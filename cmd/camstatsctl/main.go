// camstatsctl inspects and maintains the stats directory of camstatsd.
//
// Usage:
//
//	camstatsctl [-config file] [-stats-dir dir] <command> [args]
//
// Without a command and with a terminal on stdin it starts an interactive
// prompt.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/camstats/internal/errors"
	"github.com/xtxerr/camstats/internal/logging"
	statsconfig "github.com/xtxerr/camstats/internal/stats/config"
)

func main() {
	cfgPath := flag.String("config", "camstats.yaml", "config file path")
	statsDir := flag.String("stats-dir", "", "stats directory (overrides config)")
	archiveDir := flag.String("archive-dir", "", "archive directory (overrides config)")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: camstatsctl [flags] <command> [args]\n\nflags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\ncommands:\n%s", commandHelp())
	}
	flag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fatal(err)
	}
	logging.Init(level, false)

	cfg, err := statsconfig.Load(*cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fatal(err)
		}
		cfg = statsconfig.DefaultConfig()
	}
	if *statsDir != "" {
		cfg.StatsDir = *statsDir
	}
	if *archiveDir != "" {
		cfg.Archive.Dir = *archiveDir
	}

	a := newApp(cfg, os.Stdout)
	defer a.close()

	if flag.NArg() > 0 {
		if err := a.run(flag.Args()); err != nil {
			a.close()
			fatal(err)
		}
		return
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		flag.Usage()
		os.Exit(2)
	}

	interactive(a)
}

// interactive runs the command prompt until exit.
func interactive(a *app) {
	fmt.Printf("camstatsctl: %s (type 'help' or 'exit')\n", a.cfg.StatsDir)

	executor := func(in string) {
		args := strings.Fields(in)
		if len(args) == 0 {
			return
		}
		switch args[0] {
		case "exit", "quit":
			a.close()
			os.Exit(0)
		}
		if err := a.run(args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}

	p := prompt.New(executor, a.complete,
		prompt.OptionPrefix("camstats> "),
		prompt.OptionTitle("camstatsctl"),
	)
	p.Run()
}

// complete suggests commands for the first word and dates for the second.
func (a *app) complete(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	words := strings.Fields(before)
	word := d.GetWordBeforeCursor()

	// Still typing the command
	if len(words) == 0 || (len(words) == 1 && word != "") {
		s := make([]prompt.Suggest, 0, len(commands)+1)
		for _, c := range commands {
			s = append(s, prompt.Suggest{Text: c.name, Description: c.summary})
		}
		s = append(s, prompt.Suggest{Text: "exit", Description: "leave the prompt"})
		return prompt.FilterHasPrefix(s, word, true)
	}

	switch words[0] {
	case "show", "summary", "export":
		if len(words) > 2 || (len(words) == 2 && word == "") {
			return nil
		}
		dates, err := a.dates()
		if err != nil {
			return nil
		}
		s := make([]prompt.Suggest, 0, len(dates))
		for _, d := range dates {
			s = append(s, prompt.Suggest{Text: d.date, Description: fmt.Sprintf("%d tables", len(d.keys))})
		}
		return prompt.FilterHasPrefix(s, word, false)
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "camstatsctl: %v\n", err)
	os.Exit(1)
}
