package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/shelfcheck/internal"
	"github.com/starford/shelfcheck/internal/aggregator"
	"github.com/starford/shelfcheck/internal/mcpserver"
	"github.com/starford/shelfcheck/internal/registry"
	"github.com/starford/shelfcheck/internal/scan"
	"github.com/starford/shelfcheck/internal/source"
)

var jsonFlag = &cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"}

// withCore loads the config, wires the components with logs on stderr, and
// runs fn.
func withCore(ctx context.Context, cmd *cli.Command, fn func(*internal.Core) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := internal.NewLogger(cfg.App.LogLevel, os.Stderr)
	core, err := internal.NewCore(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer core.Close()
	return fn(core)
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Check every enabled source for a title",
		ArgsUsage: "[title]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Title to look up"},
			&cli.StringFlag{Name: "year", Aliases: []string{"y"}, Usage: "Release year"},
			jsonFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			title := cmd.String("title")
			if title == "" {
				title = strings.Join(cmd.Args().Slice(), " ")
			}
			if strings.TrimSpace(title) == "" {
				return fmt.Errorf("a title is required")
			}
			year, err := parseYear(cmd.String("year"))
			if err != nil {
				return err
			}
			return withCore(ctx, cmd, func(core *internal.Core) error {
				res := core.Aggregator.CheckAllSources(ctx, title, year)
				if cmd.Bool("json") {
					return printJSON(os.Stdout, res)
				}
				printResult(os.Stdout, res)
				return nil
			})
		},
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan a listing page URL or saved HTML file",
		ArgsUsage: "<url|file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Site host for a saved HTML file (e.g. www.imdb.com)"},
			&cli.BoolFlag{Name: "all", Usage: "List titles that were not found too"},
			jsonFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			target := cmd.Args().First()
			if target == "" {
				return fmt.Errorf("a url or file is required")
			}
			return withCore(ctx, cmd, func(core *internal.Core) error {
				var (
					rep scan.Report
					err error
				)
				if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
					rep, err = core.Scanner.URL(ctx, target)
				} else {
					host := cmd.String("host")
					if host == "" {
						return fmt.Errorf("--host is required when scanning a file")
					}
					data, readErr := os.ReadFile(target)
					if readErr != nil {
						return readErr
					}
					rep, err = core.Scanner.HTML(ctx, host, string(data))
				}
				if err != nil {
					return err
				}
				if cmd.Bool("json") {
					return printJSON(os.Stdout, rep)
				}
				printReport(os.Stdout, rep, cmd.Bool("all"))
				return nil
			})
		},
	}
}

func sourcesCommand() *cli.Command {
	idArg := func(cmd *cli.Command) (string, error) {
		id := cmd.Args().First()
		if id == "" {
			return "", fmt.Errorf("a source id is required (one of %s)", strings.Join(internal.SourceIDs, ", "))
		}
		return id, nil
	}

	return &cli.Command{
		Name:  "sources",
		Usage: "Manage media sources",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List registered sources",
				Flags: []cli.Flag{jsonFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withCore(ctx, cmd, func(core *internal.Core) error {
						if cmd.Bool("json") {
							return printJSON(os.Stdout, core.Registry.Sources())
						}
						printSources(os.Stdout, core.Registry.Sources())
						return nil
					})
				},
			},
			{
				Name:      "configure",
				Usage:     "Save credentials for a source",
				ArgsUsage: "<id> key=value...",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := idArg(cmd)
					if err != nil {
						return err
					}
					values, err := parsePairs(cmd.Args().Tail())
					if err != nil {
						return err
					}
					return withCore(ctx, cmd, func(core *internal.Core) error {
						a, ok := core.Registry.Adapter(id)
						if !ok {
							return fmt.Errorf("unknown source %q", id)
						}
						creds, err := source.ParseFields(a.RequiredFields(), values)
						if err != nil {
							return err
						}
						if err := core.Registry.SaveCredentials(ctx, id, creds); err != nil {
							return err
						}
						fmt.Fprintf(os.Stdout, "%s configured\n", id)
						return nil
					})
				},
			},
			{
				Name:      "enable",
				Usage:     "Enable a configured source",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := idArg(cmd)
					if err != nil {
						return err
					}
					return withCore(ctx, cmd, func(core *internal.Core) error {
						if err := core.Registry.EnableSource(ctx, id); err != nil {
							return err
						}
						fmt.Fprintf(os.Stdout, "%s enabled\n", id)
						return nil
					})
				},
			},
			{
				Name:      "disable",
				Usage:     "Disable a source",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := idArg(cmd)
					if err != nil {
						return err
					}
					return withCore(ctx, cmd, func(core *internal.Core) error {
						if err := core.Registry.DisableSource(ctx, id); err != nil {
							return err
						}
						fmt.Fprintf(os.Stdout, "%s disabled\n", id)
						return nil
					})
				},
			},
			{
				Name:      "test",
				Usage:     "Test the connection of a source",
				ArgsUsage: "<id> [key=value...]",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := idArg(cmd)
					if err != nil {
						return err
					}
					values, err := parsePairs(cmd.Args().Tail())
					if err != nil {
						return err
					}
					return withCore(ctx, cmd, func(core *internal.Core) error {
						var creds source.Credentials
						if len(values) > 0 {
							a, ok := core.Registry.Adapter(id)
							if !ok {
								return fmt.Errorf("unknown source %q", id)
							}
							if creds, err = source.ParseFields(a.RequiredFields(), values); err != nil {
								return err
							}
						} else if err := core.Registry.EnableSource(ctx, id); err != nil {
							return err
						}
						res, err := core.Registry.TestSource(ctx, id, creds)
						if err != nil {
							return err
						}
						if !res.Success {
							return fmt.Errorf("%s: %s", id, res.Error)
						}
						fmt.Fprintf(os.Stdout, "%s: connection ok\n", id)
						return nil
					})
				},
			},
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve shelfcheck tools over MCP on stdio",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withCore(ctx, cmd, func(core *internal.Core) error {
				return mcpserver.New(core.Registry, core.Messages, core.Scanner).ServeStdio()
			})
		},
	}
}

func parseYear(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("year must be a number: %q", s)
	}
	return &y, nil
}

func parsePairs(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		values[k] = v
	}
	return values, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, res aggregator.Result) {
	if len(res.Results) == 0 {
		fmt.Fprintln(w, "no enabled sources")
		return
	}
	rows := make([][]string, 0, len(res.Results))
	for _, m := range res.Results {
		rows = append(rows, []string{m.SourceName, matchState(m), itemLabel(m)})
	}
	fmt.Fprintln(w, renderTable([]string{"Source", "Status", "Item"}, rows, nil))
}

func printReport(w io.Writer, rep scan.Report, all bool) {
	outcomes := rep.Found()
	if all {
		outcomes = rep.Outcomes
	}
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		names := make([]string, 0, len(o.Sources))
		for _, s := range o.Sources {
			names = append(names, s.SourceName)
		}
		state := strings.Join(names, ", ")
		if o.Error != "" {
			state = "error: " + o.Error
		}
		rows = append(rows, []string{o.Title, yearLabel(o.Year), state})
	}
	fmt.Fprintf(w, "%s (%s): %d scanned, %d queried, %d in library, %d failed\n",
		rep.Site, rep.Host, rep.Stats.Scanned, rep.Stats.Queried, rep.Stats.Matched, rep.Stats.Failed)
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable([]string{"Title", "Year", "Sources"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
}

func printSources(w io.Writer, statuses []registry.Status) {
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		rows = append(rows, []string{st.ID, st.DisplayName, string(st.Kind), yesNo(st.Configured), yesNo(st.Active)})
	}
	fmt.Fprintln(w, renderTable([]string{"ID", "Name", "Kind", "Configured", "Enabled"}, rows, nil))
}

func matchState(m aggregator.Match) string {
	switch {
	case m.Error != "":
		return "error: " + m.Error
	case m.Found:
		return "found"
	default:
		return "missing"
	}
}

func itemLabel(m aggregator.Match) string {
	if m.Item == nil {
		return ""
	}
	if m.Item.Year != nil {
		return fmt.Sprintf("%s (%d)", m.Item.Name, *m.Item.Year)
	}
	return m.Item.Name
}

func yearLabel(y *int) string {
	if y == nil {
		return ""
	}
	return strconv.Itoa(*y)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
