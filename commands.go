package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/cli"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/sheets"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/tools/sheetquery"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	ucli "github.com/urfave/cli/v3"
)

// tablesCommand prints the tables and columns of each configured workbook.
func tablesCommand(logger *logrus.Logger) *ucli.Command {
	return &ucli.Command{
		Name:  "tables",
		Usage: "List the tables and columns of the configured workbooks",
		Flags: []ucli.Flag{
			&ucli.StringFlag{
				Name:    "workbook",
				Aliases: []string{"w"},
				Usage:   "Only list this workbook",
			},
		},
		Action: func(ctx context.Context, cmd *ucli.Command) error {
			configureCommandLogging(logger)
			workbooks, err := openWorkbooks(cmd.String("config"), logger)
			if err != nil {
				return err
			}

			only := cmd.String("workbook")
			found := false
			for _, wb := range workbooks {
				if only != "" && wb.Name != only {
					continue
				}
				found = true
				tables, err := wb.Service.ListTables(ctx)
				if err != nil {
					return fmt.Errorf("workbook %s: %w", wb.Name, err)
				}
				printTables(os.Stdout, wb, tables)
			}
			if !found {
				return fmt.Errorf("unknown workbook: %s", only)
			}
			return nil
		},
	}
}

func printTables(w io.Writer, wb *sheetquery.Workbook, tables []sheets.Table) {
	heading := color.New(color.FgCyan, color.Bold)
	name := color.New(color.FgGreen)
	dim := color.New(color.Faint)

	heading.Fprintf(w, "%s", wb.Name)
	if wb.Description != "" {
		dim.Fprintf(w, "  %s", wb.Description)
	}
	fmt.Fprintln(w)

	if len(tables) == 0 {
		dim.Fprintln(w, "  (no tables)")
		return
	}
	for _, t := range tables {
		name.Fprintf(w, "  %s", t.Name)
		if t.ID != "" {
			dim.Fprintf(w, " [%s]", t.ID)
		}
		fmt.Fprintln(w)
		if len(t.Columns) > 0 {
			fmt.Fprintf(w, "    %s\n", strings.Join(t.ColumnNames(), ", "))
		}
	}
}

// cliCommand runs tools without an MCP client.
func cliCommand(logger *logrus.Logger) *ucli.Command {
	outputFlag := &ucli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Value:   string(cli.OutputText),
		Usage:   "Output format (text or json)",
	}

	runner := func(cmd *ucli.Command) (*cli.Runner, error) {
		configureCommandLogging(logger)
		reg, err := buildRegistry(cmd.String("config"), logger)
		if err != nil {
			return nil, err
		}
		return cli.NewRunner(reg, logger, os.Stdout, cli.OutputFormat(cmd.String("output"))), nil
	}

	return &ucli.Command{
		Name:  "cli",
		Usage: "Call tools directly from the command line",
		Flags: []ucli.Flag{outputFlag},
		Commands: []*ucli.Command{
			{
				Name:  "list",
				Usage: "List available tools",
				Action: func(ctx context.Context, cmd *ucli.Command) error {
					r, err := runner(cmd)
					if err != nil {
						return err
					}
					return r.ListTools()
				},
			},
			{
				Name:      "help",
				Usage:     "Show the parameters of a tool",
				ArgsUsage: "<tool>",
				Action: func(ctx context.Context, cmd *ucli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("usage: %s cli help <tool>", appName)
					}
					r, err := runner(cmd)
					if err != nil {
						return err
					}
					return r.HelpTool(cmd.Args().First())
				},
			},
			{
				Name:      "run",
				Usage:     "Run a tool with --key=value flags or a JSON object",
				ArgsUsage: "<tool> [args...]",
				// Tool parameters are parsed by the runner, not urfave/cli.
				SkipFlagParsing: true,
				Action: func(ctx context.Context, cmd *ucli.Command) error {
					if cmd.Args().Len() < 1 {
						return fmt.Errorf("usage: %s cli run <tool> [args...]", appName)
					}
					r, err := runner(cmd)
					if err != nil {
						return err
					}
					return r.RunTool(ctx, cmd.Args().First(), cmd.Args().Tail())
				},
			},
		},
	}
}

// configureCommandLogging sends logs to stderr for interactive commands.
func configureCommandLogging(logger *logrus.Logger) {
	logger.SetOutput(os.Stderr)
	logger.SetLevel(parseLogLevel())
}
