// Package main утилита узла повторной инициализации.
//
// Использование:
//
//	resyncd -c resyncd.yaml <command>
//
// Команды:
//   - recover: обработка журнала прерванной повторной инициализации;
//   - inventory: список локальных баз данных;
//   - serve: запуск узла в роли поставщика или клиента.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "resyncd",
		Usage: "replication full resync node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "path to the YAML configuration `FILE`",
				EnvVars:  []string{"RESYNCD_CONFIG"},
				Required: true,
			},
		},
		Commands: []*cli.Command{
			recoverCommand(),
			inventoryCommand(),
			serveCommand(),
		},
	}
}
