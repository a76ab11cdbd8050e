package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirkon/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/sirkon/repinit/internal/config"
	"github.com/sirkon/repinit/internal/resync"
	"github.com/sirkon/repinit/internal/transport"
)

func recoverCommand() *cli.Command {
	return &cli.Command{
		Name:   "recover",
		Usage:  "Process the ledger of an interrupted resync and exit",
		Action: recoverAction,
	}
}

func recoverAction(c *cli.Context) (err error) {
	n, err := loadNode(c.String("config"))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := n.close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close node")
		}
	}()

	if err := n.recover(); err != nil {
		return errors.Wrap(err, "recover")
	}

	return nil
}

func inventoryCommand() *cli.Command {
	return &cli.Command{
		Name:   "inventory",
		Usage:  "List local databases the way a provider announces them",
		Action: inventoryAction,
	}
}

func inventoryAction(c *cli.Context) (err error) {
	n, err := loadNode(c.String("config"))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := n.close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close node")
		}
	}()

	files, err := n.catalog.EnumerateLocal()
	if err != nil {
		return errors.Wrap(err, "enumerate local databases")
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tKIND\tPAGE SIZE\tMAX PAGE\tMEMORY\tID\tNAME")
	for _, d := range files {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%t\t%s\t%s\n", d.Index, d.Kind, d.PageSize, d.MaxPage, d.InMemory(), d.ID, d.Name)
	}

	return w.Flush()
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run a node: serve resync requests and, for clients, resync from the provider",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "exit-when-done",
				Usage: "client exits once every file is fetched and the log range is requested",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) (err error) {
	n, err := loadNode(c.String("config"))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := n.close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close node")
		}
	}()

	// Журнал прерванной попытки обрабатывается до того, как узел
	// начнёт отвечать другим.
	if err := n.recover(); err != nil {
		return errors.Wrap(err, "recover")
	}

	if err := n.connect(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.bus.start(ctx, n.coord.HandleMessage); err != nil {
		return errors.Wrap(err, "start transport")
	}

	client := n.cfg.Role == config.RoleClient
	if client {
		provider := transport.PeerID(n.cfg.Provider)
		if provider == 0 {
			provider = transport.Broadcast
		}
		if err := n.coord.Begin(provider); err != nil {
			return errors.Wrap(err, "begin resync")
		}
	}

	return n.run(ctx, client && c.Bool("exit-when-done"))
}

// run периодическая проверка координатора до отмены ctx.
func (n *node) run(ctx context.Context, exitWhenDone bool) error {
	ticker := time.NewTicker(n.cfg.TickInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.zap.Info("shutting down")
			return nil
		case now := <-ticker.C:
			n.coord.Tick(now)
		}

		if n.coord.Status().Phase != resync.PhaseAwaitingLogReplay {
			continue
		}

		// Накат лога делает слой репликации, здесь попытка просто закрывается.
		if err := n.coord.LogReplayDone(); err != nil {
			return errors.Wrap(err, "complete resync")
		}
		stats := n.coord.Stats()
		n.zap.Info(
			"resync done",
			zap.Int("files", stats.Files),
			zap.Uint64("pages", stats.Pages),
			zap.Uint64("missing", stats.Missing),
			zap.Uint64("duplicates", stats.Duplicates),
			zap.Uint64("requests", stats.Requests),
		)

		if exitWhenDone {
			return nil
		}
	}
}
