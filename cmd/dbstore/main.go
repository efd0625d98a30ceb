// Command dbstore wires the broker message processor to a Postgres-backed
// database archive and runs it until terminated, the same thin dispatcher
// shape as the teacher's own main.go (no CLI framework, no subcommands).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"scnotify.dev/archive"
	"scnotify.dev/broker"
	_ "scnotify.dev/catalogue"
	"scnotify.dev/core"
	"scnotify.dev/dbarchive"
	"scnotify.dev/dbdriver"
	"scnotify.dev/notifier"
	"scnotify.dev/scmconfig"
	"scnotify.dev/scmlog"
)

func main() {
	if err := run(); err != nil {
		scmlog.Default.Fatal(err)
	}
}

func run() error {
	log := scmlog.ServiceLogger("dbstore", "0.13")

	cfg, err := scmconfig.LoadDBStoreConfig("DBSTORE")
	if err != nil {
		return fmt.Errorf("dbstore: config: %w", err)
	}

	drv, err := newDriver(cfg.Driver)
	if err != nil {
		return fmt.Errorf("dbstore: driver: %w", err)
	}

	arc := dbarchive.New(drv, core.Default, archive.CompiledVersion)
	proc := broker.NewProcessor(drv, arc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	procCfg := broker.Config{
		Driver:             cfg.Driver,
		Write:              cfg.Write,
		Read:               cfg.Read,
		Proxy:              cfg.Proxy,
		StrictVersionMatch: cfg.StrictVersionMatch,
		DeleteTree:         cfg.DeleteTree,
	}
	if err := proc.Init(ctx, procCfg); err != nil {
		return fmt.Errorf("dbstore: init: %w", err)
	}
	defer proc.Close()

	log.WithFields(map[string]any{
		"driver":      cfg.Driver,
		"delete_tree": cfg.DeleteTree,
	}).Info("dbstore processor started")

	// inbox is fed by the broker's IPC transport, out of scope for this
	// module (spec Non-goals: "IPC transport"); Run blocks until ctx is
	// cancelled or the channel closes.
	inbox := make(chan *notifier.Message)
	proc.Run(ctx, inbox)

	log.Info("dbstore processor stopped")
	return nil
}

func newDriver(name string) (dbdriver.Interface, error) {
	switch name {
	case "postgres":
		return dbdriver.NewPostgres(), nil
	case "postgres-pooled":
		return dbdriver.NewPostgresPool(), nil
	default:
		return nil, fmt.Errorf("dbstore: unknown driver %q", name)
	}
}
