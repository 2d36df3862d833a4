// Command mirror imports or exports the user workbook against the
// configured store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/authcore/internal/app"
	"github.com/example/authcore/internal/config"
	"github.com/example/authcore/internal/logging"
	"github.com/example/authcore/internal/mirror"
)

func main() {
	var (
		command = flag.String("command", "import", "Mirror command: import, export")
		file    = flag.String("file", "", "Workbook path (defaults to MIRROR_FILE)")
	)
	flag.Parse()

	if err := run(*command, *file); err != nil {
		fmt.Fprintln(os.Stderr, "mirror:", err)
		os.Exit(1)
	}
}

func run(command, file string) error {
	c, err := config.New()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if file == "" {
		file = c.MirrorFile
	}
	if file == "" {
		return errors.New("no workbook given (use -file or MIRROR_FILE)")
	}
	logger := logging.New(os.Stderr, c.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, c, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	switch command {
	case "import":
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		records, err := mirror.ReadWorkbook(f)
		if err != nil {
			return err
		}
		rep, err := a.Mirror.Reconcile(ctx, records)
		if err != nil {
			return err
		}
		fmt.Printf("created %d, skipped %d, failed %d\n", rep.Created, rep.Skipped, len(rep.Failures))
		for _, f := range rep.Failures {
			fmt.Println(" ", f.Error())
		}
		return nil
	case "export":
		f, err := os.Create(file)
		if err != nil {
			return err
		}
		n, err := a.Mirror.Export(ctx, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Printf("exported %d users to %s\n", n, file)
		return nil
	default:
		return fmt.Errorf("unknown command: %s (supported: import, export)", command)
	}
}
