package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/geniass/stockwatch/pkg/config"
	dataio "github.com/geniass/stockwatch/pkg/io"
	"github.com/geniass/stockwatch/pkg/logging"
	"github.com/geniass/stockwatch/pkg/store"
	"github.com/geniass/stockwatch/pkg/web"
)

func main() {
	ownerArg := flag.String("owner", "", "owner whose tracked products are rendered")
	ouputDirArg := flag.String("output-dir", "docs", "data to write rendered HTML content to")
	pagePathPrefixArg := flag.String("path-prefix", "", "prefix page link URLs (in case pages are hosted at a subpath); should start with '/'")

	flag.Parse()

	if *ownerArg == "" {
		log.Fatal("-owner is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, cleanup, err := store.Connect(ctx, cfg.DB)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	st := store.NewPostgres(pool, store.Options{Cooldown: cfg.Sweep.Cooldown, DropThreshold: cfg.Alert.DropThreshold}, logger)
	ps, err := st.ListProducts(ctx, *ownerArg)
	if err != nil {
		log.Fatal(err)
	}

	var alerts []dataio.MessageWithPath
	if cfg.Outbox.Dir != "" {
		dataDir := filepath.Join(cfg.Outbox.Dir, dataio.SafeName(*ownerArg))
		alerts, err = dataio.LoadFromDir(dataDir)
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("WARNING: outbox dir %q does not exist, assuming no alerts...\n", dataDir)
		} else if err != nil {
			log.Fatal(err)
		}
	}

	if err := os.MkdirAll(*ouputDirArg, os.ModeDir|0775); err != nil {
		log.Fatal(err)
	}

	err = renderToFile(*ouputDirArg, "index.html", func(w io.Writer) error {
		return web.RenderReport(w, web.ReportContext{
			BaseContext: web.BaseContext{PathPrefix: *pagePathPrefixArg},
			Owner:       *ownerArg,
			LastUpdated: time.Now(),
			Products:    ps,
			Alerts:      alerts,
		})
	})
	if err != nil {
		log.Fatal(err)
	}
}

func renderToFile(dir string, filename string, renderFunc func(w io.Writer) error) error {
	f, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return err
	}
	defer f.Close()

	if err := renderFunc(f); err != nil {
		return err
	}
	return nil
}
