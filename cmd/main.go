package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crashmap/internal/acquire"
	"crashmap/internal/config"
	"crashmap/internal/database"
	"crashmap/internal/logger"
	"crashmap/internal/records"
	"crashmap/internal/regions"
	"crashmap/internal/render"
	"crashmap/internal/session"
	"crashmap/internal/viewport"
)

const (
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorBold  = "\033[1m"
	colorReset = "\033[0m"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is the whole program; it returns the process exit status.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("crashmap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		fetchOnly = fs.Bool("fetch-only", false, "download the dataset if it is missing, then exit")
		yes       = fs.Bool("yes", false, "download without asking when the dataset is missing")
		noPanel   = fs.Bool("no-panel", false, "serve the map without the terminal filter panel")
		envFile   = fs.String("env", ".env", "optional .env file with CRASHMAP_* settings")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return 1
	}
	log := logger.New(logger.Config{
		Writer:    stderr,
		Format:    cfg.Log.Format,
		Level:     cfg.Log.Level,
		AddSource: cfg.Log.AddSource,
	})

	if cfg.Data.Source == config.SourceFile {
		if err := ensureDataset(ctx, cfg, *yes, stdin, stdout, log); err != nil {
			if errors.Is(err, errDownloadDeclined) || errors.Is(err, context.Canceled) {
				fmt.Fprintln(stdout, "Download cancelled.")
			} else {
				log.Error("acquisition failed", "error", err)
				fmt.Fprintf(stderr, "%sacquisition failed:%s %v\n", colorRed, colorReset, err)
			}
			return 1
		}
	}
	if *fetchOnly {
		return 0
	}

	store, err := loadStore(ctx, cfg, log)
	if err != nil {
		log.Error("load failed", "error", err)
		fmt.Fprintf(stderr, "%sfailed to load crashes:%s %v\n", colorRed, colorReset, err)
		return 1
	}
	fmt.Fprintf(stdout, "Loaded %d crashes from %s (%d known-bad rows dropped)\n", store.Len(), store.Source(), store.Dropped())

	builder := render.NewBuilder(render.Thresholds{
		Coarse: cfg.Render.CoarseThreshold,
		Medium: cfg.Render.MediumThreshold,
	})
	sess, err := session.New(store, builder, log)
	if err != nil {
		log.Error("initial render failed", "error", err)
		return 1
	}

	view := render.View{Lat: cfg.Render.CenterLat, Lon: cfg.Render.CenterLon, Zoom: cfg.Render.Zoom}
	srv := viewport.New(sess, view, log)

	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	addrCh := make(chan net.Addr, 1)
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Serve(srvCtx, cfg.Viewport.Addr, func(a net.Addr) { addrCh <- a }) }()

	var url string
	select {
	case a := <-addrCh:
		url = "http://" + a.String() + "/"
	case err := <-srvErr:
		log.Error("viewport failed", "error", err)
		fmt.Fprintf(stderr, "%sviewport failed:%s %v\n", colorRed, colorReset, err)
		return 1
	}
	fmt.Fprintf(stdout, "Map viewport: %s%s%s\n", colorBold, url, colorReset)

	status := 0
	if *noPanel {
		fmt.Fprintln(stdout, "Press Ctrl-C to stop.")
		<-ctx.Done()
	} else {
		p := newPanel(sess, stdin, stdout, cfg.Data.ExportDir, url, log)
		if err := p.run(ctx); err != nil {
			log.Error("panel failed", "error", err)
			fmt.Fprintf(stderr, "%spanel error:%s %v\n", colorRed, colorReset, err)
			status = 1
		}
	}

	cancel()
	if err := <-srvErr; err != nil {
		log.Error("viewport stopped with error", "error", err)
		status = 1
	}
	return status
}

// loadStore builds the record store from the configured source, tagging
// regions when a shapefile is configured.
func loadStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*records.Store, error) {
	opts := []records.Option{records.WithLogger(log)}
	if cfg.Regions.Shapefile != "" {
		start := time.Now()
		layer, err := regions.Load(cfg.Regions.Shapefile, cfg.Regions.NameField)
		if err != nil {
			return nil, err
		}
		log.Info("regions loaded", "path", cfg.Regions.Shapefile, "polygons", layer.Len(), "took", time.Since(start).Truncate(time.Millisecond))
		opts = append(opts, records.WithRegions(layer))
	}

	if cfg.Data.Source == config.SourceOracle {
		db, err := database.NewDatabase(ctx, database.DBConfig{
			Host:           cfg.DB.Host,
			Port:           cfg.DB.Port,
			Service:        cfg.DB.Service,
			Username:       cfg.DB.Username,
			Password:       cfg.DB.Password,
			WalletLocation: cfg.DB.WalletLocation,
			Table:          cfg.DB.Table,
		}, log)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		crashes, err := db.QueryCrashes(ctx)
		if err != nil {
			return nil, err
		}
		return records.FromRecords(db.Source(), crashes, opts...)
	}

	delim := []rune(cfg.Data.Delimiter)[0]
	return records.Load(cfg.Data.File, append(opts, records.WithDelimiter(delim))...)
}

// ensureDataset downloads the dataset when the cached file is absent.
func ensureDataset(ctx context.Context, cfg *config.Config, yes bool, stdin io.Reader, stdout io.Writer, log *slog.Logger) error {
	if acquire.Exists(cfg.Data.File) {
		log.Debug("cached dataset found", "path", cfg.Data.File)
		return nil
	}
	if cfg.Acquire.URL == "" {
		return fmt.Errorf("%s does not exist and CRASHMAP_ACQUIRE_URL is not set", cfg.Data.File)
	}
	if !yes {
		ok, err := confirmDownload(ctx, stdin, stdout, cfg.Data.File, cfg.Acquire.URL)
		if err != nil {
			return err
		}
		if !ok {
			return errDownloadDeclined
		}
	}

	client := acquire.NewClient(acquire.Options{
		HTTPClient:     newHTTPClient(cfg.Acquire.Timeout),
		LimitParam:     cfg.Acquire.LimitParam,
		OffsetParam:    cfg.Acquire.OffsetParam,
		PagesPerSecond: cfg.Acquire.PagesPerSecond,
		Logger:         log,
	})
	progress := newProgressPrinter(stdout)
	defer progress.done()

	if cfg.Acquire.Paged {
		return client.DownloadPaged(ctx, cfg.Acquire.URL, cfg.Acquire.PageSize, cfg.Data.File, progress.update)
	}
	return client.Download(ctx, cfg.Acquire.URL, cfg.Data.File, progress.update)
}
