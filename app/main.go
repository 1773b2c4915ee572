package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/joho/godotenv"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/fracas/app/analytics"
	"github.com/umputun/fracas/app/catalog"
	"github.com/umputun/fracas/app/fracas"
	"github.com/umputun/fracas/app/health"
	"github.com/umputun/fracas/app/persistence"
	"github.com/umputun/fracas/app/web"
)

var opts struct {
	DBPath  string `long:"db" env:"FRACAS_DB" default:"fracas.db" description:"sqlite database file"`
	Catalog string `long:"catalog" env:"FRACAS_CATALOG" description:"catalog yaml with failure modes, causes, users and assets"`
	EnvFile string `long:"env-file" env:"FRACAS_ENV_FILE" default:".env" description:"optional env file loaded before options"`
	Dbg     bool   `long:"dbg" env:"FRACAS_DEBUG" description:"debug mode"`

	Web struct {
		Address    string  `long:"address" env:"ADDRESS" default:":8080" description:"web server listen address"`
		Hostname   string  `long:"hostname" env:"HOSTNAME" description:"hostname shown in the UI"`
		BaseURL    string  `long:"base-url" env:"BASE_URL" description:"base URL path for reverse proxy (e.g., /fracas)"`
		PageSize   int     `long:"page-size" env:"PAGE_SIZE" default:"50" description:"rows per list page"`
		WriteLimit float64 `long:"write-limit" env:"WRITE_LIMIT" default:"10" description:"max form/api writes per second per client"`
		Timezone   string  `long:"tz" env:"TZ" description:"time zone of dates and trend buckets, local if not set"`
	} `group:"web" namespace:"web" env-namespace:"FRACAS_WEB"`

	Retry struct {
		Attempts int           `long:"attempts" env:"ATTEMPTS" default:"5" description:"how many times to retry a busy database write"`
		Duration time.Duration `long:"duration" env:"DURATION" default:"50ms" description:"initial retry delay"`
		Factor   float64       `long:"factor" env:"FACTOR" default:"2" description:"backoff factor"`
		Jitter   bool          `long:"jitter" env:"JITTER" description:"jitter"`
	} `group:"retry" namespace:"retry" env-namespace:"FRACAS_RETRY"`

	Health struct {
		DiskFree int     `long:"disk-free" env:"DISK_FREE" default:"10" description:"warn when free disk space drops below, percent"`
		Memory   int     `long:"memory" env:"MEMORY" default:"90" description:"warn when used memory grows above, percent"`
		Load     float64 `long:"load" env:"LOAD" default:"2" description:"warn when load average per cpu grows above"`
	} `group:"health" namespace:"health" env-namespace:"FRACAS_HEALTH"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable logging to file"`
		Filename        string `long:"filename" env:"FILENAME" default:"fracas.log" description:"file to write logs to"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max size of log file before rotation, megabytes"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max number of rotated files to keep"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max days to keep rotated files, 0 to keep all"`
		EnabledCompress bool   `long:"compress" env:"COMPRESS" description:"compress rotated files"`
	} `group:"log" namespace:"log" env-namespace:"FRACAS_LOG"`
}

var revision = "unknown"

func main() {
	fmt.Printf("fracas %s\n", revision)

	loadEnvFile(os.Args[1:])
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT and SIGTERM

	if err := run(ctx); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

// run opens the store, applies the catalog and serves the dashboard until ctx is canceled
func run(ctx context.Context) error {
	started := time.Now()
	loc, err := makeLocation(opts.Web.Timezone)
	if err != nil {
		return err
	}

	rptr := repeater.New(&strategy.Backoff{Repeats: opts.Retry.Attempts, Duration: opts.Retry.Duration,
		Factor: opts.Retry.Factor, Jitter: opts.Retry.Jitter})

	store, err := persistence.NewSQLiteStore(opts.DBPath, persistence.WithRetry(rptr))
	if err != nil {
		return fmt.Errorf("failed to open store %s: %w", opts.DBPath, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("[WARN] failed to close store: %v", err)
		}
	}()

	if opts.Catalog != "" {
		cat, err := catalog.Load(opts.Catalog, fracas.ScheduleParser())
		if err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}
		res, err := cat.Apply(ctx, store, loc)
		if err != nil {
			return fmt.Errorf("failed to apply catalog %s: %w", opts.Catalog, err)
		}
		log.Printf("[INFO] catalog %s applied, %s", opts.Catalog, res)
	}

	thresholds := health.Thresholds{DiskFreeBelow: opts.Health.DiskFree, MemoryAbove: opts.Health.Memory,
		LoadPerCPU: opts.Health.Load}
	baseURL := validateBaseURL(opts.Web.BaseURL)
	srv, err := web.New(web.Config{
		Service:    fracas.New(store),
		Analytics:  analytics.New(store, analytics.WithLocation(loc)),
		Health:     health.New(opts.DBPath, thresholds),
		BaseURL:    baseURL,
		Hostname:   makeHostName(),
		Version:    revision,
		PageSize:   opts.Web.PageSize,
		WriteLimit: opts.Web.WriteLimit,
		Location:   loc,
		Settings:   makeSettingsInfo(started, baseURL),
	})
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}
	return srv.Run(ctx, opts.Web.Address)
}

func makeSettingsInfo(started time.Time, baseURL string) web.SettingsInfo {
	return web.SettingsInfo{
		Version:       revision,
		StartTime:     started,
		WebAddress:    opts.Web.Address,
		WebHostname:   makeHostName(),
		BaseURL:       baseURL,
		PageSize:      opts.Web.PageSize,
		WriteLimit:    opts.Web.WriteLimit,
		DBPath:        opts.DBPath,
		CatalogPath:   opts.Catalog,
		RetryAttempts: opts.Retry.Attempts,
		RetryDuration: opts.Retry.Duration,
		RetryFactor:   opts.Retry.Factor,
		RetryJitter:   opts.Retry.Jitter,
		DebugMode:     opts.Dbg,
		LogFilePath:   logFilePath(),
		LogMaxSize:    opts.Log.MaxSize,
		LogMaxAge:     opts.Log.MaxAge,
		LogMaxBackups: opts.Log.MaxBackups,
	}
}

func logFilePath() string {
	if !opts.Log.Enabled {
		return ""
	}
	return opts.Log.Filename
}

// loadEnvFile loads env file before options are parsed, so its values act as env defaults.
// The file location itself can't come from that file, only from args or the real environment.
func loadEnvFile(args []string) {
	fname := ".env"
	if v := os.Getenv("FRACAS_ENV_FILE"); v != "" {
		fname = v
	}
	for i, a := range args {
		if v, ok := strings.CutPrefix(a, "--env-file="); ok {
			fname = v
		}
		if a == "--env-file" && i+1 < len(args) {
			fname = args[i+1]
		}
	}
	if _, err := os.Stat(fname); err != nil {
		return // optional
	}
	if err := godotenv.Load(fname); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env file %s: %v\n", fname, err)
	}
}

func makeHostName() string {
	if opts.Web.Hostname != "" {
		return opts.Web.Hostname
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

func makeLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", tz, err)
	}
	return loc, nil
}

// validateBaseURL normalizes base URL: drops trailing slash, root becomes empty
func validateBaseURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || u == "/" {
		return ""
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return strings.TrimRight(u, "/")
}

// setupLogs configures lgr and returns the writer logs go to, stdout or rotated file
func setupLogs() io.Writer {
	var out io.Writer = os.Stdout
	if opts.Log.Enabled {
		out = &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxBackups: opts.Log.MaxBackups,
			MaxAge:     opts.Log.MaxAge,
			Compress:   opts.Log.EnabledCompress,
		}
	}

	if opts.Dbg {
		log.Setup(log.Debug, log.Msec, log.CallerFunc, log.CallerPkg, log.CallerFile, log.Out(out), log.Err(out))
		return out
	}
	log.Setup(log.Msec, log.Out(out), log.Err(out))
	return out
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			log.Printf("[INFO] %s received, shutting down", sig)
			cancel() // terminate on SIGTERM and SIGINT
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM, os.Interrupt)
}
