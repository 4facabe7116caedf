// Command backfill repairs data the API cannot fix on its own.
//
//	backfill counters [-apply]   recount trips per driver and vehicle
//	backfill swapped [-limit N]  list trips whose driver and requester look swapped
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/audit"
	"github.com/ukydev/fleet-logbook/internal/cache"
	"github.com/ukydev/fleet-logbook/internal/config"
	"github.com/ukydev/fleet-logbook/internal/db"
	"github.com/ukydev/fleet-logbook/internal/logging"
	"github.com/ukydev/fleet-logbook/internal/maintenance"
)

const usage = `usage: backfill <command> [flags]

commands:
  counters [-apply]   compare stored trip counters with actual trip counts
  swapped [-limit N]  report trips whose driver and requester look swapped
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	command string
	apply   bool
	limit   int64
}

func parseArgs(args []string) (options, error) {
	if len(args) == 0 {
		return options{}, fmt.Errorf("%s", usage)
	}
	opts := options{command: args[0]}
	fs := flag.NewFlagSet(opts.command, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	switch opts.command {
	case "counters":
		fs.BoolVar(&opts.apply, "apply", false, "write corrected counters")
	case "swapped":
		fs.Int64Var(&opts.limit, "limit", 0, "stop after N matches (0 = no limit)")
	default:
		return options{}, fmt.Errorf("unknown command %q\n%s", opts.command, usage)
	}
	if err := fs.Parse(args[1:]); err != nil {
		return options{}, fmt.Errorf("%s: %w\n%s", opts.command, err, usage)
	}
	if opts.limit < 0 {
		return options{}, fmt.Errorf("limit must not be negative")
	}
	return opts, nil
}

func run(args []string, out io.Writer) error {
	opts, err := parseArgs(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := db.ConnectMongo(ctx, cfg.Mongo.URI, 10*time.Second)
	if err != nil {
		return err
	}
	store, err := db.NewStore(client, cfg.Mongo.Database)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	recorder := audit.NewRecorder(logger, cfg.AuditBuffer, audit.MongoSink{Collection: store.Audit})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = recorder.Close(closeCtx)
	}()

	tool := &maintenance.Tool{
		Trips:    store.Trips,
		Drivers:  store.Drivers,
		Vehicles: store.Vehicles,
		Audit:    recorder,
		Log:      logger,
	}
	if cfg.Cache.Backend == config.BackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		defer rdb.Close()
		backend := cache.NewRedisBackend(rdb)
		tool.Caches = cache.Group{
			cache.NewNamespace("history", backend, cfg.Cache.HistoryTTL, logger),
			cache.NewNamespace("dashboard", backend, cfg.Cache.DashboardTTL, logger),
		}
	}

	ctx = audit.WithActor(ctx, "backfill")
	switch opts.command {
	case "counters":
		diffs, err := tool.BackfillCounters(ctx, opts.apply)
		if err != nil {
			return err
		}
		for _, d := range diffs {
			fmt.Fprintln(out, d)
		}
		logger.WithFields(log.Fields{"mismatches": len(diffs), "applied": opts.apply}).Info("counter check finished")
	case "swapped":
		found, err := tool.FindSwappedNames(ctx, opts.limit)
		if err != nil {
			return err
		}
		for _, s := range found {
			fmt.Fprintln(out, s)
		}
		logger.WithField("matches", len(found)).Info("swapped name scan finished")
	}
	return nil
}
