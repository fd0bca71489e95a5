package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"walletd/pkg/adapter"
	"walletd/pkg/adapter/bitcoin"
	"walletd/pkg/config"
	"walletd/pkg/cron"
	"walletd/pkg/events"
	"walletd/pkg/info"
	"walletd/pkg/ingress"
	"walletd/pkg/journal"
	"walletd/pkg/ledger"
	"walletd/pkg/locks"
	"walletd/pkg/model"
	"walletd/pkg/reconcile"
	"walletd/pkg/registry"
	"walletd/pkg/teller"
	"walletd/pkg/xlog"
)

var logger = xlog.GetLogger()

var (
	fApp     string
	fLogDir  string
	fLogFile string
)

var apps = map[string]bool{"serve": true, "journal": true}

func init() {
	flag.StringVar(&fApp, "app", "serve", "")
	flag.StringVar(&fLogDir, "logdir", "", "")
	flag.StringVar(&fLogFile, "logfile", "", "")
}

func main() {
	var err error
	flag.Parse()

	if !apps[fApp] {
		validApps := ""
		for k := range apps {
			validApps += k + ", "
		}
		panic("invalid app, only (" + validApps + ") avaliable")
	}

	// Initialize the Shared config
	config.EasyInit()

	// Initialize the logger
	if fLogDir == "" {
		fLogDir = filepath.Join(config.Shared.DataDir, "logs")
	}
	if fLogFile == "" {
		fLogFile = fApp + ".log"
	}
	logPath := filepath.Join(fLogDir, fLogFile)
	xlog.Init(fApp, logPath)
	logger.Info(info.String())
	logger.Infof("xlog in %s", logPath)

	switch fApp {
	case "serve":
		err = startServe()
	case "journal":
		err = startJournal()
	default:
		return
	}

	if err != nil {
		logger.Error(err)
		panic(err)
	}
}

// startServe wires the whole daemon: store, journal, lock, adapters, teller,
// reconciler, ingress and cron. Everything is constructed here once and
// passed down; no package holds hidden wiring state.
func startServe() (err error) {
	// Initialize the database instances (mysql, optionally redis)
	// fatal if failed
	model.DBInit()

	db := model.GetMySQL()
	err = model.Migrate(db)
	if err != nil {
		return err
	}

	jrn, err := journal.New(journalPath())
	if err != nil {
		return err
	}
	defer jrn.Close()

	// one walletd process per database uses the in-process lock; a redis
	// lease takes over when several processes share the ledger
	var keyed locks.Keyed = locks.NewLocal()
	if config.Shared.Redis.Main.Enabled {
		keyed = locks.NewRedis(model.GetRedis())
		logger.Info("using redis keyed locks")
	}

	// without nats the events still reach the operator through the log
	var emitter events.Emitter = events.LogEmitter{}
	if config.Shared.Nats.Main.Enabled {
		natsEmitter, err := events.NewNatsEmitter(config.Shared.Nats.Main.Url)
		if err != nil {
			return err
		}
		defer natsEmitter.Close()
		emitter = natsEmitter
	}

	ldg := ledger.New(db, jrn)
	reg := registry.New(db, keyed, jrn, emitter)

	adapters := adapter.NewSet()
	rec := reconcile.New(adapters, ldg, reg, emitter)
	tlr := teller.New(adapters, ldg, keyed, emitter)

	driver := cron.New(config.Shared.CronInterval())
	for _, coin := range config.Shared.Coins {
		ba, err := bitcoin.New(coin, rec.OnNotice)
		if err != nil {
			return fmt.Errorf("adapter %s: %w", coin.Symbol, err)
		}
		adapters.Register(ba)
		if coin.Poll {
			driver.Register(ba)
		}
		logger.Infof("registered %s adapter at %s:%d (poll:%v)", coin.Symbol, coin.Host, coin.Port, coin.Poll)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go handleSignals(cancel)

	if config.Shared.Nats.Main.Enabled {
		ing, err := ingress.New(config.Shared.Nats.Main.Url, rec, tlr, reg, ldg, adapters)
		if err != nil {
			return err
		}
		defer ing.Close()
		err = ing.Run()
		if err != nil {
			return err
		}
	}

	driver.Run(ctx)

	return nil
}

// startJournal tails the ledger journal to stdout, the operator's window
// into mutations and manual-reconciliation entries.
func startJournal() (err error) {
	jrn, err := journal.New(journalPath())
	if err != nil {
		return err
	}
	defer jrn.Close()

	ch := make(chan string, 64)
	go func() {
		for line := range ch {
			fmt.Println(line)
		}
	}()

	return jrn.Tailf(ch)
}

func journalPath() string {
	return path.Join(config.Shared.DataDir, "journal", "ledger.log")
}

// handleSignals cancels the run context on SIGINT/SIGTERM and switches the
// log level on SIGUSR1 (export XLOG_LVL first, then signal).
func handleSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	for sig := range sigChan {
		if sig == syscall.SIGUSR1 {
			level := strings.ToUpper(os.Getenv("XLOG_LVL"))
			if level != "" {
				logger.SetLevel(level)
			}
			continue
		}

		logger.Infof("received %s, shutting down", sig)
		cancel()
		return
	}
}
