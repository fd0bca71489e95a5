// Package cron drives periodic reconciliation. Push notifications can be
// missed or misconfigured; polling each backend on an interval is the
// failsafe that eventually reconverges the ledger with the chain.
package cron

import (
	"context"
	"fmt"
	"time"

	"walletd/pkg/adapter"
	"walletd/pkg/xlog"
)

var logger = xlog.GetLogger()

type Driver struct {
	interval time.Duration
	pollers  []adapter.Poller
}

func New(interval time.Duration) *Driver {
	return &Driver{
		interval: interval,
	}
}

// Register adds a pollable backend. Whether an adapter polls is decided
// here, at wiring time; push-only adapters are simply never registered.
func (d *Driver) Register(p adapter.Poller) {
	d.pollers = append(d.pollers, p)
	logger.Infof("cron registered poller for %s", p.Symbol())
}

func (d *Driver) Run(ctx context.Context) {
	logger.Infof("cron running every %s with %d pollers", d.interval, len(d.pollers))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cron stopped")
			return
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Tick polls every registered backend once. One backend's failure, error or
// panic, never stops the others from running in the same tick.
func (d *Driver) Tick() {
	for _, p := range d.pollers {
		err := d.pollOne(p)
		if err != nil {
			logger.Errorf("cron poll failed for %s, err:%s", p.Symbol(), err)
		}
	}
}

func (d *Driver) pollOne(p adapter.Poller) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll panic: %v", r)
		}
	}()

	return p.Poll()
}
