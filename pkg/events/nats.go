package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"walletd/pkg/xlog"

	"github.com/nats-io/nats.go"
)

var logger = xlog.GetLogger()

// NatsEmitter publishes events as JSON on NOTIFY.<SYMBOL>.<kind> subjects.
// Publish failures are logged and dropped: the ledger row is already durable
// and the cron poller will re-surface anything a notifier missed.
type NatsEmitter struct {
	nc *nats.Conn
}

func NewNatsEmitter(url string) (e *NatsEmitter, err error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return
	}

	e = &NatsEmitter{nc: nc}
	return
}

func (e *NatsEmitter) Emit(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("event marshal failed with err:%s, event:%+v", err, ev)
		return
	}

	subject := fmt.Sprintf("NOTIFY.%s.%s", strings.ToUpper(ev.Symbol), ev.Kind)
	err = e.nc.Publish(subject, data)
	if err != nil {
		logger.Errorf("event publish(%s) failed with err:%s", subject, err)
	}
}

func (e *NatsEmitter) Close() {
	e.nc.Close()
}
