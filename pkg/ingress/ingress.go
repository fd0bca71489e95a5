// Package ingress is the nats face of the daemon: it receives pushed
// transaction notices from backends and serves the request-reply API for
// withdrawals, moves, address allocation, and transaction listings.
//
// Notices are fire-and-forget on WALLETD.<SYMBOL>.Notify; delivery is best
// effort, the cron poller catches whatever push misses. Requests are
// request-reply on WALLETD.<SYMBOL>.Withdraw, .Move, .Address, and .List.
package ingress

import (
	"encoding/json"

	"walletd/pkg/adapter"
	"walletd/pkg/ledger"
	"walletd/pkg/reconcile"
	"walletd/pkg/registry"
	"walletd/pkg/teller"
	"walletd/pkg/xlog"

	"github.com/nats-io/nats.go"
)

var logger = xlog.GetLogger()

const (
	subjectNotices   = "WALLETD.*.Notify"
	subjectWithdraws = "WALLETD.*.Withdraw"
	subjectMoves     = "WALLETD.*.Move"
	subjectAddresses = "WALLETD.*.Address"
	subjectLists     = "WALLETD.*.List"
)

const defaultListLimit = 10

type Worker struct {
	nc       *nats.Conn
	rec      *reconcile.Reconciler
	tlr      *teller.Teller
	reg      *registry.Registry
	ldg      *ledger.Ledger
	adapters *adapter.Set
	subs     []*nats.Subscription
}

func New(url string, rec *reconcile.Reconciler, tlr *teller.Teller, reg *registry.Registry, ldg *ledger.Ledger, adapters *adapter.Set) (w *Worker, err error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return
	}

	w = &Worker{
		nc:       nc,
		rec:      rec,
		tlr:      tlr,
		reg:      reg,
		ldg:      ldg,
		adapters: adapters,
	}
	return
}

func (w *Worker) Run() (err error) {
	handlers := map[string]nats.MsgHandler{
		subjectNotices:   w.handleNotice,
		subjectWithdraws: w.handleWithdraw,
		subjectMoves:     w.handleMove,
		subjectAddresses: w.handleAddress,
		subjectLists:     w.handleList,
	}

	for subject, handler := range handlers {
		sub, err := w.nc.Subscribe(subject, handler)
		if err != nil {
			return err
		}
		w.subs = append(w.subs, sub)
		logger.Infof("ingress subscribed to %s", subject)
	}

	return nil
}

func (w *Worker) handleNotice(msg *nats.Msg) {
	var n adapter.TxNotice
	err := json.Unmarshal(msg.Data, &n)
	if err != nil {
		logger.Errorf("ingress bad notice on %s, err:%s", msg.Subject, err)
		return
	}

	err = w.rec.OnNotice(n)
	if err != nil {
		// the uniqueness constraint already kept the ledger consistent;
		// this is for the operator, the message is not redelivered
		logger.Errorf("ingress notice %s/%s failed with err:%s", n.Symbol, n.TxID, err)
	}
}

func (w *Worker) handleWithdraw(msg *nats.Msg) {
	var req WithdrawReq
	err := json.Unmarshal(msg.Data, &req)
	if err != nil {
		logger.Errorf("ingress bad withdraw req on %s, err:%s", msg.Subject, err)
		w.respond(msg, Reply{Error: "bad request"})
		return
	}

	w.respond(msg, w.withdraw(req))
}

func (w *Worker) withdraw(req WithdrawReq) Reply {
	txid, err := w.tlr.Withdraw(req.Account, req.Symbol, req.Address, req.Amount, req.Comment, req.CommentTo)
	if err != nil {
		return Reply{Error: err.Error()}
	}

	return Reply{OK: true, TxID: txid}
}

func (w *Worker) handleMove(msg *nats.Msg) {
	var req MoveReq
	err := json.Unmarshal(msg.Data, &req)
	if err != nil {
		logger.Errorf("ingress bad move req on %s, err:%s", msg.Subject, err)
		w.respond(msg, Reply{Error: "bad request"})
		return
	}

	w.respond(msg, w.move(req))
}

func (w *Worker) move(req MoveReq) Reply {
	err := w.tlr.Move(req.From, req.To, req.Symbol, req.Amount, req.Comment)
	if err != nil {
		return Reply{Error: err.Error()}
	}

	return Reply{OK: true}
}

func (w *Worker) handleAddress(msg *nats.Msg) {
	var req AddressReq
	err := json.Unmarshal(msg.Data, &req)
	if err != nil {
		logger.Errorf("ingress bad address req on %s, err:%s", msg.Subject, err)
		w.respond(msg, Reply{Error: "bad request"})
		return
	}

	w.respond(msg, w.address(req))
}

func (w *Worker) address(req AddressReq) Reply {
	a, err := w.adapters.Get(req.Symbol)
	if err != nil {
		return Reply{Error: err.Error()}
	}

	addr, err := w.reg.GetOrCreate(req.Account, a.Symbol(), a)
	if err != nil {
		return Reply{Error: err.Error()}
	}

	return Reply{OK: true, Address: addr}
}

func (w *Worker) handleList(msg *nats.Msg) {
	var req ListReq
	err := json.Unmarshal(msg.Data, &req)
	if err != nil {
		logger.Errorf("ingress bad list req on %s, err:%s", msg.Subject, err)
		w.respond(msg, ListReply{Error: "bad request"})
		return
	}

	w.respond(msg, w.list(req))
}

func (w *Worker) list(req ListReq) ListReply {
	a, err := w.adapters.Get(req.Symbol)
	if err != nil {
		return ListReply{Error: err.Error()}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	entries, err := w.ldg.List(req.Account, a.Symbol(), a.MinConf(), limit, req.Offset)
	if err != nil {
		return ListReply{Error: err.Error()}
	}

	return ListReply{OK: true, Entries: entries}
}

func (w *Worker) respond(msg *nats.Msg, reply interface{}) {
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return
	}

	err = msg.Respond(data)
	if err != nil {
		logger.Errorf("ingress respond on %s failed with err:%s", msg.Subject, err)
	}
}

func (w *Worker) Close() {
	for _, sub := range w.subs {
		sub.Unsubscribe()
	}
	w.nc.Close()
}
