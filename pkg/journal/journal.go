// Package journal is an append-only JSON-line record of ledger activity.
//
// Every ledger mutation and every anomaly that needs manual reconciliation
// (a failed move leg, a withdrawal update that matched no row) is written
// here as one line. The file is never rewritten; operators tail it with
// `walletd -app journal`.
package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nxadm/tail"
)

type Journal struct {
	File     *os.File
	FilePath string
}

// Entry is the envelope written as one JSON line.
type Entry struct {
	Ts   int64       `json:"ts"` // unix nanoseconds
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}

const (
	KindWithdraw       = "withdraw"
	KindMoveSend       = "move-send"
	KindMoveReceive    = "move-receive"
	KindDepositInsert  = "deposit-insert"
	KindDepositUpdate  = "deposit-update"
	KindWithdrawNotice = "withdraw-notice"
	KindOrphanNotice   = "orphan-notice" // update matched no row
	KindWriteFailed    = "write-failed"  // insert rejected, row attached for manual reconciliation
	KindAddressBound   = "address-bound"
)

func New(filePath string) (j *Journal, err error) {
	j = &Journal{
		FilePath: filePath,
	}
	err = j.Open()

	return
}

func (j *Journal) Open() (err error) {
	err = os.MkdirAll(filepath.Dir(j.FilePath), 0755)
	if err != nil {
		return
	}

	j.File, err = os.OpenFile(j.FilePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	return
}

func (j *Journal) Close() (err error) {
	if j.File == nil {
		return
	}

	err = j.File.Close()
	if err != nil {
		return
	}

	j.File = nil

	return
}

// Record appends one entry. The data payload must be json-marshalable.
func (j *Journal) Record(kind string, data interface{}) (err error) {
	e := Entry{
		Ts:   time.Now().UnixNano(),
		Kind: kind,
		Data: data,
	}

	b, err := json.Marshal(e)
	if err != nil {
		return
	}

	_, err = j.File.WriteString(string(b) + "\n")

	return
}

// ReadLastLine reads the last non-empty line of the journal.
func (j *Journal) ReadLastLine() (s string, err error) {
	stat, err := j.File.Stat()
	if err != nil {
		return
	}

	size := stat.Size()
	if size == 0 {
		return "", nil
	}

	n := int64(4096)
	if size < n {
		n = size
	}

	buf := make([]byte, n)
	_, err = j.File.ReadAt(buf, size-n)
	if err != nil {
		return
	}

	lines := strings.Split(string(buf), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i], nil
		}
	}

	return "", nil
}

// Tailf follows the journal and sends each new line to ch. Blocks until the
// underlying tail stops.
func (j *Journal) Tailf(ch chan string) (err error) {
	t, err := tail.TailFile(j.FilePath, tail.Config{
		Follow: true,
		ReOpen: true,
	})
	if err != nil {
		return
	}

	for line := range t.Lines {
		if line.Err != nil {
			return line.Err
		}
		ch <- line.Text
	}

	return
}
