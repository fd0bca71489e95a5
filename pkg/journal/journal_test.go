package journal_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"walletd/pkg/journal"

	"github.com/stretchr/testify/require"
)

func TestRecordAndReadLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.log")
	j, err := journal.New(path)
	require.Nil(t, err)
	defer j.Close()

	s, err := j.ReadLastLine()
	require.Nil(t, err)
	require.Empty(t, s)

	require.Nil(t, j.Record(journal.KindWithdraw, map[string]string{"txid": "tx1"}))
	require.Nil(t, j.Record(journal.KindOrphanNotice, map[string]string{"txid": "tx2"}))

	s, err = j.ReadLastLine()
	require.Nil(t, err)

	var e journal.Entry
	require.Nil(t, json.Unmarshal([]byte(s), &e))
	require.Equal(t, journal.KindOrphanNotice, e.Kind)
	require.NotZero(t, e.Ts)
}

func TestAppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.log")

	j, err := journal.New(path)
	require.Nil(t, err)
	require.Nil(t, j.Record(journal.KindDepositInsert, map[string]string{"txid": "tx1"}))
	require.Nil(t, j.Close())

	// reopening never truncates
	j, err = journal.New(path)
	require.Nil(t, err)
	defer j.Close()
	require.Nil(t, j.Record(journal.KindDepositUpdate, map[string]string{"txid": "tx1"}))

	b, err := os.ReadFile(path)
	require.Nil(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)
}
