package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMerge(t *testing.T) {
	ledger := NewLedger()

	deltas := NewBalanceDeltas()
	deltas.Add("bob", "ETH", dec("100"))
	deltas.Add("alice", "BTC", dec("50"))
	deltas.Add("alice", "ETH", dec("30"))

	changes := ledger.Merge(deltas)
	require.Len(t, changes, 3)
	// 按 (钱包, 资产) 复合键排序
	assert.Equal(t, "alice", changes[0].Wallet)
	assert.Equal(t, "BTC", changes[0].Asset)
	assert.Equal(t, "alice", changes[1].Wallet)
	assert.Equal(t, "ETH", changes[1].Asset)
	assert.Equal(t, "bob", changes[2].Wallet)

	assert.True(t, dec("50").Equal(ledger.Balance("alice", "BTC")))
	assert.True(t, dec("100").Equal(ledger.Balance("bob", "ETH")))
}

func TestLedgerMergeClampsToZero(t *testing.T) {
	ledger := NewLedger()

	deltas := NewBalanceDeltas()
	deltas.Add("alice", "BTC", dec("50"))
	ledger.Merge(deltas)

	// 超额扣减钳制到零，Delta 反映实际生效的增量
	deltas = NewBalanceDeltas()
	deltas.Add("alice", "BTC", dec("-80"))
	changes := ledger.Merge(deltas)
	require.Len(t, changes, 1)
	assert.True(t, dec("-50").Equal(changes[0].Delta))
	assert.True(t, changes[0].Balance.IsZero())
	assert.True(t, ledger.Balance("alice", "BTC").IsZero())
}

func TestLedgerMergeOmitsNoOps(t *testing.T) {
	ledger := NewLedger()

	deltas := NewBalanceDeltas()
	deltas.Add("alice", "BTC", dec("10"))
	deltas.Add("alice", "BTC", dec("-10")) // 净零
	deltas.Add("bob", "ETH", dec("5"))
	changes := ledger.Merge(deltas)
	require.Len(t, changes, 1)
	assert.Equal(t, "bob", changes[0].Wallet)

	// 余额为零时的扣减不产生输出
	deltas = NewBalanceDeltas()
	deltas.Add("carol", "BTC", dec("-10"))
	assert.Empty(t, ledger.Merge(deltas))
}

func TestLedgerEntriesSorted(t *testing.T) {
	ledger := NewLedger()
	deltas := NewBalanceDeltas()
	deltas.Add("carol", "BTC", dec("1"))
	deltas.Add("alice", "ETH", dec("2"))
	deltas.Add("alice", "BTC", dec("3"))
	ledger.Merge(deltas)

	entries := ledger.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, BalanceKey{Wallet: "alice", Asset: "BTC"}, BalanceKey{Wallet: entries[0].Wallet, Asset: entries[0].Asset})
	assert.Equal(t, BalanceKey{Wallet: "alice", Asset: "ETH"}, BalanceKey{Wallet: entries[1].Wallet, Asset: entries[1].Asset})
	assert.Equal(t, BalanceKey{Wallet: "carol", Asset: "BTC"}, BalanceKey{Wallet: entries[2].Wallet, Asset: entries[2].Asset})
}

func TestLedgerRestore(t *testing.T) {
	ledger := NewLedger()
	ledger.Restore("alice", "BTC", dec("42"))
	ledger.Restore("bob", "ETH", dec("0")) // 零余额不落账

	assert.True(t, dec("42").Equal(ledger.Balance("alice", "BTC")))
	assert.Len(t, ledger.Entries(), 1)
}
