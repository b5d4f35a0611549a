package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BalanceKey 钱包+资产复合键。余额变更的聚合与输出都以该键排序，
// 不依赖 map 迭代顺序，保证重放逐位一致。
type BalanceKey struct {
	Wallet string `json:"wallet"`
	Asset  string `json:"asset"`
}

func (k BalanceKey) less(o BalanceKey) bool {
	if k.Wallet != o.Wallet {
		return k.Wallet < o.Wallet
	}
	return k.Asset < o.Asset
}

// BalanceChange 已提交的余额变更。Delta 为实际生效增量
// （提现封顶或清零钳制后），Balance 为变更后的余额。
type BalanceChange struct {
	Wallet  string          `json:"wallet"`
	Asset   string          `json:"asset"`
	Delta   decimal.Decimal `json:"delta"`
	Balance decimal.Decimal `json:"balance"`
}

// Ledger 每钱包、每资产的余额账本，余额恒为非负整数（最小单位）。
// 只能通过已提交的效果修改。
type Ledger struct {
	balances map[BalanceKey]decimal.Decimal
}

// NewLedger 创建空账本
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[BalanceKey]decimal.Decimal)}
}

// Balance 查询余额，缺省为零
func (l *Ledger) Balance(wallet, asset string) decimal.Decimal {
	return l.balances[BalanceKey{Wallet: wallet, Asset: asset}]
}

// Restore 检查点恢复时直接写入余额
func (l *Ledger) Restore(wallet, asset string, balance decimal.Decimal) {
	if balance.IsZero() {
		return
	}
	l.balances[BalanceKey{Wallet: wallet, Asset: asset}] = balance
}

// Entries 全部非零余额，按复合键排序。用于检查点与快照。
func (l *Ledger) Entries() []BalanceChange {
	keys := make([]BalanceKey, 0, len(l.balances))
	for k := range l.balances {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	out := make([]BalanceChange, 0, len(keys))
	for _, k := range keys {
		bal := l.balances[k]
		if bal.IsZero() {
			continue
		}
		out = append(out, BalanceChange{Wallet: k.Wallet, Asset: k.Asset, Balance: bal})
	}
	return out
}

// BalanceDeltas 一次请求内累积的余额增量，提交时统一合并
type BalanceDeltas struct {
	deltas map[BalanceKey]decimal.Decimal
}

// NewBalanceDeltas 创建空的增量累加器
func NewBalanceDeltas() *BalanceDeltas {
	return &BalanceDeltas{deltas: make(map[BalanceKey]decimal.Decimal)}
}

// Add 累加一笔增量（可为负）
func (d *BalanceDeltas) Add(wallet, asset string, delta decimal.Decimal) {
	if delta.IsZero() {
		return
	}
	key := BalanceKey{Wallet: wallet, Asset: asset}
	d.deltas[key] = d.deltas[key].Add(delta)
}

// Merge 将累积增量合并入账本。余额下限钳制为零，
// 抵御外部充提批次乱序产生的负余额伪影；净零增量不产生输出。
// 返回按复合键排序的实际变更列表。
func (l *Ledger) Merge(d *BalanceDeltas) []BalanceChange {
	keys := make([]BalanceKey, 0, len(d.deltas))
	for k := range d.deltas {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	changes := make([]BalanceChange, 0, len(keys))
	for _, k := range keys {
		delta := d.deltas[k]
		if delta.IsZero() {
			continue
		}
		old := l.balances[k]
		next := old.Add(delta)
		if next.IsNegative() {
			next = decimal.Zero
		}
		applied := next.Sub(old)
		if applied.IsZero() {
			continue
		}
		if next.IsZero() {
			delete(l.balances, k)
		} else {
			l.balances[k] = next
		}
		changes = append(changes, BalanceChange{
			Wallet:  k.Wallet,
			Asset:   k.Asset,
			Delta:   applied,
			Balance: next,
		})
	}
	return changes
}
