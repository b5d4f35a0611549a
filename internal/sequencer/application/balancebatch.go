package application

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/dexcore/internal/sequencer/domain"
)

// processBalanceBatch 余额批次永远成功。先合并全部入金
// （充值、失败提现冲正、失败结算冲正），再按列出顺序处理提现，
// 使同批次的入金可以为提现提供资金，顺序完全确定。
func (c *Core) processBalanceBatch(batch *domain.BalanceBatch, resp *domain.SequencerResponse) {
	credits := domain.NewBalanceDeltas()
	for _, op := range batch.Deposits {
		if op.Amount.IsPositive() {
			credits.Add(op.Wallet, op.Asset, op.Amount)
		}
	}
	for _, op := range batch.FailedWithdrawals {
		if op.Amount.IsPositive() {
			credits.Add(op.Wallet, op.Asset, op.Amount)
		}
	}
	for _, op := range batch.FailedSettlements {
		if op.Amount.IsPositive() {
			credits.Add(op.Wallet, op.Asset, op.Amount)
		}
	}
	creditChanges := c.ledger.Merge(credits)

	debits := domain.NewBalanceDeltas()
	pending := make(map[domain.BalanceKey]decimal.Decimal)
	for _, op := range batch.Withdrawals {
		if !op.Amount.IsPositive() {
			continue
		}
		key := domain.BalanceKey{Wallet: op.Wallet, Asset: op.Asset}
		// 提现封顶为可用余额（扣除挂单占用与本批次在前的提现），
		// 超出部分静默丢弃，余额绝不为负
		available := c.available(op.Wallet, op.Asset).Sub(pending[key])
		actual := decimal.Min(op.Amount, available)
		if !actual.IsPositive() {
			continue
		}
		pending[key] = pending[key].Add(actual)

		fee := decimal.Min(c.withdrawalFees[op.Asset], actual)
		net := actual.Sub(fee)

		debits.Add(op.Wallet, op.Asset, actual.Neg())
		if fee.IsPositive() {
			debits.Add(c.feeWallet, op.Asset, fee)
		}
		resp.WithdrawalsCreated = append(resp.WithdrawalsCreated, domain.Withdrawal{
			Wallet: op.Wallet,
			Asset:  op.Asset,
			Amount: net,
			Fee:    fee,
		})
	}
	debitChanges := c.ledger.Merge(debits)

	resp.BalancesChanged = combineBalanceChanges(creditChanges, debitChanges)
}

// combineBalanceChanges 合并两段变更为按复合键排序的净变更，
// 余额取最终值，净零增量省略
func combineBalanceChanges(first, second []domain.BalanceChange) []domain.BalanceChange {
	merged := make(map[domain.BalanceKey]domain.BalanceChange)
	for _, ch := range first {
		merged[domain.BalanceKey{Wallet: ch.Wallet, Asset: ch.Asset}] = ch
	}
	for _, ch := range second {
		key := domain.BalanceKey{Wallet: ch.Wallet, Asset: ch.Asset}
		if prev, ok := merged[key]; ok {
			ch.Delta = prev.Delta.Add(ch.Delta)
		}
		merged[key] = ch
	}

	keys := make([]domain.BalanceKey, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Wallet != keys[j].Wallet {
			return keys[i].Wallet < keys[j].Wallet
		}
		return keys[i].Asset < keys[j].Asset
	})

	out := make([]domain.BalanceChange, 0, len(keys))
	for _, k := range keys {
		ch := merged[k]
		if ch.Delta.IsZero() {
			continue
		}
		out = append(out, ch)
	}
	return out
}
