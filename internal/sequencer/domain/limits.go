package domain

import "github.com/shopspring/decimal"

// ResolvedChange 已定位到现存挂单的改单
type ResolvedChange struct {
	Order      *Order
	NewAmount  decimal.Decimal
	NewLevelIx int64
}

// ResolvedOrderBatch 预提交校验的输入：新增订单的数量与档位均已解析，
// 改单与撤单已定位到簿内挂单。
type ResolvedOrderBatch struct {
	Adds    []*Order
	Changes []ResolvedChange
	Cancels []*Order
}

// ReservedFunc 返回钱包在某资产上被挂单占用的总量。
// 占用跨越全部市场：同一资产可同时被多个市场的挂单占用。
type ReservedFunc func(wallet, asset string) decimal.Decimal

// WithinBalanceLimit 预提交校验：对批次计算每个钱包的基础/报价资产
// 净增量需求，任一钱包超出（账本余额 − 全市场挂单占用）即整批拒绝。
// 全有或全无，绝不部分生效。
func WithinBalanceLimit(market *Market, ledger *Ledger, batch *ResolvedOrderBatch, rates FeeRates, reserved ReservedFunc) bool {
	book := market.Book()
	req := make(map[BalanceKey]decimal.Decimal)
	add := func(wallet, asset string, delta decimal.Decimal) {
		key := BalanceKey{Wallet: wallet, Asset: asset}
		req[key] = req[key].Add(delta)
	}

	for _, order := range batch.Adds {
		switch order.Type {
		case LimitSell, MarketSell:
			add(order.Wallet, market.BaseAsset, order.Amount)
		case LimitBuy:
			// 交叉部分以吃单费率结算，按全额含费占用
			notional := market.Notional(order.Amount, order.LevelIx)
			add(order.Wallet, market.QuoteAsset, notional.Add(NotionalFee(notional, rates.Taker)))
		case MarketBuy:
			// 以当前深度推演最坏情况的报价资产成本，含吃单手续费
			cost, _ := book.ClearingForMarketBuy(order.Amount)
			add(order.Wallet, market.QuoteAsset, cost.Add(NotionalFee(cost, rates.Taker)))
		}
	}

	for _, change := range batch.Changes {
		oldBase, oldQuote := book.AssetsReservedForOrder(change.Order)
		next := *change.Order
		next.Amount = change.NewAmount
		next.LevelIx = change.NewLevelIx
		newBase, newQuote := book.AssetsReservedForOrder(&next)
		add(change.Order.Wallet, market.BaseAsset, newBase.Sub(oldBase))
		add(change.Order.Wallet, market.QuoteAsset, newQuote.Sub(oldQuote))
	}

	for _, order := range batch.Cancels {
		base, quote := book.AssetsReservedForOrder(order)
		add(order.Wallet, market.BaseAsset, base.Neg())
		add(order.Wallet, market.QuoteAsset, quote.Neg())
	}

	for key, requirement := range req {
		if !requirement.IsPositive() {
			continue
		}
		available := ledger.Balance(key.Wallet, key.Asset).Sub(reserved(key.Wallet, key.Asset))
		if requirement.GreaterThan(available) {
			return false
		}
	}
	return true
}
