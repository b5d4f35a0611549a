package application

import (
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/dexcore/internal/sequencer/domain"
)

// orderChangeSet 按 guid 去重的有序订单变更集合，
// 同一订单多次变化时保留最终状态，输出顺序为首次出现顺序。
type orderChangeSet struct {
	changes []domain.OrderChange
	index   map[int64]int
}

func newOrderChangeSet() *orderChangeSet {
	return &orderChangeSet{index: make(map[int64]int)}
}

func (s *orderChangeSet) put(ch domain.OrderChange) {
	if i, ok := s.index[ch.GUID]; ok {
		s.changes[i] = ch
		return
	}
	s.index[ch.GUID] = len(s.changes)
	s.changes = append(s.changes, ch)
}

func (s *orderChangeSet) list() []domain.OrderChange {
	return s.changes
}

func (c *Core) processOrderBatch(batch *domain.OrderBatch, resp *domain.SequencerResponse) {
	market := c.markets[batch.MarketID]
	if market == nil {
		resp.Error = domain.ErrUnknownMarket
		return
	}
	book := market.Book()

	resolved, preRejected := c.resolveOrderBatch(market, batch)

	// 整批原子校验：任一钱包超限则全部丢弃，不产生任何订单变更。
	// 占用按全市场口径计，同一资产跨市场的挂单共同挤占可用余额。
	if !domain.WithinBalanceLimit(market, c.ledger, resolved, c.feeRates, c.reservedForAsset) {
		resp.Error = domain.ErrExceedsLimit
		return
	}

	changes := newOrderChangeSet()
	for _, ch := range preRejected {
		changes.put(ch)
	}
	deltas := domain.NewBalanceDeltas()

	// 固定顺序：先增、后改、再撤
	for _, order := range resolved.Adds {
		disp, trades := book.AddOrder(order, c.feeRates)
		c.recordTakerChange(market, changes, order, disp, trades)
		for _, t := range trades {
			c.applyTradeBalances(market, t, deltas)
			c.recordMakerChange(market, changes, order.GUID, t)
		}
		resp.TradesCreated = append(resp.TradesCreated, trades...)
	}

	for _, change := range resolved.Changes {
		guid := change.Order.GUID
		wallet := change.Order.Wallet
		orderType := change.Order.Type
		disp, trades, found := book.ChangeOrder(guid, change.NewAmount, change.NewLevelIx, c.feeRates)
		if !found {
			// 解析后被同批次的撮合吃掉，按不可改单处理
			changes.put(domain.OrderChange{
				MarketID:    market.ID,
				GUID:        guid,
				Wallet:      wallet,
				Type:        orderType,
				Disposition: domain.DispositionRejected,
				LevelIx:     change.NewLevelIx,
			})
			continue
		}
		taker := &domain.Order{
			GUID:    guid,
			Wallet:  wallet,
			Type:    orderType,
			Amount:  change.NewAmount,
			LevelIx: change.NewLevelIx,
		}
		c.recordTakerChange(market, changes, taker, disp, trades)
		for _, t := range trades {
			c.applyTradeBalances(market, t, deltas)
			c.recordMakerChange(market, changes, guid, t)
		}
		resp.TradesCreated = append(resp.TradesCreated, trades...)
	}

	for _, order := range resolved.Cancels {
		if book.CancelOrder(order.GUID) {
			changes.put(domain.OrderChange{
				MarketID:    market.ID,
				GUID:        order.GUID,
				Wallet:      order.Wallet,
				Type:        order.Type,
				Disposition: domain.DispositionCanceled,
				LevelIx:     order.LevelIx,
			})
		}
		// guid 不在簿内（可能已全部成交）：幂等空操作
	}

	resp.OrdersChanged = changes.list()
	resp.BalancesChanged = c.ledger.Merge(deltas)
}

// resolveOrderBatch 将批次解析为可校验、可执行的形式。
// 结构性不合法的条目（未知类型、零数量、价格不在 tick 网格、guid 冲突、
// 越权改撤）被逐单拒绝，批次本身不因此被拒。
func (c *Core) resolveOrderBatch(market *domain.Market, batch *domain.OrderBatch) (*domain.ResolvedOrderBatch, []domain.OrderChange) {
	book := market.Book()
	resolved := &domain.ResolvedOrderBatch{}
	var preRejected []domain.OrderChange
	seen := make(map[int64]bool)

	reject := func(guid int64, wallet string, orderType domain.OrderType, levelIx int64) {
		preRejected = append(preRejected, domain.OrderChange{
			MarketID:    market.ID,
			GUID:        guid,
			Wallet:      wallet,
			Type:        orderType,
			Disposition: domain.DispositionRejected,
			LevelIx:     levelIx,
		})
	}

	for _, entry := range batch.OrdersToAdd {
		order := entry
		if order.Wallet == "" {
			order.Wallet = batch.Wallet
		}
		if !order.Type.Valid() || seen[order.GUID] || book.RestingOrder(order.GUID) != nil {
			reject(order.GUID, order.Wallet, order.Type, 0)
			continue
		}
		seen[order.GUID] = true

		if order.Type.IsLimit() {
			ix, ok := market.LevelIxForPrice(order.Price)
			if !ok {
				reject(order.GUID, order.Wallet, order.Type, 0)
				continue
			}
			order.LevelIx = ix
			order.Price = market.PriceForLevel(ix)
		} else {
			order.LevelIx = 0
			order.Price = decimal.Zero
		}

		if order.Percentage != 0 {
			if order.Percentage < 0 || order.Percentage > 100 {
				reject(order.GUID, order.Wallet, order.Type, order.LevelIx)
				continue
			}
			order.Amount = c.resolvePercentage(market, &order)
			order.Percentage = 0
		}

		if !order.Amount.IsPositive() {
			reject(order.GUID, order.Wallet, order.Type, order.LevelIx)
			continue
		}
		resolved.Adds = append(resolved.Adds, &order)
	}

	for _, entry := range batch.OrdersToChange {
		wallet := entry.Wallet
		if wallet == "" {
			wallet = batch.Wallet
		}
		resting := book.RestingOrder(entry.GUID)
		if resting == nil || resting.Wallet != wallet || !entry.NewAmount.IsPositive() {
			reject(entry.GUID, wallet, "", 0)
			continue
		}
		ix, ok := market.LevelIxForPrice(entry.NewPrice)
		if !ok {
			reject(entry.GUID, wallet, resting.Type, resting.LevelIx)
			continue
		}
		resolved.Changes = append(resolved.Changes, domain.ResolvedChange{
			Order:      resting,
			NewAmount:  entry.NewAmount,
			NewLevelIx: ix,
		})
	}

	for _, entry := range batch.OrdersToCancel {
		wallet := entry.Wallet
		if wallet == "" {
			wallet = batch.Wallet
		}
		resting := book.RestingOrder(entry.GUID)
		if resting == nil {
			// 幂等：目标可能已成交或已撤
			continue
		}
		if resting.Wallet != wallet {
			reject(entry.GUID, wallet, resting.Type, resting.LevelIx)
			continue
		}
		resolved.Cancels = append(resolved.Cancels, resting)
	}

	return resolved, preRejected
}

// resolvePercentage 按可用余额百分比解析订单数量（应用时解析）
func (c *Core) resolvePercentage(market *domain.Market, order *domain.Order) decimal.Decimal {
	pct := decimal.NewFromInt32(order.Percentage)
	hundred := decimal.NewFromInt(100)

	if order.Type.IsSell() {
		budget := c.available(order.Wallet, market.BaseAsset).Mul(pct)
		q, _ := budget.QuoRem(hundred, 0)
		return q
	}

	quote := c.available(order.Wallet, market.QuoteAsset).Mul(pct)
	budget, _ := quote.QuoRem(hundred, 0)
	if order.Type == domain.MarketBuy {
		return market.Book().BaseQuantityForQuote(budget)
	}
	unitCost := market.Notional(decimal.NewFromInt(1), order.LevelIx)
	if !unitCost.IsPositive() {
		return decimal.Zero
	}
	q, _ := budget.QuoRem(unitCost, 0)
	return q
}

// recordTakerChange 记录吃单方（新增或改单）的最终状态
func (c *Core) recordTakerChange(market *domain.Market, changes *orderChangeSet, order *domain.Order, disp domain.Disposition, trades []domain.Trade) {
	filled := decimal.Zero
	for _, t := range trades {
		filled = filled.Add(t.Amount)
	}
	remaining := order.Amount.Sub(filled)
	if order.Type.IsMarket() && disp != domain.DispositionFilled {
		// 市价单剩余量已被丢弃
		remaining = decimal.Zero
	}
	changes.put(domain.OrderChange{
		MarketID:    market.ID,
		GUID:        order.GUID,
		Wallet:      order.Wallet,
		Type:        order.Type,
		Disposition: disp,
		Remaining:   remaining,
		LevelIx:     order.LevelIx,
	})
}

// recordMakerChange 记录被动成交的挂单方状态
func (c *Core) recordMakerChange(market *domain.Market, changes *orderChangeSet, takerGUID int64, trade domain.Trade) {
	makerGUID := trade.SellOrderGUID
	makerWallet := trade.SellWallet
	if makerGUID == takerGUID {
		makerGUID = trade.BuyOrderGUID
		makerWallet = trade.BuyWallet
	}
	resting := market.Book().RestingOrder(makerGUID)
	if resting != nil {
		changes.put(domain.OrderChange{
			MarketID:    market.ID,
			GUID:        makerGUID,
			Wallet:      makerWallet,
			Type:        resting.Type,
			Disposition: domain.DispositionPartiallyFilled,
			Remaining:   resting.Amount,
			LevelIx:     resting.LevelIx,
		})
		return
	}
	makerType := domain.LimitSell
	if makerGUID == trade.BuyOrderGUID {
		makerType = domain.LimitBuy
	}
	changes.put(domain.OrderChange{
		MarketID:    market.ID,
		GUID:        makerGUID,
		Wallet:      makerWallet,
		Type:        makerType,
		Disposition: domain.DispositionFilled,
		LevelIx:     trade.LevelIx,
	})
}

// applyTradeBalances 单笔成交的余额增量：买方得基础资产、付名义价值+手续费；
// 卖方付基础资产、得名义价值−手续费；两侧手续费归集到手续费钱包。
// 成交只在钱包之间转移价值，总量守恒。
func (c *Core) applyTradeBalances(market *domain.Market, trade domain.Trade, deltas *domain.BalanceDeltas) {
	notional := market.Notional(trade.Amount, trade.LevelIx)
	deltas.Add(trade.BuyWallet, market.BaseAsset, trade.Amount)
	deltas.Add(trade.BuyWallet, market.QuoteAsset, notional.Add(trade.BuyerFee).Neg())
	deltas.Add(trade.SellWallet, market.BaseAsset, trade.Amount.Neg())
	deltas.Add(trade.SellWallet, market.QuoteAsset, notional.Sub(trade.SellerFee))
	deltas.Add(c.feeWallet, market.QuoteAsset, trade.BuyerFee.Add(trade.SellerFee))
}

// reservedForAsset 钱包在某资产上被全部市场挂单占用的总量
func (c *Core) reservedForAsset(wallet, asset string) decimal.Decimal {
	total := decimal.Zero
	for _, id := range c.marketIDs {
		m := c.markets[id]
		if m.BaseAsset == asset {
			total = total.Add(m.Book().BaseAssetsRequired(wallet))
		}
		if m.QuoteAsset == asset {
			total = total.Add(m.Book().QuoteAssetsRequired(wallet))
		}
	}
	return total
}

// available 钱包在某资产上的可用余额（账本余额 − 挂单占用），下限为零
func (c *Core) available(wallet, asset string) decimal.Decimal {
	avail := c.ledger.Balance(wallet, asset).Sub(c.reservedForAsset(wallet, asset))
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}
