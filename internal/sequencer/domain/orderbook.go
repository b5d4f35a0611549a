package domain

import (
	"container/list"
	"sort"

	"github.com/shopspring/decimal"
)

// priceLevel 单个价格档位，FIFO 队列保证时间优先
type priceLevel struct {
	ix     int64
	orders *list.List // 存储 *Order
}

func newPriceLevel(ix int64) *priceLevel {
	return &priceLevel{ix: ix, orders: list.New()}
}

// bookSide 买盘或卖盘：稀疏档位表 + 升序活跃档位索引。
// 价格永远不做浮点比较，档位只以整数索引寻址。
type bookSide struct {
	levels map[int64]*priceLevel
	ixs    []int64 // 升序
}

func newBookSide() *bookSide {
	return &bookSide{levels: make(map[int64]*priceLevel)}
}

func (s *bookSide) level(ix int64) *priceLevel {
	return s.levels[ix]
}

func (s *bookSide) ensureLevel(ix int64) *priceLevel {
	if lvl, ok := s.levels[ix]; ok {
		return lvl
	}
	lvl := newPriceLevel(ix)
	s.levels[ix] = lvl
	pos := sort.Search(len(s.ixs), func(i int) bool { return s.ixs[i] >= ix })
	s.ixs = append(s.ixs, 0)
	copy(s.ixs[pos+1:], s.ixs[pos:])
	s.ixs[pos] = ix
	return lvl
}

func (s *bookSide) removeLevelIfEmpty(lvl *priceLevel) {
	if lvl.orders.Len() > 0 {
		return
	}
	delete(s.levels, lvl.ix)
	pos := sort.Search(len(s.ixs), func(i int) bool { return s.ixs[i] >= lvl.ix })
	if pos < len(s.ixs) && s.ixs[pos] == lvl.ix {
		s.ixs = append(s.ixs[:pos], s.ixs[pos+1:]...)
	}
}

// bestAsk 最低卖价档位索引（卖盘视角）
func (s *bookSide) lowestIx() (int64, bool) {
	if len(s.ixs) == 0 {
		return 0, false
	}
	return s.ixs[0], true
}

// bestBid 最高买价档位索引（买盘视角）
func (s *bookSide) highestIx() (int64, bool) {
	if len(s.ixs) == 0 {
		return 0, false
	}
	return s.ixs[len(s.ixs)-1], true
}

// bookEntry guid 索引项，定位挂单所在档位与队列位置
type bookEntry struct {
	order *Order
	level *priceLevel
	elem  *list.Element
}

// OrderBook 单市场订单簿：维护买卖双侧价格阶梯并执行撮合。
// 仅由定序核心的单一 worker 访问，无内部锁。
type OrderBook struct {
	market  *Market
	bids    *bookSide
	asks    *bookSide
	entries map[int64]*bookEntry // guid → 挂单
}

func newOrderBook(m *Market) *OrderBook {
	return &OrderBook{
		market:  m,
		bids:    newBookSide(),
		asks:    newBookSide(),
		entries: make(map[int64]*bookEntry),
	}
}

// RestingCount 当前挂单数
func (b *OrderBook) RestingCount() int {
	return len(b.entries)
}

// RestingOrder 按 guid 查询挂单，未找到返回 nil
func (b *OrderBook) RestingOrder(guid int64) *Order {
	entry, ok := b.entries[guid]
	if !ok {
		return nil
	}
	return entry.order
}

// AddOrder 接收新订单并执行撮合。
// 限价单：与订单簿交叉时自最优对手档位起迭代撮合，档内 FIFO，
// 直到吃完、越过限价或簿内枯竭，剩余数量按其档位挂入簿内。
// 市价单：吃穿对手盘全部深度，深度耗尽后剩余数量被丢弃，绝不挂簿。
// 每笔成交以挂单方（maker）的档位价格成交。
func (b *OrderBook) AddOrder(order *Order, rates FeeRates) (Disposition, []Trade) {
	if !order.Amount.IsPositive() {
		return DispositionRejected, nil
	}

	remaining := order.Amount
	var trades []Trade

	if order.Type.IsBuy() {
		for remaining.IsPositive() {
			askIx, ok := b.asks.lowestIx()
			if !ok {
				break
			}
			if order.Type.IsLimit() && askIx > order.LevelIx {
				break
			}
			remaining = b.matchAtLevel(order, b.asks.level(askIx), remaining, rates, &trades)
		}
	} else {
		for remaining.IsPositive() {
			bidIx, ok := b.bids.highestIx()
			if !ok {
				break
			}
			if order.Type.IsLimit() && bidIx < order.LevelIx {
				break
			}
			remaining = b.matchAtLevel(order, b.bids.level(bidIx), remaining, rates, &trades)
		}
	}

	if remaining.IsZero() {
		return DispositionFilled, trades
	}

	if order.Type.IsMarket() {
		// 市价单剩余量不挂簿
		if len(trades) > 0 {
			return DispositionPartiallyFilled, trades
		}
		return DispositionRejected, trades
	}

	rested := order
	if !remaining.Equal(order.Amount) {
		restCopy := *order
		restCopy.Amount = remaining
		rested = &restCopy
	}
	if !b.rest(rested) {
		// 档位已满，剩余数量无法挂入
		if len(trades) > 0 {
			return DispositionPartiallyFilled, trades
		}
		return DispositionRejected, trades
	}

	if len(trades) > 0 {
		return DispositionPartiallyFilled, trades
	}
	return DispositionAccepted, trades
}

// matchAtLevel 在单一档位内按 FIFO 撮合，返回剩余数量
func (b *OrderBook) matchAtLevel(taker *Order, lvl *priceLevel, remaining decimal.Decimal, rates FeeRates, trades *[]Trade) decimal.Decimal {
	var next *list.Element
	for el := lvl.orders.Front(); el != nil && remaining.IsPositive(); el = next {
		next = el.Next()
		maker := el.Value.(*Order)

		qty := decimal.Min(remaining, maker.Amount)
		notional := b.market.Notional(qty, lvl.ix)
		takerFee := NotionalFee(notional, rates.Taker)
		makerFee := NotionalFee(notional, rates.Maker)

		trade := Trade{
			MarketID: b.market.ID,
			LevelIx:  lvl.ix,
			Amount:   qty,
		}
		if taker.Type.IsBuy() {
			trade.BuyOrderGUID = taker.GUID
			trade.BuyWallet = taker.Wallet
			trade.SellOrderGUID = maker.GUID
			trade.SellWallet = maker.Wallet
			trade.BuyerFee = takerFee
			trade.SellerFee = makerFee
		} else {
			trade.BuyOrderGUID = maker.GUID
			trade.BuyWallet = maker.Wallet
			trade.SellOrderGUID = taker.GUID
			trade.SellWallet = taker.Wallet
			trade.BuyerFee = makerFee
			trade.SellerFee = takerFee
		}
		*trades = append(*trades, trade)

		remaining = remaining.Sub(qty)
		maker.Amount = maker.Amount.Sub(qty)
		b.market.applyTrade(lvl.ix)

		if maker.Amount.IsZero() {
			lvl.orders.Remove(el)
			delete(b.entries, maker.GUID)
		}
	}

	side := b.asks
	if taker.Type.IsSell() {
		side = b.bids
	}
	side.removeLevelIfEmpty(lvl)
	return remaining
}

// rest 将限价单挂入其档位队尾，档位满则拒绝
func (b *OrderBook) rest(order *Order) bool {
	side := b.bids
	if order.Type.IsSell() {
		side = b.asks
	}
	lvl := side.level(order.LevelIx)
	if lvl != nil && lvl.orders.Len() >= b.market.MaxOrdersPerLevel {
		return false
	}
	if lvl == nil {
		lvl = side.ensureLevel(order.LevelIx)
	}
	elem := lvl.orders.PushBack(order)
	b.entries[order.GUID] = &bookEntry{order: order, level: lvl, elem: elem}
	return true
}

// crosses 新档位是否与对手盘交叉
func (b *OrderBook) crosses(orderType OrderType, levelIx int64) bool {
	if orderType.IsBuy() {
		askIx, ok := b.asks.lowestIx()
		return ok && askIx <= levelIx
	}
	bidIx, ok := b.bids.highestIx()
	return ok && bidIx >= levelIx
}

// ChangeOrder 修改挂单。价格交叉对手盘时按撤单+重下处理（可能立即成交）；
// 同档位纯减量保留队列位置；其余情况移动到新档位队尾（时间优先重置）。
// 返回 found=false 表示 guid 不在簿内。
func (b *OrderBook) ChangeOrder(guid int64, newAmount decimal.Decimal, newLevelIx int64, rates FeeRates) (Disposition, []Trade, bool) {
	entry, ok := b.entries[guid]
	if !ok {
		return DispositionRejected, nil, false
	}
	order := entry.order

	if !newAmount.IsPositive() {
		return DispositionRejected, nil, true
	}

	if newLevelIx == order.LevelIx && newAmount.LessThanOrEqual(order.Amount) {
		order.Amount = newAmount
		return DispositionAccepted, nil, true
	}

	b.unlink(entry)

	changed := *order
	changed.Amount = newAmount
	changed.LevelIx = newLevelIx
	changed.Price = b.market.PriceForLevel(newLevelIx)

	if b.crosses(order.Type, newLevelIx) {
		disp, trades := b.AddOrder(&changed, rates)
		return disp, trades, true
	}

	if !b.rest(&changed) {
		// 新档位已满：改单失败，按原参数挂回原档位
		b.rest(order)
		return DispositionRejected, nil, true
	}
	return DispositionAccepted, nil, true
}

// CancelOrder 撤单；guid 不存在（可能已全部成交）时为幂等空操作
func (b *OrderBook) CancelOrder(guid int64) bool {
	entry, ok := b.entries[guid]
	if !ok {
		return false
	}
	b.unlink(entry)
	return true
}

func (b *OrderBook) unlink(entry *bookEntry) {
	entry.level.orders.Remove(entry.elem)
	delete(b.entries, entry.order.GUID)
	side := b.bids
	if entry.order.Type.IsSell() {
		side = b.asks
	}
	side.removeLevelIfEmpty(entry.level)
}

// ClearingForMarketBuy 市价买单的干跑估算：沿卖盘深度推演，
// 返回可成交数量与对应的报价资产总成本。不修改任何状态，
// 仅用于余额需求估算，执行价格始终取每笔挂单自身档位。
func (b *OrderBook) ClearingForMarketBuy(amount decimal.Decimal) (quoteCost, availableQty decimal.Decimal) {
	remaining := amount
	for _, ix := range b.asks.ixs {
		if !remaining.IsPositive() {
			break
		}
		lvl := b.asks.levels[ix]
		for el := lvl.orders.Front(); el != nil && remaining.IsPositive(); el = el.Next() {
			maker := el.Value.(*Order)
			qty := decimal.Min(remaining, maker.Amount)
			quoteCost = quoteCost.Add(b.market.Notional(qty, ix))
			availableQty = availableQty.Add(qty)
			remaining = remaining.Sub(qty)
		}
	}
	return quoteCost, availableQty
}

// BaseQuantityForQuote 给定报价资产预算，沿卖盘深度推演可买到的基础资产数量。
// 用于百分比市价买单的数量解析。
func (b *OrderBook) BaseQuantityForQuote(budget decimal.Decimal) decimal.Decimal {
	var qty decimal.Decimal
	remaining := budget
	for _, ix := range b.asks.ixs {
		if !remaining.IsPositive() {
			break
		}
		price := b.market.PriceForLevel(ix)
		unitCost := price.Mul(decimal.New(1, int32(b.market.QuoteDecimals)-int32(b.market.BaseDecimals)))
		lvl := b.asks.levels[ix]
		for el := lvl.orders.Front(); el != nil && remaining.IsPositive(); el = el.Next() {
			maker := el.Value.(*Order)
			fullCost := b.market.Notional(maker.Amount, ix)
			if fullCost.LessThanOrEqual(remaining) {
				qty = qty.Add(maker.Amount)
				remaining = remaining.Sub(fullCost)
				continue
			}
			partial, _ := remaining.QuoRem(unitCost, 0)
			if partial.IsPositive() {
				qty = qty.Add(partial)
				remaining = remaining.Sub(b.market.Notional(partial, ix))
			}
			return qty
		}
	}
	return qty
}

// AssetsReservedForOrder 挂单占用的资产：卖单占用 amount 基础资产，
// 买单占用 amount × price 折算的报价资产。
func (b *OrderBook) AssetsReservedForOrder(order *Order) (baseReserved, quoteReserved decimal.Decimal) {
	if order.Type.IsSell() {
		return order.Amount, decimal.Zero
	}
	return decimal.Zero, b.market.Notional(order.Amount, order.LevelIx)
}

// BaseAssetsRequired 钱包全部挂单占用的基础资产总量
func (b *OrderBook) BaseAssetsRequired(wallet string) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range b.entries {
		if entry.order.Wallet != wallet {
			continue
		}
		base, _ := b.AssetsReservedForOrder(entry.order)
		total = total.Add(base)
	}
	return total
}

// QuoteAssetsRequired 钱包全部挂单占用的报价资产总量
func (b *OrderBook) QuoteAssetsRequired(wallet string) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range b.entries {
		if entry.order.Wallet != wallet {
			continue
		}
		_, quote := b.AssetsReservedForOrder(entry.order)
		total = total.Add(quote)
	}
	return total
}

// DepthLevel 盘口档位聚合
type DepthLevel struct {
	LevelIx  int64           `json:"level_ix"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

// Depth 盘口快照：买盘自高到低、卖盘自低到高各取 depth 档
func (b *OrderBook) Depth(depth int) (bids, asks []DepthLevel) {
	for i := len(b.bids.ixs) - 1; i >= 0 && len(bids) < depth; i-- {
		bids = append(bids, b.depthLevel(b.bids, b.bids.ixs[i]))
	}
	for i := 0; i < len(b.asks.ixs) && len(asks) < depth; i++ {
		asks = append(asks, b.depthLevel(b.asks, b.asks.ixs[i]))
	}
	return bids, asks
}

func (b *OrderBook) depthLevel(side *bookSide, ix int64) DepthLevel {
	lvl := side.levels[ix]
	total := decimal.Zero
	for el := lvl.orders.Front(); el != nil; el = el.Next() {
		total = total.Add(el.Value.(*Order).Amount)
	}
	return DepthLevel{
		LevelIx:  ix,
		Price:    b.market.PriceForLevel(ix),
		Quantity: total,
		Orders:   lvl.orders.Len(),
	}
}

// RestingOrders 全部挂单，按 (levelIx, 队列位置) 确定性排序，
// 买盘在前自高到低，卖盘在后自低到高。用于检查点编码。
func (b *OrderBook) RestingOrders() []*Order {
	out := make([]*Order, 0, len(b.entries))
	for i := len(b.bids.ixs) - 1; i >= 0; i-- {
		lvl := b.bids.levels[b.bids.ixs[i]]
		for el := lvl.orders.Front(); el != nil; el = el.Next() {
			out = append(out, el.Value.(*Order))
		}
	}
	for _, ix := range b.asks.ixs {
		lvl := b.asks.levels[ix]
		for el := lvl.orders.Front(); el != nil; el = el.Next() {
			out = append(out, el.Value.(*Order))
		}
	}
	return out
}

// Restore 重放挂单（检查点恢复），跳过撮合直接入簿
func (b *OrderBook) Restore(order *Order) bool {
	return b.rest(order)
}
