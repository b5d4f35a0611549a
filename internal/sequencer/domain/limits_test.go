package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fundedLedger(entries map[BalanceKey]string) *Ledger {
	ledger := NewLedger()
	deltas := NewBalanceDeltas()
	for key, amount := range entries {
		deltas.Add(key.Wallet, key.Asset, dec(amount))
	}
	ledger.Merge(deltas)
	return ledger
}

// bookReserved 单市场口径的占用查询，多市场聚合由应用层提供
func bookReserved(m *Market) ReservedFunc {
	return func(wallet, asset string) decimal.Decimal {
		switch asset {
		case m.BaseAsset:
			return m.Book().BaseAssetsRequired(wallet)
		case m.QuoteAsset:
			return m.Book().QuoteAssetsRequired(wallet)
		}
		return decimal.Zero
	}
}

func TestWithinBalanceLimitSell(t *testing.T) {
	m := testMarket(t)
	ledger := fundedLedger(map[BalanceKey]string{
		{Wallet: "alice", Asset: "BTC"}: "500000000",
	})

	batch := &ResolvedOrderBatch{Adds: []*Order{limitSell(1, "alice", "500000000", 400)}}
	assert.True(t, WithinBalanceLimit(m, ledger, batch, DefaultFeeRates(), bookReserved(m)))

	batch = &ResolvedOrderBatch{Adds: []*Order{limitSell(1, "alice", "500000001", 400)}}
	assert.False(t, WithinBalanceLimit(m, ledger, batch, DefaultFeeRates(), bookReserved(m)))
}

func TestWithinBalanceLimitBuyIncludesTakerFee(t *testing.T) {
	m := testMarket(t)
	// 1 BTC @ 20.00 名义价值 20 ETH，交叉部分还要付 0.1% 吃单费
	batch := &ResolvedOrderBatch{Adds: []*Order{limitBuy(1, "bob", "100000000", 400)}}

	funded := fundedLedger(map[BalanceKey]string{
		{Wallet: "bob", Asset: "ETH"}: "20020000000000000000",
	})
	assert.True(t, WithinBalanceLimit(m, funded, batch, DefaultFeeRates(), bookReserved(m)))

	// 恰好只够名义价值：不足以覆盖结算时的手续费
	exact := fundedLedger(map[BalanceKey]string{
		{Wallet: "bob", Asset: "ETH"}: "20000000000000000000",
	})
	assert.False(t, WithinBalanceLimit(m, exact, batch, DefaultFeeRates(), bookReserved(m)))
}

func TestWithinBalanceLimitMarketBuyIncludesTakerFee(t *testing.T) {
	m := testMarket(t)
	m.Book().AddOrder(limitSell(1, "alice", "100000000", 400), DefaultFeeRates())

	// 吃单成本 20 ETH + 0.1% 手续费 = 20.02 ETH
	ledger := fundedLedger(map[BalanceKey]string{
		{Wallet: "bob", Asset: "ETH"}: "20020000000000000000",
	})
	batch := &ResolvedOrderBatch{Adds: []*Order{{GUID: 2, Wallet: "bob", Type: MarketBuy, Amount: dec("100000000")}}}
	assert.True(t, WithinBalanceLimit(m, ledger, batch, DefaultFeeRates(), bookReserved(m)))

	short := fundedLedger(map[BalanceKey]string{
		{Wallet: "bob", Asset: "ETH"}: "20019999999999999999",
	})
	assert.False(t, WithinBalanceLimit(m, short, batch, DefaultFeeRates(), bookReserved(m)))
}

func TestWithinBalanceLimitAccountsForReservations(t *testing.T) {
	m := testMarket(t)
	ledger := fundedLedger(map[BalanceKey]string{
		{Wallet: "alice", Asset: "BTC"}: "500000000",
	})

	// 已有挂单占用 3 BTC，可用只剩 2 BTC
	disp, _ := m.Book().AddOrder(limitSell(1, "alice", "300000000", 400), DefaultFeeRates())
	require.Equal(t, DispositionAccepted, disp)

	batch := &ResolvedOrderBatch{Adds: []*Order{limitSell(2, "alice", "200000000", 401)}}
	assert.True(t, WithinBalanceLimit(m, ledger, batch, DefaultFeeRates(), bookReserved(m)))

	batch = &ResolvedOrderBatch{Adds: []*Order{limitSell(2, "alice", "200000001", 401)}}
	assert.False(t, WithinBalanceLimit(m, ledger, batch, DefaultFeeRates(), bookReserved(m)))
}

// TestWithinBalanceLimitCountsExternalReservations 占用查询覆盖全部市场：
// 同一资产在别处市场的挂单占用同样挤占本批次的可用余额。
func TestWithinBalanceLimitCountsExternalReservations(t *testing.T) {
	m := testMarket(t)
	ledger := fundedLedger(map[BalanceKey]string{
		{Wallet: "alice", Asset: "BTC"}: "500000000",
	})

	// 另一市场占用了 4 BTC
	external := dec("400000000")
	reserved := func(wallet, asset string) decimal.Decimal {
		total := bookReserved(m)(wallet, asset)
		if wallet == "alice" && asset == "BTC" {
			total = total.Add(external)
		}
		return total
	}

	batch := &ResolvedOrderBatch{Adds: []*Order{limitSell(1, "alice", "100000000", 400)}}
	assert.True(t, WithinBalanceLimit(m, ledger, batch, DefaultFeeRates(), reserved))

	batch = &ResolvedOrderBatch{Adds: []*Order{limitSell(1, "alice", "100000001", 400)}}
	assert.False(t, WithinBalanceLimit(m, ledger, batch, DefaultFeeRates(), reserved))
}

func TestWithinBalanceLimitCancelFreesReservation(t *testing.T) {
	m := testMarket(t)
	ledger := fundedLedger(map[BalanceKey]string{
		{Wallet: "alice", Asset: "BTC"}: "500000000",
	})

	disp, _ := m.Book().AddOrder(limitSell(1, "alice", "500000000", 400), DefaultFeeRates())
	require.Equal(t, DispositionAccepted, disp)
	resting := m.Book().RestingOrder(1)
	require.NotNil(t, resting)

	// 单独新增超限，同批撤掉旧单后通过
	add := limitSell(2, "alice", "400000000", 401)
	assert.False(t, WithinBalanceLimit(m, ledger, &ResolvedOrderBatch{Adds: []*Order{add}}, DefaultFeeRates(), bookReserved(m)))
	assert.True(t, WithinBalanceLimit(m, ledger, &ResolvedOrderBatch{
		Adds:    []*Order{add},
		Cancels: []*Order{resting},
	}, DefaultFeeRates(), bookReserved(m)))
}

func TestWithinBalanceLimitChangeDelta(t *testing.T) {
	m := testMarket(t)
	ledger := fundedLedger(map[BalanceKey]string{
		{Wallet: "alice", Asset: "BTC"}: "500000000",
	})

	m.Book().AddOrder(limitSell(1, "alice", "400000000", 400), DefaultFeeRates())
	resting := m.Book().RestingOrder(1)
	require.NotNil(t, resting)

	// 增量只按新旧占用之差计：4 → 5 BTC 需要额外 1 BTC
	batch := &ResolvedOrderBatch{Changes: []ResolvedChange{{Order: resting, NewAmount: dec("500000000"), NewLevelIx: 400}}}
	assert.True(t, WithinBalanceLimit(m, ledger, batch, DefaultFeeRates(), bookReserved(m)))

	batch = &ResolvedOrderBatch{Changes: []ResolvedChange{{Order: resting, NewAmount: dec("500000001"), NewLevelIx: 400}}}
	assert.False(t, WithinBalanceLimit(m, ledger, batch, DefaultFeeRates(), bookReserved(m)))
}

func TestWithinBalanceLimitAllOrNothing(t *testing.T) {
	m := testMarket(t)
	ledger := fundedLedger(map[BalanceKey]string{
		{Wallet: "alice", Asset: "BTC"}: "500000000",
		{Wallet: "bob", Asset: "ETH"}:   "100000000000000000000",
	})

	// alice 超限即整批拒绝，bob 的合法订单也不放行
	batch := &ResolvedOrderBatch{Adds: []*Order{
		limitBuy(1, "bob", "100000000", 400),
		limitSell(2, "alice", "600000000", 400),
	}}
	assert.False(t, WithinBalanceLimit(m, ledger, batch, DefaultFeeRates(), bookReserved(m)))
}
