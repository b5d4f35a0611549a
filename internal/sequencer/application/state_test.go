package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/dexcore/internal/sequencer/domain"
)

// scenarioRequests 一段覆盖全部请求类型的确定性请求序列
func scenarioRequests() []*domain.SequencerRequest {
	return []*domain.SequencerRequest{
		addMarketRequest(),
		depositRequest("alice", "BTC", "1000000000"),
		depositRequest("bob", "ETH", "100000000000000000000"),
		{
			Type:     domain.RequestSetFeeRates,
			FeeRates: &domain.FeeRates{Taker: 2_000, Maker: 1_000},
		},
		{
			Type: domain.RequestSetWithdrawalFees,
			WithdrawalFees: &domain.WithdrawalFeesPayload{
				Fees: []domain.AssetFee{{Asset: "ETH", Fee: dec("1000000000000000")}},
			},
		},
		{
			Type: domain.RequestApplyOrderBatch,
			OrderBatch: &domain.OrderBatch{
				MarketID: "BTC-ETH",
				Wallet:   "alice",
				OrdersToAdd: []domain.Order{
					{GUID: 1, Type: domain.LimitSell, Amount: dec("500000000"), Price: dec("20.00")},
					{GUID: 2, Type: domain.LimitSell, Amount: dec("200000000"), Price: dec("20.10")},
				},
			},
		},
		{
			Type: domain.RequestApplyOrderBatch,
			OrderBatch: &domain.OrderBatch{
				MarketID: "BTC-ETH",
				Wallet:   "bob",
				OrdersToAdd: []domain.Order{
					{GUID: 3, Type: domain.MarketBuy, Amount: dec("300000000")},
					{GUID: 4, Type: domain.LimitBuy, Amount: dec("100000000"), Price: dec("19.90")},
				},
			},
		},
		{
			Type: domain.RequestApplyOrderBatch,
			OrderBatch: &domain.OrderBatch{
				MarketID:       "BTC-ETH",
				Wallet:         "alice",
				OrdersToChange: []domain.OrderChangeRequest{{GUID: 2, NewAmount: dec("100000000"), NewPrice: dec("20.05")}},
			},
		},
		{
			Type: domain.RequestApplyBalanceBatch,
			BalanceBatch: &domain.BalanceBatch{
				Withdrawals: []domain.BalanceOperation{{Wallet: "bob", Asset: "ETH", Amount: dec("10000000000000000000")}},
			},
		},
	}
}

// TestReplayDeterminism 相同的请求序列必须产生逐位一致的响应与状态
func TestReplayDeterminism(t *testing.T) {
	first := NewCore("fee-collector", discardLogger())
	second := NewCore("fee-collector", discardLogger())

	for i, req := range scenarioRequests() {
		a := first.ProcessRequest(req)
		b := second.ProcessRequest(req)
		assert.Equal(t, a, b, "response %d diverged", i)
	}

	assert.Equal(t, first.StateDigest(9), second.StateDigest(9))
	assert.Equal(t, first.EncodeState(9), second.EncodeState(9))
}

func TestStateRoundTrip(t *testing.T) {
	core := NewCore("fee-collector", discardLogger())
	for _, req := range scenarioRequests() {
		core.ProcessRequest(req)
	}

	encoded := core.EncodeState(9)
	restored, seq, err := DecodeState(encoded, "fee-collector", discardLogger())
	require.NoError(t, err)
	assert.Equal(t, uint64(9), seq)

	// 重建后的状态编码逐位一致
	assert.Equal(t, encoded, restored.EncodeState(9))
	assert.Equal(t, core.FeeRates(), restored.FeeRates())
	assert.Equal(t, core.MarketIDs(), restored.MarketIDs())
	assert.Equal(t, core.RestingOrders(), restored.RestingOrders())

	// 恢复后的核心可继续处理请求
	resp := restored.ProcessRequest(&domain.SequencerRequest{
		Type: domain.RequestApplyOrderBatch,
		OrderBatch: &domain.OrderBatch{
			MarketID:       "BTC-ETH",
			Wallet:         "alice",
			OrdersToCancel: []domain.OrderCancelRequest{{GUID: 2}},
		},
	})
	assert.Equal(t, domain.ErrNone, resp.Error)
}

func TestDecodeStateRejectsCorruption(t *testing.T) {
	core := NewCore("fee-collector", discardLogger())
	core.ProcessRequest(addMarketRequest())
	encoded := core.EncodeState(1)

	// 摘要不匹配
	tampered := append([]byte{}, encoded...)
	tampered[len(tampered)/2] ^= 0x01
	_, _, err := DecodeState(tampered, "fee-collector", discardLogger())
	assert.Error(t, err)

	// 截断
	_, _, err = DecodeState(encoded[:10], "fee-collector", discardLogger())
	assert.Error(t, err)
}

func TestSnapshotReflectsState(t *testing.T) {
	core := NewCore("fee-collector", discardLogger())
	for _, req := range scenarioRequests() {
		core.ProcessRequest(req)
	}

	snap := core.Snapshot(9, 10)
	assert.Equal(t, uint64(9), snap.Sequence)
	require.Len(t, snap.Markets, 1)
	assert.Equal(t, "BTC-ETH", snap.Markets[0].ID)
	assert.NotEmpty(t, snap.Markets[0].Asks)
	assert.NotEmpty(t, snap.Markets[0].Bids)
	assert.NotEmpty(t, snap.Balances)
}
