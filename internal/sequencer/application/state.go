package application

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/dexcore/internal/sequencer/domain"
)

// 检查点二进制格式：魔数 + 规范字段编码（数值编解码器）+ SHA-256 摘要。
// 编码顺序全部取确定性排序，同一状态永远产生相同字节序列。
var checkpointMagic = []byte("DXSEQ001")

// MarketSnapshot 市场查询快照
type MarketSnapshot struct {
	domain.MarketParams
	ReferencePrice decimal.Decimal     `json:"reference_price"`
	Bids           []domain.DepthLevel `json:"bids"`
	Asks           []domain.DepthLevel `json:"asks"`
}

// StateSnapshot 核心状态的只读快照，worker 每处理一条请求后发布，
// HTTP 查询侧无锁读取
type StateSnapshot struct {
	Sequence uint64                 `json:"sequence"`
	FeeRates domain.FeeRates        `json:"fee_rates"`
	Markets  []MarketSnapshot       `json:"markets"`
	Balances []domain.BalanceChange `json:"balances"`
}

// Snapshot 构建查询快照，盘口各侧最多 depth 档
func (c *Core) Snapshot(sequence uint64, depth int) *StateSnapshot {
	snap := &StateSnapshot{
		Sequence: sequence,
		FeeRates: c.feeRates,
		Markets:  make([]MarketSnapshot, 0, len(c.marketIDs)),
		Balances: c.ledger.Entries(),
	}
	for _, id := range c.marketIDs {
		m := c.markets[id]
		bids, asks := m.Book().Depth(depth)
		snap.Markets = append(snap.Markets, MarketSnapshot{
			MarketParams:   m.MarketParams,
			ReferencePrice: m.ReferencePrice,
			Bids:           bids,
			Asks:           asks,
		})
	}
	return snap
}

// EncodeState 将核心状态编码为检查点字节序列
func (c *Core) EncodeState(sequence uint64) []byte {
	buf := append([]byte{}, checkpointMagic...)
	buf = domain.AppendInt64(buf, int64(sequence))
	buf = domain.AppendInt64(buf, c.feeRates.Taker)
	buf = domain.AppendInt64(buf, c.feeRates.Maker)
	buf = domain.AppendString(buf, c.feeWallet)

	assets := make([]string, 0, len(c.withdrawalFees))
	for a := range c.withdrawalFees {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	buf = domain.AppendInt64(buf, int64(len(assets)))
	for _, a := range assets {
		buf = domain.AppendString(buf, a)
		buf = domain.AppendDecimal(buf, c.withdrawalFees[a])
	}

	buf = domain.AppendInt64(buf, int64(len(c.marketIDs)))
	for _, id := range c.marketIDs {
		m := c.markets[id]
		buf = domain.AppendString(buf, m.ID)
		buf = domain.AppendString(buf, m.BaseAsset)
		buf = domain.AppendString(buf, m.QuoteAsset)
		buf = domain.AppendDecimal(buf, m.TickSize)
		buf = domain.AppendDecimal(buf, m.ReferencePrice)
		buf = domain.AppendInt64(buf, m.MaxLevels)
		buf = domain.AppendInt64(buf, int64(m.MaxOrdersPerLevel))
		buf = domain.AppendInt64(buf, int64(m.BaseDecimals))
		buf = domain.AppendInt64(buf, int64(m.QuoteDecimals))

		orders := m.Book().RestingOrders()
		buf = domain.AppendInt64(buf, int64(len(orders)))
		for _, o := range orders {
			buf = domain.AppendInt64(buf, o.GUID)
			buf = domain.AppendString(buf, o.Wallet)
			buf = domain.AppendString(buf, string(o.Type))
			buf = domain.AppendDecimal(buf, o.Amount)
			buf = domain.AppendInt64(buf, o.LevelIx)
		}
	}

	balances := c.ledger.Entries()
	buf = domain.AppendInt64(buf, int64(len(balances)))
	for _, b := range balances {
		buf = domain.AppendString(buf, b.Wallet)
		buf = domain.AppendString(buf, b.Asset)
		buf = domain.AppendDecimal(buf, b.Balance)
	}

	digest := sha256.Sum256(buf)
	return append(buf, digest[:]...)
}

// StateDigest 当前状态的 SHA-256 摘要（不含序列号影响时传 0）
func (c *Core) StateDigest(sequence uint64) [32]byte {
	encoded := c.EncodeState(sequence)
	return sha256.Sum256(encoded[:len(encoded)-sha256.Size])
}

// DecodeState 从检查点字节序列重建核心，返回检查点的序列号
func DecodeState(data []byte, feeWallet string, logger *slog.Logger) (*Core, uint64, error) {
	if len(data) < len(checkpointMagic)+sha256.Size {
		return nil, 0, fmt.Errorf("checkpoint too short: %d bytes", len(data))
	}
	body := data[:len(data)-sha256.Size]
	digest := sha256.Sum256(body)
	if !bytes.Equal(digest[:], data[len(data)-sha256.Size:]) {
		return nil, 0, fmt.Errorf("checkpoint digest mismatch")
	}
	if !bytes.Equal(body[:len(checkpointMagic)], checkpointMagic) {
		return nil, 0, fmt.Errorf("bad checkpoint magic")
	}

	rest := body[len(checkpointMagic):]
	var err error
	var seq, taker, maker int64
	if seq, rest, err = domain.ReadInt64(rest); err != nil {
		return nil, 0, err
	}
	if taker, rest, err = domain.ReadInt64(rest); err != nil {
		return nil, 0, err
	}
	if maker, rest, err = domain.ReadInt64(rest); err != nil {
		return nil, 0, err
	}
	var storedFeeWallet string
	if storedFeeWallet, rest, err = domain.ReadString(rest); err != nil {
		return nil, 0, err
	}
	if feeWallet == "" {
		feeWallet = storedFeeWallet
	}

	core := NewCore(feeWallet, logger)
	core.feeRates = domain.FeeRates{Taker: taker, Maker: maker}

	var n int64
	if n, rest, err = domain.ReadInt64(rest); err != nil {
		return nil, 0, err
	}
	for i := int64(0); i < n; i++ {
		var asset string
		var fee decimal.Decimal
		if asset, rest, err = domain.ReadString(rest); err != nil {
			return nil, 0, err
		}
		if fee, rest, err = domain.ReadDecimal(rest); err != nil {
			return nil, 0, err
		}
		core.withdrawalFees[asset] = fee
	}

	if n, rest, err = domain.ReadInt64(rest); err != nil {
		return nil, 0, err
	}
	for i := int64(0); i < n; i++ {
		var params domain.MarketParams
		var refPrice decimal.Decimal
		var maxOrders, baseDec, quoteDec int64
		if params.ID, rest, err = domain.ReadString(rest); err != nil {
			return nil, 0, err
		}
		if params.BaseAsset, rest, err = domain.ReadString(rest); err != nil {
			return nil, 0, err
		}
		if params.QuoteAsset, rest, err = domain.ReadString(rest); err != nil {
			return nil, 0, err
		}
		if params.TickSize, rest, err = domain.ReadDecimal(rest); err != nil {
			return nil, 0, err
		}
		if refPrice, rest, err = domain.ReadDecimal(rest); err != nil {
			return nil, 0, err
		}
		if params.MaxLevels, rest, err = domain.ReadInt64(rest); err != nil {
			return nil, 0, err
		}
		if maxOrders, rest, err = domain.ReadInt64(rest); err != nil {
			return nil, 0, err
		}
		if baseDec, rest, err = domain.ReadInt64(rest); err != nil {
			return nil, 0, err
		}
		if quoteDec, rest, err = domain.ReadInt64(rest); err != nil {
			return nil, 0, err
		}
		params.MaxOrdersPerLevel = int(maxOrders)
		params.BaseDecimals = uint8(baseDec)
		params.QuoteDecimals = uint8(quoteDec)

		market := domain.NewMarket(params, refPrice)

		var numOrders int64
		if numOrders, rest, err = domain.ReadInt64(rest); err != nil {
			return nil, 0, err
		}
		for j := int64(0); j < numOrders; j++ {
			order := &domain.Order{}
			var orderType string
			if order.GUID, rest, err = domain.ReadInt64(rest); err != nil {
				return nil, 0, err
			}
			if order.Wallet, rest, err = domain.ReadString(rest); err != nil {
				return nil, 0, err
			}
			if orderType, rest, err = domain.ReadString(rest); err != nil {
				return nil, 0, err
			}
			if order.Amount, rest, err = domain.ReadDecimal(rest); err != nil {
				return nil, 0, err
			}
			if order.LevelIx, rest, err = domain.ReadInt64(rest); err != nil {
				return nil, 0, err
			}
			order.Type = domain.OrderType(orderType)
			order.Price = market.PriceForLevel(order.LevelIx)
			if !market.Book().Restore(order) {
				return nil, 0, fmt.Errorf("checkpoint order %d does not fit market %s", order.GUID, params.ID)
			}
		}

		core.markets[params.ID] = market
		core.marketIDs = append(core.marketIDs, params.ID)
	}
	sort.Strings(core.marketIDs)

	if n, rest, err = domain.ReadInt64(rest); err != nil {
		return nil, 0, err
	}
	for i := int64(0); i < n; i++ {
		var wallet, asset string
		var balance decimal.Decimal
		if wallet, rest, err = domain.ReadString(rest); err != nil {
			return nil, 0, err
		}
		if asset, rest, err = domain.ReadString(rest); err != nil {
			return nil, 0, err
		}
		if balance, rest, err = domain.ReadDecimal(rest); err != nil {
			return nil, 0, err
		}
		core.ledger.Restore(wallet, asset, balance)
	}

	if len(rest) != 0 {
		return nil, 0, fmt.Errorf("trailing bytes in checkpoint: %d", len(rest))
	}
	return core, uint64(seq), nil
}
