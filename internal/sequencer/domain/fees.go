package domain

import "github.com/shopspring/decimal"

// 手续费率以百万分比（ppm）表示，取值 [1, 1_000_000]。
const (
	FeeRateScale   int64 = 1_000_000
	MinFeeRate     int64 = 1
	MaxFeeRate     int64 = FeeRateScale
	DefaultFeeRate int64 = 1_000 // 0.1%
)

var feeRateScaleDec = decimal.NewFromInt(FeeRateScale)

// FeeRates 全局吃单/挂单费率
type FeeRates struct {
	Taker int64 `json:"taker"`
	Maker int64 `json:"maker"`
}

// DefaultFeeRates 默认费率
func DefaultFeeRates() FeeRates {
	return FeeRates{Taker: DefaultFeeRate, Maker: DefaultFeeRate}
}

// Valid 费率是否在合法区间
func (f FeeRates) Valid() bool {
	return f.Taker >= MinFeeRate && f.Taker <= MaxFeeRate &&
		f.Maker >= MinFeeRate && f.Maker <= MaxFeeRate
}

// NotionalFee 计算名义价值的手续费：notional × rate / 1_000_000，
// 整数除法向零截断，结果必须逐位可复现。
func NotionalFee(notional decimal.Decimal, rate int64) decimal.Decimal {
	product := notional.Mul(decimal.NewFromInt(rate))
	q, _ := product.QuoRem(feeRateScaleDec, 0)
	return q
}
