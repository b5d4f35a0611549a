// Package domain 定序核心的领域模型：数值编码、订单簿、市场、账本与限额校验。
package domain

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// 金额路径上禁止任何二进制浮点数。所有货币运算使用任意精度整数
// （decimal 的系数即 big.Int），仅在编解码边界转换为字节序列。

// EncodeBigInt 将任意精度有符号整数编码为规范字节序列：
// 大端序、最小长度的二进制补码，至少 1 字节。
func EncodeBigInt(x *big.Int) []byte {
	switch x.Sign() {
	case 0:
		return []byte{0}
	case 1:
		b := x.Bytes()
		if b[0]&0x80 != 0 {
			// 最高位被占用时需要前导 0x00 保留符号
			padded := make([]byte, len(b)+1)
			copy(padded[1:], b)
			return padded
		}
		return b
	default:
		n := x.BitLen()/8 + 1
		tc := new(big.Int).Lsh(big.NewInt(1), uint(8*n))
		tc.Add(tc, x)
		b := tc.Bytes()
		if len(b) < n {
			padded := make([]byte, n)
			copy(padded[n-len(b):], b)
			b = padded
		}
		for len(b) > 1 && b[0] == 0xff && b[1]&0x80 != 0 {
			b = b[1:]
		}
		return b
	}
}

// DecodeBigInt 还原 EncodeBigInt 的编码。对任意可表示值满足
// DecodeBigInt(EncodeBigInt(x)) == x。
func DecodeBigInt(b []byte) *big.Int {
	if len(b) == 0 {
		return new(big.Int)
	}
	x := new(big.Int).SetBytes(b)
	if b[0]&0x80 != 0 {
		x.Sub(x, new(big.Int).Lsh(big.NewInt(1), uint(8*len(b))))
	}
	return x
}

// EncodeDecimal 将缩放十进制数编码为 {系数, 指数} 规范形式：
// 4 字节大端 int32 指数 + 系数的二进制补码。
func EncodeDecimal(d decimal.Decimal) []byte {
	coeff := EncodeBigInt(d.Coefficient())
	out := make([]byte, 4+len(coeff))
	binary.BigEndian.PutUint32(out[:4], uint32(d.Exponent()))
	copy(out[4:], coeff)
	return out
}

// DecodeDecimal 还原 EncodeDecimal 的编码
func DecodeDecimal(b []byte) (decimal.Decimal, error) {
	if len(b) < 5 {
		return decimal.Decimal{}, fmt.Errorf("decimal encoding too short: %d bytes", len(b))
	}
	exp := int32(binary.BigEndian.Uint32(b[:4]))
	coeff := DecodeBigInt(b[4:])
	return decimal.NewFromBigInt(coeff, exp), nil
}

// AppendBytes 追加带 4 字节大端长度前缀的字节序列
func AppendBytes(dst, b []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	dst = append(dst, l[:]...)
	return append(dst, b...)
}

// ReadBytes 读取带长度前缀的字节序列，返回内容与剩余部分
func ReadBytes(src []byte) ([]byte, []byte, error) {
	if len(src) < 4 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}
	n := binary.BigEndian.Uint32(src[:4])
	src = src[4:]
	if uint32(len(src)) < n {
		return nil, nil, fmt.Errorf("truncated field: want %d bytes, have %d", n, len(src))
	}
	return src[:n], src[n:], nil
}

// AppendDecimal 追加带长度前缀的十进制编码
func AppendDecimal(dst []byte, d decimal.Decimal) []byte {
	return AppendBytes(dst, EncodeDecimal(d))
}

// ReadDecimal 读取带长度前缀的十进制编码
func ReadDecimal(src []byte) (decimal.Decimal, []byte, error) {
	b, rest, err := ReadBytes(src)
	if err != nil {
		return decimal.Decimal{}, nil, err
	}
	d, err := DecodeDecimal(b)
	if err != nil {
		return decimal.Decimal{}, nil, err
	}
	return d, rest, nil
}

// AppendString 追加带长度前缀的字符串
func AppendString(dst []byte, s string) []byte {
	return AppendBytes(dst, []byte(s))
}

// ReadString 读取带长度前缀的字符串
func ReadString(src []byte) (string, []byte, error) {
	b, rest, err := ReadBytes(src)
	if err != nil {
		return "", nil, err
	}
	return string(b), rest, nil
}

// AppendInt64 追加 8 字节大端整数
func AppendInt64(dst []byte, v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return append(dst, b[:]...)
}

// ReadInt64 读取 8 字节大端整数
func ReadInt64(src []byte) (int64, []byte, error) {
	if len(src) < 8 {
		return 0, nil, fmt.Errorf("truncated int64")
	}
	return int64(binary.BigEndian.Uint64(src[:8])), src[8:], nil
}
