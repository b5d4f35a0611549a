package domain

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBigIntCanonicalForm(t *testing.T) {
	cases := []struct {
		value    string
		expected []byte
	}{
		{"0", []byte{0x00}},
		{"1", []byte{0x01}},
		{"127", []byte{0x7f}},
		{"128", []byte{0x00, 0x80}},
		{"255", []byte{0x00, 0xff}},
		{"256", []byte{0x01, 0x00}},
		{"-1", []byte{0xff}},
		{"-128", []byte{0x80}},
		{"-129", []byte{0xff, 0x7f}},
		{"-256", []byte{0xff, 0x00}},
	}
	for _, tc := range cases {
		x, ok := new(big.Int).SetString(tc.value, 10)
		require.True(t, ok)
		assert.Equal(t, tc.expected, EncodeBigInt(x), "value %s", tc.value)
	}
}

func TestBigIntRoundTrip(t *testing.T) {
	values := []string{
		"0", "1", "-1", "127", "128", "-128", "-129",
		"9223372036854775807", "-9223372036854775808",
		"9223372036854775808", // 超出 int64
		"1234567890123456789012345678901234567890",
		"-1234567890123456789012345678901234567890",
	}
	for _, v := range values {
		x, ok := new(big.Int).SetString(v, 10)
		require.True(t, ok)
		decoded := DecodeBigInt(EncodeBigInt(x))
		assert.Zero(t, x.Cmp(decoded), "round trip failed for %s", v)
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	values := []string{
		"0", "1", "-1", "0.05", "20.00", "123456789.123456789",
		"-0.000000000000000001", "100000000000000000000",
	}
	for _, v := range values {
		d := decimal.RequireFromString(v)
		decoded, err := DecodeDecimal(EncodeDecimal(d))
		require.NoError(t, err)
		assert.True(t, d.Equal(decoded), "round trip failed for %s: got %s", v, decoded)
	}
}

func TestDecodeDecimalTooShort(t *testing.T) {
	_, err := DecodeDecimal([]byte{0, 0, 0})
	assert.Error(t, err)
}

func TestAppendReadHelpers(t *testing.T) {
	var buf []byte
	buf = AppendString(buf, "BTC-ETH")
	buf = AppendInt64(buf, -42)
	buf = AppendDecimal(buf, decimal.RequireFromString("0.05"))
	buf = AppendString(buf, "")

	s, rest, err := ReadString(buf)
	require.NoError(t, err)
	assert.Equal(t, "BTC-ETH", s)

	v, rest, err := ReadInt64(rest)
	require.NoError(t, err)
	assert.Equal(t, int64(-42), v)

	d, rest, err := ReadDecimal(rest)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.05").Equal(d))

	s, rest, err = ReadString(rest)
	require.NoError(t, err)
	assert.Equal(t, "", s)
	assert.Empty(t, rest)
}

func TestReadTruncatedInput(t *testing.T) {
	buf := AppendString(nil, "wallet")
	_, _, err := ReadString(buf[:len(buf)-2])
	assert.Error(t, err)

	_, _, err = ReadInt64([]byte{1, 2, 3})
	assert.Error(t, err)
}
