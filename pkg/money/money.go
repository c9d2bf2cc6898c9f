// Package money 提供最小货币单位（分）的整数运算。
// 所有内部金额一律使用 Amount，只有在报表边界才转换为主单位小数。
package money

import "github.com/shopspring/decimal"

// Amount 是以最小货币单位（如美分）表示的有符号金额。
// 正数为流入，负数为流出。
type Amount int64

// Add 相加
func (a Amount) Add(b Amount) Amount { return a + b }

// Sub 相减
func (a Amount) Sub(b Amount) Amount { return a - b }

// Neg 取反
func (a Amount) Neg() Amount { return -a }

// Abs 绝对值
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// IsNegative 是否为负
func (a Amount) IsNegative() bool { return a < 0 }

// IsZero 是否为零
func (a Amount) IsZero() bool { return a == 0 }

// Int64 原始最小单位值
func (a Amount) Int64() int64 { return int64(a) }

// Major 转换为主单位（除以 100），仅用于报表边界
func (a Amount) Major() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// FromMajor 从主单位小数转换为最小单位，四舍五入到分
func FromMajor(d decimal.Decimal) Amount {
	return Amount(d.Shift(2).Round(0).IntPart())
}

// Sum 求和
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}
