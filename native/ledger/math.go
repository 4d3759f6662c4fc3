package ledger

import "math/big"

// wad is the fixed-point precision factor shared by rates and accumulation
// factors. A locked rate of 1 wad corresponds to 100% simple interest per
// second.
var wad = mustBigInt("1000000000000000000") // 1e18

// MaxTransferAmount is the reserved sentinel meaning "my entire current
// balance, unrealized interest included". It doubles as the infinite
// allowance marker, which delegated transfers do not decrement.
var MaxTransferAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// accumulationFactor returns wad + rate*elapsed, the linear growth multiplier
// for the elapsed interval. Zero elapsed time yields the identity factor.
func accumulationFactor(rate *big.Int, elapsed uint64) *big.Int {
	factor := new(big.Int).Set(wad)
	if rate == nil || rate.Sign() == 0 || elapsed == 0 {
		return factor
	}
	growth := new(big.Int).Mul(rate, new(big.Int).SetUint64(elapsed))
	return factor.Add(factor, growth)
}

// scaleByFactor returns principal*factor/wad with truncating division so
// every node computes byte-identical balances.
func scaleByFactor(principal, factor *big.Int) *big.Int {
	if principal == nil || principal.Sign() == 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(principal, factor)
	return scaled.Quo(scaled, wad)
}
