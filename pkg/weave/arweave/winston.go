package arweave

import (
	"fmt"
	"math/big"
	"strings"
)

// WinstonPerAR is the number of winston in one AR.
const WinstonPerAR = 1_000_000_000_000

// ParseWinston parses a decimal winston amount.
func ParseWinston(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid winston amount %q", s)
	}
	return n, nil
}

// WinstonToAR formats a winston amount as AR with trailing zeros removed.
func WinstonToAR(winston string) string {
	n, err := ParseWinston(winston)
	if err != nil {
		return winston
	}
	ar := new(big.Rat).SetFrac(n, big.NewInt(WinstonPerAR)).FloatString(12)
	ar = strings.TrimRight(ar, "0")
	return strings.TrimSuffix(ar, ".")
}

// ScaleReward multiplies a winston reward by m, truncating toward zero.
// Multipliers at or below 1 leave the reward unchanged.
func ScaleReward(reward string, m float64) (string, error) {
	n, err := ParseWinston(reward)
	if err != nil {
		return "", err
	}
	if m <= 1 {
		return n.String(), nil
	}
	scaled := new(big.Float).SetPrec(256).SetInt(n)
	scaled.Mul(scaled, new(big.Float).SetPrec(256).SetFloat64(m))
	out, _ := scaled.Int(nil)
	return out.String(), nil
}

// Percent returns floor(amount * rate) in winston.
func Percent(amount *big.Int, rate float64) *big.Int {
	f := new(big.Float).SetPrec(256).SetInt(amount)
	f.Mul(f, new(big.Float).SetPrec(256).SetFloat64(rate))
	out, _ := f.Int(nil)
	return out
}

// SumWinston adds decimal winston amounts, ignoring unparsable ones.
func SumWinston(amounts ...string) *big.Int {
	total := new(big.Int)
	for _, a := range amounts {
		if n, err := ParseWinston(a); err == nil {
			total.Add(total, n)
		}
	}
	return total
}
