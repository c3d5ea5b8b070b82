package coordinator

import "math/big"

// mulFrac returns x*num/den via integer division, leaving x unmodified.
// Used for the 110% replacement-bump rule (num=110, den=100).
func mulFrac(x *big.Int, num, den int64) *big.Int {
	if x == nil {
		return nil
	}
	xx := new(big.Int).Set(x)
	xx.Mul(xx, big.NewInt(num))
	xx.Div(xx, big.NewInt(den))
	return xx
}

// maxBig returns the largest of vals, ignoring nils. Returns 0 if every val
// is nil.
func maxBig(vals ...*big.Int) *big.Int {
	var best *big.Int
	for _, v := range vals {
		if v == nil {
			continue
		}
		if best == nil || v.Cmp(best) > 0 {
			best = new(big.Int).Set(v)
		}
	}
	if best == nil {
		return big.NewInt(0)
	}
	return best
}
