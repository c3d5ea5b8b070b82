package types

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// BigInt is a big.Int wrapper that marshals as a decimal string in both CBOR
// (journal records) and JSON/text (logging, config).
type BigInt big.Int

// NewBigInt wraps x, copying it.
func NewBigInt(x *big.Int) *BigInt {
	if x == nil {
		return (*BigInt)(new(big.Int))
	}
	return (*BigInt)(new(big.Int).Set(x))
}

// NewBigIntUint64 returns a BigInt holding x.
func NewBigIntUint64(x uint64) *BigInt {
	return (*BigInt)(new(big.Int).SetUint64(x))
}

// MathBigInt converts b to a math/big *Int. The returned pointer aliases
// the receiver's storage.
func (b *BigInt) MathBigInt() *big.Int {
	return (*big.Int)(b)
}

func (b *BigInt) String() string {
	if b == nil {
		return "0"
	}
	return (*big.Int)(b).String()
}

func (b *BigInt) MarshalText() ([]byte, error) {
	if b == nil {
		return []byte("0"), nil
	}
	return (*big.Int)(b).MarshalText()
}

func (b *BigInt) UnmarshalText(data []byte) error {
	if b == nil {
		return fmt.Errorf("cannot unmarshal into nil BigInt")
	}
	return (*big.Int)(b).UnmarshalText(data)
}

func (b *BigInt) MarshalCBOR() ([]byte, error) {
	txt, err := b.MarshalText()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(string(txt))
}

func (b *BigInt) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	return b.UnmarshalText([]byte(s))
}

// Cmp compares b to o, treating nil as zero.
func (b *BigInt) Cmp(o *BigInt) int {
	var bb, oo big.Int
	if b != nil {
		bb = *b.MathBigInt()
	}
	if o != nil {
		oo = *o.MathBigInt()
	}
	return bb.Cmp(&oo)
}
