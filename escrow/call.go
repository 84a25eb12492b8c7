package escrow

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// ArgKind tags a call argument.
type ArgKind int

const (
	// PureArg is a BCS-encoded value.
	PureArg ArgKind = iota
	// ObjectArg is an object input resolved at submission time.
	ObjectArg
	// GasSplitArg is a coin of Amount split from the gas coin.
	GasSplitArg
)

func (k ArgKind) String() string {
	switch k {
	case PureArg:
		return "pure"
	case ObjectArg:
		return "object"
	case GasSplitArg:
		return "gas-split"
	default:
		return "unknown"
	}
}

// Arg is one ordered argument of a call.
type Arg struct {
	Kind    ArgKind             `json:"kind"`
	Type    string              `json:"type"`
	Pure    []byte              `json:"pure,omitempty"`
	Object  interfaces.ObjectID `json:"object,omitempty"`
	Mutable bool                `json:"mutable,omitempty"`
	Amount  uint64              `json:"amount,omitempty"`
}

// Pure wraps an encoded value.
func Pure(moveType string, encoded []byte) Arg {
	return Arg{Kind: PureArg, Type: moveType, Pure: encoded}
}

// Object references an object input.
func Object(moveType string, id interfaces.ObjectID, mutable bool) Arg {
	return Arg{Kind: ObjectArg, Type: moveType, Object: id, Mutable: mutable}
}

// SplitFromGas requests a coin of amount split from the gas coin.
func SplitFromGas(amount uint64) Arg {
	return Arg{Kind: GasSplitArg, Type: "0x2::coin::Coin<0x2::sui::SUI>", Amount: amount}
}

// CallMeta describes the economic effect of a call for audit records.
type CallMeta struct {
	Receiver  *interfaces.Address  `json:"receiver,omitempty"`
	Amount    uint64               `json:"amount"`
	Currency  string               `json:"currency"`
	ProductID *interfaces.ObjectID `json:"productId,omitempty"`
	EscrowID  *interfaces.ObjectID `json:"escrowId,omitempty"`
}

// Call is an unsigned, fully specified Move call.
type Call struct {
	Package  interfaces.ObjectID `json:"package"`
	Module   string              `json:"module"`
	Function string              `json:"function"`
	Args     []Arg               `json:"args"`
	Meta     CallMeta            `json:"meta"`
}

// Target returns package::module::function.
func (c *Call) Target() string {
	return fmt.Sprintf("%s::%s::%s", c.Package, c.Module, c.Function)
}

// TotalSplit sums the coins split from gas. It fails with ErrInvalidArgument
// when the sum does not fit in a u64.
func (c *Call) TotalSplit() (uint64, error) {
	var total uint64
	for _, a := range c.Args {
		if a.Kind != GasSplitArg {
			continue
		}
		if a.Amount > math.MaxUint64-total {
			return 0, fmt.Errorf("%w: split amounts overflow u64", interfaces.ErrInvalidArgument)
		}
		total += a.Amount
	}
	return total, nil
}

// ObjectIDs lists the object inputs in argument order.
func (c *Call) ObjectIDs() []interfaces.ObjectID {
	var ids []interfaces.ObjectID
	for _, a := range c.Args {
		if a.Kind == ObjectArg {
			ids = append(ids, a.Object)
		}
	}
	return ids
}

// Fingerprint is a stable digest of the descriptor. Retries of the same intent
// produce the same fingerprint.
func (c *Call) Fingerprint() string {
	h := sha256.New()
	write := func(b []byte) {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(b)))
		h.Write(l[:])
		h.Write(b)
	}

	write([]byte(c.Target()))
	for _, a := range c.Args {
		var num [8]byte
		write([]byte(a.Kind.String()))
		write([]byte(a.Type))
		switch a.Kind {
		case PureArg:
			write(a.Pure)
		case ObjectArg:
			write(a.Object[:])
			if a.Mutable {
				write([]byte{1})
			} else {
				write([]byte{0})
			}
		case GasSplitArg:
			binary.BigEndian.PutUint64(num[:], a.Amount)
			write(num[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
