package chain

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/ruteri/sui-escrow-gateway/bcs"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// ArgumentKind selects the value a command argument refers to.
type ArgumentKind uint8

const (
	ArgGasCoin ArgumentKind = iota
	ArgInput
	ArgResult
	ArgNestedResult
)

// Argument refers to the gas coin, an input or a command result.
type Argument struct {
	Kind        ArgumentKind
	Index       uint16
	ResultIndex uint16
}

func GasCoin() Argument        { return Argument{Kind: ArgGasCoin} }
func Input(i uint16) Argument  { return Argument{Kind: ArgInput, Index: i} }
func Result(i uint16) Argument { return Argument{Kind: ArgResult, Index: i} }
func NestedResult(i, j uint16) Argument {
	return Argument{Kind: ArgNestedResult, Index: i, ResultIndex: j}
}

// ObjectArgKind distinguishes owned from shared object inputs.
type ObjectArgKind uint8

const (
	ImmOrOwnedObject ObjectArgKind = iota
	SharedObject
)

// ObjectArg is an object input.
type ObjectArg struct {
	Kind                 ObjectArgKind
	Ref                  interfaces.ObjectRef
	InitialSharedVersion uint64
	Mutable              bool
}

// CallArg is a pure value or an object input.
type CallArg struct {
	Pure   []byte
	Object *ObjectArg
}

// CommandKind enumerates the supported commands.
type CommandKind uint8

const (
	CommandMoveCall        CommandKind = 0
	CommandTransferObjects CommandKind = 1
	CommandSplitCoins      CommandKind = 2
	CommandMergeCoins      CommandKind = 3
)

// MoveCall invokes package::module::function.
type MoveCall struct {
	Package   interfaces.ObjectID
	Module    string
	Function  string
	Arguments []Argument
}

// Command is one step of a programmable transaction.
type Command struct {
	Kind CommandKind

	MoveCall *MoveCall

	// SplitCoins and MergeCoins
	Coin    Argument
	Amounts []Argument
	Sources []Argument

	// TransferObjects
	Objects []Argument
	Address Argument
}

// ProgrammableTransaction is an ordered list of commands over shared inputs.
type ProgrammableTransaction struct {
	Inputs   []CallArg
	Commands []Command
}

// GasData selects the coins and price paying for execution.
type GasData struct {
	Payment []interfaces.ObjectRef
	Owner   interfaces.Address
	Price   uint64
	Budget  uint64
}

// TransactionData is the signed payload of a transaction.
type TransactionData struct {
	Sender      interfaces.Address
	Kind        ProgrammableTransaction
	Gas         GasData
	ExpireEpoch *uint64
}

var ErrUnsupportedTransaction = errors.New("unsupported transaction encoding")

// Marshal returns the BCS encoding of TransactionData::V1.
func (tx *TransactionData) Marshal() ([]byte, error) {
	e := bcs.NewEncoder()
	e.WriteULEB128(0) // V1
	e.WriteULEB128(0) // ProgrammableTransaction

	e.WriteULEB128(uint64(len(tx.Kind.Inputs)))
	for _, in := range tx.Kind.Inputs {
		if err := encodeCallArg(e, in); err != nil {
			return nil, err
		}
	}
	e.WriteULEB128(uint64(len(tx.Kind.Commands)))
	for _, cmd := range tx.Kind.Commands {
		if err := encodeCommand(e, cmd); err != nil {
			return nil, err
		}
	}

	e.WriteFixed(tx.Sender.Bytes())

	e.WriteULEB128(uint64(len(tx.Gas.Payment)))
	for _, ref := range tx.Gas.Payment {
		if err := encodeObjectRef(e, ref); err != nil {
			return nil, err
		}
	}
	e.WriteFixed(tx.Gas.Owner.Bytes())
	e.WriteU64(tx.Gas.Price)
	e.WriteU64(tx.Gas.Budget)

	if tx.ExpireEpoch == nil {
		e.WriteULEB128(0)
	} else {
		e.WriteULEB128(1)
		e.WriteU64(*tx.ExpireEpoch)
	}
	return e.Bytes(), nil
}

func encodeCallArg(e *bcs.Encoder, in CallArg) error {
	if in.Object == nil {
		e.WriteULEB128(0)
		e.WriteBytes(in.Pure)
		return nil
	}
	e.WriteULEB128(1)
	switch in.Object.Kind {
	case ImmOrOwnedObject:
		e.WriteULEB128(0)
		return encodeObjectRef(e, in.Object.Ref)
	case SharedObject:
		e.WriteULEB128(1)
		e.WriteFixed(in.Object.Ref.ObjectID.Bytes())
		e.WriteU64(in.Object.InitialSharedVersion)
		e.WriteBool(in.Object.Mutable)
		return nil
	default:
		return fmt.Errorf("%w: object arg kind %d", ErrUnsupportedTransaction, in.Object.Kind)
	}
}

func encodeObjectRef(e *bcs.Encoder, ref interfaces.ObjectRef) error {
	digest, err := base58.Decode(ref.Digest)
	if err != nil || len(digest) != 32 {
		return fmt.Errorf("invalid object digest %q for %s", ref.Digest, ref.ObjectID)
	}
	e.WriteFixed(ref.ObjectID.Bytes())
	e.WriteU64(ref.Version)
	e.WriteBytes(digest)
	return nil
}

func encodeArguments(e *bcs.Encoder, args []Argument) {
	e.WriteULEB128(uint64(len(args)))
	for _, a := range args {
		encodeArgument(e, a)
	}
}

func encodeArgument(e *bcs.Encoder, a Argument) {
	e.WriteULEB128(uint64(a.Kind))
	switch a.Kind {
	case ArgInput, ArgResult:
		e.WriteU16(a.Index)
	case ArgNestedResult:
		e.WriteU16(a.Index)
		e.WriteU16(a.ResultIndex)
	}
}

func encodeCommand(e *bcs.Encoder, cmd Command) error {
	e.WriteULEB128(uint64(cmd.Kind))
	switch cmd.Kind {
	case CommandMoveCall:
		if cmd.MoveCall == nil {
			return fmt.Errorf("%w: empty move call", ErrUnsupportedTransaction)
		}
		e.WriteFixed(cmd.MoveCall.Package.Bytes())
		e.WriteString(cmd.MoveCall.Module)
		e.WriteString(cmd.MoveCall.Function)
		e.WriteULEB128(0) // type arguments
		encodeArguments(e, cmd.MoveCall.Arguments)
	case CommandTransferObjects:
		encodeArguments(e, cmd.Objects)
		encodeArgument(e, cmd.Address)
	case CommandSplitCoins:
		encodeArgument(e, cmd.Coin)
		encodeArguments(e, cmd.Amounts)
	case CommandMergeCoins:
		encodeArgument(e, cmd.Coin)
		encodeArguments(e, cmd.Sources)
	default:
		return fmt.Errorf("%w: command kind %d", ErrUnsupportedTransaction, cmd.Kind)
	}
	return nil
}

// UnmarshalTransactionData decodes bytes produced by Marshal.
func UnmarshalTransactionData(data []byte) (*TransactionData, error) {
	d := bcs.NewDecoder(data)
	if v := d.ReadULEB128(); v != 0 {
		return nil, fmt.Errorf("%w: transaction data version %d", ErrUnsupportedTransaction, v)
	}
	if k := d.ReadULEB128(); k != 0 {
		return nil, fmt.Errorf("%w: transaction kind %d", ErrUnsupportedTransaction, k)
	}

	tx := &TransactionData{}
	nInputs := d.ReadLength()
	for i := 0; i < nInputs && d.Err() == nil; i++ {
		in, err := decodeCallArg(d)
		if err != nil {
			return nil, err
		}
		tx.Kind.Inputs = append(tx.Kind.Inputs, in)
	}
	nCommands := d.ReadLength()
	for i := 0; i < nCommands && d.Err() == nil; i++ {
		cmd, err := decodeCommand(d)
		if err != nil {
			return nil, err
		}
		tx.Kind.Commands = append(tx.Kind.Commands, cmd)
	}

	copy(tx.Sender[:], d.ReadFixed(interfaces.AddressLength))

	nPayment := d.ReadLength()
	for i := 0; i < nPayment && d.Err() == nil; i++ {
		tx.Gas.Payment = append(tx.Gas.Payment, decodeObjectRef(d))
	}
	copy(tx.Gas.Owner[:], d.ReadFixed(interfaces.AddressLength))
	tx.Gas.Price = d.ReadU64()
	tx.Gas.Budget = d.ReadU64()

	switch d.ReadULEB128() {
	case 0:
	case 1:
		epoch := d.ReadU64()
		tx.ExpireEpoch = &epoch
	default:
		return nil, fmt.Errorf("%w: expiration", ErrUnsupportedTransaction)
	}

	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("failed to decode transaction data: %w", err)
	}
	if d.Remaining() != 0 {
		return nil, fmt.Errorf("failed to decode transaction data: %d trailing bytes", d.Remaining())
	}
	return tx, nil
}

func decodeCallArg(d *bcs.Decoder) (CallArg, error) {
	switch d.ReadULEB128() {
	case 0:
		return CallArg{Pure: d.ReadBytes()}, nil
	case 1:
		switch d.ReadULEB128() {
		case 0:
			return CallArg{Object: &ObjectArg{Kind: ImmOrOwnedObject, Ref: decodeObjectRef(d)}}, nil
		case 1:
			obj := &ObjectArg{Kind: SharedObject}
			copy(obj.Ref.ObjectID[:], d.ReadFixed(interfaces.AddressLength))
			obj.InitialSharedVersion = d.ReadU64()
			obj.Mutable = d.ReadBool()
			return CallArg{Object: obj}, nil
		}
	}
	return CallArg{}, fmt.Errorf("%w: call arg", ErrUnsupportedTransaction)
}

func decodeObjectRef(d *bcs.Decoder) interfaces.ObjectRef {
	var ref interfaces.ObjectRef
	copy(ref.ObjectID[:], d.ReadFixed(interfaces.AddressLength))
	ref.Version = d.ReadU64()
	ref.Digest = base58.Encode(d.ReadBytes())
	return ref
}

func decodeArgument(d *bcs.Decoder) Argument {
	a := Argument{Kind: ArgumentKind(d.ReadULEB128())}
	switch a.Kind {
	case ArgInput, ArgResult:
		a.Index = d.ReadU16()
	case ArgNestedResult:
		a.Index = d.ReadU16()
		a.ResultIndex = d.ReadU16()
	}
	return a
}

func decodeArguments(d *bcs.Decoder) []Argument {
	n := d.ReadLength()
	out := make([]Argument, 0, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		out = append(out, decodeArgument(d))
	}
	return out
}

func decodeCommand(d *bcs.Decoder) (Command, error) {
	cmd := Command{Kind: CommandKind(d.ReadULEB128())}
	switch cmd.Kind {
	case CommandMoveCall:
		mc := &MoveCall{}
		copy(mc.Package[:], d.ReadFixed(interfaces.AddressLength))
		mc.Module = d.ReadString()
		mc.Function = d.ReadString()
		if n := d.ReadLength(); n != 0 {
			return cmd, fmt.Errorf("%w: type arguments", ErrUnsupportedTransaction)
		}
		mc.Arguments = decodeArguments(d)
		cmd.MoveCall = mc
	case CommandTransferObjects:
		cmd.Objects = decodeArguments(d)
		cmd.Address = decodeArgument(d)
	case CommandSplitCoins:
		cmd.Coin = decodeArgument(d)
		cmd.Amounts = decodeArguments(d)
	case CommandMergeCoins:
		cmd.Coin = decodeArgument(d)
		cmd.Sources = decodeArguments(d)
	default:
		return cmd, fmt.Errorf("%w: command kind %d", ErrUnsupportedTransaction, cmd.Kind)
	}
	return cmd, nil
}
