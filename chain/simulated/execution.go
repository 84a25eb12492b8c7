package simulated

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/ruteri/sui-escrow-gateway/bcs"
	"github.com/ruteri/sui-escrow-gateway/chain"
	"github.com/ruteri/sui-escrow-gateway/escrow"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// tmpCoin is a coin value produced by a command and not yet stored in an object.
type tmpCoin struct {
	amount uint64
	used   bool
}

// arg is a resolved Move call argument.
type arg struct {
	pure    []byte
	obj     *object
	mutable bool
	coin    *tmpCoin
}

// executionError fails the transaction after validation. Gas is still charged.
type executionError struct {
	reason string
}

func (e *executionError) Error() string { return e.reason }

type execution struct {
	b          *Backend
	tx         *chain.TransactionData
	digest     string
	now        time.Time
	gasBalance uint64

	st      *state
	gasCoin interfaces.ObjectID
	results [][]*tmpCoin
	command int
	events  []interfaces.Event
	created map[interfaces.ObjectID]bool
	mutated map[interfaces.ObjectID]bool
	deleted map[interfaces.ObjectID]bool
}

func (b *Backend) newExecution(tx *chain.TransactionData, digest string, gasBalance uint64) *execution {
	return &execution{
		b:          b,
		tx:         tx,
		digest:     digest,
		now:        b.cfg.Now(),
		gasBalance: gasBalance,
	}
}

func (ex *execution) reset() {
	ex.st = ex.b.state.clone()
	ex.results = nil
	ex.events = nil
	ex.created = make(map[interfaces.ObjectID]bool)
	ex.mutated = make(map[interfaces.ObjectID]bool)
	ex.deleted = make(map[interfaces.ObjectID]bool)

	// Gas coins are smashed into the first payment coin.
	ex.gasCoin = ex.tx.Gas.Payment[0].ObjectID
	for _, ref := range ex.tx.Gas.Payment[1:] {
		ex.delete(ref.ObjectID)
	}
	ex.mut(ex.gasCoin).value.(*coinValue).Balance = escrow.U64(ex.gasBalance)
}

func (ex *execution) gas() *coinValue {
	return ex.mut(ex.gasCoin).value.(*coinValue)
}

func (ex *execution) run() *interfaces.TransactionResponse {
	computation := ex.tx.Gas.Price * computationUnits

	ex.reset()
	err := ex.execute()
	storage := storagePerObject * uint64(len(ex.created))
	cost := computation + storage
	if err == nil && (storage > math.MaxUint64-computation || cost > ex.tx.Gas.Budget || cost > uint64(ex.gas().Balance)) {
		err = &executionError{reason: "InsufficientGas"}
	}

	res := &interfaces.TransactionResponse{Digest: ex.digest, Status: "success"}
	if err != nil {
		ex.reset()
		cost = min(computation, ex.tx.Gas.Budget, uint64(ex.gas().Balance))
		res.Status = "failure"
		res.Error = err.Error()
	}
	ex.gas().Balance -= escrow.U64(cost)
	res.GasUsed = cost

	ex.commit(res)
	return res
}

func (ex *execution) commit(res *interfaces.TransactionResponse) {
	for _, id := range sortedIDs(ex.created) {
		obj := ex.st.objects[id]
		obj.bump(ex.b.version)
		res.ObjectChanges = append(res.ObjectChanges, objectChange("created", obj))
	}
	for _, id := range sortedIDs(ex.mutated) {
		if ex.created[id] || ex.deleted[id] {
			continue
		}
		obj := ex.st.objects[id]
		obj.bump(ex.b.version)
		res.ObjectChanges = append(res.ObjectChanges, objectChange("mutated", obj))
	}
	for _, id := range sortedIDs(ex.deleted) {
		if ex.created[id] {
			continue
		}
		res.ObjectChanges = append(res.ObjectChanges, interfaces.ObjectChange{
			Type:     "deleted",
			ObjectID: id,
			Version:  ex.b.version,
		})
	}

	for i := range ex.events {
		ex.events[i].EventSeq = uint64(i)
	}
	res.Events = ex.events
	ex.b.events = append(ex.b.events, ex.events...)
	ex.b.state = ex.st
}

func objectChange(kind string, obj *object) interfaces.ObjectChange {
	return interfaces.ObjectChange{
		Type:       kind,
		ObjectID:   obj.ref.ObjectID,
		ObjectType: obj.typ,
		Version:    obj.ref.Version,
		Digest:     obj.ref.Digest,
		Owner:      obj.owner,
	}
}

func (ex *execution) execute() error {
	for i, cmd := range ex.tx.Kind.Commands {
		ex.command = i
		var (
			out []*tmpCoin
			err error
		)
		switch cmd.Kind {
		case chain.CommandSplitCoins:
			out, err = ex.splitCoins(cmd)
		case chain.CommandMergeCoins:
			err = ex.mergeCoins(cmd)
		case chain.CommandTransferObjects:
			err = ex.transferObjects(cmd)
		case chain.CommandMoveCall:
			err = ex.moveCall(cmd.MoveCall)
		default:
			err = ex.fail("UnsupportedCommand")
		}
		if err != nil {
			return err
		}
		ex.results = append(ex.results, out)
	}

	for i, out := range ex.results {
		for j, c := range out {
			if !c.used {
				return &executionError{reason: fmt.Sprintf("UnusedValueWithoutDrop { result_idx: %d, secondary_idx: %d }", i, j)}
			}
		}
	}
	return nil
}

func (ex *execution) fail(kind string) error {
	return &executionError{reason: fmt.Sprintf("%s in command %d", kind, ex.command)}
}

func (ex *execution) argError(idx int, kind string) error {
	return ex.fail(fmt.Sprintf("CommandArgumentError { arg_idx: %d, kind: %s }", idx, kind))
}

func (ex *execution) abort(function string, code uint64) error {
	return &executionError{reason: escrow.AbortReason(ex.b.cfg.PackageID, function, code, ex.command)}
}

// coinArg resolves a coin value. Gas coin mutations go to the gas balance.
func (ex *execution) coinArg(idx int, a chain.Argument) (*tmpCoin, bool, error) {
	switch a.Kind {
	case chain.ArgGasCoin:
		return nil, true, nil
	case chain.ArgResult, chain.ArgNestedResult:
		if int(a.Index) >= len(ex.results) {
			return nil, false, ex.argError(idx, "IndexOutOfBounds")
		}
		out := ex.results[a.Index]
		j := 0
		if a.Kind == chain.ArgNestedResult {
			j = int(a.ResultIndex)
		}
		if j >= len(out) {
			return nil, false, ex.argError(idx, "SecondaryIndexOutOfBounds")
		}
		if out[j].used {
			return nil, false, ex.argError(idx, "InvalidValueUsage")
		}
		return out[j], false, nil
	default:
		return nil, false, ex.argError(idx, "TypeMismatch")
	}
}

func (ex *execution) pureInput(idx int, a chain.Argument) ([]byte, error) {
	if a.Kind != chain.ArgInput || int(a.Index) >= len(ex.tx.Kind.Inputs) {
		return nil, ex.argError(idx, "TypeMismatch")
	}
	in := ex.tx.Kind.Inputs[a.Index]
	if in.Object != nil {
		return nil, ex.argError(idx, "TypeMismatch")
	}
	return in.Pure, nil
}

func (ex *execution) splitCoins(cmd chain.Command) ([]*tmpCoin, error) {
	src, isGas, err := ex.coinArg(0, cmd.Coin)
	if err != nil {
		return nil, err
	}
	var out []*tmpCoin
	for i, a := range cmd.Amounts {
		raw, err := ex.pureInput(i+1, a)
		if err != nil {
			return nil, err
		}
		d := bcs.NewDecoder(raw)
		amount := d.ReadU64()
		if d.Err() != nil || d.Remaining() != 0 {
			return nil, ex.argError(i+1, "InvalidBCSBytes")
		}

		if isGas {
			gas := ex.gas()
			if uint64(gas.Balance) < amount {
				return nil, ex.fail("InsufficientCoinBalance")
			}
			gas.Balance -= escrow.U64(amount)
		} else {
			if src.amount < amount {
				return nil, ex.fail("InsufficientCoinBalance")
			}
			src.amount -= amount
		}
		out = append(out, &tmpCoin{amount: amount})
	}
	return out, nil
}

func (ex *execution) mergeCoins(cmd chain.Command) error {
	dst, isGas, err := ex.coinArg(0, cmd.Coin)
	if err != nil {
		return err
	}
	var total uint64
	for i, a := range cmd.Sources {
		if a.Kind == chain.ArgInput {
			obj, err := ex.inputObject(i+1, a)
			if err != nil {
				return err
			}
			coin, ok := obj.value.(*coinValue)
			if !ok {
				return ex.argError(i+1, "TypeMismatch")
			}
			total += uint64(coin.Balance)
			ex.delete(obj.ref.ObjectID)
			continue
		}
		src, srcGas, err := ex.coinArg(i+1, a)
		if err != nil {
			return err
		}
		if srcGas {
			return ex.argError(i+1, "InvalidGasCoinUsage")
		}
		total += src.amount
		src.used = true
	}
	if isGas {
		ex.gas().Balance += escrow.U64(total)
	} else {
		dst.amount += total
	}
	return nil
}

func (ex *execution) transferObjects(cmd chain.Command) error {
	raw, err := ex.pureInput(len(cmd.Objects), cmd.Address)
	if err != nil {
		return err
	}
	recipient, err := interfaces.NewAddressFromBytes(raw)
	if err != nil {
		return ex.argError(len(cmd.Objects), "InvalidBCSBytes")
	}
	for i, a := range cmd.Objects {
		coin, isGas, err := ex.coinArg(i, a)
		if err != nil {
			return err
		}
		if isGas {
			return ex.argError(i, "InvalidGasCoinUsage")
		}
		coin.used = true
		ex.mintCoin(recipient, coin.amount)
	}
	return nil
}

func (ex *execution) inputObject(idx int, a chain.Argument) (*object, error) {
	if a.Kind != chain.ArgInput || int(a.Index) >= len(ex.tx.Kind.Inputs) {
		return nil, ex.argError(idx, "TypeMismatch")
	}
	in := ex.tx.Kind.Inputs[a.Index]
	if in.Object == nil {
		return nil, ex.argError(idx, "TypeMismatch")
	}
	obj, ok := ex.st.objects[in.Object.Ref.ObjectID]
	if !ok {
		return nil, ex.argError(idx, "InvalidObjectByValue")
	}
	return obj, nil
}

func (ex *execution) moveCall(call *chain.MoveCall) error {
	if call.Package != ex.b.cfg.PackageID || call.Module != escrow.ModuleName {
		return ex.fail(fmt.Sprintf("FunctionNotFound(%s::%s::%s)", call.Package, call.Module, call.Function))
	}
	fn, ok := moduleFunctions[call.Function]
	if !ok {
		return ex.fail(fmt.Sprintf("FunctionNotFound(%s::%s::%s)", call.Package, call.Module, call.Function))
	}
	if len(call.Arguments) != fn.arity {
		return ex.fail("ArityMismatch")
	}

	args := make([]arg, len(call.Arguments))
	for i, a := range call.Arguments {
		switch a.Kind {
		case chain.ArgInput:
			if int(a.Index) >= len(ex.tx.Kind.Inputs) {
				return ex.argError(i, "IndexOutOfBounds")
			}
			in := ex.tx.Kind.Inputs[a.Index]
			if in.Object == nil {
				args[i] = arg{pure: in.Pure}
				continue
			}
			obj, ok := ex.st.objects[in.Object.Ref.ObjectID]
			if !ok {
				return ex.argError(i, "InvalidObjectByValue")
			}
			mutable := true
			if in.Object.Kind == chain.SharedObject {
				mutable = in.Object.Mutable
			}
			args[i] = arg{obj: obj, mutable: mutable}
		case chain.ArgGasCoin:
			return ex.argError(i, "InvalidGasCoinUsage")
		default:
			coin, _, err := ex.coinArg(i, a)
			if err != nil {
				return err
			}
			args[i] = arg{coin: coin}
		}
	}

	c := &callContext{ex: ex, function: call.Function, args: args}
	return fn.run(c)
}

func (ex *execution) mut(id interfaces.ObjectID) *object {
	if ex.mutated[id] || ex.created[id] {
		return ex.st.objects[id]
	}
	obj := ex.st.objects[id].clone()
	ex.st.objects[id] = obj
	ex.mutated[id] = true
	return obj
}

func (ex *execution) delete(id interfaces.ObjectID) {
	ex.st.remove(id)
	ex.deleted[id] = true
}

func (ex *execution) create(typ string, owner interfaces.ObjectOwner, build func(id interfaces.ObjectID) interface{}) interfaces.ObjectID {
	id := ex.b.newID()
	obj := &object{
		ref:   interfaces.ObjectRef{ObjectID: id},
		typ:   typ,
		owner: owner,
		value: build(id),
	}
	ex.st.put(obj)
	ex.created[id] = true
	return id
}

func (ex *execution) mintCoin(owner interfaces.Address, amount uint64) interfaces.ObjectID {
	return ex.create(coinType, interfaces.ObjectOwner{AddressOwner: &owner}, func(id interfaces.ObjectID) interface{} {
		return &coinValue{ID: escrow.UID{ID: id}, Balance: escrow.U64(amount)}
	})
}

func (ex *execution) emit(name string, payload map[string]interface{}) {
	parsed, _ := json.Marshal(payload)
	ex.events = append(ex.events, interfaces.Event{
		TxDigest:    ex.digest,
		PackageID:   ex.b.cfg.PackageID,
		Module:      escrow.ModuleName,
		Type:        escrow.EventType(ex.b.cfg.PackageID, name),
		Sender:      ex.tx.Sender,
		ParsedJSON:  parsed,
		TimestampMs: uint64(ex.now.UnixMilli()),
	})
}
