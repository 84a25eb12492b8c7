package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/sui-escrow-gateway/bcs"
	"github.com/ruteri/sui-escrow-gateway/chain"
	"github.com/ruteri/sui-escrow-gateway/escrow"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/ruteri/sui-escrow-gateway/metrics"
)

const (
	// DefaultGasBudget is 0.05 SUI.
	DefaultGasBudget uint64 = 50_000_000

	maxGasCoins = 256
)

// Config tunes transaction assembly.
type Config struct {
	// GasBudget in MIST. Defaults to DefaultGasBudget.
	GasBudget uint64
	// ExpirationEpochs makes transactions expire that many epochs after the
	// current one. Zero leaves them without expiration.
	ExpirationEpochs uint64
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result is the outcome of an executed call.
type Result struct {
	TransactionID string                    `json:"transactionId"`
	Digest        string                    `json:"digest"`
	Status        string                    `json:"status"`
	Error         string                    `json:"error,omitempty"`
	GasUsed       uint64                    `json:"gasUsed"`
	Events        []interfaces.Event        `json:"events,omitempty"`
	ObjectChanges []interfaces.ObjectChange `json:"objectChanges,omitempty"`
}

// Created returns the ids of created objects of the escrow module struct name.
func (r *Result) Created(structName string) []interfaces.ObjectID {
	var ids []interfaces.ObjectID
	suffix := "::" + escrow.ModuleName + "::" + structName
	for _, ch := range r.ObjectChanges {
		if ch.Type == "created" && strings.HasSuffix(ch.ObjectType, suffix) {
			ids = append(ids, ch.ObjectID)
		}
	}
	return ids
}

// Event returns the first emitted event of the escrow module event name.
func (r *Result) Event(name string) (interfaces.Event, bool) {
	suffix := "::" + escrow.ModuleName + "::" + name
	for _, ev := range r.Events {
		if strings.HasSuffix(ev.Type, suffix) {
			return ev, true
		}
	}
	return interfaces.Event{}, false
}

// Executor submits escrow calls.
type Executor struct {
	chain   interfaces.ChainClient
	ledger  interfaces.TransactionLedger
	metrics *metrics.Collectors
	cfg     Config
	log     *slog.Logger

	mu      sync.Mutex
	senders map[interfaces.Address]*sync.Mutex
}

// New creates an executor. ledger and m may be nil.
func New(client interfaces.ChainClient, ledger interfaces.TransactionLedger, m *metrics.Collectors, cfg Config, log *slog.Logger) *Executor {
	if cfg.GasBudget == 0 {
		cfg.GasBudget = DefaultGasBudget
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Executor{
		chain:   client,
		ledger:  ledger,
		metrics: m,
		cfg:     cfg,
		log:     log,
		senders: make(map[interfaces.Address]*sync.Mutex),
	}
}

// senderLock serializes submissions of one sender, which share gas coins.
func (e *Executor) senderLock(sender interfaces.Address) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.senders[sender]
	if !ok {
		l = &sync.Mutex{}
		e.senders[sender] = l
	}
	return l
}

// Execute signs and submits call on behalf of signer. An execution failure
// returns both the result carrying the chain effects and an ErrRejected error.
func (e *Executor) Execute(ctx context.Context, call *escrow.Call, signer interfaces.TransactionSigner) (*Result, error) {
	if signer == nil {
		return nil, fmt.Errorf("%w: no active session", interfaces.ErrSigning)
	}
	if call == nil {
		return nil, fmt.Errorf("%w: empty call", interfaces.ErrInvalidArgument)
	}
	start := e.cfg.Now()
	sender := signer.Address()

	lock := e.senderLock(sender)
	lock.Lock()
	defer lock.Unlock()

	log := e.log.With(
		slog.String("function", call.Function),
		slog.String("sender", sender.String()),
		slog.String("fingerprint", call.Fingerprint()))

	tx, err := e.Build(ctx, call, sender)
	if err != nil {
		log.Warn("Failed to build transaction", "err", err)
		return nil, err
	}
	txBytes, err := tx.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidArgument, err)
	}

	sig, err := signer.SignTransaction(txBytes)
	if err != nil {
		if !errors.Is(err, interfaces.ErrSigning) {
			err = fmt.Errorf("%w: %w", interfaces.ErrSigning, err)
		}
		log.Warn("Signer refused transaction", "err", err)
		return nil, err
	}

	record := &interfaces.Transaction{
		ID:          uuid.NewString(),
		Function:    call.Function,
		Fingerprint: call.Fingerprint(),
		Sender:      sender,
		Receiver:    call.Meta.Receiver,
		Amount:      call.Meta.Amount,
		Currency:    call.Meta.Currency,
		ProductID:   call.Meta.ProductID,
		EscrowID:    call.Meta.EscrowID,
		Timestamp:   start.UTC(),
		Status:      interfaces.TransactionPending,
	}
	if e.ledger != nil {
		if err := e.ledger.Record(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to record transaction: %w", err)
		}
	}

	resp, err := e.chain.ExecuteTransactionBlock(ctx, txBytes, []string{sig})
	if err != nil {
		err = classify(err)
		e.finish(ctx, log, record, interfaces.TransactionFailed, "", err.Error())
		e.metrics.ObserveTransaction(call.Function, string(interfaces.TransactionFailed), 0, e.cfg.Now().Sub(start))
		log.Warn("Transaction submission failed", "err", err)
		return nil, err
	}

	result := &Result{
		TransactionID: record.ID,
		Digest:        resp.Digest,
		Status:        resp.Status,
		Error:         resp.Error,
		GasUsed:       resp.GasUsed,
		Events:        resp.Events,
		ObjectChanges: resp.ObjectChanges,
	}

	if !resp.Succeeded() {
		reason := resp.Error
		if abort, ok := escrow.ParseAbort(resp.Error); ok {
			reason = abort.String()
		}
		e.finish(ctx, log, record, interfaces.TransactionFailed, resp.Digest, resp.Error)
		e.metrics.ObserveTransaction(call.Function, string(interfaces.TransactionFailed), resp.GasUsed, e.cfg.Now().Sub(start))
		log.Warn("Transaction failed on chain", slog.String("digest", resp.Digest), slog.String("reason", resp.Error))
		return result, fmt.Errorf("%w: %s", interfaces.ErrRejected, reason)
	}

	e.finish(ctx, log, record, interfaces.TransactionConfirmed, resp.Digest, "")
	e.metrics.ObserveTransaction(call.Function, string(interfaces.TransactionConfirmed), resp.GasUsed, e.cfg.Now().Sub(start))
	log.Info("Transaction confirmed",
		slog.String("digest", resp.Digest),
		slog.Uint64("gas_used", resp.GasUsed))
	return result, nil
}

func (e *Executor) finish(ctx context.Context, log *slog.Logger, record *interfaces.Transaction, status interfaces.TransactionStatus, digest, errMsg string) {
	if e.ledger == nil {
		return
	}
	// The outcome is already known; a failing ledger must not mask it.
	if err := e.ledger.UpdateStatus(context.WithoutCancel(ctx), record.ID, status, digest, errMsg); err != nil {
		log.Error("Failed to update transaction record", slog.String("transaction_id", record.ID), "err", err)
	}
}

// Build resolves the inputs of call and assembles unsigned transaction data.
func (e *Executor) Build(ctx context.Context, call *escrow.Call, sender interfaces.Address) (*chain.TransactionData, error) {
	split, err := call.TotalSplit()
	if err != nil {
		return nil, err
	}
	if split > math.MaxUint64-e.cfg.GasBudget {
		return nil, fmt.Errorf("%w: amount %d plus gas budget %d overflows u64", interfaces.ErrInvalidArgument, split, e.cfg.GasBudget)
	}
	b := &ptbBuilder{objects: make(map[interfaces.ObjectID]uint16)}

	var splits []uint64
	for _, a := range call.Args {
		if a.Kind == escrow.GasSplitArg {
			splits = append(splits, a.Amount)
		}
	}
	if len(splits) > 0 {
		amounts := make([]chain.Argument, len(splits))
		for i, amount := range splits {
			amounts[i] = b.pure(bcs.EncodeU64(amount))
		}
		b.commands = append(b.commands, chain.Command{
			Kind:    chain.CommandSplitCoins,
			Coin:    chain.GasCoin(),
			Amounts: amounts,
		})
	}

	args := make([]chain.Argument, 0, len(call.Args))
	var nextSplit uint16
	for _, a := range call.Args {
		switch a.Kind {
		case escrow.PureArg:
			args = append(args, b.pure(a.Pure))
		case escrow.ObjectArg:
			arg, err := e.objectInput(ctx, b, a)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		case escrow.GasSplitArg:
			args = append(args, chain.NestedResult(0, nextSplit))
			nextSplit++
		default:
			return nil, fmt.Errorf("%w: unknown argument kind %d", interfaces.ErrInvalidArgument, a.Kind)
		}
	}
	b.commands = append(b.commands, chain.Command{
		Kind: chain.CommandMoveCall,
		MoveCall: &chain.MoveCall{
			Package:   call.Package,
			Module:    call.Module,
			Function:  call.Function,
			Arguments: args,
		},
	})

	price, err := e.chain.GetReferenceGasPrice(ctx)
	if err != nil {
		return nil, classify(err)
	}
	payment, err := e.selectGas(ctx, sender, e.cfg.GasBudget+split)
	if err != nil {
		return nil, err
	}

	tx := &chain.TransactionData{
		Sender: sender,
		Kind:   chain.ProgrammableTransaction{Inputs: b.inputs, Commands: b.commands},
		Gas: chain.GasData{
			Payment: payment,
			Owner:   sender,
			Price:   price,
			Budget:  e.cfg.GasBudget,
		},
	}
	if e.cfg.ExpirationEpochs > 0 {
		epoch, err := e.chain.CurrentEpoch(ctx)
		if err != nil {
			return nil, classify(err)
		}
		expire := epoch + e.cfg.ExpirationEpochs
		tx.ExpireEpoch = &expire
	}
	return tx, nil
}

// objectInput resolves an object argument to a shared or owned input.
func (e *Executor) objectInput(ctx context.Context, b *ptbBuilder, a escrow.Arg) (chain.Argument, error) {
	if idx, ok := b.objects[a.Object]; ok {
		in := b.inputs[idx].Object
		if in.Kind == chain.SharedObject && a.Mutable {
			in.Mutable = true
		}
		return chain.Input(idx), nil
	}

	obj, err := e.chain.GetObject(ctx, a.Object)
	if err != nil {
		if errors.Is(err, interfaces.ErrObjectNotFound) {
			return chain.Argument{}, fmt.Errorf("%w: %w", interfaces.ErrRejected, err)
		}
		return chain.Argument{}, classify(err)
	}

	in := &chain.ObjectArg{Kind: chain.ImmOrOwnedObject, Ref: obj.Ref}
	if obj.Owner.IsShared() {
		in = &chain.ObjectArg{
			Kind:                 chain.SharedObject,
			Ref:                  interfaces.ObjectRef{ObjectID: obj.Ref.ObjectID},
			InitialSharedVersion: obj.Owner.Shared.InitialSharedVersion,
			Mutable:              a.Mutable,
		}
	}
	idx := b.add(chain.CallArg{Object: in})
	b.objects[a.Object] = idx
	return chain.Input(idx), nil
}

// selectGas picks the largest SUI coins of sender until they cover need.
func (e *Executor) selectGas(ctx context.Context, sender interfaces.Address, need uint64) ([]interfaces.ObjectRef, error) {
	coins, err := e.chain.GetCoins(ctx, sender, interfaces.SuiCoinType)
	if err != nil {
		return nil, classify(err)
	}
	sort.SliceStable(coins, func(i, j int) bool { return coins[i].Balance > coins[j].Balance })

	var (
		total   uint64
		payment []interfaces.ObjectRef
	)
	for _, c := range coins {
		if total >= need || len(payment) == maxGasCoins {
			break
		}
		total += c.Balance
		payment = append(payment, c.Ref)
	}
	if total < need {
		return nil, fmt.Errorf("%w: insufficient SUI balance for gas and payment: have %d, need %d", interfaces.ErrRejected, total, need)
	}
	return payment, nil
}

// classify keeps rejections and marks everything else as a network failure.
func classify(err error) error {
	if errors.Is(err, interfaces.ErrRejected) || errors.Is(err, interfaces.ErrNetwork) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", interfaces.ErrNetwork, err)
	}
	return fmt.Errorf("%w: %v", interfaces.ErrNetwork, err)
}

type ptbBuilder struct {
	inputs   []chain.CallArg
	commands []chain.Command
	objects  map[interfaces.ObjectID]uint16
}

func (b *ptbBuilder) add(in chain.CallArg) uint16 {
	b.inputs = append(b.inputs, in)
	return uint16(len(b.inputs) - 1)
}

func (b *ptbBuilder) pure(v []byte) chain.Argument {
	return chain.Input(b.add(chain.CallArg{Pure: v}))
}
