// Package simulated implements an in-memory chain that executes the escrow
// module. It backs tests and local development in place of a full node.
package simulated

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/ruteri/sui-escrow-gateway/chain"
	"github.com/ruteri/sui-escrow-gateway/cryptoutils"
	"github.com/ruteri/sui-escrow-gateway/escrow"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"golang.org/x/crypto/blake2b"
)

const (
	coinType = "0x2::coin::Coin<" + interfaces.SuiCoinType + ">"

	clockType = "0x2::clock::Clock"

	defaultGasPrice     = 1000
	defaultFaucetAmount = 10 * escrow.MistPerSui

	computationUnits = 1000
	storagePerObject = 2_000_000
)

// Config sets up the genesis state.
type Config struct {
	// PackageID of the escrow module. Generated when zero.
	PackageID interfaces.ObjectID
	// ConfigID of the shared PlatformConfig. Generated when zero.
	ConfigID interfaces.ObjectID
	Admin    interfaces.Address
	Tiers    []escrow.SubscriptionTier

	Epoch        uint64
	GasPrice     uint64
	FaucetAmount uint64
	Now          func() time.Time
}

// Backend is an interfaces.ChainClient and interfaces.GasFaucet over in-memory state.
type Backend struct {
	mu sync.Mutex

	cfg     Config
	epoch   uint64
	version uint64
	nextID  uint64
	state   *state
	events  []interfaces.Event
	txs     map[string]*interfaces.TransactionResponse

	log *slog.Logger
}

type object struct {
	ref   interfaces.ObjectRef
	typ   string
	owner interfaces.ObjectOwner
	value interface{}
}

type coinValue struct {
	ID      escrow.UID `json:"id"`
	Balance escrow.U64 `json:"balance"`
}

type clockValue struct {
	ID          escrow.UID `json:"id"`
	TimestampMs escrow.U64 `json:"timestamp_ms"`
}

type state struct {
	objects map[interfaces.ObjectID]*object
	order   []interfaces.ObjectID
}

// NewBackend creates the genesis state: the clock, the platform config and the package.
func NewBackend(cfg Config, log *slog.Logger) *Backend {
	if cfg.GasPrice == 0 {
		cfg.GasPrice = defaultGasPrice
	}
	if cfg.FaucetAmount == 0 {
		cfg.FaucetAmount = defaultFaucetAmount
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = escrow.DefaultTiers
	}

	b := &Backend{
		cfg:   cfg,
		epoch: cfg.Epoch,
		state: &state{objects: make(map[interfaces.ObjectID]*object)},
		txs:   make(map[string]*interfaces.TransactionResponse),
		log:   log,
	}
	if b.cfg.PackageID.IsZero() {
		b.cfg.PackageID = b.newID()
	}
	if b.cfg.ConfigID.IsZero() {
		b.cfg.ConfigID = b.newID()
	}

	b.version = 1
	b.state.put(b.sharedObject(escrow.ClockObjectID, clockType, &clockValue{ID: escrow.UID{ID: escrow.ClockObjectID}}))
	b.state.put(b.sharedObject(b.cfg.ConfigID, escrow.StructType(b.cfg.PackageID, escrow.StructPlatformConfig), &escrow.PlatformConfigFields{
		ID:     escrow.UID{ID: b.cfg.ConfigID},
		Admin:  cfg.Admin,
		FeeBps: escrow.EscrowFeeBps,
	}))
	return b
}

func (b *Backend) PackageID() interfaces.ObjectID { return b.cfg.PackageID }

func (b *Backend) ConfigID() interfaces.ObjectID { return b.cfg.ConfigID }

// SetEpoch moves the chain to epoch.
func (b *Backend) SetEpoch(epoch uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.epoch = epoch
}

// Fund mints a coin of amount to owner.
func (b *Backend) Fund(owner interfaces.Address, amount uint64) interfaces.ObjectID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.version++
	id := b.newID()
	b.state.put(b.ownedObject(id, coinType, owner, &coinValue{ID: escrow.UID{ID: id}, Balance: escrow.U64(amount)}))
	return id
}

func (b *Backend) RequestGas(_ context.Context, recipient interfaces.Address) error {
	b.Fund(recipient, b.cfg.FaucetAmount)
	b.log.Debug("Funded address", "recipient", recipient.String(), "amount", b.cfg.FaucetAmount)
	return nil
}

func (b *Backend) GetBalance(_ context.Context, owner interfaces.Address, ct string) (*interfaces.Balance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bal := &interfaces.Balance{CoinType: ct}
	if ct != interfaces.SuiCoinType {
		return bal, nil
	}
	for _, obj := range b.state.ownedBy(owner, coinType) {
		bal.CoinObjectCount++
		bal.TotalBalance += uint64(obj.value.(*coinValue).Balance)
	}
	return bal, nil
}

func (b *Backend) GetCoins(_ context.Context, owner interfaces.Address, ct string) ([]interfaces.Coin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ct != interfaces.SuiCoinType {
		return nil, nil
	}
	var coins []interfaces.Coin
	for _, obj := range b.state.ownedBy(owner, coinType) {
		coins = append(coins, interfaces.Coin{
			CoinType: ct,
			Ref:      obj.ref,
			Balance:  uint64(obj.value.(*coinValue).Balance),
		})
	}
	return coins, nil
}

func (b *Backend) GetOwnedObjects(_ context.Context, owner interfaces.Address, structType string) ([]interfaces.ObjectData, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []interfaces.ObjectData
	for _, obj := range b.state.ownedBy(owner, structType) {
		data, err := obj.data()
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func (b *Backend) GetObject(_ context.Context, id interfaces.ObjectID) (*interfaces.ObjectData, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.state.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s (notExists)", interfaces.ErrObjectNotFound, id)
	}
	data, err := obj.data()
	if err != nil {
		return nil, err
	}
	return &data, nil
}

func (b *Backend) QueryEvents(_ context.Context, eventType string, limit int, descending bool) ([]interfaces.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []interfaces.Event
	for _, ev := range b.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	if descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *Backend) GetReferenceGasPrice(context.Context) (uint64, error) {
	return b.cfg.GasPrice, nil
}

func (b *Backend) CurrentEpoch(context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.epoch, nil
}

// ExecuteTransactionBlock validates and executes a programmable transaction.
// Validation failures are returned as ErrRejected errors; execution failures
// are reported in the response status with gas still charged.
func (b *Backend) ExecuteTransactionBlock(_ context.Context, txBytes []byte, signatures []string) (*interfaces.TransactionResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	digest := transactionDigest(txBytes)
	if res, ok := b.txs[digest]; ok {
		return res, nil
	}

	tx, err := chain.UnmarshalTransactionData(txBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrRejected, err)
	}
	if err := b.verifySignatures(tx, txBytes, signatures); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrRejected, err)
	}
	if tx.ExpireEpoch != nil && *tx.ExpireEpoch < b.epoch {
		return nil, fmt.Errorf("%w: transaction expired at epoch %d", interfaces.ErrRejected, *tx.ExpireEpoch)
	}
	gasBalance, err := b.checkGas(tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrRejected, err)
	}
	if err := b.checkInputs(tx); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrRejected, err)
	}

	b.version++
	ex := b.newExecution(tx, digest, gasBalance)
	res := ex.run()
	b.txs[digest] = res

	b.log.Debug("Executed transaction",
		slog.String("digest", digest),
		slog.String("status", res.Status),
		slog.Uint64("gas_used", res.GasUsed))
	return res, nil
}

func (b *Backend) verifySignatures(tx *chain.TransactionData, txBytes []byte, signatures []string) error {
	if len(signatures) != 1 {
		return fmt.Errorf("expected one signature, got %d", len(signatures))
	}
	raw, err := base64.StdEncoding.DecodeString(signatures[0])
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	digest := cryptoutils.TransactionDigest(txBytes)

	zk := len(raw) > 0 && cryptoutils.SignatureScheme(raw[0]) == cryptoutils.SchemeZkLogin
	if zk {
		sig, err := cryptoutils.ParseZkLoginSignature(raw)
		if err != nil {
			return err
		}
		if sig.MaxEpoch < b.epoch {
			return fmt.Errorf("zklogin signature expired at epoch %d, current epoch %d", sig.MaxEpoch, b.epoch)
		}
		addr, err := cryptoutils.AddressFromSeedString(sig.Inputs.AddressSeed)
		if err != nil {
			return err
		}
		if addr != tx.Sender {
			return fmt.Errorf("zklogin address %s does not match sender %s", addr, tx.Sender)
		}
		raw = sig.UserSignature
	}

	scheme, s, pk, err := cryptoutils.ParseSerializedSignature(raw)
	if err != nil {
		return err
	}
	if !cryptoutils.VerifySignature(scheme, pk, digest[:], s) {
		return fmt.Errorf("signature verification failed")
	}
	if !zk && cryptoutils.PublicKeyAddress(scheme, pk) != tx.Sender {
		return fmt.Errorf("signer does not match sender %s", tx.Sender)
	}
	return nil
}

func (b *Backend) checkGas(tx *chain.TransactionData) (uint64, error) {
	if tx.Gas.Owner != tx.Sender {
		return 0, fmt.Errorf("gas owner %s is not the sender", tx.Gas.Owner)
	}
	if tx.Gas.Price < b.cfg.GasPrice {
		return 0, fmt.Errorf("gas price %d below reference gas price %d", tx.Gas.Price, b.cfg.GasPrice)
	}
	if tx.Gas.Price > math.MaxUint64/computationUnits {
		return 0, fmt.Errorf("gas price %d is out of range", tx.Gas.Price)
	}
	if len(tx.Gas.Payment) == 0 {
		return 0, fmt.Errorf("missing gas payment")
	}

	var total uint64
	seen := make(map[interfaces.ObjectID]bool)
	for _, ref := range tx.Gas.Payment {
		if seen[ref.ObjectID] {
			return 0, fmt.Errorf("duplicate gas coin %s", ref.ObjectID)
		}
		seen[ref.ObjectID] = true

		obj, err := b.ownedInput(tx.Sender, ref)
		if err != nil {
			return 0, err
		}
		coin, ok := obj.value.(*coinValue)
		if !ok {
			return 0, fmt.Errorf("gas object %s is not a SUI coin", ref.ObjectID)
		}
		if uint64(coin.Balance) > math.MaxUint64-total {
			return 0, fmt.Errorf("gas payment balance overflows u64")
		}
		total += uint64(coin.Balance)
	}
	if total < tx.Gas.Budget {
		return 0, fmt.Errorf("gas balance %d is lower than the budget %d", total, tx.Gas.Budget)
	}
	return total, nil
}

func (b *Backend) checkInputs(tx *chain.TransactionData) error {
	for i, in := range tx.Kind.Inputs {
		if in.Object == nil {
			continue
		}
		switch in.Object.Kind {
		case chain.ImmOrOwnedObject:
			if _, err := b.ownedInput(tx.Sender, in.Object.Ref); err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
		case chain.SharedObject:
			obj, ok := b.state.objects[in.Object.Ref.ObjectID]
			if !ok {
				return fmt.Errorf("input %d: object %s not found", i, in.Object.Ref.ObjectID)
			}
			if !obj.owner.IsShared() || obj.owner.Shared.InitialSharedVersion != in.Object.InitialSharedVersion {
				return fmt.Errorf("input %d: object %s is not shared at version %d", i, obj.ref.ObjectID, in.Object.InitialSharedVersion)
			}
		}
	}
	return nil
}

func (b *Backend) ownedInput(sender interfaces.Address, ref interfaces.ObjectRef) (*object, error) {
	obj, ok := b.state.objects[ref.ObjectID]
	if !ok {
		return nil, fmt.Errorf("object %s not found", ref.ObjectID)
	}
	if obj.ref.Version != ref.Version || obj.ref.Digest != ref.Digest {
		return nil, fmt.Errorf("object %s is not available for consumption, current version %d", ref.ObjectID, obj.ref.Version)
	}
	if obj.owner.Immutable {
		return obj, nil
	}
	if obj.owner.AddressOwner == nil || *obj.owner.AddressOwner != sender {
		return nil, fmt.Errorf("object %s is not owned by %s", ref.ObjectID, sender)
	}
	return obj, nil
}

func (b *Backend) newID() interfaces.ObjectID {
	b.nextID++
	var seed [16]byte
	copy(seed[:8], "simobjid")
	binary.BigEndian.PutUint64(seed[8:], b.nextID)
	return interfaces.ObjectID(blake2b.Sum256(seed[:]))
}

func (b *Backend) sharedObject(id interfaces.ObjectID, typ string, value interface{}) *object {
	obj := &object{
		ref:   interfaces.ObjectRef{ObjectID: id},
		typ:   typ,
		owner: interfaces.ObjectOwner{Shared: &interfaces.Shared{InitialSharedVersion: b.version}},
		value: value,
	}
	obj.bump(b.version)
	return obj
}

func (b *Backend) ownedObject(id interfaces.ObjectID, typ string, owner interfaces.Address, value interface{}) *object {
	obj := &object{
		ref:   interfaces.ObjectRef{ObjectID: id},
		typ:   typ,
		owner: interfaces.ObjectOwner{AddressOwner: &owner},
		value: value,
	}
	obj.bump(b.version)
	return obj
}

func (o *object) bump(version uint64) {
	o.ref.Version = version
	var seed [40]byte
	copy(seed[:32], o.ref.ObjectID[:])
	binary.BigEndian.PutUint64(seed[32:], version)
	sum := blake2b.Sum256(seed[:])
	o.ref.Digest = base58.Encode(sum[:])
}

func (o *object) data() (interfaces.ObjectData, error) {
	fields, err := json.Marshal(o.value)
	if err != nil {
		return interfaces.ObjectData{}, fmt.Errorf("failed to render object %s: %w", o.ref.ObjectID, err)
	}
	return interfaces.ObjectData{Ref: o.ref, Type: o.typ, Owner: o.owner, Fields: fields}, nil
}

func (o *object) clone() *object {
	c := *o
	switch v := o.value.(type) {
	case *coinValue:
		cv := *v
		c.value = &cv
	case *clockValue:
		cv := *v
		c.value = &cv
	case *escrow.UserAccountFields:
		cv := *v
		cv.EmailHash = append([]byte(nil), v.EmailHash...)
		c.value = &cv
	case *escrow.ProductFields:
		cv := *v
		c.value = &cv
	case *escrow.EscrowFields:
		cv := *v
		cv.TrackingUpdates = append([]escrow.MoveStruct[escrow.TrackingUpdateFields](nil), v.TrackingUpdates...)
		c.value = &cv
	case *escrow.PlatformConfigFields:
		cv := *v
		c.value = &cv
	}
	return &c
}

func (s *state) put(obj *object) {
	if _, ok := s.objects[obj.ref.ObjectID]; !ok {
		s.order = append(s.order, obj.ref.ObjectID)
	}
	s.objects[obj.ref.ObjectID] = obj
}

func (s *state) remove(id interfaces.ObjectID) {
	delete(s.objects, id)
}

func (s *state) ownedBy(owner interfaces.Address, typ string) []*object {
	var out []*object
	for _, id := range s.order {
		obj, ok := s.objects[id]
		if !ok || obj.owner.AddressOwner == nil || *obj.owner.AddressOwner != owner {
			continue
		}
		if typ != "" && obj.typ != typ {
			continue
		}
		out = append(out, obj)
	}
	return out
}

// clone copies only the objects ids; objects are copied on first write.
func (s *state) clone() *state {
	c := &state{
		objects: make(map[interfaces.ObjectID]*object, len(s.objects)),
		order:   append([]interfaces.ObjectID(nil), s.order...),
	}
	for id, obj := range s.objects {
		c.objects[id] = obj
	}
	return c
}

func transactionDigest(txBytes []byte) string {
	sum := blake2b.Sum256(append([]byte("TransactionData::"), txBytes...))
	return base58.Encode(sum[:])
}

func sortedIDs(m map[interfaces.ObjectID]bool) []interfaces.ObjectID {
	ids := make([]interfaces.ObjectID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
