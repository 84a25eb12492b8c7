package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ruteri/sui-escrow-gateway/chain"
	"github.com/ruteri/sui-escrow-gateway/chain/simulated"
	"github.com/ruteri/sui-escrow-gateway/cryptoutils"
	"github.com/ruteri/sui-escrow-gateway/escrow"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/ruteri/sui-escrow-gateway/ledger"
	"github.com/ruteri/sui-escrow-gateway/zklogin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	backend *simulated.Backend
	builder *escrow.Builder
	ledger  *ledger.MemoryLedger
	exec    *Executor

	admin, buyer, seller, arbiter *simulated.KeySigner
}

func newSigner(t *testing.T) *simulated.KeySigner {
	t.Helper()
	s, err := simulated.NewKeySigner(cryptoutils.SchemeEd25519)
	require.NoError(t, err)
	return s
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		admin:   newSigner(t),
		buyer:   newSigner(t),
		seller:  newSigner(t),
		arbiter: newSigner(t),
		ledger:  ledger.NewMemoryLedger(),
	}
	f.backend = simulated.NewBackend(simulated.Config{
		Admin: f.admin.Address(),
		Now:   func() time.Time { return testNow },
	}, log)

	var err error
	f.builder, err = escrow.NewBuilder(escrow.BuilderConfig{
		PackageID: f.backend.PackageID(),
		ConfigID:  f.backend.ConfigID(),
	})
	require.NoError(t, err)

	f.exec = New(f.backend, f.ledger, nil, Config{Now: func() time.Time { return testNow }}, log)
	return f
}

func (f *fixture) run(t *testing.T, signer interfaces.TransactionSigner, call *escrow.Call) *Result {
	t.Helper()
	res, err := f.exec.Execute(context.Background(), call, signer)
	require.NoError(t, err)
	require.Equal(t, "success", res.Status)
	return res
}

func (f *fixture) escrowState(t *testing.T, id interfaces.ObjectID) escrow.EscrowContract {
	t.Helper()
	obj, err := f.backend.GetObject(context.Background(), id)
	require.NoError(t, err)
	e, err := escrow.DecodeEscrow(obj)
	require.NoError(t, err)
	return e
}

func requireAbort(t *testing.T, res *Result, err error, code uint64) {
	t.Helper()
	require.ErrorIs(t, err, interfaces.ErrRejected)
	require.NotNil(t, res)
	assert.Equal(t, "failure", res.Status)
	abort, ok := escrow.ParseAbort(res.Error)
	require.True(t, ok, res.Error)
	assert.Equal(t, code, abort.Code)
}

// setupSeller registers an account and a product for the seller.
func (f *fixture) setupSeller(t *testing.T) (accountID, productID interfaces.ObjectID) {
	t.Helper()
	ctx := context.Background()
	f.backend.Fund(f.seller.Address(), 600*escrow.MistPerSui)

	res := f.run(t, f.seller, mustCall(f.builder.CreateAccount(cryptoutils.HashEmail("seller@example.com"))))
	created := res.Created(escrow.StructUserAccount)
	require.Len(t, created, 1)
	accountID = created[0]

	product := escrow.ProductInput{
		Name:           "Cocoa beans",
		Description:    "Grade A, fermented",
		Category:       "Agriculture",
		Quantity:       100,
		UnitPrice:      2 * escrow.MistPerSui,
		Currency:       "SUI",
		Manufacturer:   "Ondo Farms",
		OriginLocation: "Ondo, NG",
		BatchNumber:    "B-2026-04",
	}

	// Starter accounts cannot list products.
	call, err := f.builder.CreateProduct(accountID, product)
	require.NoError(t, err)
	res, err = f.exec.Execute(ctx, call, f.seller)
	requireAbort(t, res, err, escrow.ETierLimitReached)

	f.run(t, f.seller, mustCall(f.builder.UpgradeSubscription(accountID, escrow.TierProfessional, 500*escrow.MistPerSui)))

	res = f.run(t, f.seller, mustCall(f.builder.CreateProduct(accountID, product)))
	created = res.Created(escrow.StructProduct)
	require.Len(t, created, 1)
	return accountID, created[0]
}

// mustCall unwraps a builder result whose arguments are known to be valid.
func mustCall(c *escrow.Call, err error) *escrow.Call {
	if err != nil {
		panic(err)
	}
	return c
}

func (f *fixture) openEscrow(t *testing.T, productID interfaces.ObjectID, amount uint64) interfaces.ObjectID {
	t.Helper()
	res := f.run(t, f.buyer, mustCall(f.builder.CreateEscrow(escrow.EscrowInput{
		Seller:    f.seller.Address(),
		Arbiter:   f.arbiter.Address(),
		ProductID: productID,
		Amount:    amount,
		Terms:     "Deliver within 14 days",
	})))
	created := res.Created(escrow.StructEscrowContract)
	require.Len(t, created, 1)
	_, ok := res.Event(escrow.EventEscrowCreated)
	assert.True(t, ok)
	return created[0]
}

func TestEscrowLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, productID := f.setupSeller(t)
	f.backend.Fund(f.buyer.Address(), 50*escrow.MistPerSui)

	amount := 10 * escrow.MistPerSui
	escrowID := f.openEscrow(t, productID, amount)

	e := f.escrowState(t, escrowID)
	assert.Equal(t, escrow.StatePending, e.State)
	assert.Equal(t, f.buyer.Address(), e.Buyer)
	assert.Equal(t, amount, e.Amount)

	// Completing a pending escrow is refused and leaves it untouched.
	call, err := f.builder.CompleteEscrow(escrowID)
	require.NoError(t, err)
	res, err := f.exec.Execute(ctx, call, f.buyer)
	requireAbort(t, res, err, escrow.EInvalidState)
	assert.Equal(t, escrow.StatePending, f.escrowState(t, escrowID).State)

	// Only the seller accepts.
	call, err = f.builder.AcceptEscrow(escrowID)
	require.NoError(t, err)
	res, err = f.exec.Execute(ctx, call, f.buyer)
	requireAbort(t, res, err, escrow.ENotAuthorized)

	f.run(t, f.seller, mustCall(f.builder.AcceptEscrow(escrowID)))
	f.run(t, f.seller, mustCall(f.builder.UpdateTracking(escrowID, "Lagos port", "shipped")))
	assert.Equal(t, escrow.StateInTransit, f.escrowState(t, escrowID).State)
	f.run(t, f.arbiter, mustCall(f.builder.UpdateTracking(escrowID, "Rotterdam", "delivered")))

	res = f.run(t, f.buyer, mustCall(f.builder.CompleteEscrow(escrowID)))
	ev, ok := res.Event(escrow.EventEscrowCompleted)
	require.True(t, ok)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(ev.ParsedJSON, &payload))
	assert.Equal(t, "9900000000", payload["amount"])
	assert.Equal(t, "100000000", payload["fee"])

	e = f.escrowState(t, escrowID)
	assert.Equal(t, escrow.StateCompleted, e.State)
	assert.True(t, e.State.IsTerminal())
	require.Len(t, e.TrackingUpdates, 2)
	assert.Equal(t, "Lagos port", e.TrackingUpdates[0].Location)
	assert.Equal(t, f.arbiter.Address(), e.TrackingUpdates[1].UpdatedBy)
	require.NotNil(t, e.AcceptedAt)
	require.NotNil(t, e.CompletedAt)

	// The fee lands with the platform admin.
	bal, err := f.backend.GetBalance(ctx, f.admin.Address(), interfaces.SuiCoinType)
	require.NoError(t, err)
	assert.Equal(t, 500*escrow.MistPerSui+100_000_000, bal.TotalBalance)

	records, err := f.ledger.List(ctx, f.buyer.Address(), 0)
	require.NoError(t, err)
	statuses := map[interfaces.TransactionStatus]int{}
	for _, r := range records {
		statuses[r.Status]++
		assert.NotEmpty(t, r.TxHash)
	}
	assert.Equal(t, 2, statuses[interfaces.TransactionConfirmed])
	assert.Equal(t, 2, statuses[interfaces.TransactionFailed])
}

func TestDisputeIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, productID := f.setupSeller(t)
	f.backend.Fund(f.buyer.Address(), 50*escrow.MistPerSui)
	escrowID := f.openEscrow(t, productID, escrow.MistPerSui)

	f.run(t, f.buyer, mustCall(f.builder.DisputeEscrow(escrowID)))
	assert.Equal(t, escrow.StateDisputed, f.escrowState(t, escrowID).State)

	call, err := f.builder.DisputeEscrow(escrowID)
	require.NoError(t, err)
	res, err := f.exec.Execute(ctx, call, f.seller)
	requireAbort(t, res, err, escrow.EInvalidState)
	assert.Equal(t, escrow.StateDisputed, f.escrowState(t, escrowID).State)
}

func TestCancelRefundsBuyer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, productID := f.setupSeller(t)
	f.backend.Fund(f.buyer.Address(), 50*escrow.MistPerSui)
	escrowID := f.openEscrow(t, productID, 5*escrow.MistPerSui)

	before, err := f.backend.GetBalance(ctx, f.buyer.Address(), interfaces.SuiCoinType)
	require.NoError(t, err)
	res := f.run(t, f.seller, mustCall(f.builder.CancelEscrow(escrowID)))
	after, err := f.backend.GetBalance(ctx, f.buyer.Address(), interfaces.SuiCoinType)
	require.NoError(t, err)

	assert.Equal(t, before.TotalBalance+5*escrow.MistPerSui, after.TotalBalance)
	assert.Equal(t, escrow.StateCancelled, f.escrowState(t, escrowID).State)
	assert.NotZero(t, res.GasUsed)
}

func TestVerifyProductByThirdParty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, productID := f.setupSeller(t)

	call, err := f.builder.VerifyProduct(productID)
	require.NoError(t, err)
	res, err := f.exec.Execute(ctx, call, f.seller)
	requireAbort(t, res, err, escrow.ENotAuthorized)

	f.backend.Fund(f.arbiter.Address(), escrow.MistPerSui)
	f.run(t, f.arbiter, mustCall(f.builder.VerifyProduct(productID)))

	obj, err := f.backend.GetObject(ctx, productID)
	require.NoError(t, err)
	p, err := escrow.DecodeProduct(obj)
	require.NoError(t, err)
	assert.True(t, p.IsVerified)
	assert.Equal(t, uint64(1), p.VerificationCount)
}

func TestExecuteRequiresSigner(t *testing.T) {
	f := newFixture(t)
	call, err := f.builder.AcceptEscrow(interfaces.MustParseAddress("0xe1"))
	require.NoError(t, err)

	_, err = f.exec.Execute(context.Background(), call, nil)
	require.ErrorIs(t, err, interfaces.ErrSigning)

	records, err := f.ledger.List(context.Background(), f.buyer.Address(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExecuteRejectsMissingObjectBeforeSubmission(t *testing.T) {
	f := newFixture(t)
	f.backend.Fund(f.seller.Address(), escrow.MistPerSui)
	call, err := f.builder.AcceptEscrow(interfaces.MustParseAddress("0xe1"))
	require.NoError(t, err)

	_, err = f.exec.Execute(context.Background(), call, f.seller)
	require.ErrorIs(t, err, interfaces.ErrRejected)
	require.ErrorIs(t, err, interfaces.ErrObjectNotFound)

	records, err := f.ledger.List(context.Background(), f.seller.Address(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExecuteRejectsInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	call, err := f.builder.CreateAccount(cryptoutils.HashEmail("broke@example.com"))
	require.NoError(t, err)

	_, err = f.exec.Execute(context.Background(), call, f.buyer)
	require.ErrorIs(t, err, interfaces.ErrRejected)
	assert.Contains(t, err.Error(), "insufficient SUI balance")
}

type refusingSigner struct {
	address interfaces.Address
}

func (s *refusingSigner) Address() interfaces.Address { return s.address }

func (s *refusingSigner) SignTransaction([]byte) (string, error) {
	return "", interfaces.ErrSessionExpired
}

func TestExecuteSignerFailure(t *testing.T) {
	f := newFixture(t)
	f.backend.Fund(f.buyer.Address(), escrow.MistPerSui)
	call, err := f.builder.CreateAccount(cryptoutils.HashEmail("buyer@example.com"))
	require.NoError(t, err)

	_, err = f.exec.Execute(context.Background(), call, &refusingSigner{address: f.buyer.Address()})
	require.ErrorIs(t, err, interfaces.ErrSigning)
	require.ErrorIs(t, err, interfaces.ErrSessionExpired)
}

// flakyChain fails submissions at the transport level.
type flakyChain struct {
	*simulated.Backend
}

func (c *flakyChain) ExecuteTransactionBlock(context.Context, []byte, []string) (*interfaces.TransactionResponse, error) {
	return nil, errors.New("read tcp 10.0.0.1:9000: connection reset by peer")
}

func TestExecuteNetworkFailureMarksRecordFailed(t *testing.T) {
	f := newFixture(t)
	f.backend.Fund(f.buyer.Address(), escrow.MistPerSui)
	exec := New(&flakyChain{f.backend}, f.ledger, nil, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	call, err := f.builder.CreateAccount(cryptoutils.HashEmail("buyer@example.com"))
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), call, f.buyer)
	require.ErrorIs(t, err, interfaces.ErrNetwork)

	records, err := f.ledger.List(context.Background(), f.buyer.Address(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, interfaces.TransactionFailed, records[0].Status)
	assert.Equal(t, call.Fingerprint(), records[0].Fingerprint)
	assert.Contains(t, records[0].Error, "connection reset")
}

// recordingChain counts every chain round trip made while building.
type recordingChain struct {
	interfaces.ChainClient
	calls int
}

func (c *recordingChain) GetObject(context.Context, interfaces.ObjectID) (*interfaces.ObjectData, error) {
	c.calls++
	return nil, interfaces.ErrObjectNotFound
}

func (c *recordingChain) GetCoins(context.Context, interfaces.Address, string) ([]interfaces.Coin, error) {
	c.calls++
	return nil, nil
}

func (c *recordingChain) GetReferenceGasPrice(context.Context) (uint64, error) {
	c.calls++
	return 1000, nil
}

func (c *recordingChain) CurrentEpoch(context.Context) (uint64, error) {
	c.calls++
	return 1, nil
}

func (c *recordingChain) ExecuteTransactionBlock(context.Context, []byte, []string) (*interfaces.TransactionResponse, error) {
	c.calls++
	return nil, errors.New("unexpected submission")
}

func TestExecuteRejectsOverflowingAmounts(t *testing.T) {
	f := newFixture(t)
	product := interfaces.MustParseAddress("0x9d")

	maxEscrow := mustCall(f.builder.CreateEscrow(escrow.EscrowInput{
		Seller:    f.seller.Address(),
		Arbiter:   f.arbiter.Address(),
		ProductID: product,
		Amount:    math.MaxUint64,
	}))
	twoSplits := &escrow.Call{
		Package:  f.backend.PackageID(),
		Module:   escrow.ModuleName,
		Function: "create_escrow",
		Args:     []escrow.Arg{escrow.SplitFromGas(math.MaxUint64 / 2), escrow.SplitFromGas(math.MaxUint64/2 + 2)},
	}

	for name, call := range map[string]*escrow.Call{"amount plus budget": maxEscrow, "sum of splits": twoSplits} {
		t.Run(name, func(t *testing.T) {
			client := &recordingChain{}
			exec := New(client, f.ledger, nil, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

			_, err := exec.Execute(context.Background(), call, f.buyer)
			require.ErrorIs(t, err, interfaces.ErrInvalidArgument)
			assert.Contains(t, err.Error(), "overflow")
			assert.Zero(t, client.calls)
		})
	}

	records, err := f.ledger.List(context.Background(), f.buyer.Address(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestChainRejectsOutOfRangeGasPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.Fund(f.buyer.Address(), escrow.MistPerSui)

	tx, err := f.exec.Build(ctx, mustCall(f.builder.CreateAccount(cryptoutils.HashEmail("buyer@example.com"))), f.buyer.Address())
	require.NoError(t, err)
	tx.Gas.Price = math.MaxUint64
	txBytes, err := tx.Marshal()
	require.NoError(t, err)
	sig, err := f.buyer.SignTransaction(txBytes)
	require.NoError(t, err)

	_, err = f.backend.ExecuteTransactionBlock(ctx, txBytes, []string{sig})
	require.ErrorIs(t, err, interfaces.ErrRejected)
	assert.Contains(t, err.Error(), "out of range")

	bal, err := f.backend.GetBalance(ctx, f.buyer.Address(), interfaces.SuiCoinType)
	require.NoError(t, err)
	assert.Equal(t, escrow.MistPerSui, bal.TotalBalance)
}

func TestBuildAssemblesSplitsAndSharedInputs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, productID := f.setupSeller(t)
	f.backend.Fund(f.buyer.Address(), 20*escrow.MistPerSui)
	f.backend.Fund(f.buyer.Address(), 10*escrow.MistPerSui)

	exec := New(f.backend, nil, nil, Config{GasBudget: 10_000_000, ExpirationEpochs: 2}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	call, err := f.builder.CreateEscrow(escrow.EscrowInput{
		Seller:    f.seller.Address(),
		Arbiter:   f.arbiter.Address(),
		ProductID: productID,
		Amount:    25 * escrow.MistPerSui,
	})
	require.NoError(t, err)

	tx, err := exec.Build(ctx, call, f.buyer.Address())
	require.NoError(t, err)

	require.Len(t, tx.Kind.Commands, 2)
	split := tx.Kind.Commands[0]
	assert.Equal(t, chain.CommandSplitCoins, split.Kind)
	assert.Equal(t, chain.GasCoin(), split.Coin)
	require.Len(t, split.Amounts, 1)

	move := tx.Kind.Commands[1].MoveCall
	require.NotNil(t, move)
	assert.Equal(t, "create_escrow", move.Function)
	require.Len(t, move.Arguments, 7)
	assert.Equal(t, chain.NestedResult(0, 0), move.Arguments[3])

	cfgInput := tx.Kind.Inputs[move.Arguments[5].Index].Object
	require.NotNil(t, cfgInput)
	assert.Equal(t, chain.SharedObject, cfgInput.Kind)
	assert.False(t, cfgInput.Mutable)

	// 25 SUI plus budget needs both coins, largest first.
	assert.Len(t, tx.Gas.Payment, 2)
	assert.Equal(t, uint64(10_000_000), tx.Gas.Budget)
	require.NotNil(t, tx.ExpireEpoch)
	assert.Equal(t, uint64(2), *tx.ExpireEpoch)

	res, err := exec.Execute(ctx, call, f.buyer)
	require.NoError(t, err)
	assert.Len(t, res.Created(escrow.StructEscrowContract), 1)
}

func TestZkLoginSignerIsAcceptedByChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key, err := cryptoutils.GenerateKeyPair(cryptoutils.SchemeEd25519)
	require.NoError(t, err)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &zklogin.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Subject:   "1234567890",
			Audience:  jwt.ClaimStrings{"client-id"},
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	address, err := cryptoutils.DeriveZkLoginAddress("8675309", "1234567890", "client-id")
	require.NoError(t, err)
	sess := &interfaces.AuthSession{
		Provider:     interfaces.ProviderGoogle,
		MaxEpoch:     3,
		JWT:          token,
		Salt:         "8675309",
		UserAddress:  address.String(),
		EphemeralKey: cryptoutils.ExportKeyPair(key),
		ZkProof:      json.RawMessage(`{"proofPoints":{"a":["1"],"b":[["2"]],"c":["3"]},"issBase64Details":{"value":"x","indexMod4":0},"headerBase64":"h"}`),
	}
	signer, err := zklogin.NewSigner(sess, func() time.Time { return testNow })
	require.NoError(t, err)
	f.backend.Fund(signer.Address(), escrow.MistPerSui)

	f.run(t, signer, mustCall(f.builder.CreateAccount(cryptoutils.HashEmail("zk@example.com"))))

	// Past maxEpoch the chain refuses the signature.
	f.backend.SetEpoch(4)
	f.backend.Fund(signer.Address(), escrow.MistPerSui)
	_, err = f.exec.Execute(ctx, mustCall(f.builder.CreateAccount(cryptoutils.HashEmail("zk2@example.com"))), signer)
	require.ErrorIs(t, err, interfaces.ErrRejected)
	assert.Contains(t, err.Error(), "expired")
}
