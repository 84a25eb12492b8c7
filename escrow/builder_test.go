package escrow

import (
	"strings"
	"testing"

	"github.com/ruteri/sui-escrow-gateway/bcs"
	"github.com/ruteri/sui-escrow-gateway/cryptoutils"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPackage = interfaces.MustParseAddress("0xabc")
	testConfig  = interfaces.MustParseAddress("0xc0f")
	testSeller  = interfaces.MustParseAddress("0x5e11e7")
	testArbiter = interfaces.MustParseAddress("0xa7b1")
	testProduct = interfaces.MustParseAddress("0x9d")
	testEscrow  = interfaces.MustParseAddress("0xe5c")
)

func newTestBuilder(t *testing.T) *Builder {
	b, err := NewBuilder(BuilderConfig{PackageID: testPackage, ConfigID: testConfig})
	require.NoError(t, err)
	return b
}

func TestNewBuilder_RequiresDeployment(t *testing.T) {
	_, err := NewBuilder(BuilderConfig{ConfigID: testConfig})
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)

	_, err = NewBuilder(BuilderConfig{PackageID: testPackage})
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)
}

func TestCreateAccount(t *testing.T) {
	b := newTestBuilder(t)

	hash := cryptoutils.HashEmail("buyer@example.com")
	call, err := b.CreateAccount(hash)
	require.NoError(t, err)

	assert.Equal(t, testPackage.String()+"::escrow::create_account", call.Target())
	require.Len(t, call.Args, 1)
	assert.Equal(t, PureArg, call.Args[0].Kind)

	d := bcs.NewDecoder(call.Args[0].Pure)
	assert.Len(t, d.ReadBytes(), 32)
	require.NoError(t, d.Err())

	_, err = b.CreateAccount("buyer@example.com")
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
}

func TestCreateEscrow(t *testing.T) {
	b := newTestBuilder(t)

	call, err := b.CreateEscrow(EscrowInput{
		Seller:    testSeller,
		Arbiter:   testArbiter,
		ProductID: testProduct,
		Amount:    1000,
		Terms:     "deliver within 14 days",
	})
	require.NoError(t, err)

	require.Len(t, call.Args, 7)
	assert.Equal(t, testSeller.Bytes(), call.Args[0].Pure)
	assert.Equal(t, testArbiter.Bytes(), call.Args[1].Pure)
	assert.Equal(t, testProduct.Bytes(), call.Args[2].Pure)
	assert.Equal(t, GasSplitArg, call.Args[3].Kind)
	assert.Equal(t, uint64(1000), call.Args[3].Amount)
	assert.Equal(t, bcs.EncodeString("deliver within 14 days"), call.Args[4].Pure)
	assert.Equal(t, testConfig, call.Args[5].Object)
	assert.Equal(t, ClockObjectID, call.Args[6].Object)
	assert.False(t, call.Args[6].Mutable)

	split, err := call.TotalSplit()
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), split)
	assert.Equal(t, uint64(1000), call.Meta.Amount)
	require.NotNil(t, call.Meta.Receiver)
	assert.Equal(t, testSeller, *call.Meta.Receiver)
}

func TestCreateEscrow_Validation(t *testing.T) {
	b := newTestBuilder(t)
	valid := EscrowInput{Seller: testSeller, Arbiter: testArbiter, ProductID: testProduct, Amount: 1}

	tests := []struct {
		name   string
		mutate func(in *EscrowInput)
	}{
		{"zero amount", func(in *EscrowInput) { in.Amount = 0 }},
		{"missing seller", func(in *EscrowInput) { in.Seller = interfaces.Address{} }},
		{"missing arbiter", func(in *EscrowInput) { in.Arbiter = interfaces.Address{} }},
		{"missing product", func(in *EscrowInput) { in.ProductID = interfaces.ObjectID{} }},
		{"oversized terms", func(in *EscrowInput) { in.Terms = strings.Repeat("x", maxPureArgBytes+1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := b.CreateEscrow(in)
			assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
		})
	}
}

func TestUpgradeSubscription(t *testing.T) {
	b := newTestBuilder(t)
	account := interfaces.MustParseAddress("0xacc")

	call, err := b.UpgradeSubscription(account, TierProfessional, 500*MistPerSui)
	require.NoError(t, err)
	require.Len(t, call.Args, 4)
	assert.True(t, call.Args[0].Mutable)
	assert.Equal(t, []byte{TierProfessional}, call.Args[2].Pure)

	_, err = b.UpgradeSubscription(account, TierProfessional, 499*MistPerSui)
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)

	_, err = b.UpgradeSubscription(account, 9, 1)
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
}

func TestCreateProduct(t *testing.T) {
	b := newTestBuilder(t)
	account := interfaces.MustParseAddress("0xacc")

	input := ProductInput{
		Name:           "Cocoa beans",
		Description:    "Fermented, sun dried",
		Category:       "Agriculture",
		MetadataIPFS:   "bafkreimeta",
		ImageIPFS:      "bafkreiimage",
		Quantity:       40,
		UnitPrice:      2_500_000_000,
		Currency:       "SUI",
		Manufacturer:   "Ondo Growers",
		OriginLocation: "Ondo, NG",
		BatchNumber:    "B-17",
	}
	call, err := b.CreateProduct(account, input)
	require.NoError(t, err)
	require.Len(t, call.Args, 13)
	assert.Equal(t, bcs.EncodeString("Cocoa beans"), call.Args[1].Pure)
	assert.Equal(t, bcs.EncodeU64(40), call.Args[6].Pure)
	assert.Equal(t, bcs.EncodeU64(2_500_000_000), call.Args[7].Pure)
	assert.Equal(t, "0x1::string::String", call.Args[9].Type)

	input.Currency = "DOGE"
	_, err = b.CreateProduct(account, input)
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)

	input.Currency = "SUI"
	input.Name = "  "
	_, err = b.CreateProduct(account, input)
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
}

func TestEscrowLifecycleCalls(t *testing.T) {
	b := newTestBuilder(t)

	accept, err := b.AcceptEscrow(testEscrow)
	require.NoError(t, err)
	assert.Equal(t, "accept_escrow", accept.Function)
	assert.Equal(t, []interfaces.ObjectID{testEscrow, ClockObjectID}, accept.ObjectIDs())

	track, err := b.UpdateTracking(testEscrow, "Lagos port", "in transit")
	require.NoError(t, err)
	assert.Len(t, track.Args, 4)

	_, err = b.UpdateTracking(testEscrow, "", "in transit")
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)

	complete, err := b.CompleteEscrow(testEscrow)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.ObjectID{testEscrow, testConfig, ClockObjectID}, complete.ObjectIDs())

	dispute, err := b.DisputeEscrow(testEscrow)
	require.NoError(t, err)
	require.NotNil(t, dispute.Meta.EscrowID)
	assert.Equal(t, testEscrow, *dispute.Meta.EscrowID)

	_, err = b.AcceptEscrow(interfaces.ObjectID{})
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)

	verify, err := b.VerifyProduct(testProduct)
	require.NoError(t, err)
	assert.Equal(t, "verify_product", verify.Function)
}

func TestFingerprint_Deterministic(t *testing.T) {
	b := newTestBuilder(t)
	in := EscrowInput{Seller: testSeller, Arbiter: testArbiter, ProductID: testProduct, Amount: 1000, Terms: "t"}

	c1, err := b.CreateEscrow(in)
	require.NoError(t, err)
	c2, err := b.CreateEscrow(in)
	require.NoError(t, err)
	assert.Equal(t, c1.Fingerprint(), c2.Fingerprint())

	in.Amount = 1001
	c3, err := b.CreateEscrow(in)
	require.NoError(t, err)
	assert.NotEqual(t, c1.Fingerprint(), c3.Fingerprint())
}
