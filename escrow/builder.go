package escrow

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ruteri/sui-escrow-gateway/bcs"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// ClockObjectID is the shared system clock.
var ClockObjectID = interfaces.MustParseAddress("0x6")

// maxPureArgBytes bounds a single pure argument.
const maxPureArgBytes = 16 * 1024

// BuilderConfig locates the deployed escrow package.
type BuilderConfig struct {
	PackageID interfaces.ObjectID
	// ConfigID is the shared platform configuration object.
	ConfigID interfaces.ObjectID
	// ClockID defaults to ClockObjectID.
	ClockID interfaces.ObjectID
	// Tiers defaults to DefaultTiers.
	Tiers []SubscriptionTier
}

// Builder constructs escrow module calls.
type Builder struct {
	cfg BuilderConfig
}

// NewBuilder validates the deployment configuration.
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.PackageID.IsZero() {
		return nil, fmt.Errorf("%w: escrow package id is not set", interfaces.ErrConfiguration)
	}
	if cfg.ConfigID.IsZero() {
		return nil, fmt.Errorf("%w: platform config object id is not set", interfaces.ErrConfiguration)
	}
	if cfg.ClockID.IsZero() {
		cfg.ClockID = ClockObjectID
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = DefaultTiers
	}
	return &Builder{cfg: cfg}, nil
}

// PackageID returns the escrow package the builder targets.
func (b *Builder) PackageID() interfaces.ObjectID {
	return b.cfg.PackageID
}

// Tiers returns the configured subscription tiers.
func (b *Builder) Tiers() []SubscriptionTier {
	return b.cfg.Tiers
}

func (b *Builder) call(function string, args ...Arg) *Call {
	return &Call{
		Package:  b.cfg.PackageID,
		Module:   ModuleName,
		Function: function,
		Args:     args,
		Meta:     CallMeta{Currency: "SUI"},
	}
}

func (b *Builder) clock() Arg {
	return Object("&0x2::clock::Clock", b.cfg.ClockID, false)
}

func (b *Builder) platformConfig() Arg {
	return Object("&"+StructPlatformConfig, b.cfg.ConfigID, false)
}

// CreateAccount registers a user account keyed by the hex SHA-256 of the email.
func (b *Builder) CreateAccount(emailHash string) (*Call, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(emailHash, "0x"))
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("%w: email hash must be 32 hex-encoded bytes", interfaces.ErrInvalidArgument)
	}
	return b.call("create_account", Pure("vector<u8>", bcs.EncodeBytes(raw))), nil
}

// UpgradeSubscription pays for a tier. Payment is split from gas.
func (b *Builder) UpgradeSubscription(accountID interfaces.ObjectID, tier uint8, payment uint64) (*Call, error) {
	if err := requireObject("account id", accountID); err != nil {
		return nil, err
	}
	t, err := LookupTier(b.cfg.Tiers, tier)
	if err != nil {
		return nil, err
	}
	if payment < t.Price {
		return nil, fmt.Errorf("%w: payment %d below %s price %d", interfaces.ErrInvalidArgument, payment, t.Name, t.Price)
	}
	if payment == 0 {
		return nil, fmt.Errorf("%w: payment must be positive", interfaces.ErrInvalidArgument)
	}

	c := b.call("upgrade_subscription",
		Object("&mut "+StructUserAccount, accountID, true),
		SplitFromGas(payment),
		Pure("u8", bcs.EncodeU8(tier)),
		b.clock(),
	)
	c.Meta.Amount = payment
	return c, nil
}

// CreateProduct registers a product under the caller's account.
func (b *Builder) CreateProduct(accountID interfaces.ObjectID, p ProductInput) (*Call, error) {
	if err := requireObject("account id", accountID); err != nil {
		return nil, err
	}
	if err := requireText("name", p.Name); err != nil {
		return nil, err
	}
	if err := requireText("category", p.Category); err != nil {
		return nil, err
	}
	if p.Quantity == 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", interfaces.ErrInvalidArgument)
	}
	if _, ok := LookupCurrency(p.Currency); !ok {
		return nil, fmt.Errorf("%w: unsupported currency %q", interfaces.ErrInvalidArgument, p.Currency)
	}
	for name, v := range map[string]string{
		"description":     p.Description,
		"metadata ipfs":   p.MetadataIPFS,
		"image ipfs":      p.ImageIPFS,
		"manufacturer":    p.Manufacturer,
		"origin location": p.OriginLocation,
		"batch number":    p.BatchNumber,
	} {
		if err := checkText(name, v); err != nil {
			return nil, err
		}
	}

	return b.call("create_product",
		Object("&mut "+StructUserAccount, accountID, true),
		text(p.Name),
		text(p.Description),
		text(p.Category),
		text(p.MetadataIPFS),
		text(p.ImageIPFS),
		Pure("u64", bcs.EncodeU64(p.Quantity)),
		Pure("u64", bcs.EncodeU64(p.UnitPrice)),
		text(p.Currency),
		Pure("0x1::string::String", bcs.EncodeString(p.Manufacturer)),
		text(p.OriginLocation),
		text(p.BatchNumber),
		b.clock(),
	), nil
}

// CreateEscrow locks Amount MIST split from gas in a new escrow.
func (b *Builder) CreateEscrow(in EscrowInput) (*Call, error) {
	if err := requireObject("seller", in.Seller); err != nil {
		return nil, err
	}
	if err := requireObject("arbiter", in.Arbiter); err != nil {
		return nil, err
	}
	if err := requireObject("product id", in.ProductID); err != nil {
		return nil, err
	}
	if in.Amount == 0 {
		return nil, fmt.Errorf("%w: escrow amount must be positive", interfaces.ErrInvalidArgument)
	}
	if err := checkText("terms", in.Terms); err != nil {
		return nil, err
	}

	c := b.call("create_escrow",
		Pure("address", in.Seller.Bytes()),
		Pure("address", in.Arbiter.Bytes()),
		Pure("0x2::object::ID", in.ProductID.Bytes()),
		SplitFromGas(in.Amount),
		text(in.Terms),
		b.platformConfig(),
		b.clock(),
	)
	seller, product := in.Seller, in.ProductID
	c.Meta.Receiver = &seller
	c.Meta.ProductID = &product
	c.Meta.Amount = in.Amount
	return c, nil
}

// AcceptEscrow is called by the seller on a Pending escrow.
func (b *Builder) AcceptEscrow(escrowID interfaces.ObjectID) (*Call, error) {
	return b.escrowCall("accept_escrow", escrowID)
}

// UpdateTracking appends a tracking update. A "delivered" status marks delivery.
func (b *Builder) UpdateTracking(escrowID interfaces.ObjectID, location, status string) (*Call, error) {
	if err := requireObject("escrow id", escrowID); err != nil {
		return nil, err
	}
	if err := requireText("location", location); err != nil {
		return nil, err
	}
	if err := requireText("status", status); err != nil {
		return nil, err
	}

	c := b.call("update_tracking",
		b.escrowArg(escrowID),
		text(location),
		text(status),
		b.clock(),
	)
	c.Meta.EscrowID = &escrowID
	return c, nil
}

// CompleteEscrow releases funds to the seller.
func (b *Builder) CompleteEscrow(escrowID interfaces.ObjectID) (*Call, error) {
	if err := requireObject("escrow id", escrowID); err != nil {
		return nil, err
	}
	c := b.call("complete_escrow", b.escrowArg(escrowID), b.platformConfig(), b.clock())
	c.Meta.EscrowID = &escrowID
	return c, nil
}

// DisputeEscrow halts fund release.
func (b *Builder) DisputeEscrow(escrowID interfaces.ObjectID) (*Call, error) {
	return b.escrowCall("dispute_escrow", escrowID)
}

// CancelEscrow refunds the buyer of a Pending or Accepted escrow.
func (b *Builder) CancelEscrow(escrowID interfaces.ObjectID) (*Call, error) {
	return b.escrowCall("cancel_escrow", escrowID)
}

// VerifyProduct records one verification of a product.
func (b *Builder) VerifyProduct(productID interfaces.ObjectID) (*Call, error) {
	if err := requireObject("product id", productID); err != nil {
		return nil, err
	}
	c := b.call("verify_product", Object("&mut "+StructProduct, productID, true), b.clock())
	c.Meta.ProductID = &productID
	return c, nil
}

func (b *Builder) escrowArg(id interfaces.ObjectID) Arg {
	return Object("&mut "+StructEscrowContract, id, true)
}

func (b *Builder) escrowCall(function string, escrowID interfaces.ObjectID) (*Call, error) {
	if err := requireObject("escrow id", escrowID); err != nil {
		return nil, err
	}
	c := b.call(function, b.escrowArg(escrowID), b.clock())
	c.Meta.EscrowID = &escrowID
	return c, nil
}

func text(s string) Arg {
	return Pure("vector<u8>", bcs.EncodeString(s))
}

func requireObject(name string, id interfaces.ObjectID) error {
	if id.IsZero() {
		return fmt.Errorf("%w: %s is required", interfaces.ErrInvalidArgument, name)
	}
	return nil
}

func requireText(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s is required", interfaces.ErrInvalidArgument, name)
	}
	return checkText(name, v)
}

func checkText(name, v string) error {
	if !utf8.ValidString(v) {
		return fmt.Errorf("%w: %s is not valid UTF-8", interfaces.ErrInvalidArgument, name)
	}
	if len(v) > maxPureArgBytes {
		return fmt.Errorf("%w: %s exceeds %d bytes", interfaces.ErrInvalidArgument, name, maxPureArgBytes)
	}
	return nil
}
