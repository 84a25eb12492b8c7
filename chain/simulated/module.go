package simulated

import (
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/ruteri/sui-escrow-gateway/bcs"
	"github.com/ruteri/sui-escrow-gateway/escrow"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

const subscriptionPeriod = 30 * 24 * time.Hour

type moduleFunction struct {
	arity int
	run   func(c *callContext) error
}

var moduleFunctions = map[string]moduleFunction{
	"create_account":       {arity: 1, run: createAccount},
	"upgrade_subscription": {arity: 4, run: upgradeSubscription},
	"create_product":       {arity: 13, run: createProduct},
	"verify_product":       {arity: 2, run: verifyProduct},
	"create_escrow":        {arity: 7, run: createEscrow},
	"accept_escrow":        {arity: 2, run: acceptEscrow},
	"update_tracking":      {arity: 4, run: updateTracking},
	"complete_escrow":      {arity: 3, run: completeEscrow},
	"dispute_escrow":       {arity: 2, run: disputeEscrow},
	"cancel_escrow":        {arity: 2, run: cancelEscrow},
}

// callContext decodes the arguments of one Move call.
type callContext struct {
	ex       *execution
	function string
	args     []arg
}

func (c *callContext) sender() interfaces.Address { return c.ex.tx.Sender }

func (c *callContext) nowMs() escrow.U64 { return escrow.U64(c.ex.now.UnixMilli()) }

func (c *callContext) abort(code uint64) error { return c.ex.abort(c.function, code) }

func (c *callContext) structType(name string) string {
	return escrow.StructType(c.ex.b.cfg.PackageID, name)
}

func (c *callContext) decoder(i int) (*bcs.Decoder, error) {
	if c.args[i].pure == nil {
		return nil, c.ex.argError(i, "TypeMismatch")
	}
	return bcs.NewDecoder(c.args[i].pure), nil
}

func (c *callContext) done(i int, d *bcs.Decoder) error {
	if d.Err() != nil || d.Remaining() != 0 {
		return c.ex.argError(i, "InvalidBCSBytes")
	}
	return nil
}

func (c *callContext) u64(i int) (uint64, error) {
	d, err := c.decoder(i)
	if err != nil {
		return 0, err
	}
	v := d.ReadU64()
	return v, c.done(i, d)
}

func (c *callContext) u8(i int) (uint8, error) {
	d, err := c.decoder(i)
	if err != nil {
		return 0, err
	}
	v := d.ReadU8()
	return v, c.done(i, d)
}

func (c *callContext) bytes(i int) ([]byte, error) {
	d, err := c.decoder(i)
	if err != nil {
		return nil, err
	}
	v := d.ReadBytes()
	return v, c.done(i, d)
}

func (c *callContext) text(i int) (string, error) {
	b, err := c.bytes(i)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", c.abort(escrow.EInvalidInput)
	}
	return string(b), nil
}

func (c *callContext) address(i int) (interfaces.Address, error) {
	if c.args[i].pure == nil {
		return interfaces.Address{}, c.ex.argError(i, "TypeMismatch")
	}
	addr, err := interfaces.NewAddressFromBytes(c.args[i].pure)
	if err != nil {
		return interfaces.Address{}, c.ex.argError(i, "InvalidBCSBytes")
	}
	return addr, nil
}

func (c *callContext) coin(i int) (*tmpCoin, error) {
	if c.args[i].coin == nil {
		return nil, c.ex.argError(i, "TypeMismatch")
	}
	c.args[i].coin.used = true
	return c.args[i].coin, nil
}

// object resolves an object argument of the given type. Mutable access
// requires a mutable input and returns the transaction's working copy.
func (c *callContext) object(i int, typ string, mutable bool) (*object, error) {
	a := c.args[i]
	if a.obj == nil || a.obj.typ != typ {
		return nil, c.ex.argError(i, "TypeMismatch")
	}
	if !mutable {
		return a.obj, nil
	}
	if !a.mutable {
		return nil, c.ex.argError(i, "InvalidObjectByMutRef")
	}
	return c.ex.mut(a.obj.ref.ObjectID), nil
}

func (c *callContext) clock(i int) error {
	_, err := c.object(i, clockType, false)
	return err
}

func (c *callContext) account(i int) (*escrow.UserAccountFields, error) {
	obj, err := c.object(i, c.structType(escrow.StructUserAccount), true)
	if err != nil {
		return nil, err
	}
	return obj.value.(*escrow.UserAccountFields), nil
}

func (c *callContext) escrowContract(i int) (*escrow.EscrowFields, error) {
	obj, err := c.object(i, c.structType(escrow.StructEscrowContract), true)
	if err != nil {
		return nil, err
	}
	return obj.value.(*escrow.EscrowFields), nil
}

func (c *callContext) shared(typ string, value func(id interfaces.ObjectID) interface{}) interfaces.ObjectID {
	owner := interfaces.ObjectOwner{Shared: &interfaces.Shared{InitialSharedVersion: c.ex.b.version}}
	return c.ex.create(typ, owner, value)
}

func u64s(v uint64) string { return strconv.FormatUint(v, 10) }

func createAccount(c *callContext) error {
	hash, err := c.bytes(0)
	if err != nil {
		return err
	}
	if len(hash) != 32 {
		return c.abort(escrow.EInvalidInput)
	}
	if len(c.ex.st.ownedBy(c.sender(), c.structType(escrow.StructUserAccount))) > 0 {
		return c.abort(escrow.EAccountExists)
	}

	sender := c.sender()
	id := c.ex.create(c.structType(escrow.StructUserAccount), interfaces.ObjectOwner{AddressOwner: &sender}, func(id interfaces.ObjectID) interface{} {
		return &escrow.UserAccountFields{
			ID:               escrow.UID{ID: id},
			Owner:            sender,
			EmailHash:        hash,
			SubscriptionTier: escrow.TierStarter,
			CreatedAt:        c.nowMs(),
		}
	})
	c.ex.emit(escrow.EventAccountCreated, map[string]interface{}{
		"account_id": id.String(),
		"owner":      sender.String(),
	})
	return nil
}

func upgradeSubscription(c *callContext) error {
	acc, err := c.account(0)
	if err != nil {
		return err
	}
	payment, err := c.coin(1)
	if err != nil {
		return err
	}
	tierID, err := c.u8(2)
	if err != nil {
		return err
	}
	if err := c.clock(3); err != nil {
		return err
	}

	if acc.Owner != c.sender() {
		return c.abort(escrow.ENotAuthorized)
	}
	tier, err := escrow.LookupTier(c.ex.b.cfg.Tiers, tierID)
	if err != nil {
		return c.abort(escrow.EInvalidTier)
	}
	if payment.amount == 0 {
		return c.abort(escrow.EZeroAmount)
	}
	if payment.amount < tier.Price {
		return c.abort(escrow.EInsufficientPayment)
	}

	c.ex.mintCoin(c.ex.b.cfg.Admin, payment.amount)
	acc.SubscriptionTier = tier.ID
	acc.SubscriptionExpires = escrow.U64(c.ex.now.Add(subscriptionPeriod).UnixMilli())
	acc.ProductsCreated = 0

	c.ex.emit(escrow.EventSubscriptionUpgraded, map[string]interface{}{
		"account_id": acc.ID.ID.String(),
		"owner":      acc.Owner.String(),
		"tier":       tier.ID,
		"amount":     u64s(payment.amount),
		"expires_at": u64s(uint64(acc.SubscriptionExpires)),
	})
	return nil
}

// effectiveTier falls back to Starter once a paid subscription lapses.
func (c *callContext) effectiveTier(acc *escrow.UserAccountFields) escrow.SubscriptionTier {
	id := acc.SubscriptionTier
	if id != escrow.TierStarter && uint64(acc.SubscriptionExpires) <= uint64(c.nowMs()) {
		id = escrow.TierStarter
	}
	tier, err := escrow.LookupTier(c.ex.b.cfg.Tiers, id)
	if err != nil {
		return escrow.SubscriptionTier{}
	}
	return tier
}

func createProduct(c *callContext) error {
	acc, err := c.account(0)
	if err != nil {
		return err
	}
	var texts [9]string
	textArgs := []int{1, 2, 3, 4, 5, 8, 9, 10, 11}
	for n, i := range textArgs {
		if texts[n], err = c.text(i); err != nil {
			return err
		}
	}
	quantity, err := c.u64(6)
	if err != nil {
		return err
	}
	unitPrice, err := c.u64(7)
	if err != nil {
		return err
	}
	if err := c.clock(12); err != nil {
		return err
	}

	if acc.Owner != c.sender() {
		return c.abort(escrow.ENotAuthorized)
	}
	if uint64(acc.ProductsCreated) >= c.effectiveTier(acc).ProductsPerMonth {
		return c.abort(escrow.ETierLimitReached)
	}
	if texts[0] == "" || texts[2] == "" {
		return c.abort(escrow.EInvalidInput)
	}
	if quantity == 0 {
		return c.abort(escrow.EZeroAmount)
	}

	acc.ProductsCreated++
	creator, accountID := c.sender(), acc.ID.ID
	id := c.shared(c.structType(escrow.StructProduct), func(id interfaces.ObjectID) interface{} {
		return &escrow.ProductFields{
			ID:             escrow.UID{ID: id},
			Creator:        creator,
			AccountID:      accountID,
			Name:           texts[0],
			Description:    texts[1],
			Category:       texts[2],
			MetadataIPFS:   texts[3],
			ImageIPFS:      texts[4],
			Quantity:       escrow.U64(quantity),
			UnitPrice:      escrow.U64(unitPrice),
			Currency:       texts[5],
			Manufacturer:   texts[6],
			OriginLocation: texts[7],
			BatchNumber:    texts[8],
			CreatedAt:      c.nowMs(),
		}
	})
	c.ex.emit(escrow.EventProductCreated, map[string]interface{}{
		"product_id": id.String(),
		"creator":    creator.String(),
		"name":       texts[0],
		"category":   texts[2],
	})
	return nil
}

func verifyProduct(c *callContext) error {
	obj, err := c.object(0, c.structType(escrow.StructProduct), true)
	if err != nil {
		return err
	}
	if err := c.clock(1); err != nil {
		return err
	}
	p := obj.value.(*escrow.ProductFields)
	if p.Creator == c.sender() {
		return c.abort(escrow.ENotAuthorized)
	}
	p.VerificationCount++
	p.IsVerified = true

	c.ex.emit(escrow.EventProductVerified, map[string]interface{}{
		"product_id":         p.ID.ID.String(),
		"verifier":           c.sender().String(),
		"verification_count": u64s(uint64(p.VerificationCount)),
	})
	return nil
}

func createEscrow(c *callContext) error {
	seller, err := c.address(0)
	if err != nil {
		return err
	}
	arbiter, err := c.address(1)
	if err != nil {
		return err
	}
	productID, err := c.address(2)
	if err != nil {
		return err
	}
	payment, err := c.coin(3)
	if err != nil {
		return err
	}
	terms, err := c.text(4)
	if err != nil {
		return err
	}
	if _, err := c.object(5, c.structType(escrow.StructPlatformConfig), false); err != nil {
		return err
	}
	if err := c.clock(6); err != nil {
		return err
	}

	if payment.amount == 0 {
		return c.abort(escrow.EZeroAmount)
	}
	if seller == c.sender() {
		return c.abort(escrow.EInvalidInput)
	}
	product, ok := c.ex.st.objects[productID]
	if !ok || product.typ != c.structType(escrow.StructProduct) {
		return c.abort(escrow.EProductNotFound)
	}

	buyer := c.sender()
	id := c.shared(c.structType(escrow.StructEscrowContract), func(id interfaces.ObjectID) interface{} {
		return &escrow.EscrowFields{
			ID:              escrow.UID{ID: id},
			Buyer:           buyer,
			Seller:          seller,
			Arbiter:         arbiter,
			ProductID:       productID,
			Amount:          escrow.U64(payment.amount),
			Status:          uint8(escrow.StatePending),
			CreatedAt:       c.nowMs(),
			Terms:           terms,
			TrackingUpdates: []escrow.MoveStruct[escrow.TrackingUpdateFields]{},
		}
	})
	c.ex.emit(escrow.EventEscrowCreated, map[string]interface{}{
		"escrow_id":  id.String(),
		"buyer":      buyer.String(),
		"seller":     seller.String(),
		"product_id": productID.String(),
		"amount":     u64s(payment.amount),
	})
	return nil
}

// transition moves e to next or aborts with EInvalidState.
func (c *callContext) transition(e *escrow.EscrowFields, next escrow.State) error {
	if !escrow.State(e.Status).CanTransition(next) {
		return c.abort(escrow.EInvalidState)
	}
	e.Status = uint8(next)
	return nil
}

func isParty(addr interfaces.Address, parties ...interfaces.Address) bool {
	for _, p := range parties {
		if addr == p {
			return true
		}
	}
	return false
}

func acceptEscrow(c *callContext) error {
	e, err := c.escrowContract(0)
	if err != nil {
		return err
	}
	if err := c.clock(1); err != nil {
		return err
	}
	if c.sender() != e.Seller {
		return c.abort(escrow.ENotAuthorized)
	}
	if err := c.transition(e, escrow.StateAccepted); err != nil {
		return err
	}
	now := c.nowMs()
	e.AcceptedAt = &now

	c.ex.emit(escrow.EventEscrowAccepted, map[string]interface{}{
		"escrow_id": e.ID.ID.String(),
		"seller":    e.Seller.String(),
	})
	return nil
}

func updateTracking(c *callContext) error {
	e, err := c.escrowContract(0)
	if err != nil {
		return err
	}
	location, err := c.text(1)
	if err != nil {
		return err
	}
	status, err := c.text(2)
	if err != nil {
		return err
	}
	if err := c.clock(3); err != nil {
		return err
	}
	if !isParty(c.sender(), e.Seller, e.Arbiter) {
		return c.abort(escrow.ENotAuthorized)
	}
	if location == "" || status == "" {
		return c.abort(escrow.EInvalidInput)
	}
	if err := c.transition(e, escrow.StateAfterTracking(status)); err != nil {
		return err
	}
	e.TrackingUpdates = append(e.TrackingUpdates, escrow.MoveStruct[escrow.TrackingUpdateFields]{
		Type: c.structType(escrow.StructTrackingUpdate),
		Fields: escrow.TrackingUpdateFields{
			Timestamp: c.nowMs(),
			Location:  location,
			Status:    status,
			UpdatedBy: c.sender(),
		},
	})

	c.ex.emit(escrow.EventTrackingUpdated, map[string]interface{}{
		"escrow_id":  e.ID.ID.String(),
		"location":   location,
		"status":     status,
		"updated_by": c.sender().String(),
	})
	return nil
}

func completeEscrow(c *callContext) error {
	e, err := c.escrowContract(0)
	if err != nil {
		return err
	}
	cfgObj, err := c.object(1, c.structType(escrow.StructPlatformConfig), false)
	if err != nil {
		return err
	}
	if err := c.clock(2); err != nil {
		return err
	}
	if !isParty(c.sender(), e.Buyer, e.Arbiter) {
		return c.abort(escrow.ENotAuthorized)
	}
	if err := c.transition(e, escrow.StateCompleted); err != nil {
		return err
	}

	cfg := cfgObj.value.(*escrow.PlatformConfigFields)
	amount := uint64(e.Amount)
	fee := amount * uint64(cfg.FeeBps) / 10_000
	c.ex.mintCoin(e.Seller, amount-fee)
	if fee > 0 {
		c.ex.mintCoin(cfg.Admin, fee)
	}
	now := c.nowMs()
	e.CompletedAt = &now

	c.ex.emit(escrow.EventEscrowCompleted, map[string]interface{}{
		"escrow_id": e.ID.ID.String(),
		"seller":    e.Seller.String(),
		"amount":    u64s(amount - fee),
		"fee":       u64s(fee),
	})
	return nil
}

func disputeEscrow(c *callContext) error {
	e, err := c.escrowContract(0)
	if err != nil {
		return err
	}
	if err := c.clock(1); err != nil {
		return err
	}
	if !isParty(c.sender(), e.Buyer, e.Seller, e.Arbiter) {
		return c.abort(escrow.ENotAuthorized)
	}
	if err := c.transition(e, escrow.StateDisputed); err != nil {
		return err
	}

	c.ex.emit(escrow.EventEscrowDisputed, map[string]interface{}{
		"escrow_id":   e.ID.ID.String(),
		"disputed_by": c.sender().String(),
	})
	return nil
}

func cancelEscrow(c *callContext) error {
	e, err := c.escrowContract(0)
	if err != nil {
		return err
	}
	if err := c.clock(1); err != nil {
		return err
	}
	if !isParty(c.sender(), e.Buyer, e.Seller) {
		return c.abort(escrow.ENotAuthorized)
	}
	if err := c.transition(e, escrow.StateCancelled); err != nil {
		return err
	}
	c.ex.mintCoin(e.Buyer, uint64(e.Amount))

	c.ex.emit(escrow.EventEscrowCancelled, map[string]interface{}{
		"escrow_id":    e.ID.ID.String(),
		"cancelled_by": c.sender().String(),
		"refund":       u64s(uint64(e.Amount)),
	})
	return nil
}
