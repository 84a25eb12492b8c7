package escrow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// U64 is a u64 rendered by the node as a decimal string.
type U64 uint64

func (v U64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(v), 10))), nil
}

func (v *U64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %s: %w", b, err)
	}
	*v = U64(n)
	return nil
}

// UID is the rendered form of an object's id field.
type UID struct {
	ID interfaces.ObjectID `json:"id"`
}

// MoveStruct is the rendered form of a nested struct value.
type MoveStruct[T any] struct {
	Type   string `json:"type"`
	Fields T      `json:"fields"`
}

// UserAccountFields is the content of a UserAccount object.
type UserAccountFields struct {
	ID                  UID                `json:"id"`
	Owner               interfaces.Address `json:"owner"`
	EmailHash           []byte             `json:"email_hash"`
	SubscriptionTier    uint8              `json:"subscription_tier"`
	SubscriptionExpires U64                `json:"subscription_expires"`
	MonthlyVolume       U64                `json:"monthly_volume"`
	ProductsCreated     U64                `json:"products_created"`
	IsVerified          bool               `json:"is_verified"`
	CreatedAt           U64                `json:"created_at"`
}

// MarshalJSON renders email_hash as a vector of numbers.
func (f UserAccountFields) MarshalJSON() ([]byte, error) {
	type alias UserAccountFields
	hash := make([]int, len(f.EmailHash))
	for i, b := range f.EmailHash {
		hash[i] = int(b)
	}
	return json.Marshal(struct {
		alias
		EmailHash []int `json:"email_hash"`
	}{alias(f), hash})
}

func (f *UserAccountFields) UnmarshalJSON(b []byte) error {
	type alias UserAccountFields
	var raw struct {
		alias
		EmailHash []int `json:"email_hash"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*f = UserAccountFields(raw.alias)
	f.EmailHash = make([]byte, len(raw.EmailHash))
	for i, v := range raw.EmailHash {
		f.EmailHash[i] = byte(v)
	}
	return nil
}

// ProductFields is the content of a Product object.
type ProductFields struct {
	ID                UID                 `json:"id"`
	Creator           interfaces.Address  `json:"creator"`
	AccountID         interfaces.ObjectID `json:"account_id"`
	Name              string              `json:"name"`
	Description       string              `json:"description"`
	Category          string              `json:"category"`
	MetadataIPFS      string              `json:"metadata_ipfs"`
	ImageIPFS         string              `json:"image_ipfs"`
	Quantity          U64                 `json:"quantity"`
	UnitPrice         U64                 `json:"unit_price"`
	Currency          string              `json:"currency"`
	Manufacturer      string              `json:"manufacturer"`
	OriginLocation    string              `json:"origin_location"`
	BatchNumber       string              `json:"batch_number"`
	IsVerified        bool                `json:"is_verified"`
	VerificationCount U64                 `json:"verification_count"`
	CreatedAt         U64                 `json:"created_at"`
}

// TrackingUpdateFields is the content of a TrackingUpdate value.
type TrackingUpdateFields struct {
	Timestamp U64                `json:"timestamp"`
	Location  string             `json:"location"`
	Status    string             `json:"status"`
	UpdatedBy interfaces.Address `json:"updated_by"`
}

// EscrowFields is the content of an EscrowContract object. Option values are null when unset.
type EscrowFields struct {
	ID              UID                                `json:"id"`
	Buyer           interfaces.Address                 `json:"buyer"`
	Seller          interfaces.Address                 `json:"seller"`
	Arbiter         interfaces.Address                 `json:"arbiter"`
	ProductID       interfaces.ObjectID                `json:"product_id"`
	Amount          U64                                `json:"amount"`
	Status          uint8                              `json:"status"`
	CreatedAt       U64                                `json:"created_at"`
	AcceptedAt      *U64                               `json:"accepted_at"`
	CompletedAt     *U64                               `json:"completed_at"`
	Terms           string                             `json:"terms"`
	TrackingUpdates []MoveStruct[TrackingUpdateFields] `json:"tracking_updates"`
}

// PlatformConfigFields is the content of the shared PlatformConfig object.
type PlatformConfigFields struct {
	ID           UID                `json:"id"`
	Admin        interfaces.Address `json:"admin"`
	FeeBps       U64                `json:"fee_bps"`
	Treasury     U64                `json:"treasury"`
	TotalEscrows U64                `json:"total_escrows"`
}

func msTime(ms U64) time.Time {
	return time.UnixMilli(int64(ms)).UTC()
}

func optTime(ms *U64) *time.Time {
	if ms == nil {
		return nil
	}
	t := msTime(*ms)
	return &t
}

func (f *UserAccountFields) User() User {
	u := User{
		ID:               f.ID.ID,
		Address:          f.Owner,
		SubscriptionTier: f.SubscriptionTier,
		MonthlyVolume:    uint64(f.MonthlyVolume),
		ProductsCreated:  uint64(f.ProductsCreated),
		IsVerified:       f.IsVerified,
		CreatedAt:        msTime(f.CreatedAt),
	}
	if len(f.EmailHash) > 0 {
		u.EmailHash = fmt.Sprintf("%x", f.EmailHash)
	}
	if f.SubscriptionExpires != 0 {
		exp := msTime(f.SubscriptionExpires)
		u.SubscriptionExpires = &exp
	}
	return u
}

func (f *ProductFields) Product() Product {
	return Product{
		ID:                f.ID.ID,
		Creator:           f.Creator,
		AccountID:         f.AccountID,
		Name:              f.Name,
		Description:       f.Description,
		Category:          f.Category,
		MetadataIPFS:      f.MetadataIPFS,
		ImageIPFS:         f.ImageIPFS,
		Quantity:          uint64(f.Quantity),
		UnitPrice:         uint64(f.UnitPrice),
		Currency:          f.Currency,
		Manufacturer:      f.Manufacturer,
		OriginLocation:    f.OriginLocation,
		BatchNumber:       f.BatchNumber,
		IsVerified:        f.IsVerified,
		VerificationCount: uint64(f.VerificationCount),
		CreatedAt:         msTime(f.CreatedAt),
	}
}

func (f *EscrowFields) Escrow() (EscrowContract, error) {
	state := State(f.Status)
	if !state.Valid() {
		return EscrowContract{}, fmt.Errorf("escrow %s has unknown status %d", f.ID.ID, f.Status)
	}
	e := EscrowContract{
		ID:              f.ID.ID,
		Buyer:           f.Buyer,
		Seller:          f.Seller,
		Arbiter:         f.Arbiter,
		ProductID:       f.ProductID,
		Amount:          uint64(f.Amount),
		State:           state,
		CreatedAt:       msTime(f.CreatedAt),
		AcceptedAt:      optTime(f.AcceptedAt),
		CompletedAt:     optTime(f.CompletedAt),
		Terms:           f.Terms,
		TrackingUpdates: make([]TrackingUpdate, 0, len(f.TrackingUpdates)),
	}
	for _, u := range f.TrackingUpdates {
		e.TrackingUpdates = append(e.TrackingUpdates, TrackingUpdate{
			Timestamp: msTime(u.Fields.Timestamp),
			Location:  u.Fields.Location,
			Status:    u.Fields.Status,
			UpdatedBy: u.Fields.UpdatedBy,
		})
	}
	return e, nil
}

// DecodeUser maps a UserAccount object to a User.
func DecodeUser(obj *interfaces.ObjectData) (User, error) {
	var f UserAccountFields
	if err := decodeFields(obj, StructUserAccount, &f); err != nil {
		return User{}, err
	}
	return f.User(), nil
}

// DecodeProduct maps a Product object to a Product.
func DecodeProduct(obj *interfaces.ObjectData) (Product, error) {
	var f ProductFields
	if err := decodeFields(obj, StructProduct, &f); err != nil {
		return Product{}, err
	}
	return f.Product(), nil
}

// DecodeEscrow maps an EscrowContract object to an EscrowContract.
func DecodeEscrow(obj *interfaces.ObjectData) (EscrowContract, error) {
	var f EscrowFields
	if err := decodeFields(obj, StructEscrowContract, &f); err != nil {
		return EscrowContract{}, err
	}
	return f.Escrow()
}

func decodeFields(obj *interfaces.ObjectData, structName string, out interface{}) error {
	if obj == nil {
		return fmt.Errorf("%w: nil object", interfaces.ErrObjectNotFound)
	}
	if !strings.HasSuffix(obj.Type, "::"+ModuleName+"::"+structName) {
		return fmt.Errorf("object %s is a %q, not a %s", obj.Ref.ObjectID, obj.Type, structName)
	}
	if len(obj.Fields) == 0 {
		return fmt.Errorf("object %s has no content", obj.Ref.ObjectID)
	}
	if err := json.Unmarshal(obj.Fields, out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", structName, obj.Ref.ObjectID, err)
	}
	return nil
}
