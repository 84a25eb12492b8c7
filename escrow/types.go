package escrow

import (
	"time"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// EscrowContract is the client view of an on-chain escrow object.
type EscrowContract struct {
	ID              interfaces.ObjectID `json:"id"`
	Buyer           interfaces.Address  `json:"buyer"`
	Seller          interfaces.Address  `json:"seller"`
	Arbiter         interfaces.Address  `json:"arbiter"`
	ProductID       interfaces.ObjectID `json:"productId"`
	Amount          uint64              `json:"amount"`
	State           State               `json:"state"`
	CreatedAt       time.Time           `json:"createdAt"`
	AcceptedAt      *time.Time          `json:"acceptedAt,omitempty"`
	CompletedAt     *time.Time          `json:"completedAt,omitempty"`
	Terms           string              `json:"terms"`
	TrackingUpdates []TrackingUpdate    `json:"trackingUpdates"`
}

// TrackingUpdate is an append-only shipment checkpoint.
type TrackingUpdate struct {
	Timestamp time.Time          `json:"timestamp"`
	Location  string             `json:"location"`
	Status    string             `json:"status"`
	UpdatedBy interfaces.Address `json:"updatedBy"`
}

// Product is a registered physical good.
type Product struct {
	ID                interfaces.ObjectID `json:"id"`
	Creator           interfaces.Address  `json:"creator"`
	AccountID         interfaces.ObjectID `json:"accountId"`
	Name              string              `json:"name"`
	Description       string              `json:"description"`
	Category          string              `json:"category"`
	MetadataIPFS      string              `json:"metadataIpfs"`
	ImageIPFS         string              `json:"imageIpfs"`
	Quantity          uint64              `json:"quantity"`
	UnitPrice         uint64              `json:"unitPrice"`
	Currency          string              `json:"currency"`
	Manufacturer      string              `json:"manufacturer"`
	OriginLocation    string              `json:"originLocation"`
	BatchNumber       string              `json:"batchNumber"`
	IsVerified        bool                `json:"isVerified"`
	VerificationCount uint64              `json:"verificationCount"`
	CreatedAt         time.Time           `json:"createdAt"`
}

// User is an on-chain user account.
type User struct {
	ID                  interfaces.ObjectID `json:"id"`
	Address             interfaces.Address  `json:"address"`
	EmailHash           string              `json:"emailHash,omitempty"`
	SubscriptionTier    uint8               `json:"subscriptionTier"`
	SubscriptionExpires *time.Time          `json:"subscriptionExpires,omitempty"`
	MonthlyVolume       uint64              `json:"monthlyVolume"`
	ProductsCreated     uint64              `json:"productsCreated"`
	IsVerified          bool                `json:"isVerified"`
	CreatedAt           time.Time           `json:"createdAt"`
}

// ProductInput are the descriptive fields of a new product.
type ProductInput struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	MetadataIPFS   string `json:"metadataIpfs"`
	ImageIPFS      string `json:"imageIpfs"`
	Quantity       uint64 `json:"quantity"`
	UnitPrice      uint64 `json:"unitPrice"`
	Currency       string `json:"currency"`
	Manufacturer   string `json:"manufacturer"`
	OriginLocation string `json:"originLocation"`
	BatchNumber    string `json:"batchNumber"`
}

// EscrowInput are the parameters of a new escrow. Amount is in MIST.
type EscrowInput struct {
	Seller    interfaces.Address  `json:"seller"`
	Arbiter   interfaces.Address  `json:"arbiter"`
	ProductID interfaces.ObjectID `json:"productId"`
	Amount    uint64              `json:"amount"`
	Terms     string              `json:"terms"`
}

// Move struct and event names of the escrow module.
const (
	ModuleName = "escrow"

	StructUserAccount    = "UserAccount"
	StructProduct        = "Product"
	StructEscrowContract = "EscrowContract"
	StructTrackingUpdate = "TrackingUpdate"
	StructPlatformConfig = "PlatformConfig"

	EventAccountCreated       = "AccountCreated"
	EventSubscriptionUpgraded = "SubscriptionUpgraded"
	EventProductCreated       = "ProductCreated"
	EventProductVerified      = "ProductVerified"
	EventEscrowCreated        = "EscrowCreated"
	EventEscrowAccepted       = "EscrowAccepted"
	EventTrackingUpdated      = "TrackingUpdated"
	EventEscrowCompleted      = "EscrowCompleted"
	EventEscrowDisputed       = "EscrowDisputed"
	EventEscrowCancelled      = "EscrowCancelled"
)

// StructType returns the fully qualified Move type of an escrow module struct.
func StructType(packageID interfaces.ObjectID, name string) string {
	return packageID.String() + "::" + ModuleName + "::" + name
}

// EventType returns the fully qualified Move event type.
func EventType(packageID interfaces.ObjectID, name string) string {
	return StructType(packageID, name)
}
