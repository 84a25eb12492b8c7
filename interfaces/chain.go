package interfaces

import (
	"context"
	"encoding/json"
)

// SuiCoinType is the native coin type.
const SuiCoinType = "0x2::sui::SUI"

// ObjectRef pins an object at a specific version.
type ObjectRef struct {
	ObjectID ObjectID `json:"objectId"`
	Version  uint64   `json:"version"`
	Digest   string   `json:"digest"`
}

// ObjectOwner describes who may use an object. Exactly one variant is set.
type ObjectOwner struct {
	AddressOwner *Address `json:"addressOwner,omitempty"`
	ObjectOwner  *Address `json:"objectOwner,omitempty"`
	Shared       *Shared  `json:"shared,omitempty"`
	Immutable    bool     `json:"immutable,omitempty"`
}

// Shared carries the version at which an object became shared.
type Shared struct {
	InitialSharedVersion uint64 `json:"initialSharedVersion"`
}

// IsShared reports whether the object is a shared object.
func (o ObjectOwner) IsShared() bool {
	return o.Shared != nil
}

// ObjectData is an object read from chain. Fields holds the raw Move struct content.
type ObjectData struct {
	Ref    ObjectRef       `json:"ref"`
	Type   string          `json:"type"`
	Owner  ObjectOwner     `json:"owner"`
	Fields json.RawMessage `json:"fields,omitempty"`
}

// Coin is a spendable coin object.
type Coin struct {
	CoinType string    `json:"coinType"`
	Ref      ObjectRef `json:"ref"`
	Balance  uint64    `json:"balance"`
}

// Balance aggregates all coins of a type held by an owner.
type Balance struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    uint64 `json:"totalBalance"`
}

// Event is a Move event emitted by a transaction.
type Event struct {
	TxDigest    string          `json:"txDigest"`
	EventSeq    uint64          `json:"eventSeq"`
	PackageID   ObjectID        `json:"packageId"`
	Module      string          `json:"module"`
	Type        string          `json:"type"`
	Sender      Address         `json:"sender"`
	ParsedJSON  json.RawMessage `json:"parsedJson,omitempty"`
	TimestampMs uint64          `json:"timestampMs"`
}

// ObjectChange reports an object created, mutated or deleted by a transaction.
type ObjectChange struct {
	Type       string      `json:"type"`
	ObjectID   ObjectID    `json:"objectId"`
	ObjectType string      `json:"objectType,omitempty"`
	Version    uint64      `json:"version"`
	Digest     string      `json:"digest,omitempty"`
	Owner      ObjectOwner `json:"owner"`
}

// TransactionResponse is the executed transaction with its effects.
// Status is "success" or "failure"; Error holds the chain-reported reason.
type TransactionResponse struct {
	Digest        string         `json:"digest"`
	Status        string         `json:"status"`
	Error         string         `json:"error,omitempty"`
	GasUsed       uint64         `json:"gasUsed"`
	Events        []Event        `json:"events,omitempty"`
	ObjectChanges []ObjectChange `json:"objectChanges,omitempty"`
}

// Succeeded reports whether the effects status is success.
func (r *TransactionResponse) Succeeded() bool {
	return r.Status == "success"
}

// ChainClient is the chain RPC collaborator.
//
// Transport failures must wrap ErrNetwork. Calls refused by the node wrap ErrRejected.
// ExecuteTransactionBlock reports execution failures through the response status
// rather than an error, since the transaction was still sequenced.
type ChainClient interface {
	GetBalance(ctx context.Context, owner Address, coinType string) (*Balance, error)
	GetCoins(ctx context.Context, owner Address, coinType string) ([]Coin, error)
	GetOwnedObjects(ctx context.Context, owner Address, structType string) ([]ObjectData, error)
	GetObject(ctx context.Context, id ObjectID) (*ObjectData, error)
	QueryEvents(ctx context.Context, eventType string, limit int, descending bool) ([]Event, error)
	GetReferenceGasPrice(ctx context.Context) (uint64, error)
	CurrentEpoch(ctx context.Context) (uint64, error)
	ExecuteTransactionBlock(ctx context.Context, txBytes []byte, signatures []string) (*TransactionResponse, error)
}

// GasFaucet funds an address on test networks.
type GasFaucet interface {
	RequestGas(ctx context.Context, recipient Address) error
}
