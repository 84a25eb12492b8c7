package chain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// u64String decodes u64 values the node renders as decimal strings.
type u64String uint64

func (v *u64String) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %s: %w", b, err)
	}
	*v = u64String(n)
	return nil
}

func (v u64String) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(v), 10))), nil
}

// rpcOwner decodes "Immutable" or {"AddressOwner": ...}, {"ObjectOwner": ...},
// {"Shared": {"initial_shared_version": ...}}.
type rpcOwner struct {
	interfaces.ObjectOwner
}

func (o *rpcOwner) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		o.Immutable = s == "Immutable"
		return nil
	}

	var raw struct {
		AddressOwner *interfaces.Address `json:"AddressOwner"`
		ObjectOwner  *interfaces.Address `json:"ObjectOwner"`
		Shared       *struct {
			InitialSharedVersion u64String `json:"initial_shared_version"`
		} `json:"Shared"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("invalid owner: %w", err)
	}
	o.AddressOwner = raw.AddressOwner
	o.ObjectOwner = raw.ObjectOwner
	if raw.Shared != nil {
		o.Shared = &interfaces.Shared{InitialSharedVersion: uint64(raw.Shared.InitialSharedVersion)}
	}
	return nil
}

type rpcObjectData struct {
	ObjectID interfaces.ObjectID `json:"objectId"`
	Version  u64String           `json:"version"`
	Digest   string              `json:"digest"`
	Type     string              `json:"type"`
	Owner    *rpcOwner           `json:"owner"`
	Content  *struct {
		DataType string          `json:"dataType"`
		Type     string          `json:"type"`
		Fields   json.RawMessage `json:"fields"`
	} `json:"content"`
}

type rpcObjectResponse struct {
	Data  *rpcObjectData `json:"data"`
	Error *struct {
		Code     string `json:"code"`
		ObjectID string `json:"object_id"`
	} `json:"error"`
}

func (r *rpcObjectData) toObjectData() interfaces.ObjectData {
	out := interfaces.ObjectData{
		Ref: interfaces.ObjectRef{
			ObjectID: r.ObjectID,
			Version:  uint64(r.Version),
			Digest:   r.Digest,
		},
		Type: r.Type,
	}
	if r.Owner != nil {
		out.Owner = r.Owner.ObjectOwner
	}
	if r.Content != nil {
		if out.Type == "" {
			out.Type = r.Content.Type
		}
		out.Fields = r.Content.Fields
	}
	return out
}

type rpcPage[T any] struct {
	Data        []T             `json:"data"`
	NextCursor  json.RawMessage `json:"nextCursor"`
	HasNextPage bool            `json:"hasNextPage"`
}

type rpcCoin struct {
	CoinType     string              `json:"coinType"`
	CoinObjectID interfaces.ObjectID `json:"coinObjectId"`
	Version      u64String           `json:"version"`
	Digest       string              `json:"digest"`
	Balance      u64String           `json:"balance"`
}

type rpcBalance struct {
	CoinType        string    `json:"coinType"`
	CoinObjectCount int       `json:"coinObjectCount"`
	TotalBalance    u64String `json:"totalBalance"`
}

type rpcEvent struct {
	ID struct {
		TxDigest string    `json:"txDigest"`
		EventSeq u64String `json:"eventSeq"`
	} `json:"id"`
	PackageID         interfaces.ObjectID `json:"packageId"`
	TransactionModule string              `json:"transactionModule"`
	Sender            interfaces.Address  `json:"sender"`
	Type              string              `json:"type"`
	ParsedJSON        json.RawMessage     `json:"parsedJson"`
	TimestampMs       u64String           `json:"timestampMs"`
}

func (e *rpcEvent) toEvent() interfaces.Event {
	return interfaces.Event{
		TxDigest:    e.ID.TxDigest,
		EventSeq:    uint64(e.ID.EventSeq),
		PackageID:   e.PackageID,
		Module:      e.TransactionModule,
		Type:        e.Type,
		Sender:      e.Sender,
		ParsedJSON:  e.ParsedJSON,
		TimestampMs: uint64(e.TimestampMs),
	}
}

type rpcObjectChange struct {
	Type       string              `json:"type"`
	ObjectID   interfaces.ObjectID `json:"objectId"`
	ObjectType string              `json:"objectType"`
	Version    u64String           `json:"version"`
	Digest     string              `json:"digest"`
	Owner      *rpcOwner           `json:"owner"`
}

type rpcTransactionResponse struct {
	Digest  string `json:"digest"`
	Effects *struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
		GasUsed struct {
			ComputationCost u64String `json:"computationCost"`
			StorageCost     u64String `json:"storageCost"`
			StorageRebate   u64String `json:"storageRebate"`
		} `json:"gasUsed"`
	} `json:"effects"`
	Events        []rpcEvent        `json:"events"`
	ObjectChanges []rpcObjectChange `json:"objectChanges"`
}

func (r *rpcTransactionResponse) toResponse() *interfaces.TransactionResponse {
	out := &interfaces.TransactionResponse{Digest: r.Digest}
	if r.Effects != nil {
		out.Status = r.Effects.Status.Status
		out.Error = r.Effects.Status.Error
		cost := uint64(r.Effects.GasUsed.ComputationCost) + uint64(r.Effects.GasUsed.StorageCost)
		if rebate := uint64(r.Effects.GasUsed.StorageRebate); rebate < cost {
			out.GasUsed = cost - rebate
		}
	}
	for i := range r.Events {
		out.Events = append(out.Events, r.Events[i].toEvent())
	}
	for _, ch := range r.ObjectChanges {
		change := interfaces.ObjectChange{
			Type:       ch.Type,
			ObjectID:   ch.ObjectID,
			ObjectType: ch.ObjectType,
			Version:    uint64(ch.Version),
			Digest:     ch.Digest,
		}
		if ch.Owner != nil {
			change.Owner = ch.Owner.ObjectOwner
		}
		out.ObjectChanges = append(out.ObjectChanges, change)
	}
	return out
}
