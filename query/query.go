// Package query is the read-only façade over the chain. It translates raw Move
// object content into escrow domain entities and surfaces every lookup error
// to the caller instead of substituting empty values.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ruteri/sui-escrow-gateway/escrow"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// eventScanLimit bounds the event history scanned to discover shared objects.
const eventScanLimit = 1000

// Facade answers read queries for one escrow package.
type Facade struct {
	chain     interfaces.ChainClient
	packageID interfaces.ObjectID
	log       *slog.Logger
}

func New(client interfaces.ChainClient, packageID interfaces.ObjectID, log *slog.Logger) *Facade {
	return &Facade{chain: client, packageID: packageID, log: log}
}

// Balance returns the SUI balance of owner.
func (f *Facade) Balance(ctx context.Context, owner interfaces.Address) (*interfaces.Balance, error) {
	return f.chain.GetBalance(ctx, owner, interfaces.SuiCoinType)
}

// OwnedObjects lists objects of owner. structType may be a short escrow struct
// name, a fully qualified type or empty for every object.
func (f *Facade) OwnedObjects(ctx context.Context, owner interfaces.Address, structType string) ([]interfaces.ObjectData, error) {
	return f.chain.GetOwnedObjects(ctx, owner, f.qualify(structType))
}

// Object reads one object.
func (f *Facade) Object(ctx context.Context, id interfaces.ObjectID) (*interfaces.ObjectData, error) {
	return f.chain.GetObject(ctx, id)
}

// UserAccount returns the account owned by owner.
func (f *Facade) UserAccount(ctx context.Context, owner interfaces.Address) (*escrow.User, error) {
	objs, err := f.chain.GetOwnedObjects(ctx, owner, f.structType(escrow.StructUserAccount))
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("%w: no user account for %s", interfaces.ErrObjectNotFound, owner)
	}
	user, err := escrow.DecodeUser(&objs[0])
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Product reads one product.
func (f *Facade) Product(ctx context.Context, id interfaces.ObjectID) (*escrow.Product, error) {
	obj, err := f.chain.GetObject(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := escrow.DecodeProduct(obj)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Products lists the products created by creator: owned ones and shared ones
// announced by ProductCreated events. Newest first.
func (f *Facade) Products(ctx context.Context, creator interfaces.Address) ([]escrow.Product, error) {
	ids, err := f.discover(ctx, creator, escrow.StructProduct, escrow.EventProductCreated, func(payload map[string]json.RawMessage) (string, bool) {
		return fieldString(payload, "product_id"), fieldString(payload, "creator") == creator.String()
	})
	if err != nil {
		return nil, err
	}

	products := make([]escrow.Product, 0, len(ids))
	for _, id := range ids {
		p, err := f.Product(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", id, err)
		}
		products = append(products, *p)
	}
	sort.SliceStable(products, func(i, j int) bool { return products[i].CreatedAt.After(products[j].CreatedAt) })
	return products, nil
}

// Escrow reads one escrow with its tracking history.
func (f *Facade) Escrow(ctx context.Context, id interfaces.ObjectID) (*escrow.EscrowContract, error) {
	obj, err := f.chain.GetObject(ctx, id)
	if err != nil {
		return nil, err
	}
	e, err := escrow.DecodeEscrow(obj)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Escrows lists the escrows party is buyer or seller of: owned ones and shared
// ones announced by EscrowCreated events. Newest first.
func (f *Facade) Escrows(ctx context.Context, party interfaces.Address) ([]escrow.EscrowContract, error) {
	ids, err := f.discover(ctx, party, escrow.StructEscrowContract, escrow.EventEscrowCreated, func(payload map[string]json.RawMessage) (string, bool) {
		p := party.String()
		return fieldString(payload, "escrow_id"), fieldString(payload, "buyer") == p || fieldString(payload, "seller") == p
	})
	if err != nil {
		return nil, err
	}

	escrows := make([]escrow.EscrowContract, 0, len(ids))
	for _, id := range ids {
		e, err := f.Escrow(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("escrow %s: %w", id, err)
		}
		escrows = append(escrows, *e)
	}
	sort.SliceStable(escrows, func(i, j int) bool { return escrows[i].CreatedAt.After(escrows[j].CreatedAt) })
	return escrows, nil
}

// Events returns events of the escrow module, newest first. name may be a
// short event name or a fully qualified event type.
func (f *Facade) Events(ctx context.Context, name string, limit int) ([]interfaces.Event, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: event type is required", interfaces.ErrInvalidArgument)
	}
	return f.chain.QueryEvents(ctx, f.qualify(name), limit, true)
}

// discover merges owned objects of structName with the ids that match in the
// events of eventName.
func (f *Facade) discover(ctx context.Context, owner interfaces.Address, structName, eventName string, match func(map[string]json.RawMessage) (string, bool)) ([]interfaces.ObjectID, error) {
	seen := make(map[interfaces.ObjectID]bool)
	var ids []interfaces.ObjectID

	owned, err := f.chain.GetOwnedObjects(ctx, owner, f.structType(structName))
	if err != nil {
		return nil, err
	}
	for _, obj := range owned {
		if !seen[obj.Ref.ObjectID] {
			seen[obj.Ref.ObjectID] = true
			ids = append(ids, obj.Ref.ObjectID)
		}
	}

	events, err := f.chain.QueryEvents(ctx, escrow.EventType(f.packageID, eventName), eventScanLimit, true)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(ev.ParsedJSON, &payload); err != nil {
			f.log.Warn("Skipping undecodable event", slog.String("type", ev.Type), slog.String("tx_digest", ev.TxDigest), "err", err)
			continue
		}
		raw, ok := match(payload)
		if !ok {
			continue
		}
		id, err := interfaces.ParseAddress(raw)
		if err != nil {
			f.log.Warn("Skipping event with invalid object id", slog.String("type", ev.Type), slog.String("tx_digest", ev.TxDigest), "err", err)
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *Facade) structType(name string) string {
	return escrow.StructType(f.packageID, name)
}

func (f *Facade) qualify(name string) string {
	if name == "" || strings.Contains(name, "::") {
		return name
	}
	return f.structType(name)
}

func fieldString(payload map[string]json.RawMessage, key string) string {
	var s string
	if err := json.Unmarshal(payload[key], &s); err != nil {
		return ""
	}
	return s
}
