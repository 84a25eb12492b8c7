package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

const (
	defaultPageLimit = 50
	maxPages         = 20
)

var objectQueryOptions = map[string]bool{
	"showType":    true,
	"showOwner":   true,
	"showContent": true,
}

// Client is a JSON-RPC interfaces.ChainClient.
type Client struct {
	rpc *rpc.Client
	log *slog.Logger
}

// Dial connects to a full node.
func Dial(ctx context.Context, rawURL string, log *slog.Logger) (*Client, error) {
	c, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial %s: %v", interfaces.ErrConfiguration, rawURL, err)
	}
	return NewClient(c, log), nil
}

// NewClient wraps an established rpc client.
func NewClient(c *rpc.Client, log *slog.Logger) *Client {
	return &Client{rpc: c, log: log}
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	start := time.Now()
	err := c.rpc.CallContext(ctx, result, method, args...)
	if err != nil {
		c.log.Debug("RPC call failed", "method", method, "err", err, "duration", time.Since(start))
		return classifyRPCError(method, err)
	}
	c.log.Debug("RPC call", "method", method, "duration", time.Since(start))
	return nil
}

// classifyRPCError separates node-side refusals from transport failures.
func classifyRPCError(method string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %s: %s", interfaces.ErrRejected, method, rpcErr.Error())
	}
	return fmt.Errorf("%w: %s: %v", interfaces.ErrNetwork, method, err)
}

func (c *Client) GetBalance(ctx context.Context, owner interfaces.Address, coinType string) (*interfaces.Balance, error) {
	var res rpcBalance
	if err := c.call(ctx, &res, "suix_getBalance", owner.String(), coinType); err != nil {
		return nil, err
	}
	return &interfaces.Balance{
		CoinType:        res.CoinType,
		CoinObjectCount: res.CoinObjectCount,
		TotalBalance:    uint64(res.TotalBalance),
	}, nil
}

func (c *Client) GetCoins(ctx context.Context, owner interfaces.Address, coinType string) ([]interfaces.Coin, error) {
	var coins []interfaces.Coin
	var cursor json.RawMessage
	for page := 0; page < maxPages; page++ {
		var res rpcPage[rpcCoin]
		if err := c.call(ctx, &res, "suix_getCoins", owner.String(), coinType, cursorArg(cursor), defaultPageLimit); err != nil {
			return nil, err
		}
		for _, coin := range res.Data {
			coins = append(coins, interfaces.Coin{
				CoinType: coin.CoinType,
				Ref: interfaces.ObjectRef{
					ObjectID: coin.CoinObjectID,
					Version:  uint64(coin.Version),
					Digest:   coin.Digest,
				},
				Balance: uint64(coin.Balance),
			})
		}
		if !res.HasNextPage {
			break
		}
		cursor = res.NextCursor
	}
	return coins, nil
}

func (c *Client) GetOwnedObjects(ctx context.Context, owner interfaces.Address, structType string) ([]interfaces.ObjectData, error) {
	query := map[string]interface{}{"options": objectQueryOptions}
	if structType != "" {
		query["filter"] = map[string]string{"StructType": structType}
	}

	var objects []interfaces.ObjectData
	var cursor json.RawMessage
	for page := 0; page < maxPages; page++ {
		var res rpcPage[rpcObjectResponse]
		if err := c.call(ctx, &res, "suix_getOwnedObjects", owner.String(), query, cursorArg(cursor), defaultPageLimit); err != nil {
			return nil, err
		}
		for _, item := range res.Data {
			if item.Data != nil {
				objects = append(objects, item.Data.toObjectData())
			}
		}
		if !res.HasNextPage {
			break
		}
		cursor = res.NextCursor
	}
	return objects, nil
}

func (c *Client) GetObject(ctx context.Context, id interfaces.ObjectID) (*interfaces.ObjectData, error) {
	var res rpcObjectResponse
	if err := c.call(ctx, &res, "sui_getObject", id.String(), objectQueryOptions); err != nil {
		return nil, err
	}
	if res.Data == nil {
		code := "unknown"
		if res.Error != nil {
			code = res.Error.Code
		}
		return nil, fmt.Errorf("%w: %s (%s)", interfaces.ErrObjectNotFound, id, code)
	}
	obj := res.Data.toObjectData()
	return &obj, nil
}

func (c *Client) QueryEvents(ctx context.Context, eventType string, limit int, descending bool) ([]interfaces.Event, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	query := map[string]string{"MoveEventType": eventType}

	var res rpcPage[rpcEvent]
	if err := c.call(ctx, &res, "suix_queryEvents", query, nil, limit, descending); err != nil {
		return nil, err
	}
	events := make([]interfaces.Event, 0, len(res.Data))
	for i := range res.Data {
		events = append(events, res.Data[i].toEvent())
	}
	return events, nil
}

func (c *Client) GetReferenceGasPrice(ctx context.Context) (uint64, error) {
	var price u64String
	if err := c.call(ctx, &price, "suix_getReferenceGasPrice"); err != nil {
		return 0, err
	}
	return uint64(price), nil
}

func (c *Client) CurrentEpoch(ctx context.Context) (uint64, error) {
	var state struct {
		Epoch u64String `json:"epoch"`
	}
	if err := c.call(ctx, &state, "suix_getLatestSuiSystemState"); err != nil {
		return 0, err
	}
	return uint64(state.Epoch), nil
}

func (c *Client) ExecuteTransactionBlock(ctx context.Context, txBytes []byte, signatures []string) (*interfaces.TransactionResponse, error) {
	options := map[string]bool{
		"showEffects":       true,
		"showEvents":        true,
		"showObjectChanges": true,
	}

	var res rpcTransactionResponse
	err := c.call(ctx, &res, "sui_executeTransactionBlock",
		base64.StdEncoding.EncodeToString(txBytes), signatures, options, "WaitForLocalExecution")
	if err != nil {
		return nil, err
	}
	return res.toResponse(), nil
}

func cursorArg(cursor json.RawMessage) interface{} {
	if len(cursor) == 0 || string(cursor) == "null" {
		return nil
	}
	return cursor
}
