package chain

import (
	"context"
	"encoding/json"
	"fmt"
)

// MoveStdlibPackageID is the address of the Move standard library.
var MoveStdlibPackageID = MustObjectID("0x1")

// Coin describes one gas coin as returned by the fullnode.
type Coin struct {
	CoinObjectID ObjectID       `json:"coinObjectId"`
	Version      SequenceNumber `json:"version,string"`
	Digest       string         `json:"digest"`
	Balance      string         `json:"balance"`
}

type coinPage struct {
	Data        []Coin `json:"data"`
	HasNextPage bool   `json:"hasNextPage"`
}

// FirstCoin returns a reference to one gas coin owned by addr.
func (c *Client) FirstCoin(ctx context.Context, addr Address) (ObjectRef, error) {
	result, err := c.Call(ctx, "suix_getCoins", []interface{}{addr.String()})
	if err != nil {
		return ObjectRef{}, err
	}
	var page coinPage
	if err := json.Unmarshal(result, &page); err != nil {
		return ObjectRef{}, fmt.Errorf("unmarshal coins: %w", err)
	}
	if len(page.Data) == 0 {
		return ObjectRef{}, fmt.Errorf("no gas object owned by %s", addr)
	}
	coin := page.Data[0]
	return ObjectRef{
		ID:      coin.CoinObjectID,
		Version: coin.Version,
		Digest:  ParseDigest(coin.Digest),
	}, nil
}
