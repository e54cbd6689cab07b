package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Client is a fullnode JSON-RPC client.
type Client struct {
	mu         sync.Mutex
	rpcURL     string
	httpClient *http.Client
	nextID     int
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// NewClient creates a fullnode client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: timeout},
		nextID:     1,
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Call makes one JSON-RPC call against the fullnode.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// ObjectDataOptions selects which parts of an object the fullnode returns.
type ObjectDataOptions struct {
	ShowContent bool `json:"showContent,omitempty"`
	ShowOwner   bool `json:"showOwner,omitempty"`
	ShowType    bool `json:"showType,omitempty"`
}

// MoveStruct is the JSON rendering of a Move struct's fields.
type MoveStruct map[string]json.RawMessage

// Field unmarshals a named field into v.
func (s MoveStruct) Field(name string, v interface{}) error {
	raw, ok := s[name]
	if !ok {
		return fmt.Errorf("field %q not found", name)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	return nil
}

// MoveContent is an object's parsed Move content.
type MoveContent struct {
	DataType string     `json:"dataType"`
	Type     string     `json:"type"`
	Fields   MoveStruct `json:"fields"`
}

// SharedOwner carries the initial shared version of a shared object.
type SharedOwner struct {
	InitialSharedVersion SequenceNumber `json:"initial_shared_version"`
}

// ObjectOwner is the JSON rendering of an object's ownership.
type ObjectOwner struct {
	AddressOwner *Address     `json:"AddressOwner,omitempty"`
	ObjectOwner  *Address     `json:"ObjectOwner,omitempty"`
	Shared       *SharedOwner `json:"Shared,omitempty"`
}

// ObjectData describes one on-chain object as returned by the fullnode.
type ObjectData struct {
	ObjectID ObjectID       `json:"objectId"`
	Version  SequenceNumber `json:"version,string"`
	Digest   string         `json:"digest"`
	Type     string         `json:"type,omitempty"`
	Owner    *ObjectOwner   `json:"owner,omitempty"`
	Content  *MoveContent   `json:"content,omitempty"`
}

type objectResponse struct {
	Data  *ObjectData     `json:"data"`
	Error json.RawMessage `json:"error"`
}

// GetObject fetches one object with the requested detail.
func (c *Client) GetObject(ctx context.Context, id ObjectID, opts ObjectDataOptions) (*ObjectData, error) {
	result, err := c.Call(ctx, "sui_getObject", []interface{}{id.String(), opts})
	if err != nil {
		return nil, err
	}
	var resp objectResponse
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("object %s: data not found", id)
	}
	return resp.Data, nil
}

// DynamicFieldName keys a dynamic field: a type tag plus the value in its
// JSON rendering. u64 keys are encoded as ascii decimal strings.
type DynamicFieldName struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// GetDynamicFieldObject resolves the dynamic field hanging off parent under
// the given name.
func (c *Client) GetDynamicFieldObject(ctx context.Context, parent ObjectID, name DynamicFieldName) (*ObjectData, error) {
	result, err := c.Call(ctx, "suix_getDynamicFieldObject", []interface{}{parent.String(), name})
	if err != nil {
		return nil, err
	}
	var resp objectResponse
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal dynamic field: %w", err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("dynamic field of %s: data not found", parent)
	}
	return resp.Data, nil
}

// GetReferenceGasPrice returns the current epoch's reference gas price.
func (c *Client) GetReferenceGasPrice(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "suix_getReferenceGasPrice", nil)
	if err != nil {
		return 0, err
	}
	var s string
	if err := json.Unmarshal(result, &s); err != nil {
		return 0, fmt.Errorf("unmarshal gas price: %w", err)
	}
	var price uint64
	if _, err := fmt.Sscan(s, &price); err != nil {
		return 0, fmt.Errorf("parse gas price %q: %w", s, err)
	}
	return price, nil
}

// OwnedObjectRef is an object reference inside transaction effects.
type OwnedObjectRef struct {
	Owner     json.RawMessage `json:"owner"`
	Reference struct {
		ObjectID ObjectID       `json:"objectId"`
		Version  SequenceNumber `json:"version"`
		Digest   string         `json:"digest"`
	} `json:"reference"`
}

// TransactionEffects is the subset of effects the bridge consumes.
type TransactionEffects struct {
	Status struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	} `json:"status"`
	Created []OwnedObjectRef `json:"created"`
}

// FirstShared returns the first created object that is shared, if any.
// Locates the registered-enclave object after enclave::register.
func (e *TransactionEffects) FirstShared() (ObjectID, SequenceNumber, bool) {
	for _, created := range e.Created {
		var owner struct {
			Shared *SharedOwner `json:"Shared"`
		}
		if err := json.Unmarshal(created.Owner, &owner); err != nil {
			continue
		}
		if owner.Shared != nil {
			return created.Reference.ObjectID, owner.Shared.InitialSharedVersion, true
		}
	}
	return ObjectID{}, 0, false
}

// TransactionBlockResponse is the fullnode's execution response.
type TransactionBlockResponse struct {
	Digest  string              `json:"digest"`
	Effects *TransactionEffects `json:"effects,omitempty"`
}

// Succeeded reports whether the effects carry a success status.
func (r *TransactionBlockResponse) Succeeded() bool {
	return r.Effects != nil && r.Effects.Status.Status == "success"
}

// ExecuteTransactionBlock submits a signed transaction and waits for local
// execution.
func (c *Client) ExecuteTransactionBlock(ctx context.Context, txBytesB64 string, signaturesB64 []string) (*TransactionBlockResponse, error) {
	options := map[string]bool{"showEffects": true}
	result, err := c.Call(ctx, "sui_executeTransactionBlock", []interface{}{
		txBytesB64, signaturesB64, options, "WaitForLocalExecution",
	})
	if err != nil {
		return nil, err
	}
	var resp TransactionBlockResponse
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal execution response: %w", err)
	}
	return &resp, nil
}
