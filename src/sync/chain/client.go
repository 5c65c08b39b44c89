package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	log "github.com/sirupsen/logrus"
)

// ---------- tiny JSON-RPC helpers ----------

type rpcReq struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResp struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client is a minimal Ethereum JSON-RPC client over a websocket. Calls are
// serialized on the single connection; a failed connection is redialed with
// exponential backoff on the next call.
type Client struct {
	url string

	mu     sync.Mutex
	ws     *websocket.Conn
	nextID uint64
}

func Dial(ctx context.Context, url string) (*Client, error) {
	c := &Client{url: url}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.dialLocked(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dialLocked(ctx context.Context) error {
	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 30 * time.Second, Jitter: true}
	for {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err == nil {
			c.ws = ws
			return nil
		}
		d := b.Duration()
		log.WithFields(log.Fields{"url": c.url, "err": err, "retry_in": d}).Warn("chain: dial failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
}

// Call performs one JSON-RPC round trip. The connection carries one request
// at a time, so responses match requests without an id dispatch table.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		if err := c.dialLocked(ctx); err != nil {
			return nil, err
		}
	}

	c.nextID++
	req := rpcReq{Jsonrpc: "2.0", ID: c.nextID, Method: method, Params: params}
	if params == nil {
		req.Params = []interface{}{}
	}
	if err := c.ws.WriteJSON(req); err != nil {
		c.ws.Close()
		c.ws = nil
		return nil, fmt.Errorf("chain: write %s: %w", method, err)
	}
	var rsp rpcResp
	if err := c.ws.ReadJSON(&rsp); err != nil {
		c.ws.Close()
		c.ws = nil
		return nil, fmt.Errorf("chain: read %s: %w", method, err)
	}
	if rsp.Error != nil {
		return nil, fmt.Errorf("chain: RPC %d: %s", rsp.Error.Code, rsp.Error.Message)
	}
	return rsp.Result, nil
}

// BlockTime fetches the timestamp of a block via eth_getBlockByNumber.
func (c *Client) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	raw, err := c.Call(ctx, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false)
	if err != nil {
		return time.Time{}, err
	}
	var blk struct {
		Timestamp *hexutil.Uint64 `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &blk); err != nil {
		return time.Time{}, fmt.Errorf("chain: decode block %d: %w", number, err)
	}
	if blk.Timestamp == nil {
		return time.Time{}, fmt.Errorf("chain: block %d not found", number)
	}
	return time.Unix(int64(*blk.Timestamp), 0), nil
}

// EthCall executes a read-only contract call at the latest block.
func (c *Client) EthCall(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	arg := map[string]interface{}{
		"to":   to.Hex(),
		"data": hexutil.Encode(data),
	}
	raw, err := c.Call(ctx, "eth_call", arg, "latest")
	if err != nil {
		return nil, err
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("chain: decode call result: %w", err)
	}
	return hexutil.Decode(out)
}
