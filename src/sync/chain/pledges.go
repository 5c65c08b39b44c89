package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/giveth/pledge-sync/src/sync/types"
)

// PledgeReader is the read-only view of the on-chain pledge registry the
// reconciliation engine depends on.
type PledgeReader interface {
	GetPledge(ctx context.Context, id uint64) (types.Pledge, error)
	// GetPledgeDelegate returns the admin id of the delegate at the given
	// 1-based position in the pledge's delegate chain.
	GetPledgeDelegate(ctx context.Context, id, index uint64) (uint64, error)
}

var (
	selGetPledge         = crypto.Keccak256([]byte("getPledge(uint64)"))[:4]
	selGetPledgeDelegate = crypto.Keccak256([]byte("getPledgeDelegate(uint64,uint64)"))[:4]
)

// Pledges reads pledge state from the liquid-pledging contract via eth_call.
type Pledges struct {
	client   *Client
	contract common.Address
}

func NewPledges(client *Client, contract common.Address) *Pledges {
	return &Pledges{client: client, contract: contract}
}

func encodeCall(selector []byte, args ...uint64) []byte {
	data := make([]byte, 0, 4+32*len(args))
	data = append(data, selector...)
	for _, a := range args {
		data = append(data, common.LeftPadBytes(new(big.Int).SetUint64(a).Bytes(), 32)...)
	}
	return data
}

func word(out []byte, i int) (*big.Int, error) {
	if len(out) < (i+1)*32 {
		return nil, fmt.Errorf("chain: short call return: %d bytes, want word %d", len(out), i)
	}
	return new(big.Int).SetBytes(out[i*32 : (i+1)*32]), nil
}

// getPledge returns (amount, owner, nDelegates, intendedProject, commitTime,
// oldPledge, pledgeState) as seven ABI words.
func decodePledge(id uint64, out []byte) (types.Pledge, error) {
	words := make([]*big.Int, 7)
	for i := range words {
		w, err := word(out, i)
		if err != nil {
			return types.Pledge{}, err
		}
		words[i] = w
	}
	return types.Pledge{
		ID:              id,
		Amount:          words[0],
		Owner:           words[1].Uint64(),
		NDelegates:      words[2].Uint64(),
		IntendedProject: words[3].Uint64(),
		CommitTime:      words[4].Uint64(),
		OldPledge:       words[5].Uint64(),
		State:           types.PledgeState(words[6].Uint64()),
	}, nil
}

func (p *Pledges) GetPledge(ctx context.Context, id uint64) (types.Pledge, error) {
	out, err := p.client.EthCall(ctx, p.contract, encodeCall(selGetPledge, id))
	if err != nil {
		return types.Pledge{}, fmt.Errorf("getPledge(%d): %w", id, err)
	}
	return decodePledge(id, out)
}

func (p *Pledges) GetPledgeDelegate(ctx context.Context, id, index uint64) (uint64, error) {
	out, err := p.client.EthCall(ctx, p.contract, encodeCall(selGetPledgeDelegate, id, index))
	if err != nil {
		return 0, fmt.Errorf("getPledgeDelegate(%d,%d): %w", id, index, err)
	}
	// Return head is (idDelegate, addr, offset-to-name); only the id matters here.
	w, err := word(out, 0)
	if err != nil {
		return 0, err
	}
	return w.Uint64(), nil
}
