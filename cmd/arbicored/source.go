package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/arbicore/arbicore/engine"
	"github.com/arbicore/arbicore/market"
	"github.com/arbicore/arbicore/rateengine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// wireMessage is the single NDJSON line format reserve-update sources
// speak on stdin: exactly one of Pools (a full startup snapshot) or
// Updates (a per-block delta batch) is populated per line. This is
// arbicore's side of the sync-worker boundary spec.md §1 places out of
// scope — the sync worker itself is an external collaborator.
type wireMessage struct {
	Pools   []wirePool   `json:"pools,omitempty"`
	Updates []wireUpdate `json:"updates,omitempty"`
}

type wireToken struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
}

type wirePool struct {
	Address  string    `json:"address"`
	Factory  string    `json:"factory"`
	FeeBps   uint16    `json:"fee_bps"`
	Token0   wireToken `json:"token0"`
	Token1   wireToken `json:"token1"`
	Reserve0 string    `json:"reserve0"`
	Reserve1 string    `json:"reserve1"`
}

type wireUpdate struct {
	Pool     string `json:"pool"`
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
}

func (p wirePool) toDescriptor() (market.PoolDescriptor, error) {
	r0, err := uint256.FromDecimal(p.Reserve0)
	if err != nil {
		return market.PoolDescriptor{}, fmt.Errorf("pool %s reserve0: %w", p.Address, err)
	}
	r1, err := uint256.FromDecimal(p.Reserve1)
	if err != nil {
		return market.PoolDescriptor{}, fmt.Errorf("pool %s reserve1: %w", p.Address, err)
	}
	return market.PoolDescriptor{
		Address: common.HexToAddress(p.Address),
		Factory: engine.Factory{Address: common.HexToAddress(p.Factory), FeeBps: p.FeeBps},
		Token0: engine.Token{
			Address: common.HexToAddress(p.Token0.Address), Decimals: p.Token0.Decimals, Symbol: p.Token0.Symbol,
		},
		Token1: engine.Token{
			Address: common.HexToAddress(p.Token1.Address), Decimals: p.Token1.Decimals, Symbol: p.Token1.Symbol,
		},
		Reserve0: r0,
		Reserve1: r1,
	}, nil
}

func (u wireUpdate) toUpdate() (rateengine.Update, error) {
	r0, err := uint256.FromDecimal(u.Reserve0)
	if err != nil {
		return rateengine.Update{}, fmt.Errorf("update %s reserve0: %w", u.Pool, err)
	}
	r1, err := uint256.FromDecimal(u.Reserve1)
	if err != nil {
		return rateengine.Update{}, fmt.Errorf("update %s reserve1: %w", u.Pool, err)
	}
	return rateengine.Update{Pool: common.HexToAddress(u.Pool), R0: r0, R1: r1}, nil
}

// readInitialSnapshot blocks on the first NDJSON line of r and decodes it
// as the startup pool set world.New needs.
func readInitialSnapshot(r *bufio.Reader) ([]market.PoolDescriptor, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, fmt.Errorf("read initial snapshot: %w", err)
	}

	var msg wireMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("decode initial snapshot: %w", err)
	}

	descriptors := make([]market.PoolDescriptor, len(msg.Pools))
	for i, p := range msg.Pools {
		d, err := p.toDescriptor()
		if err != nil {
			return nil, err
		}
		descriptors[i] = d
	}
	return descriptors, nil
}

// reserveSource streams subsequent update batches from r onto a channel,
// the per-block consumer loop's input, grounded on cmd/client/main.go's
// client.State()/client.Err() channel pair.
type reserveSource struct {
	updates chan []rateengine.Update
	errs    chan error
}

func (s *reserveSource) Updates() <-chan []rateengine.Update { return s.updates }
func (s *reserveSource) Err() <-chan error                   { return s.errs }

func newReserveSource(r *bufio.Reader) *reserveSource {
	s := &reserveSource{
		updates: make(chan []rateengine.Update),
		errs:    make(chan error, 1),
	}
	go s.run(r)
	return s
}

func (s *reserveSource) run(r *bufio.Reader) {
	defer close(s.updates)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			var msg wireMessage
			if decodeErr := json.Unmarshal(line, &msg); decodeErr != nil {
				s.errs <- fmt.Errorf("decode update batch: %w", decodeErr)
				return
			}
			batch := make([]rateengine.Update, 0, len(msg.Updates))
			for _, u := range msg.Updates {
				update, convErr := u.toUpdate()
				if convErr != nil {
					s.errs <- convErr
					return
				}
				batch = append(batch, update)
			}
			if len(batch) > 0 {
				s.updates <- batch
			}
		}
		if err != nil {
			if err != io.EOF {
				s.errs <- fmt.Errorf("read update batch: %w", err)
			}
			return
		}
	}
}
