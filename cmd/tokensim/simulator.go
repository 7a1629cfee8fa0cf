package main

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/rl1809/split-market/internal/adapter/tokenbus"
	"github.com/rl1809/split-market/internal/core/domain"
)

// simulator is an in-memory token issuer. Token ids count up from 1 and
// ownership is kept only for the life of the process. A command re-sent for
// the same saga gets the answer it got the first time.
type simulator struct {
	mu       sync.Mutex
	counter  uint64
	owners   map[string]string
	results  map[uuid.UUID]tokenbus.Result
	failRate float64
	roll     func() float64
}

func newSimulator(failRate float64) *simulator {
	return &simulator{
		owners:   make(map[string]string),
		results:  make(map[uuid.UUID]tokenbus.Result),
		failRate: failRate,
		roll:     rand.Float64,
	}
}

func (s *simulator) refuse() bool {
	return s.failRate > 0 && s.roll() < s.failRate
}

func (s *simulator) mint(cmd tokenbus.MintCommand) tokenbus.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.results[cmd.SagaID]; ok {
		return res
	}

	res := tokenbus.Result{SagaID: cmd.SagaID, Kind: domain.SagaKindMint}
	if s.refuse() {
		res.Reason = "simulated mint failure"
		s.results[cmd.SagaID] = res
		return res
	}

	s.counter++
	tokenID := strconv.FormatUint(s.counter, 10)
	s.owners[tokenID] = cmd.Owner
	res.Success = true
	res.Token = &domain.TokenHandle{
		TokenID: tokenID,
		Metadata: domain.TokenMetadata{
			Title:       fmt.Sprintf("Unit %s of property %s", cmd.SplitIdentifier, cmd.PropertyIdentifier),
			Description: fmt.Sprintf("Token for split %s of property %s", cmd.SplitIdentifier, cmd.PropertyIdentifier),
			Media:       cmd.ImageRef,
			Reference:   cmd.DocRef,
			Copies:      1,
		},
	}
	s.results[cmd.SagaID] = res
	return res
}

func (s *simulator) transfer(cmd tokenbus.TransferCommand) tokenbus.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.results[cmd.SagaID]; ok {
		return res
	}

	res := tokenbus.Result{SagaID: cmd.SagaID, Kind: domain.SagaKindTransfer}
	_, known := s.owners[cmd.TokenID]
	switch {
	case s.refuse():
		res.Reason = "simulated transfer failure"
	case !known:
		res.Reason = fmt.Sprintf("token %s not found", cmd.TokenID)
	default:
		s.owners[cmd.TokenID] = cmd.NewOwner
		res.Success = true
		res.NewOwner = cmd.NewOwner
	}
	s.results[cmd.SagaID] = res
	return res
}

func (s *simulator) owner(tokenID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.owners[tokenID]
	return owner, ok
}
