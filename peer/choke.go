package peer

import (
	"github.com/seedcore-io/torrentd/core"
	"github.com/seedcore-io/torrentd/wire"
)

// chokeLoop runs the tit-for-tat unchoking algorithm: every
// RegularChokeRound it ranks interested peers by recent delivery rate and
// unchokes the top UnchokeSlots, choking the rest. Every OptimisticRound it
// additionally unchokes one uniformly random choked-and-interested peer,
// retaining that slot across the next regular round so new peers get a
// chance to demonstrate upload.
func (m *Manager) chokeLoop() {
	defer m.wg.Done()

	regular := m.clk.Ticker(m.config.RegularChokeRound)
	defer regular.Stop()
	optimistic := m.clk.Ticker(m.config.OptimisticRound)
	defer optimistic.Stop()

	for {
		select {
		case <-regular.C:
			m.runChokeRound()
		case <-optimistic.C:
			m.pickOptimisticUnchoke()
		case <-m.done:
			return
		}
	}
}

type chokeCandidate struct {
	peerID core.PeerID
	sess   *Session
	rate   int64
}

func (m *Manager) runChokeRound() {
	var interested []chokeCandidate
	m.sessions.Range(func(k, v interface{}) bool {
		s := v.(*Session)
		if s.peerInterested.Load() {
			interested = append(interested, chokeCandidate{k.(core.PeerID), s, s.ChokeWindowDelta()})
		}
		return true
	})

	sortByRateDesc(interested)

	unchoked := make(map[core.PeerID]bool)
	for i, c := range interested {
		if i >= m.config.UnchokeSlots {
			break
		}
		unchoked[c.peerID] = true
	}
	if m.hasOptimistic {
		unchoked[m.optimisticSlot] = true
	}

	m.sessions.Range(func(k, v interface{}) bool {
		s := v.(*Session)
		peerID := k.(core.PeerID)
		shouldUnchoke := unchoked[peerID]
		if shouldUnchoke && s.amChoking.Load() {
			s.amChoking.Store(false)
			s.Send(wire.NewUnchoke())
		} else if !shouldUnchoke && !s.amChoking.Load() {
			s.amChoking.Store(true)
			s.Send(wire.NewChoke())
		}
		return true
	})
}

func (m *Manager) pickOptimisticUnchoke() {
	var choked []core.PeerID
	m.sessions.Range(func(k, v interface{}) bool {
		s := v.(*Session)
		if s.amChoking.Load() && s.peerInterested.Load() {
			choked = append(choked, k.(core.PeerID))
		}
		return true
	})
	if len(choked) == 0 {
		m.hasOptimistic = false
		return
	}
	m.optimisticSlot = choked[m.rng.Intn(len(choked))]
	m.hasOptimistic = true
	if v, ok := m.sessions.Load(m.optimisticSlot); ok {
		s := v.(*Session)
		s.amChoking.Store(false)
		s.Send(wire.NewUnchoke())
	}
}

func sortByRateDesc(candidates []chokeCandidate) {
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].rate > candidates[j-1].rate; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}

// timeoutLoop periodically scans every session for block requests that
// have exceeded BlockTimeout, releasing them back to the piece manager and
// accruing a strike against the offending peer.
func (m *Manager) timeoutLoop() {
	defer m.wg.Done()

	ticker := m.clk.Ticker(BlockTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sessions.Range(func(_, v interface{}) bool {
				s := v.(*Session)
				expired := s.ExpiredRequests()
				for _, b := range expired {
					m.pieces.MarkBlockFailed(b)
				}
				if len(expired) > 0 {
					s.AddStrike()
					m.fillPipeline(s)
				}
				return true
			})
		case <-m.done:
			return
		}
	}
}
