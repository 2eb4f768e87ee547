package evidence

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leofalp/railgraph/core/parse"
	"github.com/leofalp/railgraph/internal/utils"
)

const summaryMaxChars = 280

// Envelope is an immutable snapshot of one node's accepted output.
type Envelope struct {
	ID         string    `json:"id"`
	NodeID     string    `json:"nodeId"`
	RoleLabel  string    `json:"roleLabel"`
	Provider   string    `json:"provider"`
	CapturedAt time.Time `json:"capturedAt"`
	Payload    any       `json:"payload"`
	Summary    string    `json:"summary,omitempty"`
	Claims     []Claim   `json:"claims,omitempty"`
}

// Memory is the responsibility memory of one node: who it is and what it
// last concluded. Only the owning node's appends change it.
type Memory struct {
	NodeID        string    `json:"nodeId"`
	RoleLabel     string    `json:"roleLabel"`
	LatestSummary string    `json:"latestSummary"`
	EnvelopeRefs  []string  `json:"envelopeRefs"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Store holds the envelopes and memory of a single run.
type Store struct {
	mu        sync.RWMutex
	now       func() time.Time
	envelopes map[string][]Envelope
	completed []string // node ids in order of their latest append
	memory    map[string]Memory
	sequence  int
}

// NewStore creates an empty store. A nil clock uses time.Now.
func NewStore(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		now:       clock,
		envelopes: make(map[string][]Envelope),
		memory:    make(map[string]Memory),
	}
}

// Append wraps payload into a new envelope for nodeID and updates the node's
// memory. An empty summary is derived from the payload text.
func (store *Store) Append(nodeID, roleLabel, provider string, payload any, summary string) Envelope {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = utils.ClipText(strings.TrimSpace(parse.ExtractText(payload)), summaryMaxChars)
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	store.sequence++
	envelope := Envelope{
		ID:         fmt.Sprintf("ev-%s-%d", nodeID, store.sequence),
		NodeID:     nodeID,
		RoleLabel:  roleLabel,
		Provider:   provider,
		CapturedAt: store.now().UTC(),
		Payload:    payload,
		Summary:    summary,
		Claims:     ExtractClaims(payload),
	}
	store.envelopes[nodeID] = append(store.envelopes[nodeID], envelope)

	for index, completedID := range store.completed {
		if completedID == nodeID {
			store.completed = append(store.completed[:index], store.completed[index+1:]...)
			break
		}
	}
	store.completed = append(store.completed, nodeID)

	previous := store.memory[nodeID]
	refs := make([]string, 0, len(previous.EnvelopeRefs)+1)
	refs = append(refs, previous.EnvelopeRefs...)
	store.memory[nodeID] = Memory{
		NodeID:        nodeID,
		RoleLabel:     roleLabel,
		LatestSummary: summary,
		EnvelopeRefs:  append(refs, envelope.ID),
		UpdatedAt:     envelope.CapturedAt,
	}
	return envelope
}

// Envelopes returns the envelopes of nodeID in append order.
func (store *Store) Envelopes(nodeID string) []Envelope {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return append([]Envelope(nil), store.envelopes[nodeID]...)
}

// Latest returns the most recent envelope of nodeID.
func (store *Store) Latest(nodeID string) (Envelope, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	list := store.envelopes[nodeID]
	if len(list) == 0 {
		return Envelope{}, false
	}
	return list[len(list)-1], true
}

// LatestFrom returns the latest envelope of each listed source that has one,
// in the order the sources are given.
func (store *Store) LatestFrom(nodeIDs []string) []Envelope {
	packets := make([]Envelope, 0, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		if envelope, ok := store.Latest(nodeID); ok {
			packets = append(packets, envelope)
		}
	}
	return packets
}

// AllLatest returns the latest envelope of every node in completion order.
func (store *Store) AllLatest() []Envelope {
	store.mu.RLock()
	order := append([]string(nil), store.completed...)
	store.mu.RUnlock()
	return store.LatestFrom(order)
}

// Snapshot copies every envelope list, keyed by node id.
func (store *Store) Snapshot() map[string][]Envelope {
	store.mu.RLock()
	defer store.mu.RUnlock()
	snapshot := make(map[string][]Envelope, len(store.envelopes))
	for nodeID, list := range store.envelopes {
		snapshot[nodeID] = append([]Envelope(nil), list...)
	}
	return snapshot
}

// Memory copies the responsibility memory of every node.
func (store *Store) Memory() map[string]Memory {
	store.mu.RLock()
	defer store.mu.RUnlock()
	snapshot := make(map[string]Memory, len(store.memory))
	for nodeID, memory := range store.memory {
		memory.EnvelopeRefs = append([]string(nil), memory.EnvelopeRefs...)
		snapshot[nodeID] = memory
	}
	return snapshot
}

// MemoryExcept returns every memory entry except the one owned by nodeID,
// ordered by last update.
func (store *Store) MemoryExcept(nodeID string) []Memory {
	memory := store.Memory()
	entries := make([]Memory, 0, len(memory))
	for owner, entry := range memory {
		if owner != nodeID {
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(left, right int) bool {
		if entries[left].UpdatedAt.Equal(entries[right].UpdatedAt) {
			return entries[left].NodeID < entries[right].NodeID
		}
		return entries[left].UpdatedAt.Before(entries[right].UpdatedAt)
	})
	return entries
}

// SynthesisPacket is the structured input a join or final synthesis node
// receives instead of raw upstream text.
type SynthesisPacket struct {
	Question        string            `json:"question"`
	EvidencePackets []Envelope        `json:"evidencePackets"`
	Conflicts       []ConflictEntry   `json:"conflicts"`
	RunMemory       map[string]Memory `json:"runMemory"`
}

// BuildSynthesisPacket assembles the packet from the latest envelope of each
// upstream source.
func BuildSynthesisPacket(question string, packets []Envelope, memory map[string]Memory) SynthesisPacket {
	return SynthesisPacket{
		Question:        question,
		EvidencePackets: packets,
		Conflicts:       BuildConflictLedger(packets),
		RunMemory:       memory,
	}
}
