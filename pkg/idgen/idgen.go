// Package idgen centralizes identifier generation: UUIDs for every entity
// (per the specification's "all identifiers are UUIDs" requirement) and a
// snowflake sequence written to the domain event store's internal sequence
// column, grounded in the donor's billing_events table which used
// snowflake.ID as its primary key.
package idgen

import (
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// NewID generates a new random entity identifier.
func NewID() uuid.UUID {
	return uuid.New()
}

// Sequencer issues monotonically increasing int64 sequence numbers stored on
// each domain event row, never as an externally visible entity id. No query
// orders by them: event reads break timestamp ties on event_id.
type Sequencer struct {
	node *snowflake.Node
}

func NewSequencer(node *snowflake.Node) *Sequencer {
	return &Sequencer{node: node}
}

func (s *Sequencer) Next() int64 {
	return int64(s.node.Generate())
}
