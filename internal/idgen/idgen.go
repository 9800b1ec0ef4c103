// Package idgen allocates order and trade identifiers. Snowflake ids are
// monotonically increasing (41-bit millisecond timestamp, node id, per-ms
// sequence), which gives the sequencer its increasing-id guarantee for free.
package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

type Generator struct {
	node *snowflake.Node
}

func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("idgen: node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

func (g *Generator) Next() int64 { return g.node.Generate().Int64() }
