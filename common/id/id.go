package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	mu   sync.Mutex
)

// Init sets the Snowflake node for this process. The webhook server and the
// worker use different node IDs so ids never collide across binaries.
func Init(nodeID int64) error {
	mu.Lock()
	defer mu.Unlock()

	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	node = n
	return nil
}

// New returns a time-ordered unique int64. Subscriptions and tick correlation
// ids use it. Without Init the process falls back to node 0.
func New() int64 {
	mu.Lock()
	if node == nil {
		node, _ = snowflake.NewNode(0)
	}
	n := node
	mu.Unlock()

	return n.Generate().Int64()
}
