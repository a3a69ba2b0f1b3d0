package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// SnowflakeNode reads the node ID from SNOWFLAKE_NODE, defaulting to 1.
func SnowflakeNode() int64 {
	nodeID, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64)
	if err != nil {
		return 1
	}
	return nodeID
}

// NewID returns a snowflake ID from the process-wide node. The node is built
// lazily from SNOWFLAKE_NODE; an invalid node falls back to node 1.
func NewID() int64 {
	nodeOnce.Do(func() {
		n, err := snowflake.NewNode(SnowflakeNode())
		if err != nil {
			n, _ = snowflake.NewNode(1)
		}
		node = n
	})
	return node.Generate().Int64()
}
