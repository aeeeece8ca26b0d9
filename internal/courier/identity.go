package courier

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewNodeID generates a process-unique node identity. The role tag makes
// ids readable in key scans; the uuid and timestamp make them unique among
// every node sharing a broker.
func NewNodeID(role string) string {
	if role == "" {
		role = DefaultRole
	}
	return fmt.Sprintf("%s-%d-%s", role, time.Now().UnixMilli(), uuid.NewString())
}

// Namespace builds broker keys and channel names from a configured prefix.
// It is a pure value; two namespaces with the same prefix build identical
// names.
type Namespace struct {
	prefix string
}

// NewNamespace creates a namespace. An empty prefix produces unprefixed
// keys.
func NewNamespace(prefix string) Namespace {
	return Namespace{prefix: prefix}
}

// Key joins segments with ":" under the configured prefix.
func (ns Namespace) Key(segments ...string) string {
	joined := strings.Join(segments, ":")
	if ns.prefix == "" {
		return joined
	}
	return ns.prefix + ":" + joined
}

// HeartbeatKey names the liveness key for a (service, node) pair.
func (ns Namespace) HeartbeatKey(service, nodeID string) string {
	return ns.Key(TAG_SERVICE, service, nodeID)
}

// ServicePattern matches the heartbeat keys of every live instance of a
// service.
func (ns Namespace) ServicePattern(service string) string {
	return ns.Key(TAG_SERVICE, service, "*")
}

// ListenChannel names the inbound channel a node subscribes to. Exactly one
// node subscribes to each listen channel; it is a pull point, not
// broadcast.
func (ns Namespace) ListenChannel(nodeID string) string {
	return ns.Key(TAG_LISTEN, nodeID)
}

// NodePattern matches every key bearing a node id, whatever its tag. Used
// by teardown to sweep a node's keys in one scan.
func NodePattern(nodeID string) string {
	return "*" + nodeID + "*"
}
