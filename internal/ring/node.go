package ring

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// NodeID identifies a storage node by its network endpoint
type NodeID struct {
	Address string `json:"address" yaml:"address"`
	Port    int    `json:"port" yaml:"port"`
}

// String returns the node key in "address:port" form
func (n NodeID) String() string {
	return n.Address + ":" + strconv.Itoa(n.Port)
}

// Hash returns the ring position of the node
func (n NodeID) Hash() string {
	return Hash(n.String())
}

// IsZero reports whether the id is unset
func (n NodeID) IsZero() bool {
	return n.Address == "" && n.Port == 0
}

// ParseNodeID parses an "address:port" node key
func ParseNodeID(key string) (NodeID, error) {
	host, portStr, err := net.SplitHostPort(key)
	if err != nil {
		return NodeID{}, fmt.Errorf("invalid node key %q: %w", key, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return NodeID{}, fmt.Errorf("invalid port in node key %q", key)
	}
	if host == "" {
		return NodeID{}, fmt.Errorf("missing address in node key %q", key)
	}
	return NodeID{Address: host, Port: port}, nil
}

// Hash computes the ring position of a key: the uppercase hex MD5 digest.
// Positions are compared lexicographically.
func Hash(key string) string {
	sum := md5.Sum([]byte(key))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
