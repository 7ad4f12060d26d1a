package model

import (
	"time"

	"github.com/devrev/kvring/internal/ring"
)

// ClusterState is the controller's persisted view of the cluster.
// Idle nodes are not stored; they are the inventory minus Running.
type ClusterState struct {
	Running       []ring.NodeID        `json:"running"`
	Ring          ring.Snapshot        `json:"ring"`
	RingVersion   uint64               `json:"ring_version"`
	LastRemoved   *ring.NodeID         `json:"last_removed,omitempty"`
	CacheSize     int                  `json:"cache_size"`
	CacheStrategy string               `json:"cache_strategy"`
	LastOperation *MembershipOperation `json:"last_operation,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// IsEmpty reports whether no cluster is running
func (s *ClusterState) IsEmpty() bool {
	return s == nil || len(s.Running) == 0
}

// MembershipOperation records one membership change
type MembershipOperation struct {
	OperationID string          `json:"operation_id"`
	Type        OperationType   `json:"type"`
	Node        ring.NodeID     `json:"node"`
	Status      OperationStatus `json:"status"`
	Transfers   int             `json:"transfers"`
	Partial     int             `json:"partial"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// OperationType represents the kind of membership change
type OperationType string

const (
	// OperationInitialize builds a fresh ring
	OperationInitialize OperationType = "initialize"
	// OperationAddNode adds an idle node to the ring
	OperationAddNode OperationType = "add_node"
	// OperationRemoveNode drops a node from the ring
	OperationRemoveNode OperationType = "remove_node"
	// OperationReplace swaps a dead or compromised node for an idle one
	OperationReplace OperationType = "replace"
	// OperationShutdown drains and stops the cluster
	OperationShutdown OperationType = "shutdown"
)

// OperationStatus represents the outcome of a membership change
type OperationStatus string

const (
	// OperationInProgress indicates the change is running
	OperationInProgress OperationStatus = "in_progress"
	// OperationCompleted indicates every transfer succeeded
	OperationCompleted OperationStatus = "completed"
	// OperationDegraded indicates the ring changed but some ranges were not copied
	OperationDegraded OperationStatus = "degraded"
	// OperationFailed indicates the ring was left unchanged
	OperationFailed OperationStatus = "failed"
)
