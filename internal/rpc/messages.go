package rpc

import "github.com/devrev/kvring/internal/ring"

// Status is the outcome of a client data-plane request
type Status string

const (
	StatusPutSuccess     Status = "PUT_SUCCESS"
	StatusPutUpdate      Status = "PUT_UPDATE"
	StatusPutError       Status = "PUT_ERROR"
	StatusDeleteSuccess  Status = "DELETE_SUCCESS"
	StatusDeleteError    Status = "DELETE_ERROR"
	StatusGetSuccess     Status = "GET_SUCCESS"
	StatusGetError       Status = "GET_ERROR"
	StatusSubscribed     Status = "SUBSCRIBE_SUCCESS"
	StatusStopped        Status = "SERVER_STOPPED"
	StatusWriteLock      Status = "SERVER_WRITE_LOCK"
	StatusNotResponsible Status = "SERVER_NOT_RESPONSIBLE"
)

// Empty carries no fields
type Empty struct{}

// Ack acknowledges a command
type Ack struct {
	Message string `json:"message,omitempty"`
}

// InitRequest configures a freshly launched node
type InitRequest struct {
	CacheSize int           `json:"cache_size"`
	Strategy  string        `json:"strategy"`
	Ring      ring.Snapshot `json:"ring"`
}

// TransferRequest asks a node to ship an arc of its keys to Destination
type TransferRequest struct {
	Destination ring.NodeID   `json:"destination"`
	Range       ring.Interval `json:"range"`
}

// TransferResponse reports how many keys were shipped
type TransferResponse struct {
	Keys int `json:"keys"`
}

// ApplyRingRequest pushes a new ring to a node
type ApplyRingRequest struct {
	Ring ring.Snapshot `json:"ring"`
}

// HealthResponse describes node lifecycle state
type HealthResponse struct {
	Node        ring.NodeID `json:"node"`
	Initialized bool        `json:"initialized"`
	Started     bool        `json:"started"`
	WriteLocked bool        `json:"write_locked"`
	RingVersion uint64      `json:"ring_version"`
}

// SubscriptionRequest names a key and the client listening for it
type SubscriptionRequest struct {
	Key        string `json:"key"`
	Subscriber string `json:"subscriber"`
}

// HeartbeatRequest is a liveness probe carrying the sender's subscriptions
type HeartbeatRequest struct {
	From          ring.NodeID         `json:"from"`
	Subscriptions map[string][]string `json:"subscriptions,omitempty"`
}

// HeartbeatResponse answers a probe
type HeartbeatResponse struct {
	RingVersion uint64 `json:"ring_version"`
}

// Entry is one key-value pair
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// IngestRequest stores a batch of entries shipped by a range transfer
type IngestRequest struct {
	Entries []Entry `json:"entries"`
}

// ReplicateRequest copies one committed write to a backup.
// An empty Value is a delete. Client is the callback address of the
// writer when it asked for write confirmation.
type ReplicateRequest struct {
	Key         string      `json:"key"`
	Value       string      `json:"value"`
	Coordinator ring.NodeID `json:"coordinator"`
	Client      string      `json:"client,omitempty"`
}

// PutRequest writes Value under Key; an empty Value deletes Key
type PutRequest struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Client string `json:"client,omitempty"`
}

// GetRequest reads Key
type GetRequest struct {
	Key string `json:"key"`
}

// KVResponse answers data-plane requests. Ring is set on
// SERVER_NOT_RESPONSIBLE so the caller can re-route.
type KVResponse struct {
	Status Status         `json:"status"`
	Key    string         `json:"key"`
	Value  string         `json:"value,omitempty"`
	Ring   *ring.Snapshot `json:"ring,omitempty"`
}

// VerifyReadRequest asks a replica to confirm a value Suspect served
type VerifyReadRequest struct {
	Key     string      `json:"key"`
	Value   string      `json:"value"`
	Found   bool        `json:"found"`
	Suspect ring.NodeID `json:"suspect"`
}

// VerifyReadResponse carries the verifier's own copy
type VerifyReadResponse struct {
	Consistent bool   `json:"consistent"`
	Found      bool   `json:"found"`
	Value      string `json:"value,omitempty"`
}

// NodeReport names a suspect node and the node reporting it
type NodeReport struct {
	Suspect  ring.NodeID `json:"suspect"`
	Reporter ring.NodeID `json:"reporter"`
}

// ReportResponse tells the reporter what the controller did
type ReportResponse struct {
	Action string `json:"action"`
}

// InitializeRequest starts a cluster of Size nodes
type InitializeRequest struct {
	Size      int    `json:"size"`
	CacheSize int    `json:"cache_size"`
	Strategy  string `json:"strategy"`
}

// AddNodeRequest starts one more node
type AddNodeRequest struct {
	CacheSize int    `json:"cache_size"`
	Strategy  string `json:"strategy"`
}

// RemoveNodeRequest names the node to remove, by inventory index or key.
// Node takes precedence when set.
type RemoveNodeRequest struct {
	Index int    `json:"index"`
	Node  string `json:"node,omitempty"`
}

// ClusterResponse describes cluster membership
type ClusterResponse struct {
	Ring        ring.Snapshot `json:"ring"`
	Running     []ring.NodeID `json:"running"`
	Idle        []ring.NodeID `json:"idle"`
	LastRemoved string        `json:"last_removed,omitempty"`
}

// Notification tells a subscriber a key changed
type Notification struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Deleted bool   `json:"deleted"`
}

// ConfirmWriteRequest asks a client whether it wrote Value under Key
type ConfirmWriteRequest struct {
	Key         string      `json:"key"`
	Value       string      `json:"value"`
	Coordinator ring.NodeID `json:"coordinator"`
}

// ConfirmWriteResponse carries the client's view of its last write.
// Known is false when the client has no record of writing Key.
type ConfirmWriteResponse struct {
	Known bool   `json:"known"`
	Match bool   `json:"match"`
	Value string `json:"value,omitempty"`
}
