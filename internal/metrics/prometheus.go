package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kvring"

// ControllerMetrics holds Prometheus metrics for the cluster controller
type ControllerMetrics struct {
	MembershipOpsTotal     *prometheus.CounterVec
	MembershipOpDuration   *prometheus.HistogramVec
	RingSize               prometheus.Gauge
	RingVersion            prometheus.Gauge
	TransfersTotal         *prometheus.CounterVec
	PartialRebalancesTotal prometheus.Counter
	DeadReportsTotal       *prometheus.CounterVec
	CompromiseReportsTotal *prometheus.CounterVec
	BroadcastFailuresTotal prometheus.Counter
	StatePersistFailures   prometheus.Counter
}

// NewControllerMetrics registers controller metrics on reg
func NewControllerMetrics(reg prometheus.Registerer) *ControllerMetrics {
	factory := promauto.With(reg)
	return &ControllerMetrics{
		MembershipOpsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "membership_operations_total",
			Help:      "Membership operations by operation and result",
		}, []string{"operation", "result"}),
		MembershipOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "membership_operation_duration_seconds",
			Help:      "Duration of membership operations",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		RingSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "ring_size",
			Help:      "Number of nodes on the ring",
		}),
		RingVersion: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "ring_version",
			Help:      "Version of the current ring",
		}),
		TransfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "transfers_total",
			Help:      "Range transfers by mode and result",
		}, []string{"mode", "result"}),
		PartialRebalancesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "partial_rebalances_total",
			Help:      "Obligations no live replica could satisfy",
		}),
		DeadReportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "dead_reports_total",
			Help:      "Dead-node reports by outcome",
		}, []string{"outcome"}),
		CompromiseReportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "compromise_reports_total",
			Help:      "Compromised-node reports by verdict",
		}, []string{"verdict"}),
		BroadcastFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "broadcast_failures_total",
			Help:      "Ring pushes a node did not accept",
		}),
		StatePersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "state_persist_failures_total",
			Help:      "Failed writes of cluster state to the state store",
		}),
	}
}

// NodeMetrics holds Prometheus metrics for a storage node
type NodeMetrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ReplicationTotal  *prometheus.CounterVec
	HeartbeatTotal    *prometheus.CounterVec
	TransferredKeys   *prometheus.CounterVec
	IntegrityMismatch *prometheus.CounterVec
	RingVersion       prometheus.Gauge
	Subscriptions     prometheus.Gauge
}

// NewNodeMetrics registers node metrics on reg
func NewNodeMetrics(reg prometheus.Registerer) *NodeMetrics {
	factory := promauto.With(reg)
	return &NodeMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "requests_total",
			Help:      "Client requests by operation and status",
		}, []string{"operation", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "request_duration_seconds",
			Help:      "Client request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		ReplicationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "replication_total",
			Help:      "Backup replication sends by result",
		}, []string{"result"}),
		HeartbeatTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "heartbeat_probes_total",
			Help:      "Successor probes by result",
		}, []string{"result"}),
		TransferredKeys: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "transferred_keys_total",
			Help:      "Keys sent during range transfers by mode",
		}, []string{"mode"}),
		IntegrityMismatch: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "integrity_mismatches_total",
			Help:      "Detected value mismatches by check",
		}, []string{"check"}),
		RingVersion: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "ring_version",
			Help:      "Version of the ring the node routes by",
		}),
		Subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "subscriptions",
			Help:      "Registered key-subscriber pairs",
		}),
	}
}
