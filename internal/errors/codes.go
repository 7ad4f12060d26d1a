package errors

import (
	stderrors "errors"
	"fmt"
	"syscall"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorDomain tags the error details attached to gRPC statuses
const errorDomain = "kvring"

// ErrorCode represents internal error codes for cluster operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Caller errors
	ErrCodeInvalidArgument    ErrorCode = 1000
	ErrCodeInvalidClusterSize ErrorCode = 1001
	ErrCodeNotInitialized     ErrorCode = 1002
	ErrCodeAlreadyInitialized ErrorCode = 1003
	ErrCodeNodeNotFound       ErrorCode = 1004
	ErrCodeInvalidSnapshot    ErrorCode = 1005

	// Cluster errors
	ErrCodeInternal         ErrorCode = 2000
	ErrCodeNodeUnreachable  ErrorCode = 2001
	ErrCodeNoIdleNodes      ErrorCode = 2002
	ErrCodePartialRebalance ErrorCode = 2003
)

// String returns the name of the code
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "OK"
	case ErrCodeInvalidArgument:
		return "InvalidArgument"
	case ErrCodeInvalidClusterSize:
		return "InvalidClusterSize"
	case ErrCodeNotInitialized:
		return "NotInitialized"
	case ErrCodeAlreadyInitialized:
		return "AlreadyInitialized"
	case ErrCodeNodeNotFound:
		return "NodeNotFound"
	case ErrCodeInvalidSnapshot:
		return "InvalidSnapshot"
	case ErrCodeNodeUnreachable:
		return "NodeUnreachable"
	case ErrCodeNoIdleNodes:
		return "NoIdleNodes"
	case ErrCodePartialRebalance:
		return "PartialRebalance"
	default:
		return "Internal"
	}
}

// ClusterError represents a structured error with code and context
type ClusterError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *ClusterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *ClusterError) Unwrap() error {
	return e.Cause
}

// GRPCStatus lets status.FromError and the grpc server recover the code.
// The exact code travels as an ErrorInfo detail.
func (e *ClusterError) GRPCStatus() *status.Status {
	st := status.New(e.toGRPCCode(), e.Error())
	withInfo, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason: e.Code.String(),
		Domain: errorDomain,
	})
	if err != nil {
		return st
	}
	return withInfo
}

// toGRPCCode maps internal error codes to gRPC codes
func (e *ClusterError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeInvalidSnapshot:
		return codes.InvalidArgument
	case ErrCodeInvalidClusterSize, ErrCodeNotInitialized:
		return codes.FailedPrecondition
	case ErrCodeAlreadyInitialized:
		return codes.AlreadyExists
	case ErrCodeNodeNotFound:
		return codes.NotFound
	case ErrCodeNodeUnreachable:
		return codes.Unavailable
	case ErrCodeNoIdleNodes:
		return codes.ResourceExhausted
	case ErrCodePartialRebalance:
		return codes.Aborted
	default:
		return codes.Internal
	}
}

// NewClusterError creates a new ClusterError
func NewClusterError(code ErrorCode, message string, cause error) *ClusterError {
	return &ClusterError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *ClusterError) WithDetail(key string, value interface{}) *ClusterError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *ClusterError {
	return NewClusterError(ErrCodeInvalidArgument, message, cause)
}

func InvalidClusterSize(size, minimum int) *ClusterError {
	return NewClusterError(ErrCodeInvalidClusterSize, fmt.Sprintf("cluster size %d is below the minimum of %d", size, minimum), nil).
		WithDetail("size", size).
		WithDetail("minimum", minimum)
}

func NotInitialized() *ClusterError {
	return NewClusterError(ErrCodeNotInitialized, "cluster is not initialized", nil)
}

func AlreadyInitialized(running int) *ClusterError {
	return NewClusterError(ErrCodeAlreadyInitialized, fmt.Sprintf("cluster already running with %d nodes", running), nil).
		WithDetail("running", running)
}

func NodeNotFound(node string) *ClusterError {
	return NewClusterError(ErrCodeNodeNotFound, fmt.Sprintf("node not found: %s", node), nil).
		WithDetail("node", node)
}

func InvalidSnapshot(cause error) *ClusterError {
	return NewClusterError(ErrCodeInvalidSnapshot, "invalid ring snapshot", cause)
}

func NodeUnreachable(node string, cause error) *ClusterError {
	return NewClusterError(ErrCodeNodeUnreachable, fmt.Sprintf("node %s is unreachable", node), cause).
		WithDetail("node", node)
}

func NoIdleNodes() *ClusterError {
	return NewClusterError(ErrCodeNoIdleNodes, "no idle nodes left to start", nil)
}

func PartialRebalance(holder string, rangeStart, rangeEnd string) *ClusterError {
	return NewClusterError(ErrCodePartialRebalance, fmt.Sprintf("no live replica could supply range (%s, %s] for %s", rangeStart, rangeEnd, holder), nil).
		WithDetail("node", holder).
		WithDetail("range_start", rangeStart).
		WithDetail("range_end", rangeEnd)
}

func InternalError(message string, cause error) *ClusterError {
	return NewClusterError(ErrCodeInternal, message, cause)
}

// CodeOf returns the code of the first ClusterError in err's chain,
// falling back to the gRPC status code carried over the wire
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var ce *ClusterError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	if st, ok := status.FromError(err); ok {
		return codeFromStatus(st)
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// FromError converts an error received over gRPC back into a ClusterError
func FromError(err error) *ClusterError {
	if err == nil {
		return nil
	}
	var ce *ClusterError
	if stderrors.As(err, &ce) {
		return ce
	}
	st, ok := status.FromError(err)
	if !ok {
		return InternalError("unexpected error", err)
	}
	return NewClusterError(codeFromStatus(st), st.Message(), nil)
}

// IsUnreachable reports whether err means the remote end could not be reached
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClusterError
	if stderrors.As(err, &ce) && ce.Code == ErrCodeNodeUnreachable {
		return true
	}
	if stderrors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded:
			return true
		}
	}
	return false
}

func codeFromStatus(st *status.Status) ErrorCode {
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.Domain != errorDomain {
			continue
		}
		if code, ok := codesByName[info.Reason]; ok {
			return code
		}
	}
	return fromGRPCCode(st.Code())
}

var codesByName = map[string]ErrorCode{
	ErrCodeInvalidArgument.String():    ErrCodeInvalidArgument,
	ErrCodeInvalidClusterSize.String(): ErrCodeInvalidClusterSize,
	ErrCodeNotInitialized.String():     ErrCodeNotInitialized,
	ErrCodeAlreadyInitialized.String(): ErrCodeAlreadyInitialized,
	ErrCodeNodeNotFound.String():       ErrCodeNodeNotFound,
	ErrCodeInvalidSnapshot.String():    ErrCodeInvalidSnapshot,
	ErrCodeInternal.String():           ErrCodeInternal,
	ErrCodeNodeUnreachable.String():    ErrCodeNodeUnreachable,
	ErrCodeNoIdleNodes.String():        ErrCodeNoIdleNodes,
	ErrCodePartialRebalance.String():   ErrCodePartialRebalance,
}

func fromGRPCCode(code codes.Code) ErrorCode {
	switch code {
	case codes.OK:
		return ErrCodeOK
	case codes.InvalidArgument:
		return ErrCodeInvalidArgument
	case codes.FailedPrecondition:
		return ErrCodeNotInitialized
	case codes.AlreadyExists:
		return ErrCodeAlreadyInitialized
	case codes.NotFound:
		return ErrCodeNodeNotFound
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrCodeNodeUnreachable
	case codes.ResourceExhausted:
		return ErrCodeNoIdleNodes
	case codes.Aborted:
		return ErrCodePartialRebalance
	default:
		return ErrCodeInternal
	}
}
