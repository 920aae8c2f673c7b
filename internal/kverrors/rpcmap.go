package kverrors

// ReturnValue is the RPC-layer outcome kind, carried by
// both the server (to pick an HTTP status) and the remote client (decoded
// back from that status).
type ReturnValue int

const (
	RVSuccess ReturnValue = iota
	RVInvalid
	RVLogic
	RVNoImpl
	RVTimeout
	RVInternal
	RVNetwork // client-side only: never produced by the server
	RVMisc
)

// ToReturnValue classifies err per the taxonomy-to-RV mapping implied by
// the error taxonomy's propagation rules: logic errors (no record, duplicate,
// inconsistent CAS, cursor past end) all map to RVLogic, since they are
// reported to the caller without side effects and share the 450 status.
func ToReturnValue(err error) ReturnValue {
	if err == nil {
		return RVSuccess
	}
	e, ok := As(err)
	if !ok {
		return RVMisc
	}
	switch e.Code {
	case CodeSuccess:
		return RVSuccess
	case CodeInvalid, CodeCapacityTooLarge:
		return RVInvalid
	case CodeLogicNoRecord, CodeLogicDuplicate, CodeLogicInconsistent, CodeCursorPastEnd:
		return RVLogic
	case CodeNotImplemented:
		return RVNoImpl
	case CodeTimeout:
		return RVTimeout
	case CodeInternal, CodeSystem:
		return RVInternal
	case CodeNetwork:
		return RVNetwork
	default:
		return RVMisc
	}
}

// ToHTTPStatus implements the RV -> HTTP code table.
func ToHTTPStatus(rv ReturnValue) int {
	switch rv {
	case RVSuccess:
		return 200
	case RVInvalid:
		return 400
	case RVLogic:
		return 450
	case RVNoImpl:
		return 501
	case RVTimeout:
		return 503
	case RVInternal:
		return 500
	case RVNetwork:
		return 503 // the client never receives its own 200..5xx from itself
	default:
		return 500 // EMISC 5xx fallback
	}
}

// ErrorToHTTPStatus is the composition used by the RPC worker and the
// gateway's HTTP parse-error path. CodeCapacityTooLarge is special-cased to
// 413: the RV table collapses it into RVInvalid's 400 for RPC/binary
// callers (mirroring the RPC layer's own return-value enum, which has no
// separate "too large" entry), but plain HTTP has a dedicated status for
// it and the taxonomy lists capacity as its own category distinct from a
// malformed request.
func ErrorToHTTPStatus(err error) int {
	if e, ok := As(err); ok && e.Code == CodeCapacityTooLarge {
		return 413
	}
	return ToHTTPStatus(ToReturnValue(err))
}
