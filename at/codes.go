package at

// Error and event code tables for the V2 firmware. The raw code is always
// authoritative; the texts here are a best-effort mapping and are kept apart
// from the parsing logic because other firmware revisions use different
// tables.

// ErrorCode is a module error code as returned after an ERROR reply.
type ErrorCode int

const (
	CodeArgErr     ErrorCode = -1
	CodeArgNotFind ErrorCode = -2
	CodeJoinABPErr ErrorCode = -3
	CodeJoinOTAAEr ErrorCode = -4
	CodeNotJoined  ErrorCode = -5
	CodeMACBusy    ErrorCode = -6
	CodeTxErr      ErrorCode = -7
	CodeInterErr   ErrorCode = -8
	CodeWriteCfg   ErrorCode = -11
	CodeReadCfg    ErrorCode = -12
	CodeTxLenLimit ErrorCode = -13
	CodeUnknown    ErrorCode = -20
)

var errorMessages = map[ErrorCode]string{
	CodeArgErr:     "invalid argument",
	CodeArgNotFind: "argument not found",
	CodeJoinABPErr: "ABP join error",
	CodeJoinOTAAEr: "OTAA join error",
	CodeNotJoined:  "not joined",
	CodeMACBusy:    "MAC busy",
	CodeTxErr:      "transmit error",
	CodeInterErr:   "inter error",
	CodeWriteCfg:   "write configuration error",
	CodeReadCfg:    "read configuration error",
	CodeTxLenLimit: "transmit length limit exceeded",
	CodeUnknown:    "unknown error",
}

// String returns the human-readable description of the code. Codes outside
// the documented table map to the unknown-error text.
func (c ErrorCode) String() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return errorMessages[CodeUnknown]
}

// EventCode is the status field of an at+recv= event line.
type EventCode int

const (
	EventRecvData         EventCode = 0
	EventTxConfirmed      EventCode = 1
	EventTxUnconfirmed    EventCode = 2
	EventJoinedSuccess    EventCode = 3
	EventJoinedFailed     EventCode = 4
	EventTxTimeout        EventCode = 5
	EventRx2Timeout       EventCode = 6
	EventDownlinkRepeated EventCode = 7
	EventWakeUp           EventCode = 8
	EventP2PTxComplete    EventCode = 9
	EventUnknown          EventCode = 100
)

var eventMessages = map[EventCode]string{
	EventRecvData:         "received data",
	EventTxConfirmed:      "tx confirmed",
	EventTxUnconfirmed:    "tx unconfirmed",
	EventJoinedSuccess:    "join succeeded",
	EventJoinedFailed:     "join failed",
	EventTxTimeout:        "tx timeout",
	EventRx2Timeout:       "rx2 timeout",
	EventDownlinkRepeated: "downlink repeated",
	EventWakeUp:           "wake up",
	EventP2PTxComplete:    "p2p tx complete",
	EventUnknown:          "unknown event",
}

func (c EventCode) String() string {
	if msg, ok := eventMessages[c]; ok {
		return msg
	}
	return eventMessages[EventUnknown]
}
