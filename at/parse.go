package at

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports a module line that does not match the documented
// grammar. The offending raw line is preserved for diagnosis.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed response %q: %s", e.Line, e.Reason)
}

// CutOK strips the OK token from a terminal reply line and returns the
// payload that follows it. The module appends the payload directly
// ("OK0"); a ":" or space separator is tolerated. The second return value
// is false when the line is not an OK reply.
func CutOK(line string) (string, bool) {
	payload, ok := strings.CutPrefix(line, OK)
	if !ok {
		return "", false
	}
	payload = strings.TrimPrefix(payload, ":")
	return strings.TrimPrefix(payload, " "), true
}

// CutError extracts the signed numeric code from an ERROR reply line. The
// raw remainder is returned alongside so callers can preserve it verbatim;
// when the code cannot be parsed as an integer, CodeUnknown is returned and
// the raw text stays authoritative. The second return value is false when
// the line is not an ERROR reply.
func CutError(line string) (ErrorCode, string, bool) {
	raw, ok := strings.CutPrefix(line, ERROR)
	if !ok {
		return 0, "", false
	}
	raw = strings.TrimPrefix(raw, ":")
	code, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return CodeUnknown, raw, true
	}
	return ErrorCode(code), raw, true
}

// Event is a decoded asynchronous at+recv= notification.
type Event struct {
	Code EventCode
	// Fields holds the comma-separated values following the status code,
	// undecoded. RECV_DATA events decode them further via Downlink.
	Fields []string
}

// ParseEvent decodes an event line of the form
// "at+recv=<status>[,<fields>...]".
func ParseEvent(line string) (Event, error) {
	body, ok := strings.CutPrefix(line, EventPrefix)
	if !ok {
		return Event{}, &ParseError{Line: line, Reason: "missing event prefix"}
	}
	parts := strings.Split(body, ",")
	code, err := strconv.Atoi(parts[0])
	if err != nil {
		return Event{}, &ParseError{Line: line, Reason: "event status is not numeric"}
	}
	return Event{Code: EventCode(code), Fields: parts[1:]}, nil
}

// Downlink is a message received from the network, delivered as the
// asynchronous result of a send or receive operation.
type Downlink struct {
	Port int
	RSSI int // dBm, 0 when recv_ex reporting is disabled
	SNR  int // dB, 0 when recv_ex reporting is disabled
	Data []byte
}

const (
	PortMin = 1
	PortMax = 223
)

// Downlink decodes the fields of a RECV_DATA event:
// <port>[,<rssi>,<snr>],<len>[,<hexdata>]. The rssi/snr pair is present
// only when extended receive reporting is enabled on the module.
func (e Event) Downlink() (Downlink, error) {
	line := EventPrefix + strconv.Itoa(int(e.Code)) + "," + strings.Join(e.Fields, ",")
	if e.Code != EventRecvData {
		return Downlink{}, &ParseError{Line: line, Reason: "not a receive event"}
	}
	fields := e.Fields
	if len(fields) < 2 {
		return Downlink{}, &ParseError{Line: line, Reason: "too few downlink fields"}
	}

	var d Downlink
	var err error
	if d.Port, err = strconv.Atoi(fields[0]); err != nil {
		return Downlink{}, &ParseError{Line: line, Reason: "port is not numeric"}
	}
	if d.Port < PortMin || d.Port > PortMax {
		return Downlink{}, &ParseError{Line: line, Reason: "port out of range"}
	}
	fields = fields[1:]

	if len(fields) > 2 {
		if d.RSSI, err = strconv.Atoi(fields[0]); err != nil {
			return Downlink{}, &ParseError{Line: line, Reason: "rssi is not numeric"}
		}
		if d.SNR, err = strconv.Atoi(fields[1]); err != nil {
			return Downlink{}, &ParseError{Line: line, Reason: "snr is not numeric"}
		}
		fields = fields[2:]
	}

	length, err := strconv.Atoi(fields[0])
	if err != nil || length < 0 {
		return Downlink{}, &ParseError{Line: line, Reason: "length is not numeric"}
	}
	if length > 0 {
		if len(fields) < 2 {
			return Downlink{}, &ParseError{Line: line, Reason: "missing payload"}
		}
		if d.Data, err = DecodeHex(fields[1]); err != nil {
			return Downlink{}, err
		}
		if len(d.Data) != length {
			return Downlink{}, &ParseError{Line: line, Reason: "payload length mismatch"}
		}
	}
	return d, nil
}

// DecodeHex decodes an inline hex payload. Odd length or invalid digits
// yield a ParseError.
func DecodeHex(s string) ([]byte, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, &ParseError{Line: s, Reason: "invalid hex payload"}
	}
	return data, nil
}

// splitInts parses a comma-separated list of exactly n signed decimal
// integers.
func splitInts(payload string, n int) ([]int, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != n {
		return nil, &ParseError{Line: payload, Reason: fmt.Sprintf("expected %d fields", n)}
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, &ParseError{Line: payload, Reason: "field is not numeric"}
		}
		out[i] = v
	}
	return out, nil
}

// ParseSignal decodes the "signal" reply: "<rssi>,<snr>".
func ParseSignal(payload string) (rssi, snr int, err error) {
	v, err := splitInts(payload, 2)
	if err != nil {
		return 0, 0, err
	}
	return v[0], v[1], nil
}

// ParseLinkCnt decodes the "link_cnt" reply: "<uplink>,<downlink>".
func ParseLinkCnt(payload string) (up, down uint32, err error) {
	v, err := splitInts(payload, 2)
	if err != nil {
		return 0, 0, err
	}
	if v[0] < 0 || v[1] < 0 {
		return 0, 0, &ParseError{Line: payload, Reason: "negative counter"}
	}
	return uint32(v[0]), uint32(v[1]), nil
}

// RadioStats is the read-only counter snapshot returned by the status
// command.
type RadioStats struct {
	TxSuccess int
	TxErr     int
	RxSuccess int
	RxTimeout int
	RxErr     int
	RSSI      int
	SNR       int
}

// ParseRadioStats decodes the "status" reply, a 7-tuple of signed decimals.
func ParseRadioStats(payload string) (RadioStats, error) {
	v, err := splitInts(payload, 7)
	if err != nil {
		return RadioStats{}, err
	}
	return RadioStats{
		TxSuccess: v[0],
		TxErr:     v[1],
		RxSuccess: v[2],
		RxTimeout: v[3],
		RxErr:     v[4],
		RSSI:      v[5],
		SNR:       v[6],
	}, nil
}

// RFConfig holds the LoRaP2P radio parameters.
type RFConfig struct {
	Frequency   uint32 // Hz, 860000000-929900000
	SpreadFact  int    // 6-12
	Bandwidth   int    // 0:125kHz 1:250kHz 2:500kHz
	CodingRate  int    // 1:4/5 2:4/6 3:4/7 4:4/8
	PreambleLen int    // 8-65535
	Power       int    // dBm, 5-20
}

// ParseRFConfig decodes the "rf_config" reply, a 6-tuple of decimals.
func ParseRFConfig(payload string) (RFConfig, error) {
	v, err := splitInts(payload, 6)
	if err != nil {
		return RFConfig{}, err
	}
	if v[0] < 0 {
		return RFConfig{}, &ParseError{Line: payload, Reason: "negative frequency"}
	}
	return RFConfig{
		Frequency:   uint32(v[0]),
		SpreadFact:  v[1],
		Bandwidth:   v[2],
		CodingRate:  v[3],
		PreambleLen: v[4],
		Power:       v[5],
	}, nil
}

// ABPInfo is the session information needed to re-join in ABP mode after
// an OTAA join.
type ABPInfo struct {
	NetworkID string
	DevAddr   string
	NwksKey   string
	AppsKey   string
}

// ParseABPInfo decodes the "abp_info" reply.
func ParseABPInfo(payload string) (ABPInfo, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != 4 {
		return ABPInfo{}, &ParseError{Line: payload, Reason: "expected 4 fields"}
	}
	return ABPInfo{
		NetworkID: parts[0],
		DevAddr:   parts[1],
		NwksKey:   parts[2],
		AppsKey:   parts[3],
	}, nil
}

// ConfigEntry is one key/value pair of the module configuration.
type ConfigEntry struct {
	Key   string
	Value string
}

// ParseConfigEntries decodes the intermediate lines of a batch config
// reply. Each line is "key:value" (or "key=value"); order is preserved.
func ParseConfigEntries(lines []string) ([]ConfigEntry, error) {
	entries := make([]ConfigEntry, 0, len(lines))
	for _, line := range lines {
		key, value, found := strings.Cut(line, ":")
		if !found {
			key, value, found = strings.Cut(line, "=")
		}
		if !found || key == "" {
			return nil, &ParseError{Line: line, Reason: "missing key/value separator"}
		}
		entries = append(entries, ConfigEntry{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
		})
	}
	return entries, nil
}

// ParseMode decodes a "mode" reply payload.
func ParseMode(payload string) (Mode, error) {
	switch strings.TrimSpace(payload) {
	case "0":
		return ModeLoRaWAN, nil
	case "1":
		return ModeLoRaP2P, nil
	}
	return 0, &ParseError{Line: payload, Reason: "unknown mode token"}
}

// ParseInt decodes a bare decimal reply payload (dr, recv_ex).
func ParseInt(payload string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return 0, &ParseError{Line: payload, Reason: "not numeric"}
	}
	return v, nil
}
