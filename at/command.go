package at

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidArgument is returned by command encoders when a parameter is
// rejected before any I/O takes place.
var ErrInvalidArgument = errors.New("invalid argument")

// Wire frames a command body for the serial line: "at+<cmd>\r\n".
func Wire(cmd string) []byte {
	return []byte(CommandPrefix + cmd + EOL)
}

// Commands without parameters.
const (
	CmdVersion    = "version"
	CmdSleep      = "sleep"
	CmdReload     = "reload"
	CmdModeGet    = "mode"
	CmdRecvExGet  = "recv_ex"
	CmdBandGet    = "band"
	CmdJoinOTAA   = "join=otaa"
	CmdJoinABP    = "join=abp"
	CmdSignal     = "signal"
	CmdDRGet      = "dr"
	CmdLinkCntGet = "link_cnt"
	CmdABPInfo    = "abp_info"
	CmdConfigAll  = "get_config=all"
	CmdRFConfig   = "rf_config"
	CmdTxStop     = "tx_stop"
	CmdRxStop     = "rx_stop"
	CmdStatus     = "status"
	CmdStatusClr  = "status=0"
)

// WakeChar is written raw (no framing) to wake a sleeping module; the
// module acknowledges with a wake-up event.
const WakeChar = "*"

// SetMode encodes the mode command.
func SetMode(m Mode) (string, error) {
	if m != ModeLoRaWAN && m != ModeLoRaP2P {
		return "", fmt.Errorf("%w: mode %d", ErrInvalidArgument, m)
	}
	return fmt.Sprintf("mode=%d", m), nil
}

// ResetCmd encodes the reset command.
func ResetCmd(r Reset) (string, error) {
	if r != ResetModule && r != ResetLoRa {
		return "", fmt.Errorf("%w: reset type %d", ErrInvalidArgument, r)
	}
	return fmt.Sprintf("reset=%d", r), nil
}

// SetRecvEx encodes the recv_ex command.
func SetRecvEx(r RecvEx) (string, error) {
	if r != RecvExEnabled && r != RecvExDisabled {
		return "", fmt.Errorf("%w: recv_ex %d", ErrInvalidArgument, r)
	}
	return fmt.Sprintf("recv_ex=%d", r), nil
}

// SetBand encodes the band command; region must be a documented token.
func SetBand(region string) (string, error) {
	if !ValidBand(region) {
		return "", fmt.Errorf("%w: band %q (supported: %s)",
			ErrInvalidArgument, region, strings.Join(Bands, ", "))
	}
	return "band=" + region, nil
}

// SetDR encodes the data rate command. The upper bound is region specific;
// 15 is the LoRaWAN ceiling.
func SetDR(dr int) (string, error) {
	if dr < 0 || dr > 15 {
		return "", fmt.Errorf("%w: data rate %d", ErrInvalidArgument, dr)
	}
	return fmt.Sprintf("dr=%d", dr), nil
}

// SetLinkCnt encodes the uplink/downlink counter command.
func SetLinkCnt(up, down uint32) string {
	return fmt.Sprintf("link_cnt=%d,%d", up, down)
}

// Send encodes a LoRaWAN uplink. The payload is hex encoded inline, two
// lowercase digits per byte; an empty payload is allowed.
func Send(confirm bool, port int, data []byte) (string, error) {
	if port < PortMin || port > PortMax {
		return "", fmt.Errorf("%w: port %d outside %d-%d",
			ErrInvalidArgument, port, PortMin, PortMax)
	}
	flag := "0"
	if confirm {
		flag = "1"
	}
	return "send=" + flag + "," + strconv.Itoa(port) + "," + hex.EncodeToString(data), nil
}

// GetConfig encodes a single-key configuration read.
func GetConfig(key string) (string, error) {
	if _, ok := configKeys[key]; !ok {
		return "", fmt.Errorf("%w: unknown config key %q", ErrInvalidArgument, key)
	}
	return "get_config=" + key, nil
}

// GetConfigRaw encodes a configuration read for a key not in the modeled
// set. Only framing safety is checked.
func GetConfigRaw(key string) (string, error) {
	if err := checkToken(key); err != nil {
		return "", err
	}
	return "get_config=" + key, nil
}

// SetConfig encodes a configuration write for one or more entries. Every
// key must belong to the modeled key set and its value must satisfy the
// key's shape.
func SetConfig(entries ...ConfigEntry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: no config entries", ErrInvalidArgument)
	}
	pairs := make([]string, 0, len(entries))
	for _, e := range entries {
		check, ok := configKeys[e.Key]
		if !ok {
			return "", fmt.Errorf("%w: unknown config key %q", ErrInvalidArgument, e.Key)
		}
		if err := check(e.Value); err != nil {
			return "", fmt.Errorf("%w: config %s=%q: %v", ErrInvalidArgument, e.Key, e.Value, err)
		}
		pairs = append(pairs, e.Key+":"+e.Value)
	}
	return "set_config=" + strings.Join(pairs, "&"), nil
}

// SetConfigRaw encodes a configuration write for keys outside the modeled
// set. Values are passed through after framing-safety checks.
func SetConfigRaw(entries ...ConfigEntry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: no config entries", ErrInvalidArgument)
	}
	pairs := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := checkToken(e.Key); err != nil {
			return "", err
		}
		if err := checkToken(e.Value); err != nil {
			return "", err
		}
		pairs = append(pairs, e.Key+":"+e.Value)
	}
	return "set_config=" + strings.Join(pairs, "&"), nil
}

// SetRFConfig encodes the LoRaP2P radio parameters.
func SetRFConfig(c RFConfig) (string, error) {
	switch {
	case c.Frequency < 860000000 || c.Frequency > 929900000:
		return "", fmt.Errorf("%w: frequency %d Hz", ErrInvalidArgument, c.Frequency)
	case c.SpreadFact < 6 || c.SpreadFact > 12:
		return "", fmt.Errorf("%w: spreading factor %d", ErrInvalidArgument, c.SpreadFact)
	case c.Bandwidth < 0 || c.Bandwidth > 2:
		return "", fmt.Errorf("%w: bandwidth %d", ErrInvalidArgument, c.Bandwidth)
	case c.CodingRate < 1 || c.CodingRate > 4:
		return "", fmt.Errorf("%w: coding rate %d", ErrInvalidArgument, c.CodingRate)
	case c.PreambleLen < 8 || c.PreambleLen > 65535:
		return "", fmt.Errorf("%w: preamble length %d", ErrInvalidArgument, c.PreambleLen)
	case c.Power < 5 || c.Power > 20:
		return "", fmt.Errorf("%w: power %d", ErrInvalidArgument, c.Power)
	}
	return fmt.Sprintf("rf_config=%d,%d,%d,%d,%d,%d",
		c.Frequency, c.SpreadFact, c.Bandwidth, c.CodingRate, c.PreambleLen, c.Power), nil
}

// Txc encodes a LoRaP2P transmission: send data cnt times, interval apart.
func Txc(cnt int, interval time.Duration, data []byte) (string, error) {
	if cnt < 1 {
		return "", fmt.Errorf("%w: count %d", ErrInvalidArgument, cnt)
	}
	if interval < 0 {
		return "", fmt.Errorf("%w: negative interval", ErrInvalidArgument)
	}
	return fmt.Sprintf("txc=%d,%d,%s", cnt, interval.Milliseconds(), hex.EncodeToString(data)), nil
}

// Rxc encodes the LoRaP2P receive-mode command.
func Rxc(reportEnabled bool) string {
	if reportEnabled {
		return "rxc=1"
	}
	return "rxc=0"
}

// checkToken rejects parameter text that would break line framing or the
// key/value pair syntax.
func checkToken(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidArgument)
	}
	if strings.ContainsAny(s, "\r\n&:") {
		return fmt.Errorf("%w: %q contains framing characters", ErrInvalidArgument, s)
	}
	return nil
}

// Value checkers for the modeled configuration keys.

func hexOfLen(digits int) func(string) error {
	return func(v string) error {
		if len(v) != digits {
			return fmt.Errorf("expected %d hex digits", digits)
		}
		if _, err := hex.DecodeString(v); err != nil {
			return errors.New("not a hex string")
		}
		return nil
	}
}

func intRange(lo, hi int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("not a number")
		}
		if n < lo || n > hi {
			return fmt.Errorf("outside %d-%d", lo, hi)
		}
		return nil
	}
}

func onOff(v string) error {
	if v != "on" && v != "off" {
		return errors.New("expected on or off")
	}
	return nil
}

func freeform(v string) error {
	return checkToken(v)
}

// configKeys is the closed set of modeled configuration keys with the
// shape check for each value. Keys the firmware knows but this table does
// not are reachable through the raw variants.
var configKeys = map[string]func(string) error{
	"dev_addr":   hexOfLen(8),
	"dev_eui":    hexOfLen(16),
	"app_eui":    hexOfLen(16),
	"app_key":    hexOfLen(32),
	"apps_key":   hexOfLen(32),
	"nwks_key":   hexOfLen(32),
	"tx_power":   intRange(-100, 100),
	"pwr_level":  intRange(0, 7),
	"adr":        onOff,
	"dr":         intRange(0, 15),
	"public_net": onOff,
	"rx_delay1":  intRange(0, 65535),
	"ch_list":    freeform,
	"ch_mask":    freeform,
	"max_chs":    freeform,
	"rx2":        freeform,
	"join_cnt":   intRange(0, 65535),
	"nbtrans":    intRange(1, 15),
	"retrans":    intRange(1, 255),
	"class":      intRange(0, 2),
	"duty":       onOff,
}

// KnownConfigKey reports whether key belongs to the modeled set.
func KnownConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}
