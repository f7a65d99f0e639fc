// Package at implements the RAK811 AT command grammar: line tokenizing,
// response and event parsing, and command encoding. The package is pure --
// it never touches the transport.
package at

const (
	// Terminal control
	EOL           = "\r\n"
	CommandPrefix = "at+"

	// Response tokens
	OK    = "OK"
	ERROR = "ERROR"

	// EventPrefix introduces asynchronous event lines (join results,
	// downlinks, tx completions). The module reuses its own command verb
	// for them: "at+recv=<status>,...".
	EventPrefix = "at+recv="
)

// ResponseType is the coarse classification of a line read from the module.
type ResponseType int

const (
	TypeFinal ResponseType = iota // OK.../ERROR... terminal replies
	TypeEvent                     // asynchronous at+recv= notifications
	TypeData                      // intermediate lines (batch config output)
)

// Mode is the module operating mode.
type Mode int

const (
	ModeLoRaWAN Mode = 0
	ModeLoRaP2P Mode = 1
)

func (m Mode) String() string {
	switch m {
	case ModeLoRaWAN:
		return "LoRaWAN"
	case ModeLoRaP2P:
		return "LoRaP2P"
	}
	return "unknown"
}

// Reset selects what at+reset restarts.
type Reset int

const (
	ResetModule Reset = 0
	ResetLoRa   Reset = 1
)

// RecvEx controls RSSI/SNR reporting on received packets.
type RecvEx int

const (
	RecvExEnabled  RecvEx = 0
	RecvExDisabled RecvEx = 1
)

// Bands lists the LoRaWAN regions accepted by the band command.
var Bands = []string{"EU868", "US915", "AU915", "KR920", "AS923", "IN865"}

// ValidBand reports whether region is a documented band token.
func ValidBand(region string) bool {
	for _, b := range Bands {
		if b == region {
			return true
		}
	}
	return false
}
