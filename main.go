// Command loragw drives a RAK811 LoRa module over its AT command serial
// link: joining a network, sending and receiving messages, and reading or
// writing module configuration. It is a thin front end; all protocol logic
// lives in the rak811 package.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"i4.energy/across/loragw/at"
	"i4.energy/across/loragw/rak811"
)

func main() {
	flag.String("serial-port", "/dev/serial0", "Serial port to connect to the module")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Duration("timeout", 5*time.Second, "Timeout for synchronous command replies")
	flag.Duration("event-timeout", 5*time.Minute, "Timeout for asynchronous send/receive events")
	flag.Duration("join-timeout", 5*time.Minute, "Timeout for OTAA join completion")
	configFile := flag.String("config", "/etc/loragw.toml", "TOML configuration file")
	flag.Usage = usage
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	sessionConfig, err := rak811.NewConfigBuilder().
		WithResponseTimeout(config.ResponseTimeout).
		WithEventTimeout(config.EventTimeout).
		WithJoinTimeout(config.JoinTimeout).
		WithLogger(logger.With("component", "rak811")).
		WithDialer(rak811.SerialDialer{
			PortName: config.SerialPort,
			Mode:     &serial.Mode{BaudRate: config.BaudRate, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit},
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create session config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	lora, err := rak811.New(ctx, sessionConfig)
	if err != nil {
		logger.Error("Failed to connect to module", "error", err)
		os.Exit(1)
	}
	defer lora.Close()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go lora.Loop(loopCtx)

	out, err := run(ctx, lora, flag.Arg(0), flag.Args()[1:])
	if err != nil {
		logger.Error("Command failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
	if out != "" {
		fmt.Println(out)
	}
}

// run maps a sub-command to one facade call and formats its result.
func run(ctx context.Context, lora *rak811.Lora, cmd string, args []string) (string, error) {
	switch cmd {
	case "version":
		return lora.QueryVersion(ctx)

	case "sleep":
		return "", lora.Sleep(ctx)

	case "wake":
		return "", lora.Wake(ctx)

	case "reset":
		mode := at.ResetLoRa
		if len(args) > 0 && args[0] == "module" {
			mode = at.ResetModule
		}
		return "", lora.Reset(ctx, mode)

	case "hard-reset":
		return "", lora.HardReset(ctx)

	case "reload":
		return "", lora.Reload(ctx)

	case "mode":
		if len(args) == 0 {
			mode, err := lora.Mode(ctx)
			if err != nil {
				return "", err
			}
			return mode.String(), nil
		}
		mode, err := parseMode(args[0])
		if err != nil {
			return "", err
		}
		return "", lora.SetMode(ctx, mode)

	case "recv-ex":
		if len(args) == 0 {
			r, err := lora.RecvEx(ctx)
			if err != nil {
				return "", err
			}
			if r == at.RecvExEnabled {
				return "enabled", nil
			}
			return "disabled", nil
		}
		r := at.RecvExDisabled
		if args[0] == "on" {
			r = at.RecvExEnabled
		}
		return "", lora.SetRecvEx(ctx, r)

	case "band":
		if len(args) == 0 {
			return lora.Band(ctx)
		}
		return "", lora.SetBand(ctx, args[0])

	case "dr":
		if len(args) == 0 {
			dr, err := lora.DataRate(ctx)
			if err != nil {
				return "", err
			}
			return strconv.Itoa(dr), nil
		}
		dr, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("data rate: %w", err)
		}
		return "", lora.SetDataRate(ctx, dr)

	case "join-otaa":
		return "", lora.JoinOTAA(ctx)

	case "join-abp":
		return "", lora.JoinABP(ctx)

	case "signal":
		rssi, snr, err := lora.Signal(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("rssi=%d snr=%d", rssi, snr), nil

	case "link-cnt":
		up, down, err := lora.LinkCounters(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("up=%d down=%d", up, down), nil

	case "abp-info":
		info, err := lora.ABPInfo(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("net_id=%s dev_addr=%s nwks_key=%s apps_key=%s",
			info.NetworkID, info.DevAddr, info.NwksKey, info.AppsKey), nil

	case "get-config":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: get-config <key>")
		}
		if at.KnownConfigKey(args[0]) {
			return lora.GetConfig(ctx, args[0])
		}
		return lora.GetConfigRaw(ctx, args[0])

	case "set-config":
		if len(args) == 0 {
			return "", fmt.Errorf("usage: set-config <key>:<value> ...")
		}
		entries := make([]at.ConfigEntry, 0, len(args))
		raw := false
		for _, arg := range args {
			key, value, found := strings.Cut(arg, ":")
			if !found {
				return "", fmt.Errorf("set-config: %q is not key:value", arg)
			}
			if !at.KnownConfigKey(key) {
				raw = true
			}
			entries = append(entries, at.ConfigEntry{Key: key, Value: value})
		}
		if raw {
			return "", lora.SetConfigRaw(ctx, entries...)
		}
		return "", lora.SetConfig(ctx, entries...)

	case "config-all":
		entries, err := lora.ConfigAll(ctx)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&b, "%s=%s\n", e.Key, e.Value)
		}
		return strings.TrimRight(b.String(), "\n"), nil

	case "send":
		fs := flag.NewFlagSet("send", flag.ContinueOnError)
		port := fs.Int("port", 1, "LoRaWAN port (1-223)")
		confirm := fs.Bool("confirm", false, "Request a confirmed uplink")
		binary := fs.Bool("binary", false, "Treat the payload as hex-encoded bytes")
		if err := fs.Parse(args); err != nil {
			return "", err
		}
		if fs.NArg() != 1 {
			return "", fmt.Errorf("usage: send [-port n] [-confirm] [-binary] <payload>")
		}
		data, err := payloadBytes(fs.Arg(0), *binary)
		if err != nil {
			return "", err
		}
		downlink, err := lora.Send(ctx, *port, data, *confirm)
		if err != nil {
			return "", err
		}
		if downlink == nil {
			return "sent, no downlink", nil
		}
		return formatDownlink(downlink), nil

	case "receive":
		fs := flag.NewFlagSet("receive", flag.ContinueOnError)
		wait := fs.Duration("wait", 60*time.Second, "How long to wait for a message")
		if err := fs.Parse(args); err != nil {
			return "", err
		}
		waitCtx, cancel := context.WithTimeout(ctx, *wait)
		defer cancel()
		downlink, err := lora.Receive(waitCtx)
		if err != nil {
			return "", err
		}
		if downlink == nil {
			return "no downlink", nil
		}
		return formatDownlink(downlink), nil

	case "status":
		stats, err := lora.RadioStats(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("tx_ok=%d tx_err=%d rx_ok=%d rx_timeout=%d rx_err=%d rssi=%d snr=%d",
			stats.TxSuccess, stats.TxErr, stats.RxSuccess, stats.RxTimeout, stats.RxErr, stats.RSSI, stats.SNR), nil

	case "clear-status":
		return "", lora.ClearRadioStats(ctx)

	case "rf-config":
		if len(args) == 0 {
			c, err := lora.RFConfig(ctx)
			if err != nil {
				return "", err
			}
			return formatRFConfig(c), nil
		}
		update, err := parseRFUpdate(args)
		if err != nil {
			return "", err
		}
		c, err := lora.UpdateRFConfig(ctx, update)
		if err != nil {
			return "", err
		}
		return formatRFConfig(c), nil

	case "txc":
		fs := flag.NewFlagSet("txc", flag.ContinueOnError)
		cnt := fs.Int("cnt", 1, "Number of transmissions")
		interval := fs.Duration("interval", time.Minute, "Interval between transmissions")
		binary := fs.Bool("binary", false, "Treat the payload as hex-encoded bytes")
		if err := fs.Parse(args); err != nil {
			return "", err
		}
		if fs.NArg() != 1 {
			return "", fmt.Errorf("usage: txc [-cnt n] [-interval d] [-binary] <payload>")
		}
		data, err := payloadBytes(fs.Arg(0), *binary)
		if err != nil {
			return "", err
		}
		return "", lora.Txc(ctx, data, *cnt, *interval)

	case "rxc":
		report := true
		if len(args) > 0 && args[0] == "off" {
			report = false
		}
		return "", lora.Rxc(ctx, report)

	case "tx-stop":
		return "", lora.TxStop(ctx)

	case "rx-stop":
		return "", lora.RxStop(ctx)

	default:
		return "", fmt.Errorf("unknown command %q", cmd)
	}
}

func parseMode(s string) (at.Mode, error) {
	switch strings.ToLower(s) {
	case "lorawan", "0":
		return at.ModeLoRaWAN, nil
	case "lorap2p", "p2p", "1":
		return at.ModeLoRaP2P, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// payloadBytes interprets the command line payload: UTF-8 text by default,
// hex bytes with -binary.
func payloadBytes(s string, binary bool) ([]byte, error) {
	if !binary {
		return []byte(s), nil
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return data, nil
}

func formatDownlink(d *at.Downlink) string {
	return fmt.Sprintf("port=%d rssi=%d snr=%d data=%s",
		d.Port, d.RSSI, d.SNR, hex.EncodeToString(d.Data))
}

func formatRFConfig(c at.RFConfig) string {
	return fmt.Sprintf("freq=%d sf=%d bw=%d cr=%d prlen=%d pwr=%d",
		c.Frequency, c.SpreadFact, c.Bandwidth, c.CodingRate, c.PreambleLen, c.Power)
}

// parseRFUpdate reads key=value pairs (freq in Hz, sf, bw, cr, prlen, pwr)
// into a partial update; unnamed parameters keep their module value.
func parseRFUpdate(args []string) (rak811.RFConfigUpdate, error) {
	var u rak811.RFConfigUpdate
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found {
			return u, fmt.Errorf("rf-config: %q is not key=value", arg)
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return u, fmt.Errorf("rf-config %s: %w", key, err)
		}
		switch key {
		case "freq":
			f := uint32(n)
			u.Frequency = &f
		case "sf":
			u.SpreadFact = &n
		case "bw":
			u.Bandwidth = &n
		case "cr":
			u.CodingRate = &n
		case "prlen":
			u.PreambleLen = &n
		case "pwr":
			u.Power = &n
		default:
			return u, fmt.Errorf("rf-config: unknown parameter %q", key)
		}
	}
	return u, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: loragw [flags] <command> [args]

Commands:
  version                     Firmware version
  sleep | wake                Enter / leave sleep mode
  reset [module|lora]         Restart the module or the LoRaWAN stack
  hard-reset                  Drive the hardware reset line
  reload                      Restore default configuration
  mode [lorawan|lorap2p]      Get or set the operating mode
  recv-ex [on|off]            Get or set RSSI/SNR reporting
  band [region]               Get or set the LoRaWAN region
  dr [n]                      Get or set the data rate
  join-otaa | join-abp        Join the configured network
  signal                      RSSI/SNR of the last received packet
  link-cnt                    Uplink/downlink frame counters
  abp-info                    ABP session information
  get-config <key>            Read one configuration key
  set-config <k>:<v> ...      Write configuration keys
  config-all                  Read the whole configuration
  send [flags] <payload>      Send a LoRaWAN uplink
  receive [-wait d]           Wait for a downlink
  status | clear-status       Radio statistics
  rf-config [k=v ...]         Get or update LoRaP2P radio parameters
  txc [flags] <payload>       LoRaP2P transmit
  rxc [off] | tx-stop | rx-stop  LoRaP2P receive control

Flags:
`)
	flag.PrintDefaults()
}
