package rak811

import (
	"context"
	"errors"
	"fmt"

	"i4.energy/across/loragw/at"
)

// Band returns the configured LoRaWAN region.
func (l *Lora) Band(ctx context.Context) (string, error) {
	if err := l.acquire(); err != nil {
		return "", err
	}
	defer l.release()

	resp, err := l.exec(ctx, at.CmdBandGet)
	if err != nil {
		return "", err
	}
	return resp.payload, nil
}

// SetBand selects the LoRaWAN region.
func (l *Lora) SetBand(ctx context.Context, region string) error {
	cmd, err := at.SetBand(region)
	if err != nil {
		return err
	}
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	_, err = l.exec(ctx, cmd)
	return err
}

// DataRate returns the data rate used for the next send and refreshes the
// tracked value.
func (l *Lora) DataRate(ctx context.Context) (int, error) {
	if err := l.acquire(); err != nil {
		return 0, err
	}
	defer l.release()

	resp, err := l.exec(ctx, at.CmdDRGet)
	if err != nil {
		return 0, err
	}
	dr, err := at.ParseInt(resp.payload)
	if err != nil {
		return 0, err
	}
	l.setDataRate(dr)
	return dr, nil
}

// SetDataRate sets the data rate for the next send.
func (l *Lora) SetDataRate(ctx context.Context, dr int) error {
	cmd, err := at.SetDR(dr)
	if err != nil {
		return err
	}
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	if _, err := l.exec(ctx, cmd); err != nil {
		return err
	}
	l.setDataRate(dr)
	return nil
}

// JoinABP joins the configured network in ABP mode. ABP activation is
// local; the module acknowledges synchronously and no event follows.
// dev_addr, nwks_key and apps_key must be configured beforehand.
func (l *Lora) JoinABP(ctx context.Context) error {
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	l.setJoinStatus(Joining)
	if _, err := l.exec(ctx, at.CmdJoinABP); err != nil {
		l.setJoinStatus(JoinFailed)
		return err
	}
	l.setJoinStatus(Joined)
	return nil
}

// JoinOTAA joins the configured network in OTAA mode. dev_eui, app_eui and
// app_key must be configured beforehand.
//
// The synchronous OK only acknowledges that the join attempt was accepted;
// the call resolves at the asynchronous completion event. When the context
// carries no deadline, the configured join timeout applies. The engine
// never retries: a fresh join attempt has network side effects and is the
// caller's decision.
func (l *Lora) JoinOTAA(ctx context.Context) error {
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	l.drainEvents()
	l.setJoinStatus(Joining)
	if _, err := l.exec(ctx, at.CmdJoinOTAA); err != nil {
		l.setJoinStatus(JoinFailed)
		return err
	}

	ctx, cancel := l.eventCtx(ctx, l.config.joinTimeout)
	defer cancel()
	events, err := l.collectEvents(ctx)
	if err != nil {
		l.setJoinStatus(JoinFailed)
		return fmt.Errorf("join: %w", err)
	}
	if !hasEvent(events, at.EventJoinedSuccess) {
		l.setJoinStatus(JoinFailed)
		if err := firstEventErr(events, at.EventJoinedSuccess); err != nil {
			return err
		}
		return &EventError{Code: at.EventJoinedFailed}
	}
	l.setJoinStatus(Joined)
	return nil
}

// Signal returns the RSSI and SNR of the latest received packet.
func (l *Lora) Signal(ctx context.Context) (rssi, snr int, err error) {
	if err := l.acquire(); err != nil {
		return 0, 0, err
	}
	defer l.release()

	resp, err := l.exec(ctx, at.CmdSignal)
	if err != nil {
		return 0, 0, err
	}
	return at.ParseSignal(resp.payload)
}

// LinkCounters returns the uplink and downlink frame counters.
func (l *Lora) LinkCounters(ctx context.Context) (up, down uint32, err error) {
	if err := l.acquire(); err != nil {
		return 0, 0, err
	}
	defer l.release()

	resp, err := l.exec(ctx, at.CmdLinkCntGet)
	if err != nil {
		return 0, 0, err
	}
	return at.ParseLinkCnt(resp.payload)
}

// SetLinkCounters sets the uplink and downlink frame counters.
func (l *Lora) SetLinkCounters(ctx context.Context, up, down uint32) error {
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	_, err := l.exec(ctx, at.SetLinkCnt(up, down))
	return err
}

// ABPInfo returns the session information needed to re-join in ABP mode
// after an OTAA join.
func (l *Lora) ABPInfo(ctx context.Context) (at.ABPInfo, error) {
	if err := l.acquire(); err != nil {
		return at.ABPInfo{}, err
	}
	defer l.release()

	resp, err := l.exec(ctx, at.CmdABPInfo)
	if err != nil {
		return at.ABPInfo{}, err
	}
	return at.ParseABPInfo(resp.payload)
}

// GetConfig reads a single configuration key. The key must belong to the
// modeled set; use GetConfigRaw for keys the driver does not model. Each
// call is a fresh round trip, nothing is cached.
func (l *Lora) GetConfig(ctx context.Context, key string) (string, error) {
	cmd, err := at.GetConfig(key)
	if err != nil {
		return "", err
	}
	return l.getConfig(ctx, cmd)
}

// GetConfigRaw reads a configuration key outside the modeled set.
func (l *Lora) GetConfigRaw(ctx context.Context, key string) (string, error) {
	cmd, err := at.GetConfigRaw(key)
	if err != nil {
		return "", err
	}
	return l.getConfig(ctx, cmd)
}

func (l *Lora) getConfig(ctx context.Context, cmd string) (string, error) {
	if err := l.acquire(); err != nil {
		return "", err
	}
	defer l.release()

	resp, err := l.exec(ctx, cmd)
	if err != nil {
		return "", err
	}
	return resp.payload, nil
}

// SetConfig writes one or more configuration entries in a single command.
// The module persists them in EEPROM. Every key must belong to the modeled
// set and its value must satisfy the key's shape.
func (l *Lora) SetConfig(ctx context.Context, entries ...at.ConfigEntry) error {
	cmd, err := at.SetConfig(entries...)
	if err != nil {
		return err
	}
	return l.setConfig(ctx, cmd)
}

// SetConfigRaw writes configuration entries without per-key validation,
// for keys the driver does not model.
func (l *Lora) SetConfigRaw(ctx context.Context, entries ...at.ConfigEntry) error {
	cmd, err := at.SetConfigRaw(entries...)
	if err != nil {
		return err
	}
	return l.setConfig(ctx, cmd)
}

func (l *Lora) setConfig(ctx context.Context, cmd string) error {
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	_, err := l.exec(ctx, cmd)
	return err
}

// ConfigAll reads the whole module configuration in the module's batch
// form: one key:value line per entry, terminated by OK. Order is
// preserved.
func (l *Lora) ConfigAll(ctx context.Context) ([]at.ConfigEntry, error) {
	if err := l.acquire(); err != nil {
		return nil, err
	}
	defer l.release()

	resp, err := l.exec(ctx, at.CmdConfigAll)
	if err != nil {
		return nil, err
	}
	return at.ParseConfigEntries(resp.data)
}

// Send transmits a LoRaWAN uplink on the given port. The payload is hex
// encoded on the wire; use confirm for a confirmed uplink.
//
// The synchronous OK only acknowledges acceptance; the call then waits for
// the tx completion events and returns the downlink captured in the
// receive window, if any. A nil downlink with a nil error is a successful
// send with nothing received.
func (l *Lora) Send(ctx context.Context, port int, data []byte, confirm bool) (*at.Downlink, error) {
	cmd, err := at.Send(confirm, port, data)
	if err != nil {
		return nil, err
	}
	if err := l.acquire(); err != nil {
		return nil, err
	}
	defer l.release()

	l.drainEvents()
	if _, err := l.exec(ctx, cmd); err != nil {
		return nil, err
	}

	ctx, cancel := l.eventCtx(ctx, l.config.eventTimeout)
	defer cancel()
	events, err := l.collectEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	if err := firstEventErr(events, at.EventRecvData, at.EventTxConfirmed, at.EventTxUnconfirmed); err != nil {
		return nil, err
	}
	if hasEvent(events, at.EventRecvData) {
		return l.NextDownlink(), nil
	}
	return nil, nil
}

// Receive waits for a downlink until the context deadline. Reaching the
// deadline without a message is a valid outcome and returns (nil, nil);
// the wait is cancelled only by its deadline, the protocol has no
// out-of-band cancel.
func (l *Lora) Receive(ctx context.Context) (*at.Downlink, error) {
	if err := l.acquire(); err != nil {
		return nil, err
	}
	defer l.release()

	ctx, cancel := l.eventCtx(ctx, l.config.eventTimeout)
	defer cancel()
	events, err := l.collectEvents(ctx)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return nil, nil
		}
		return nil, fmt.Errorf("receive: %w", err)
	}
	if err := firstEventErr(events, at.EventRecvData, at.EventTxConfirmed, at.EventTxUnconfirmed); err != nil {
		return nil, err
	}
	if hasEvent(events, at.EventRecvData) {
		return l.NextDownlink(), nil
	}
	return nil, nil
}
