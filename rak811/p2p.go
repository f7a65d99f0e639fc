package rak811

import (
	"context"
	"fmt"
	"time"

	"i4.energy/across/loragw/at"
)

// RFConfig returns the LoRaP2P radio parameters.
func (l *Lora) RFConfig(ctx context.Context) (at.RFConfig, error) {
	if err := l.acquire(); err != nil {
		return at.RFConfig{}, err
	}
	defer l.release()

	return l.rfConfig(ctx)
}

func (l *Lora) rfConfig(ctx context.Context) (at.RFConfig, error) {
	resp, err := l.exec(ctx, at.CmdRFConfig)
	if err != nil {
		return at.RFConfig{}, err
	}
	return at.ParseRFConfig(resp.payload)
}

// RFConfigUpdate is a partial LoRaP2P parameter change. Nil fields keep
// their current value on the module.
type RFConfigUpdate struct {
	Frequency   *uint32
	SpreadFact  *int
	Bandwidth   *int
	CodingRate  *int
	PreambleLen *int
	Power       *int
}

// SetRFConfig writes the full LoRaP2P parameter set.
func (l *Lora) SetRFConfig(ctx context.Context, c at.RFConfig) error {
	cmd, err := at.SetRFConfig(c)
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

// UpdateRFConfig merges a partial parameter change over the module's
// current values, a read followed by a write. Each step's failure is
// surfaced on its own; there is no rollback.
func (l *Lora) UpdateRFConfig(ctx context.Context, u RFConfigUpdate) (at.RFConfig, error) {
	if err := l.acquire(); err != nil {
		return at.RFConfig{}, err
	}
	defer l.release()

	c, err := l.rfConfig(ctx)
	if err != nil {
		return at.RFConfig{}, fmt.Errorf("read rf_config: %w", err)
	}
	if u.Frequency != nil {
		c.Frequency = *u.Frequency
	}
	if u.SpreadFact != nil {
		c.SpreadFact = *u.SpreadFact
	}
	if u.Bandwidth != nil {
		c.Bandwidth = *u.Bandwidth
	}
	if u.CodingRate != nil {
		c.CodingRate = *u.CodingRate
	}
	if u.PreambleLen != nil {
		c.PreambleLen = *u.PreambleLen
	}
	if u.Power != nil {
		c.Power = *u.Power
	}

	cmd, err := at.SetRFConfig(c)
	if err != nil {
		return at.RFConfig{}, err
	}
	if _, err := l.exec(ctx, cmd); err != nil {
		return at.RFConfig{}, fmt.Errorf("write rf_config: %w", err)
	}
	return c, nil
}

// Txc transmits a LoRaP2P message cnt times, interval apart, using the
// pre-set RF parameters. The call returns after the module reports the
// transmission complete.
func (l *Lora) Txc(ctx context.Context, data []byte, cnt int, interval time.Duration) error {
	cmd, err := at.Txc(cnt, interval, data)
	if err != nil {
		return err
	}
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	l.drainEvents()
	if _, err := l.exec(ctx, cmd); err != nil {
		return err
	}

	// The module sends the completion event only after the last repeat.
	fallback := time.Duration(cnt)*interval + l.config.eventTimeout
	ctx, cancel := l.eventCtx(ctx, fallback)
	defer cancel()
	events, err := l.collectEvents(ctx)
	if err != nil {
		return fmt.Errorf("txc: %w", err)
	}
	if !hasEvent(events, at.EventP2PTxComplete) {
		return firstEventErr(events, at.EventP2PTxComplete)
	}
	return nil
}

// Rxc puts the module in LoRaP2P receive mode until RxStop is issued. The
// command is acknowledged immediately; received messages arrive as events
// and are collected with Receive or NextDownlink.
func (l *Lora) Rxc(ctx context.Context, reportEnabled bool) error {
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	_, err := l.exec(ctx, at.Rxc(reportEnabled))
	return err
}

// TxStop stops a LoRaP2P transmission; the radio switches to sleep.
func (l *Lora) TxStop(ctx context.Context) error {
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	_, err := l.exec(ctx, at.CmdTxStop)
	return err
}

// RxStop stops LoRaP2P reception; the radio switches to sleep.
func (l *Lora) RxStop(ctx context.Context) error {
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	_, err := l.exec(ctx, at.CmdRxStop)
	return err
}
