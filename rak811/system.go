package rak811

import (
	"context"
	"fmt"

	"i4.energy/across/loragw/at"
)

// QueryVersion asks the module for its firmware version. Unlike Version()
// this is a fresh round trip.
func (l *Lora) QueryVersion(ctx context.Context) (string, error) {
	if err := l.acquire(); err != nil {
		return "", err
	}
	defer l.release()

	resp, err := l.exec(ctx, at.CmdVersion)
	if err != nil {
		return "", err
	}
	l.version = resp.payload
	return resp.payload, nil
}

// Sleep puts the module into sleep mode.
func (l *Lora) Sleep(ctx context.Context) error {
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	_, err := l.exec(ctx, at.CmdSleep)
	return err
}

// Wake wakes a sleeping module. A single character is written on the line
// and the module acknowledges with a wake-up event; there is no
// synchronous reply.
func (l *Lora) Wake(ctx context.Context) error {
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	l.drainEvents()
	if err := l.execRaw(ctx, at.WakeChar); err != nil {
		return err
	}

	ctx, cancel := l.eventCtx(ctx, l.config.responseTimeout)
	defer cancel()
	events, err := l.collectEvents(ctx)
	if err != nil {
		return fmt.Errorf("wake: %w", err)
	}
	if !hasEvent(events, at.EventWakeUp) {
		return firstEventErr(events, at.EventWakeUp)
	}
	return nil
}

// Reset restarts the module or only its LoRaWAN stack. Resetting the
// whole module requires a subsequent hardware reset to bring it back; when
// a Resetter is configured it is driven as part of this call, each step's
// failure surfaced on its own.
func (l *Lora) Reset(ctx context.Context, mode at.Reset) error {
	cmd, err := at.ResetCmd(mode)
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
	l.resetState()

	if mode == at.ResetModule && l.config.resetter != nil {
		if err := l.config.resetter.HardReset(ctx); err != nil {
			return fmt.Errorf("hard reset after module reset: %w", err)
		}
	}
	return nil
}

// HardReset drives the module's hardware reset line via the configured
// Resetter. It is needed once after host boot or a module restart.
func (l *Lora) HardReset(ctx context.Context) error {
	if l.config.resetter == nil {
		return ErrNoResetter
	}
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	if err := l.config.resetter.HardReset(ctx); err != nil {
		return err
	}
	l.resetState()
	return nil
}

// resetState clears the tracked session state after a module restart.
func (l *Lora) resetState() {
	l.mu.Lock()
	l.mode = at.ModeLoRaWAN
	l.joinStatus = NotJoined
	l.lastDataRate = -1
	l.mu.Unlock()
}

// Reload restores the LoRaWAN and LoRaP2P configuration to defaults.
func (l *Lora) Reload(ctx context.Context) error {
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	_, err := l.exec(ctx, at.CmdReload)
	return err
}

// Mode queries the module's operating mode and refreshes the tracked
// state.
func (l *Lora) Mode(ctx context.Context) (at.Mode, error) {
	if err := l.acquire(); err != nil {
		return 0, err
	}
	defer l.release()

	resp, err := l.exec(ctx, at.CmdModeGet)
	if err != nil {
		return 0, err
	}
	mode, err := at.ParseMode(resp.payload)
	if err != nil {
		return 0, err
	}
	l.setMode(mode)
	return mode, nil
}

// SetMode switches the module between LoRaWAN and LoRaP2P operation. The
// tracked mode changes only after the module acknowledges.
func (l *Lora) SetMode(ctx context.Context, mode at.Mode) error {
	cmd, err := at.SetMode(mode)
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
	l.setMode(mode)
	return nil
}

// RecvEx reports whether RSSI/SNR reporting on received packets is
// enabled.
func (l *Lora) RecvEx(ctx context.Context) (at.RecvEx, error) {
	if err := l.acquire(); err != nil {
		return 0, err
	}
	defer l.release()

	resp, err := l.exec(ctx, at.CmdRecvExGet)
	if err != nil {
		return 0, err
	}
	v, err := at.ParseInt(resp.payload)
	if err != nil {
		return 0, err
	}
	return at.RecvEx(v), nil
}

// SetRecvEx enables or disables RSSI/SNR reporting on received packets.
func (l *Lora) SetRecvEx(ctx context.Context, r at.RecvEx) error {
	cmd, err := at.SetRecvEx(r)
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

// RadioStats returns a snapshot of the radio counters.
func (l *Lora) RadioStats(ctx context.Context) (at.RadioStats, error) {
	if err := l.acquire(); err != nil {
		return at.RadioStats{}, err
	}
	defer l.release()

	resp, err := l.exec(ctx, at.CmdStatus)
	if err != nil {
		return at.RadioStats{}, err
	}
	return at.ParseRadioStats(resp.payload)
}

// ClearRadioStats resets the radio counters.
func (l *Lora) ClearRadioStats(ctx context.Context) error {
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	_, err := l.exec(ctx, at.CmdStatusClr)
	return err
}
