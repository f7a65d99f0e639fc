package rak811_test

import (
	"context"
	"errors"
	"testing"

	"i4.energy/across/loragw/at"
	"i4.energy/across/loragw/rak811"
)

func TestQueryVersion(t *testing.T) {
	l, tt := newTestSession(t)

	done := respond(t, tt, "at+version\r\n", "OK2.0.3.0\r\n")
	version, err := l.QueryVersion(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != "2.0.3.0" {
		t.Errorf("expected version 2.0.3.0, got %q", version)
	}
	<-done
}

func TestSetMode(t *testing.T) {
	l, tt := newTestSession(t)

	if l.CurrentMode() != at.ModeLoRaWAN {
		t.Fatalf("expected initial mode LoRaWAN, got %v", l.CurrentMode())
	}

	done := respond(t, tt, "at+mode=1\r\n", "OK\r\n")
	if err := l.SetMode(context.Background(), at.ModeLoRaP2P); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done
	if l.CurrentMode() != at.ModeLoRaP2P {
		t.Errorf("expected tracked mode LoRaP2P after acknowledgement, got %v", l.CurrentMode())
	}

	// A rejected mode change leaves the tracked mode untouched
	done = respond(t, tt, "at+mode=0\r\n", "ERROR-1\r\n")
	err := l.SetMode(context.Background(), at.ModeLoRaWAN)
	var moduleErr *rak811.ModuleError
	if !errors.As(err, &moduleErr) {
		t.Fatalf("expected ModuleError, got: %v", err)
	}
	if moduleErr.Code != at.CodeArgErr {
		t.Errorf("expected code %d, got %d", at.CodeArgErr, moduleErr.Code)
	}
	<-done
	if l.CurrentMode() != at.ModeLoRaP2P {
		t.Errorf("tracked mode changed despite module error: %v", l.CurrentMode())
	}
}

func TestMode(t *testing.T) {
	l, tt := newTestSession(t)

	done := respond(t, tt, "at+mode\r\n", "OK1\r\n")
	mode, err := l.Mode(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode != at.ModeLoRaP2P {
		t.Errorf("expected LoRaP2P, got %v", mode)
	}
	<-done
	if l.CurrentMode() != at.ModeLoRaP2P {
		t.Errorf("query did not refresh the tracked mode: %v", l.CurrentMode())
	}
}

func TestWake(t *testing.T) {
	l, tt := newTestSession(t)

	// The wake character goes out raw; the module answers with an event,
	// never a terminal reply
	done := respond(t, tt, "*", "at+recv=8,0,0\r\n")
	if err := l.Wake(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done
}

func TestSleep(t *testing.T) {
	l, tt := newTestSession(t)

	done := respond(t, tt, "at+sleep\r\n", "OK\r\n")
	if err := l.Sleep(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done
}

func TestReset(t *testing.T) {
	l, tt := newTestSession(t)

	// Establish some tracked state first
	done := respond(t, tt, "at+dr=5\r\n", "OK\r\n")
	if err := l.SetDataRate(context.Background(), 5); err != nil {
		t.Fatalf("unexpected error from SetDataRate: %v", err)
	}
	<-done
	if l.LastDataRate() != 5 {
		t.Fatalf("expected tracked data rate 5, got %d", l.LastDataRate())
	}

	done = respond(t, tt, "at+reset=1\r\n", "OK\r\n")
	if err := l.Reset(context.Background(), at.ResetLoRa); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done
	if l.LastDataRate() != -1 {
		t.Errorf("expected tracked state cleared after reset, data rate is %d", l.LastDataRate())
	}
	if l.JoinState() != rak811.NotJoined {
		t.Errorf("expected NotJoined after reset, got %v", l.JoinState())
	}
}

// fakeResetter counts hardware reset line pulses.
type fakeResetter struct {
	calls int
}

func (r *fakeResetter) HardReset(_ context.Context) error {
	r.calls++
	return nil
}

func TestHardReset(t *testing.T) {
	t.Run("ErrNoResetter when none configured", func(t *testing.T) {
		l, _ := newTestSession(t)
		if err := l.HardReset(context.Background()); !errors.Is(err, rak811.ErrNoResetter) {
			t.Errorf("expected ErrNoResetter, got: %v", err)
		}
	})

	t.Run("Drives the configured resetter", func(t *testing.T) {
		tt := rak811.NewTestTransport()
		go func() {
			tt.NextWrite()
			tt.SendData("OK2.0.3.0\r\n")
		}()

		resetter := &fakeResetter{}
		config, err := rak811.NewConfigBuilder().
			WithDialer(tt).
			WithResetter(resetter).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		l, err := rak811.New(context.Background(), config)
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		go l.Loop(ctx)
		t.Cleanup(func() {
			cancel()
			l.Close()
		})

		if err := l.HardReset(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resetter.calls != 1 {
			t.Errorf("expected one reset pulse, got %d", resetter.calls)
		}
	})
}

func TestReload(t *testing.T) {
	l, tt := newTestSession(t)

	done := respond(t, tt, "at+reload\r\n", "OK\r\n")
	if err := l.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done
}

func TestRecvEx(t *testing.T) {
	l, tt := newTestSession(t)

	done := respond(t, tt, "at+recv_ex\r\n", "OK0\r\n")
	r, err := l.RecvEx(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != at.RecvExEnabled {
		t.Errorf("expected reporting enabled, got %v", r)
	}
	<-done

	done = respond(t, tt, "at+recv_ex=1\r\n", "OK\r\n")
	if err := l.SetRecvEx(context.Background(), at.RecvExDisabled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done
}

func TestRadioStats(t *testing.T) {
	l, tt := newTestSession(t)

	done := respond(t, tt, "at+status\r\n", "OK3,1,2,0,0,-30,26\r\n")
	stats, err := l.RadioStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := at.RadioStats{
		TxSuccess: 3,
		TxErr:     1,
		RxSuccess: 2,
		RSSI:      -30,
		SNR:       26,
	}
	if stats != want {
		t.Errorf("unexpected stats: %+v", stats)
	}
	<-done

	done = respond(t, tt, "at+status=0\r\n", "OK\r\n")
	if err := l.ClearRadioStats(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done
}

func TestInvalidArgumentBeforeIO(t *testing.T) {
	l, tt := newTestSession(t)

	// A rejected parameter never reaches the wire: the next line written
	// must be the follow-up command, not a malformed dr command
	if err := l.SetDataRate(context.Background(), 16); !errors.Is(err, at.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got: %v", err)
	}

	done := respond(t, tt, "at+sleep\r\n", "OK\r\n")
	if err := l.Sleep(context.Background()); err != nil {
		t.Fatalf("unexpected error from Sleep: %v", err)
	}
	<-done
}
