package rak811_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"i4.energy/across/loragw/at"
	"i4.energy/across/loragw/rak811"
)

func TestRFConfig(t *testing.T) {
	l, tt := newTestSession(t)

	done := respond(t, tt, "at+rf_config\r\n", "OK868100000,12,0,1,8,20\r\n")
	c, err := l.RFConfig(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := at.RFConfig{
		Frequency:   868100000,
		SpreadFact:  12,
		Bandwidth:   0,
		CodingRate:  1,
		PreambleLen: 8,
		Power:       20,
	}
	if c != want {
		t.Errorf("unexpected rf config: %+v", c)
	}
	<-done
}

func TestSetRFConfig(t *testing.T) {
	l, tt := newTestSession(t)

	done := respond(t, tt, "at+rf_config=868700000,7,0,1,8,20\r\n", "OK\r\n")
	err := l.SetRFConfig(context.Background(), at.RFConfig{
		Frequency:   868700000,
		SpreadFact:  7,
		Bandwidth:   0,
		CodingRate:  1,
		PreambleLen: 8,
		Power:       20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done
}

func TestUpdateRFConfig(t *testing.T) {
	l, tt := newTestSession(t)

	// A partial update is a read followed by a write with the unchanged
	// fields carried over
	done := make(chan struct{})
	go func() {
		defer close(done)
		if got := tt.NextWrite(); got != "at+rf_config\r\n" {
			t.Errorf("expected rf_config read first, got %q", got)
		}
		tt.SendData("OK868100000,12,0,1,8,20\r\n")
		if got := tt.NextWrite(); got != "at+rf_config=868700000,7,0,1,8,20\r\n" {
			t.Errorf("unexpected rf_config write: %q", got)
		}
		tt.SendData("OK\r\n")
	}()

	freq := uint32(868700000)
	sf := 7
	c, err := l.UpdateRFConfig(context.Background(), rak811.RFConfigUpdate{
		Frequency:  &freq,
		SpreadFact: &sf,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done

	if c.Frequency != 868700000 || c.SpreadFact != 7 {
		t.Errorf("updated fields not applied: %+v", c)
	}
	if c.PreambleLen != 8 || c.Power != 20 {
		t.Errorf("unchanged fields not carried over: %+v", c)
	}
}

func TestTxc(t *testing.T) {
	t.Run("Resolves on the completion event", func(t *testing.T) {
		l, tt := newTestSession(t)

		done := respond(t, tt, "at+txc=1,0,cafe\r\n",
			"OK\r\n",
			"at+recv=9,0,0\r\n",
		)
		if err := l.Txc(context.Background(), []byte{0xca, 0xfe}, 1, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		<-done
	})

	t.Run("Failure event aborts the wait", func(t *testing.T) {
		l, tt := newTestSession(t)

		done := respond(t, tt, "at+txc=1,0,cafe\r\n",
			"OK\r\n",
			"at+recv=5,0,0\r\n",
		)
		err := l.Txc(context.Background(), []byte{0xca, 0xfe}, 1, 0)
		var evErr *rak811.EventError
		if !errors.As(err, &evErr) {
			t.Fatalf("expected EventError, got: %v", err)
		}
		if evErr.Code != at.EventTxTimeout {
			t.Errorf("expected event code %d, got %d", at.EventTxTimeout, evErr.Code)
		}
		<-done
	})
}

func TestRxc(t *testing.T) {
	l, tt := newTestSession(t)

	done := respond(t, tt, "at+rxc=1\r\n", "OK\r\n")
	if err := l.Rxc(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done

	// Messages received in continuous mode arrive as downlink events
	tt.SendData("at+recv=0,12,2,0102\r\n")
	deadline := time.After(time.Second)
	for l.Downlinks() == 0 {
		select {
		case <-deadline:
			t.Fatal("p2p message was not queued")
		case <-time.After(5 * time.Millisecond):
		}
	}

	done = respond(t, tt, "at+rx_stop\r\n", "OK\r\n")
	if err := l.RxStop(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done
}

func TestTxStop(t *testing.T) {
	l, tt := newTestSession(t)

	done := respond(t, tt, "at+tx_stop\r\n", "OK\r\n")
	if err := l.TxStop(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done
}
