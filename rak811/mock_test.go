package rak811_test

import (
	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/loragw/rak811"
)

type MockSequenceBuilder struct {
	transport *rak811.MockTransport
	calls     []any
}

func NewMockSequence(transport *rak811.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// Version scripts the initialization probe.
func (b *MockSequenceBuilder) Version() *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte("at+version\r\n")).Return(12, nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			resp := "OK2.0.3.0\r\n"
			copy(p, resp)
			return len(resp), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

func initMockCalls(transport *rak811.MockTransport) []any {
	return NewMockSequence(transport).Version().Build()
}
