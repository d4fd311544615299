// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"context"
	"io"
)

// mockTransport records sent frames and answers each one through respond.
type mockTransport struct {
	sent    [][]byte
	receive int
	pending [][]byte

	respond func(req []byte) []byte
	sendErr error
	recvErr error
}

func (m *mockTransport) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.sent = append(m.sent, append([]byte(nil), frame...))
	if m.sendErr != nil {
		return m.sendErr
	}
	if m.respond != nil {
		if resp := m.respond(frame); resp != nil {
			m.pending = append(m.pending, resp)
		}
	}
	return nil
}

func (m *mockTransport) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.receive++
	if m.recvErr != nil {
		return nil, m.recvErr
	}
	if len(m.pending) == 0 {
		return nil, io.EOF
	}
	resp := m.pending[0]
	m.pending = m.pending[1:]
	return resp, nil
}

func echo(req []byte) []byte {
	return append([]byte(nil), req...)
}

func fixed(resp []byte) func([]byte) []byte {
	return func([]byte) []byte { return resp }
}
