package rpc

import (
	"context"
	"sync"
)

// Transport moves frames between the two sides of the boundary. Send and
// Receive may be called concurrently with each other; Send may be called
// from several goroutines.
type Transport interface {
	Send(ctx context.Context, f Frame) error
	Receive(ctx context.Context) (Frame, error)
	Close() error
}

const pipeBuffer = 64

type pipe struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// NewPipe returns the two ends of an in-process transport. Frames are
// encoded on the way through, so neither side shares memory with the other.
// Closing either end closes both.
func NewPipe() (Transport, Transport) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}

	return &pipe{in: ba, out: ab, done: done, once: once},
		&pipe{in: ab, out: ba, done: done, once: once}
}

func (p *pipe) Send(ctx context.Context, f Frame) error {
	data, err := EncodeFrame(f)
	if err != nil {
		return err
	}

	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	select {
	case p.out <- data:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipe) Receive(ctx context.Context) (Frame, error) {
	select {
	case data := <-p.in:
		return DecodeFrame(data)
	default:
	}

	select {
	case data := <-p.in:
		return DecodeFrame(data)
	case <-p.done:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (p *pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
