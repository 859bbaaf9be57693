package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// TCPChannel implements PhysicalChannel over a TCP stream with length-prefixed frames
type TCPChannel struct {
	// Connection
	conn     net.Conn
	connLock sync.RWMutex

	// Configuration
	address      string
	isServer     bool
	listener     net.Listener
	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	stats counters

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// TCPChannelConfig configures a TCP channel
type TCPChannelConfig struct {
	Address      string        // "host:port" format
	IsServer     bool          // true = listen, false = connect
	DialTimeout  time.Duration // Connect timeout (client only)
	ReadTimeout  time.Duration // Read timeout (0 = wait indefinitely)
	WriteTimeout time.Duration // Write timeout (0 = no timeout)
}

// NewTCPChannel creates a new TCP channel
func NewTCPChannel(config TCPChannelConfig) (*TCPChannel, error) {
	if config.Address == "" {
		return nil, ErrNoAddress
	}

	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	tc := &TCPChannel{
		address:      config.Address,
		isServer:     config.IsServer,
		dialTimeout:  config.DialTimeout,
		readTimeout:  config.ReadTimeout,
		writeTimeout: config.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	var err error
	if config.IsServer {
		err = tc.startServer()
	} else {
		err = tc.connect()
	}
	if err != nil {
		cancel()
		return nil, err
	}

	return tc, nil
}

// startServer starts listening for incoming connections
func (tc *TCPChannel) startServer() error {
	listener, err := net.Listen("tcp", tc.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", tc.address, err)
	}

	tc.listener = listener

	tc.wg.Add(1)
	go tc.acceptLoop()

	return nil
}

// acceptLoop accepts incoming connections. A new peer replaces the previous one.
func (tc *TCPChannel) acceptLoop() {
	defer tc.wg.Done()

	for {
		conn, err := tc.listener.Accept()
		if err != nil {
			if tc.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		tc.connLock.Lock()
		if tc.conn != nil {
			tc.conn.Close()
			tc.stats.disconnects.Add(1)
		}
		tc.conn = conn
		tc.stats.connects.Add(1)
		tc.connLock.Unlock()
	}
}

// connect establishes a connection to the remote server
func (tc *TCPChannel) connect() error {
	conn, err := net.DialTimeout("tcp", tc.address, tc.dialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", tc.address, err)
	}

	tc.connLock.Lock()
	tc.conn = conn
	tc.stats.connects.Add(1)
	tc.connLock.Unlock()

	return nil
}

// waitConn returns the current connection, waiting for a peer in server mode
func (tc *TCPChannel) waitConn(ctx context.Context) (net.Conn, error) {
	for {
		tc.connLock.RLock()
		conn := tc.conn
		tc.connLock.RUnlock()

		if conn != nil {
			return conn, nil
		}
		if !tc.isServer {
			return nil, ErrNoConnection
		}

		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tc.ctx.Done():
			return nil, ErrClosed
		}
	}
}

// Read implements PhysicalChannel.Read
func (tc *TCPChannel) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-tc.ctx.Done():
		return nil, ErrClosed
	default:
	}

	conn, err := tc.waitConn(ctx)
	if err != nil {
		return nil, err
	}

	frame, err := readFrameContext(ctx, conn, conn, tc.readTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		if tc.closed.Load() {
			return nil, ErrClosed
		}
		tc.dropConn(conn)
		tc.stats.readErrors.Add(1)
		return nil, fmt.Errorf("tcp read: %w", err)
	}

	tc.stats.received(len(frame))
	return frame, nil
}

// Write implements PhysicalChannel.Write
func (tc *TCPChannel) Write(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tc.ctx.Done():
		return ErrClosed
	default:
	}

	tc.connLock.RLock()
	conn := tc.conn
	tc.connLock.RUnlock()

	if conn == nil {
		tc.stats.writeErrors.Add(1)
		return ErrNoConnection
	}

	if tc.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(tc.writeTimeout))
	}

	if err := writeFrame(conn, data); err != nil {
		tc.stats.writeErrors.Add(1)
		if !errors.Is(err, ErrOversize) {
			tc.dropConn(conn)
		}
		return fmt.Errorf("tcp write: %w", err)
	}

	tc.stats.sent(len(data))
	return nil
}

// dropConn closes conn if it is still the active connection
func (tc *TCPChannel) dropConn(conn net.Conn) {
	tc.connLock.Lock()
	defer tc.connLock.Unlock()

	if tc.conn == conn {
		tc.conn.Close()
		tc.stats.disconnects.Add(1)
		tc.conn = nil
	}
}

// Close implements PhysicalChannel.Close
func (tc *TCPChannel) Close() error {
	if !tc.closed.CompareAndSwap(false, true) {
		return nil
	}

	tc.cancel()

	if tc.listener != nil {
		tc.listener.Close()
	}

	tc.connLock.Lock()
	if tc.conn != nil {
		tc.conn.Close()
		tc.stats.disconnects.Add(1)
		tc.conn = nil
	}
	tc.connLock.Unlock()

	tc.wg.Wait()

	return nil
}

// Statistics implements PhysicalChannel.Statistics
func (tc *TCPChannel) Statistics() TransportStats {
	return tc.stats.snapshot()
}

// IsConnected returns true if there is an active connection
func (tc *TCPChannel) IsConnected() bool {
	tc.connLock.RLock()
	defer tc.connLock.RUnlock()
	return tc.conn != nil
}

// Addr returns the listening address in server mode and the local address otherwise
func (tc *TCPChannel) Addr() net.Addr {
	if tc.listener != nil {
		return tc.listener.Addr()
	}
	tc.connLock.RLock()
	defer tc.connLock.RUnlock()
	if tc.conn != nil {
		return tc.conn.LocalAddr()
	}
	return nil
}
