package rcopy

import (
	"fmt"
	"net"

	"avaneesh/rcopy-go/pkg/channel"
	"avaneesh/rcopy-go/pkg/config"
)

// OpenChannel creates the physical channel named by cfg.Transport. Servers
// bind cfg.Listen, clients connect to cfg.Remote.
func OpenChannel(cfg config.Config, isServer bool) (channel.PhysicalChannel, error) {
	address := cfg.Remote
	if isServer {
		address = cfg.Listen
	}

	var (
		ch  channel.PhysicalChannel
		err error
	)
	switch cfg.Transport {
	case "", "udp":
		ch, err = channel.NewUDPChannel(channel.UDPChannelConfig{
			Address:  address,
			IsServer: isServer,
		})
	case "tcp":
		ch, err = channel.NewTCPChannel(channel.TCPChannelConfig{
			Address:  address,
			IsServer: isServer,
		})
	case "quic":
		ch, err = channel.NewQUICChannel(channel.QUICChannelConfig{
			Address:  address,
			IsServer: isServer,
		})
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// addresser is implemented by channels bound to a local address
type addresser interface {
	Addr() net.Addr
}
