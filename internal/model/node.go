package model

import (
	"fmt"
	"net"
	"strconv"
)

// NodeDescriptor is the static configuration of one backend node.
type NodeDescriptor struct {
	ID       string
	Host     string
	Port     int
	Secure   bool
	Password string
	UserID   int64
	Quiet    bool
}

// URL returns the websocket endpoint of the node.
func (n NodeDescriptor) URL() string {
	scheme := "ws"
	if n.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(n.Host, strconv.Itoa(n.Port)))
}
