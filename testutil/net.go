/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// GetLocalFreeTCPPort returns a TCP port on 127.0.0.1 that nobody is listening on.
func GetLocalFreeTCPPort() int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	if err := listener.Close(); err != nil {
		panic(err)
	}
	return port
}

// GetLocalAddrWithFreeTCPPort returns a 127.0.0.1:<free-tcp-port> address.
func GetLocalAddrWithFreeTCPPort() string {
	return fmt.Sprintf("127.0.0.1:%d", GetLocalFreeTCPPort())
}

// WaitListeningServer waits until a server accepts TCP connections on the given address.
func WaitListeningServer(addr string, timeout time.Duration) error {
	return poll(timeout, "waiting listening server timed out", func() bool {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	})
}

// WaitPortAndListeningServer waits until getPort reports the listening port
// and a server accepts TCP connections on it.
func WaitPortAndListeningServer(host string, getPort func() int, timeout time.Duration) (int, error) {
	var port int
	if err := poll(timeout, "waiting for listening port timed out", func() bool {
		port = getPort()
		return port > 0
	}); err != nil {
		return 0, err
	}
	return port, WaitListeningServer(fmt.Sprintf("%s:%d", host, port), timeout)
}

func poll(timeout time.Duration, timeoutMsg string, ready func() bool) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if ready() {
			return nil
		}
		select {
		case <-timer.C:
			return errors.New(timeoutMsg)
		default:
			time.Sleep(time.Millisecond * 10)
		}
	}
}
