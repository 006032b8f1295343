package broadcast

import (
	"fmt"
	"net"
	"strconv"
)

// maxPort is the highest TCP port number
const maxPort = 65535

// listen binds the first free port in [port, port+attempts). Port 0 asks the
// kernel for an ephemeral port and is tried once.
func listen(host string, port, attempts int) (net.Listener, int, error) {
	if attempts < 1 {
		attempts = 1
	}
	if port == 0 {
		attempts = 1
	}

	var last error
	tried := 0
	for p := port; tried < attempts && p <= maxPort; p++ {
		tried++
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err != nil {
			last = err
			continue
		}
		return ln, ln.Addr().(*net.TCPAddr).Port, nil
	}

	return nil, 0, &PortError{
		Host:     host,
		First:    port,
		Attempts: tried,
		Err:      ErrNoFreePort,
		Last:     last,
	}
}

// localIPv4 returns the first non-loopback IPv4 address of any interface that
// is up, or "" if there is none
func localIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	return firstIPv4(ifaces, func(iface net.Interface) ([]net.Addr, error) {
		return iface.Addrs()
	})
}

func firstIPv4(ifaces []net.Interface, addrsOf func(net.Interface) ([]net.Addr, error)) string {
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := addrsOf(iface)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch a := addr.(type) {
			case *net.IPNet:
				ip = a.IP
			case *net.IPAddr:
				ip = a.IP
			}
			if ip4 := ip.To4(); ip4 != nil && !ip4.IsLoopback() {
				return ip4.String()
			}
		}
	}
	return ""
}

// peerInfo splits a remote address into host, port and family
func peerInfo(addr net.Addr) (string, int, string) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0, ""
	}
	port, _ := strconv.Atoi(portStr)

	family := "IPv6"
	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		family = "IPv4"
	}
	return host, port, family
}

// streamURL formats the address receivers fetch the stream from
func streamURL(host string, port int) string {
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s/", net.JoinHostPort(host, strconv.Itoa(port)))
}
