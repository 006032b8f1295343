// Package discovery finds Google Cast receivers on the local network using
// multicast DNS service discovery.
//
// An Engine sends a PTR query for "_googlecast._tcp.local." through a
// Transport and keeps a Registry of the receivers that answer, keyed by the
// friendly name from the "fn=" TXT entry.
//
// # Usage Example
//
//	transport, err := discovery.NewTransport(discovery.TransportNative)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := discovery.NewEngine(transport)
//	engine.Subscribe(discovery.ListenerFuncs{
//	    Up: func(name string) { fmt.Println("up:", name) },
//	})
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Transports
//
// Three transports are available:
//   - native: sockets managed here, messages packed with miekg/dns
//   - zeroconf: github.com/grandcat/zeroconf resolver
//   - hashicorp: github.com/hashicorp/mdns browse loop
//
// Only the native transport reports goodbye packets, so with the other two
// a receiver that leaves stays in the registry until the engine is
// restarted.
//
// # Ordering
//
// Listeners are called from a single goroutine in the order responses were
// received. Registry positions shift down when an earlier device leaves.
//
// # Network Requirements
//
// - Multicast support on at least one interface
// - Firewall must allow mDNS (UDP port 5353)
package discovery
