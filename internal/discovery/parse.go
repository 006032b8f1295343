package discovery

import (
	"net"
	"strings"

	"github.com/miekg/dns"
)

const (
	// ServiceType is the mDNS service type Cast receivers advertise
	ServiceType = "_googlecast._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// TXT entry prefixes
	modelPrefix        = "md="
	friendlyNamePrefix = "fn="

	// defaultTTL is used for records synthesised from library entries
	defaultTTL = 120
)

// ServiceName returns the fully qualified name queried with PTR
// ("_googlecast._tcp.local.")
func ServiceName() string {
	return ServiceType + "." + ServiceDomain
}

// NewQuery builds the multicast PTR question for service.
// mDNS queries carry ID 0 and no recursion bit.
func NewQuery(service string) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(service), dns.TypePTR)
	m.Id = 0
	m.RecursionDesired = false
	return m
}

// parseResponse extracts one device from an mDNS response.
//
// The message must carry at least one record owned by the service (PTR for
// the service name, SRV/TXT for one of its instances). TXT entries of the
// service instance provide the name ("fn=") and model ("md="); every A and
// AAAA record contributes an address. Records with a TTL of zero are
// ignored. Responses without a friendly name cannot be keyed and are
// reported as not ok.
func parseResponse(msg *dns.Msg, service string) (Device, bool) {
	var d Device
	related := false

	records := make([]dns.RR, 0, len(msg.Answer)+len(msg.Extra))
	records = append(records, msg.Answer...)
	records = append(records, msg.Extra...)

	for _, rr := range records {
		// TTL 0 withdraws the record; goodbyes handles those
		if rr.Header().Ttl == 0 {
			continue
		}
		switch rec := rr.(type) {
		case *dns.PTR:
			if isServiceName(rec.Hdr.Name, service) {
				related = true
				if d.Instance == "" {
					d.Instance = rec.Ptr
				}
			}
		case *dns.SRV:
			if isInstanceOf(rec.Hdr.Name, service) {
				related = true
				d.Instance = rec.Hdr.Name
			}
		case *dns.TXT:
			if !isInstanceOf(rec.Hdr.Name, service) {
				continue
			}
			related = true
			d.Instance = rec.Hdr.Name
			for _, entry := range rec.Txt {
				switch {
				case strings.HasPrefix(entry, modelPrefix):
					d.Type = strings.TrimPrefix(entry, modelPrefix)
				case strings.HasPrefix(entry, friendlyNamePrefix):
					d.Name = strings.TrimPrefix(entry, friendlyNamePrefix)
				}
			}
		case *dns.A:
			d.Addresses = append(d.Addresses, rec.A.String())
		case *dns.AAAA:
			d.Addresses = append(d.Addresses, rec.AAAA.String())
		}
	}

	if !related || d.Name == "" {
		return Device{}, false
	}
	return d, true
}

// goodbyes returns the instances a response withdraws: PTR records for the
// service with a TTL of zero.
func goodbyes(msg *dns.Msg, service string) []string {
	var instances []string
	for _, rr := range msg.Answer {
		if ptr, ok := rr.(*dns.PTR); ok && ptr.Hdr.Ttl == 0 && isServiceName(ptr.Hdr.Name, service) {
			instances = append(instances, ptr.Ptr)
		}
	}
	return instances
}

func isServiceName(name, service string) bool {
	return strings.EqualFold(dns.Fqdn(name), dns.Fqdn(service))
}

func isInstanceOf(name, service string) bool {
	return strings.HasSuffix(strings.ToLower(dns.Fqdn(name)), "."+strings.ToLower(dns.Fqdn(service)))
}

// entryMessage turns the pieces of a resolved service entry (as produced by
// the zeroconf and hashicorp libraries) back into an mDNS response so the
// engine can parse every transport the same way.
func entryMessage(service, instance, host string, txt []string, ipv4, ipv6 []net.IP, ttl uint32) *dns.Msg {
	if ttl == 0 {
		ttl = defaultTTL
	}
	if host == "" {
		host = instance
	}
	service = dns.Fqdn(service)
	instance = dns.Fqdn(instance)
	host = dns.Fqdn(host)

	m := new(dns.Msg)
	m.Response = true
	m.Authoritative = true
	m.Answer = append(m.Answer, &dns.PTR{
		Hdr: dns.RR_Header{Name: service, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: ttl},
		Ptr: instance,
	})
	m.Extra = append(m.Extra, &dns.TXT{
		Hdr: dns.RR_Header{Name: instance, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: ttl},
		Txt: txt,
	})
	for _, ip := range ipv4 {
		if ip4 := ip.To4(); ip4 != nil {
			m.Extra = append(m.Extra, &dns.A{
				Hdr: dns.RR_Header{Name: host, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
				A:   ip4,
			})
		}
	}
	for _, ip := range ipv6 {
		if ip != nil && ip.To4() == nil {
			m.Extra = append(m.Extra, &dns.AAAA{
				Hdr:  dns.RR_Header{Name: host, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: ttl},
				AAAA: ip,
			})
		}
	}
	return m
}

// splitService splits "_googlecast._tcp.local." into the service type
// ("_googlecast._tcp") and domain ("local.") the browse libraries expect.
func splitService(service string) (string, string) {
	labels := dns.SplitDomainName(dns.Fqdn(service))
	if len(labels) <= 2 {
		return strings.Join(labels, "."), ServiceDomain
	}
	return strings.Join(labels[:2], "."), strings.Join(labels[2:], ".") + "."
}
