package materializer

import (
	"net/netip"

	"github.com/hashicorp/go-hclog"
)

// hostCount returns the number of usable host addresses in prefix,
// matching Python's ipaddress.IPv4Network.hosts()/IPv6Network.hosts():
// the network address (and, for IPv4 networks narrower than /31, the
// broadcast address) is excluded; /31 and /32 IPv4 networks and /128
// IPv6 networks are special-cased to include every address they contain
// (RFC 3021).
func hostCount(prefix netip.Prefix) int64 {
	bits := prefix.Addr().BitLen()
	prefixLen := prefix.Bits()
	width := bits - prefixLen

	if bits == 32 {
		switch {
		case prefixLen == 32:
			return 1
		case prefixLen == 31:
			return 2
		default:
			return (int64(1) << width) - 2
		}
	}

	// IPv6: hosts() excludes only the network address.
	if prefixLen == 128 {
		return 1
	}
	if width >= 63 {
		// Astronomically large; cap rather than overflow int64. No
		// realistic policy file enumerates a prefix this wide for
		// session capacity.
		return 1<<62 - 1
	}
	return (int64(1) << width) - 1
}

// isHostInPrefix reports whether addr is a usable host address within
// prefix under the same rules as hostCount.
func isHostInPrefix(addr netip.Addr, prefix netip.Prefix) bool {
	if !prefix.Contains(addr) {
		return false
	}
	bits := addr.BitLen()
	prefixLen := prefix.Bits()
	if bits == 32 {
		if prefixLen >= 31 {
			return true
		}
		network := prefix.Masked().Addr()
		broadcast := lastAddr(prefix)
		return addr != network && addr != broadcast
	}
	if prefixLen == 128 {
		return true
	}
	return addr != prefix.Masked().Addr()
}

// lastAddr returns the broadcast (highest) address of an IPv4 prefix.
func lastAddr(prefix netip.Prefix) netip.Addr {
	base := prefix.Masked().Addr().As4()
	width := 32 - prefix.Bits()
	mask := uint32(1)<<uint(width) - 1
	val := (uint32(base[0])<<24 | uint32(base[1])<<16 | uint32(base[2])<<8 | uint32(base[3])) | mask
	return netip.AddrFrom4([4]byte{byte(val >> 24), byte(val >> 16), byte(val >> 8), byte(val)})
}

// computeCapacity implements spec.md §4.3 step 5 / §3's max_session_count
// invariant: Σ (|hosts(prefix)| − |exclude ∩ hosts(prefix)|) over every
// parseable prefix. Malformed prefixes and malformed exclude addresses
// are each warned about and skipped; remaining prefixes still
// contribute (spec.md §7 items 3 and 4).
func computeCapacity(prefixes, exclude []string, logger hclog.Logger) int64 {
	excludeAddrs := make([]netip.Addr, 0, len(exclude))
	for _, raw := range exclude {
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			logger.Warn("invalid exclude address, ignoring", "address", raw, "error", err)
			continue
		}
		excludeAddrs = append(excludeAddrs, addr)
	}

	var total int64
	for _, raw := range prefixes {
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			logger.Warn("invalid prefix, ignoring", "prefix", raw, "error", err)
			continue
		}
		count := hostCount(prefix)
		for _, addr := range excludeAddrs {
			if isHostInPrefix(addr, prefix) {
				count--
			}
		}
		if count > 0 {
			total += count
		}
	}
	return total
}
