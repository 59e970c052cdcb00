package imagefetch

import (
	"net/netip"
	"net/url"
	"strings"

	"go.klb.dev/clipdrag/internal/progress"
)

// cgnat is the shared address space of RFC 6598.
var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// checkURL rejects URLs that are not http(s) and, unless allowPrivate is
// set, URLs whose host is a local name or a non-public IP literal.
func checkURL(raw string, allowPrivate bool) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, progress.Wrap(progress.CodeFormatInvalid, err, "invalid URL")
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return nil, progress.Errorf(progress.CodeFormatInvalid, "only http and https URLs are supported, got %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, progress.Errorf(progress.CodeFormatInvalid, "URL has no host")
	}
	if allowPrivate {
		return u, nil
	}
	if isLocalHostname(host) {
		return nil, progress.Errorf(progress.CodeFormatInvalid, "refusing local host %s", host)
	}
	if addr, err := netip.ParseAddr(host); err == nil && !isPublic(addr) {
		return nil, progress.Errorf(progress.CodeFormatInvalid, "refusing private address %s", addr)
	}
	return u, nil
}

func isLocalHostname(host string) bool {
	h := strings.TrimSuffix(strings.ToLower(host), ".")
	return h == "localhost" || strings.HasSuffix(h, ".localhost") || strings.HasSuffix(h, ".local")
}

func isPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsUnspecified(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast():
		return false
	}
	if addr.Is4() {
		b := addr.As4()
		if b[0] == 0 || b == [4]byte{255, 255, 255, 255} || cgnat.Contains(addr) {
			return false
		}
	}
	return true
}
