package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Rafhael-Viana/geoproof/cache"
)

// TrustedProxies lists the peers whose X-Forwarded-For header is believed.
// A nil *TrustedProxies trusts nobody.
type TrustedProxies struct {
	nets []*net.IPNet
}

// NewTrustedProxies parses IPs and CIDRs such as "10.0.0.0/8" or "127.0.0.1".
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	p := &TrustedProxies{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("trusted proxy %q: not an IP or CIDR", e)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			p.nets = append(p.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		p.nets = append(p.nets, n)
	}
	return p, nil
}

func (p *TrustedProxies) trusts(addr string) bool {
	if p == nil {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range p.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIP is the direct peer unless that peer is a trusted proxy. Then
// X-Forwarded-For is walked from the right and the first untrusted hop wins.
func (p *TrustedProxies) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !p.trusts(peer) {
		return peer
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if net.ParseIP(hop) == nil {
			break
		}
		if !p.trusts(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

// ByClientIP keys a limiter on the caller address.
func (p *TrustedProxies) ByClientIP(r *http.Request) string { return "ip:" + p.ClientIP(r) }

// ByUser keys a limiter on the authenticated user, falling back to the IP.
func (p *TrustedProxies) ByUser(r *http.Request) string {
	if id, ok := UserIDFromContext(r.Context()); ok {
		return "user:" + id
	}
	return p.ByClientIP(r)
}

// ClientIP is the direct peer address; forwarding headers are ignored.
func ClientIP(r *http.Request) string { return remoteHost(r) }

func ByClientIP(r *http.Request) string { return (*TrustedProxies)(nil).ByClientIP(r) }

func ByUser(r *http.Request) string { return (*TrustedProxies)(nil).ByUser(r) }

// RateLimit answers 429 once key(r) exhausted its window. Store errors let
// the request through.
func RateLimit(limiter *cache.RateLimiter, key func(*http.Request) string, message string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := limiter.Allow(r.Context(), key(r))
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.Error(err))
			}

			w.Header().Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("RateLimit-Reset", strconv.Itoa(int(d.Reset.Seconds())))

			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(d.Reset.Seconds())))
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": message})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
