package discovery

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"time"
)

const (
	ssdpAddr = "239.255.255.250:1900"
	// MediaRenderer root devices answer this target; embedded-device-only
	// renderers answer ssdp:all, so both get searched.
	ssdpTarget = "urn:schemas-upnp-org:device:MediaRenderer:1"

	// maxBindAttempts caps the port walk when a configured range is mostly
	// occupied.
	maxBindAttempts = 128
)

// Response is one SSDP search answer.
type Response struct {
	Location string
	USN      string
	Server   string
	Headers  map[string]string
	FromIP   string
}

// SearchConfig shapes one discovery round.
type SearchConfig struct {
	// Passes is how many M-SEARCH datagrams to send; renderers routinely
	// drop a single multicast packet.
	Passes int
	// PassInterval separates the datagrams.
	PassInterval time.Duration
	// Timeout bounds how long answers are collected after the last pass.
	Timeout time.Duration
	// PortLow and PortHigh bound the local port of the search socket so
	// firewalls can pinhole a fixed range. Zero means any ephemeral port.
	PortLow  int
	PortHigh int
}

func (c SearchConfig) withDefaults() SearchConfig {
	if c.Passes <= 0 {
		c.Passes = 3
	}
	if c.PassInterval <= 0 {
		c.PassInterval = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// Discover multicasts M-SEARCH and collects MediaRenderer answers until the
// timeout. Devices answering more than one pass are deduplicated by USN;
// results keep arrival order.
func Discover(ctx context.Context, cfg SearchConfig) ([]Response, error) {
	cfg = cfg.withDefaults()

	conn, err := listenInRange(cfg.PortLow, cfg.PortHigh)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	group, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return nil, err
	}

	msg := searchMessage(cfg.Timeout)
	for pass := 0; pass < cfg.Passes; pass++ {
		if pass > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.PassInterval):
			}
		}
		if _, err := conn.WriteTo(msg, group); err != nil {
			return nil, fmt.Errorf("send m-search: %w", err)
		}
	}

	if err := conn.SetReadDeadline(time.Now().Add(cfg.Timeout)); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var found []Response
	buf := make([]byte, 2048)
	for {
		n, raddr, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return found, nil
			}
			return nil, err
		}

		resp, ok := parseResponse(string(buf[:n]))
		if !ok || seen[resp.USN] {
			continue
		}
		seen[resp.USN] = true
		resp.FromIP = raddr.String()
		found = append(found, resp)
	}
}

// listenInRange binds a udp4 socket on a port inside [low, high], walking the
// range from a random offset so concurrent searches don't fight over one
// port. A zero bound falls back to any ephemeral port.
func listenInRange(low, high int) (net.PacketConn, error) {
	if low <= 0 || high <= 0 {
		return net.ListenPacket("udp4", ":0")
	}

	span := high - low + 1
	start := rand.IntN(span)
	var lastErr error
	for i := 0; i < span && i < maxBindAttempts; i++ {
		port := low + (start+i)%span
		conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no free udp port in %d-%d: %w", low, high, lastErr)
}

func searchMessage(timeout time.Duration) []byte {
	// MX tells devices how long they may delay their answer; it has to fit
	// inside our collection window and the protocol caps it at 5.
	mx := int(timeout / time.Second)
	if mx < 1 {
		mx = 1
	} else if mx > 5 {
		mx = 5
	}
	return fmt.Appendf(nil, "M-SEARCH * HTTP/1.1\r\n"+
		"HOST: %s\r\n"+
		"MAN: \"ssdp:discover\"\r\n"+
		"MX: %d\r\n"+
		"ST: %s\r\n\r\n", ssdpAddr, mx, ssdpTarget)
}

// parseResponse extracts one M-SEARCH answer. Non-HTTP payloads, answers
// missing a location or USN, and non-renderer devices report ok=false.
func parseResponse(raw string) (Response, bool) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	if !scanner.Scan() || !strings.HasPrefix(scanner.Text(), "HTTP/") {
		return Response{}, false
	}

	headers := scanHeaders(scanner)
	resp := Response{
		Location: headers["LOCATION"],
		USN:      headers["USN"],
		Server:   headers["SERVER"],
		Headers:  headers,
	}
	if resp.Location == "" || resp.USN == "" {
		return Response{}, false
	}
	if !isMediaRendererUSN(resp.USN, headers["ST"]) {
		return Response{}, false
	}
	return resp, true
}

// scanHeaders consumes SSDP header lines up to the blank separator,
// uppercasing names so lookups are case-insensitive.
func scanHeaders(scanner *bufio.Scanner) map[string]string {
	headers := make(map[string]string)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToUpper(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	return headers
}

func isMediaRendererUSN(usn, st string) bool {
	return strings.Contains(usn, "MediaRenderer") || strings.Contains(st, "MediaRenderer")
}
