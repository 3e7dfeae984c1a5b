package discovery

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	raw := strings.Join([]string{
		"HTTP/1.1 200 OK",
		"CACHE-CONTROL: max-age=1800",
		"LOCATION: http://192.168.1.50:2869/description.xml",
		"SERVER: Linux/4.4 UPnP/1.0 SmartTV/1.0",
		"ST: urn:schemas-upnp-org:device:MediaRenderer:1",
		"USN: uuid:abcd-1234::urn:schemas-upnp-org:device:MediaRenderer:1",
		"",
		"",
	}, "\r\n")

	resp, ok := parseResponse(raw)
	require.True(t, ok)
	require.Equal(t, "http://192.168.1.50:2869/description.xml", resp.Location)
	require.Equal(t, "uuid:abcd-1234::urn:schemas-upnp-org:device:MediaRenderer:1", resp.USN)
	require.Equal(t, "Linux/4.4 UPnP/1.0 SmartTV/1.0", resp.Server)
}

func TestParseResponseRejects(t *testing.T) {
	t.Run("garbage", func(t *testing.T) {
		_, ok := parseResponse("not an http message at all")
		require.False(t, ok)
	})

	t.Run("non-renderer answer", func(t *testing.T) {
		raw := strings.Join([]string{
			"HTTP/1.1 200 OK",
			"LOCATION: http://192.168.1.1/igd.xml",
			"ST: urn:schemas-upnp-org:device:InternetGatewayDevice:1",
			"USN: uuid:router::urn:schemas-upnp-org:device:InternetGatewayDevice:1",
			"",
			"",
		}, "\r\n")
		_, ok := parseResponse(raw)
		require.False(t, ok)
	})

	t.Run("missing location", func(t *testing.T) {
		raw := strings.Join([]string{
			"HTTP/1.1 200 OK",
			"ST: urn:schemas-upnp-org:device:MediaRenderer:1",
			"USN: uuid:abcd::urn:schemas-upnp-org:device:MediaRenderer:1",
			"",
			"",
		}, "\r\n")
		_, ok := parseResponse(raw)
		require.False(t, ok)
	})
}

func TestListenInRange(t *testing.T) {
	conn, err := listenInRange(49400, 49410)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)
	require.GreaterOrEqual(t, addr.Port, 49400)
	require.LessOrEqual(t, addr.Port, 49410)
}

func TestListenInRangeUnbounded(t *testing.T) {
	conn, err := listenInRange(0, 0)
	require.NoError(t, err)
	conn.Close()
}

func TestSearchMessageClampsMX(t *testing.T) {
	msg := string(searchMessage(30 * time.Second))
	require.Contains(t, msg, "MX: 5\r\n")
	require.Contains(t, msg, "ST: "+ssdpTarget)
	require.True(t, strings.HasSuffix(msg, "\r\n\r\n"))

	require.Contains(t, string(searchMessage(100*time.Millisecond)), "MX: 1\r\n")
}

func TestParseNotify(t *testing.T) {
	t.Run("alive", func(t *testing.T) {
		raw := strings.Join([]string{
			"NOTIFY * HTTP/1.1",
			"HOST: 239.255.255.250:1900",
			"NT: urn:schemas-upnp-org:device:MediaRenderer:1",
			"NTS: ssdp:alive",
			"LOCATION: http://192.168.1.50:2869/description.xml",
			"USN: uuid:abcd-1234::urn:schemas-upnp-org:device:MediaRenderer:1",
			"",
			"",
		}, "\r\n")
		n, ok := parseNotify(raw)
		require.True(t, ok)
		require.Equal(t, NotifyAlive, n.Type)
		require.Equal(t, "http://192.168.1.50:2869/description.xml", n.Location)
	})

	t.Run("byebye without location", func(t *testing.T) {
		raw := strings.Join([]string{
			"NOTIFY * HTTP/1.1",
			"HOST: 239.255.255.250:1900",
			"NT: urn:schemas-upnp-org:device:MediaRenderer:1",
			"NTS: ssdp:byebye",
			"USN: uuid:abcd-1234::urn:schemas-upnp-org:device:MediaRenderer:1",
			"",
			"",
		}, "\r\n")
		n, ok := parseNotify(raw)
		require.True(t, ok)
		require.Equal(t, NotifyByeBye, n.Type)
		require.Equal(t, "uuid:abcd-1234::urn:schemas-upnp-org:device:MediaRenderer:1", n.USN)
	})

	t.Run("other device types filtered", func(t *testing.T) {
		raw := strings.Join([]string{
			"NOTIFY * HTTP/1.1",
			"NT: urn:schemas-upnp-org:device:InternetGatewayDevice:1",
			"NTS: ssdp:alive",
			"LOCATION: http://192.168.1.1/igd.xml",
			"USN: uuid:router::urn:schemas-upnp-org:device:InternetGatewayDevice:1",
			"",
			"",
		}, "\r\n")
		_, ok := parseNotify(raw)
		require.False(t, ok)
	})

	t.Run("msearch is not a notification", func(t *testing.T) {
		_, ok := parseNotify("M-SEARCH * HTTP/1.1\r\nMAN: \"ssdp:discover\"\r\n\r\n")
		require.False(t, ok)
	})
}

func TestServiceReportsStaticURLs(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	svc := NewService(Options{
		Disable:          true,
		StaticDeviceURLs: []string{"http://10.0.0.5:2869/desc.xml"},
		InitialInterval:  10 * time.Millisecond,
		Interval:         time.Hour,
	}, func(location, _ string) {
		mu.Lock()
		seen = append(seen, location)
		mu.Unlock()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(svc.Stop)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "http://10.0.0.5:2869/desc.xml", seen[0])
}
