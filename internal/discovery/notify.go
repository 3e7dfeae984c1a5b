package discovery

import (
	"bufio"
	"context"
	"net"
	"strings"
)

// NotificationType distinguishes SSDP presence announcements.
type NotificationType string

const (
	NotifyAlive  NotificationType = "ssdp:alive"
	NotifyByeBye NotificationType = "ssdp:byebye"
)

// Notification is an unsolicited SSDP NOTIFY from the multicast group.
type Notification struct {
	Type     NotificationType
	Location string
	USN      string
	NT       string
	FromIP   string
}

// ListenNotify joins the SSDP multicast group and delivers MediaRenderer
// alive and byebye announcements until the context ends.
func ListenNotify(ctx context.Context, handler func(Notification)) error {
	addr, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		notification, ok := parseNotify(string(buf[:n]))
		if !ok {
			continue
		}
		notification.FromIP = raddr.String()
		handler(notification)
	}
}

// parseNotify extracts a MediaRenderer presence announcement. Announcements
// for other device types report ok=false.
func parseNotify(raw string) (Notification, bool) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	if !scanner.Scan() || !strings.HasPrefix(scanner.Text(), "NOTIFY") {
		return Notification{}, false
	}

	headers := scanHeaders(scanner)
	notification := Notification{
		Type:     NotificationType(headers["NTS"]),
		Location: headers["LOCATION"],
		USN:      headers["USN"],
		NT:       headers["NT"],
	}
	if notification.Type != NotifyAlive && notification.Type != NotifyByeBye {
		return Notification{}, false
	}
	if !isMediaRendererUSN(notification.USN, notification.NT) {
		return Notification{}, false
	}
	if notification.Type == NotifyAlive && notification.Location == "" {
		return Notification{}, false
	}
	return notification, true
}
