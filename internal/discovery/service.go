// Package discovery finds DLNA MediaRenderers: multi-pass SSDP search on a
// schedule, a NOTIFY listener for devices announcing themselves, and static
// description URLs for networks that filter multicast.
package discovery

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Options configure the discovery service.
type Options struct {
	// InitialInterval is the search period until the first renderer shows up.
	InitialInterval time.Duration
	// Interval is the steady-state search period.
	Interval time.Duration
	// Disable skips SSDP entirely; only StaticDeviceURLs get reported.
	Disable          bool
	StaticDeviceURLs []string
	// UDPPortLow and UDPPortHigh bound the local port of the search socket.
	UDPPortLow  int
	UDPPortHigh int
	TraceSSDP   bool
	TraceFilter string
	Logger      *log.Logger
}

// Service runs renderer discovery and reports findings through callbacks.
type Service struct {
	opts       Options
	logger     *log.Logger
	cron       *cron.Cron
	onLocation func(location, usn string)
	onByeBye   func(usn string)

	mu       sync.Mutex
	seenAny  bool
	cancel   context.CancelFunc
	stopped  bool
	scanning bool
}

// NewService creates a discovery service. onLocation receives every device
// description URL found by any path, along with the advertised USN when the
// source carried one; onByeBye receives the USN of renderers announcing
// shutdown.
func NewService(opts Options, onLocation func(location, usn string), onByeBye func(usn string)) *Service {
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 5 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		opts:       opts,
		logger:     logger,
		cron:       cron.New(),
		onLocation: onLocation,
		onByeBye:   onByeBye,
	}
}

// Start launches the NOTIFY listener, an immediate scan, and the rescan
// schedule.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if !s.opts.Disable {
		go func() {
			if err := ListenNotify(ctx, s.handleNotify); err != nil {
				s.logger.Printf("DISCOVERY: notify listener stopped: %v", err)
			}
		}()
	}

	go s.scan(ctx)

	// Fast cadence until the first renderer answers, then the cron entry
	// takes over at the configured steady-state interval.
	go s.initialLoop(ctx)

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.opts.Interval), func() { s.scan(ctx) }); err != nil {
		return fmt.Errorf("schedule rescan: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduled scans and the NOTIFY listener.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-s.cron.Stop().Done()
}

func (s *Service) initialLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.InitialInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			seen := s.seenAny
			s.mu.Unlock()
			if seen {
				return
			}
			s.scan(ctx)
		}
	}
}

// scan runs one discovery round. Overlapping rounds collapse into one.
func (s *Service) scan(ctx context.Context) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return
	}
	s.scanning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	for _, loc := range s.opts.StaticDeviceURLs {
		s.report(loc, "")
	}
	if s.opts.Disable {
		return
	}

	responses, err := Discover(ctx, SearchConfig{
		PortLow:  s.opts.UDPPortLow,
		PortHigh: s.opts.UDPPortHigh,
	})
	if err != nil {
		s.logger.Printf("DISCOVERY: SSDP search failed: %v", err)
		return
	}
	for _, resp := range responses {
		s.trace("response from %s: %s (%s)", resp.FromIP, resp.USN, resp.Server)
		s.report(resp.Location, resp.USN)
	}
}

func (s *Service) handleNotify(n Notification) {
	switch n.Type {
	case NotifyAlive:
		s.trace("alive from %s: %s", n.FromIP, n.USN)
		s.report(n.Location, n.USN)
	case NotifyByeBye:
		s.trace("byebye from %s: %s", n.FromIP, n.USN)
		if s.onByeBye != nil {
			s.onByeBye(n.USN)
		}
	}
}

func (s *Service) report(location, usn string) {
	if location == "" || s.onLocation == nil {
		return
	}
	s.mu.Lock()
	s.seenAny = true
	s.mu.Unlock()
	s.onLocation(location, usn)
}

func (s *Service) trace(format string, args ...any) {
	if !s.opts.TraceSSDP {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if s.opts.TraceFilter != "" && !containsFold(msg, s.opts.TraceFilter) {
		return
	}
	s.logger.Printf("SSDP: %s", msg)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
