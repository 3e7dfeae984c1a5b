// Package registry owns the session lifecycle: discovered renderers become
// (session, controller) pairs, NOTIFY callbacks get demultiplexed to their
// session, and byebye or repeated failures tear the pair down.
package registry

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strefethen/dlna-hub-go/internal/device"
	"github.com/strefethen/dlna-hub-go/internal/playlist"
	"github.com/strefethen/dlna-hub-go/internal/playsession"
	"github.com/strefethen/dlna-hub-go/internal/profile"
	"github.com/strefethen/dlna-hub-go/internal/stream"
	"github.com/strefethen/dlna-hub-go/internal/upnp"
	"github.com/strefethen/dlna-hub-go/internal/upnp/soap"
)

// Options configure session construction.
type Options struct {
	// ServerURL is this hub's externally reachable base, used for GENA
	// callback URLs.
	ServerURL string
	// MediaServerURL is where renderers pull streams from.
	MediaServerURL string
	APIKey         string

	QueueInterval time.Duration
	PollInterval  time.Duration
	CacheTTL      time.Duration
	PhotoInterval time.Duration
	MaxResumePct  float64

	// AutoCreateProfiles persists a generated profile for unmatched devices.
	AutoCreateProfiles bool

	Logger *log.Logger
	Debug  bool
}

// Info is the API-facing summary of one active session.
type Info struct {
	ID             string `json:"id"`
	DeviceName     string `json:"deviceName"`
	Manufacturer   string `json:"manufacturer"`
	ModelName      string `json:"modelName"`
	BaseURL        string `json:"baseUrl"`
	TransportState string `json:"transportState"`
	ProfileID      string `json:"profileId"`
	ProfileName    string `json:"profileName"`
}

type entry struct {
	id         string
	udn        string
	location   string
	desc       *upnp.DeviceDescription
	prof       *profile.DeviceProfile
	session    *device.Session
	controller *playlist.Controller
}

// Registry tracks every active renderer session.
type Registry struct {
	opts     Options
	client   *soap.Client
	profiles *profile.Repository
	manager  *playsession.Manager
	source   playlist.MediaSource
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	byID     map[string]*entry
	byUDN    map[string]*entry
	creating map[string]struct{}
	closed   bool
}

// NewRegistry wires a registry over its collaborators.
func NewRegistry(client *soap.Client, profiles *profile.Repository, manager *playsession.Manager, source playlist.MediaSource, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		opts:     opts,
		client:   client,
		profiles: profiles,
		manager:  manager,
		source:   source,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		byID:     make(map[string]*entry),
		byUDN:    make(map[string]*entry),
		creating: make(map[string]struct{}),
	}
}

// OnDeviceLocation handles a discovered description URL: new renderers get a
// session, known ones refresh their activity stamp, and renderers that moved
// to a new address get rebuilt. usn is the advertised USN when the discovery
// source carried one; it lets sightings of known devices skip the description
// re-fetch entirely.
func (r *Registry) OnDeviceLocation(location, usn string) {
	if udn := udnFromUSN(usn); udn != "" {
		r.mu.Lock()
		e := r.byUDN[udn]
		r.mu.Unlock()
		if e != nil && e.location == location {
			r.manager.LogSessionActivity(e.id)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
	defer cancel()

	payload, err := r.client.FetchXML(ctx, location)
	if err != nil {
		r.debugf("description fetch failed for %s: %v", location, err)
		return
	}
	desc, err := upnp.ParseDeviceDescription(payload, location)
	if err != nil {
		r.debugf("description parse failed for %s: %v", location, err)
		return
	}
	if !desc.IsMediaRenderer() {
		r.debugf("%s is not a MediaRenderer, ignoring", desc.FriendlyName)
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	existing := r.byUDN[desc.UDN]
	if existing != nil && existing.desc.BaseURL == desc.BaseURL {
		existing.location = location
		id := existing.id
		r.mu.Unlock()
		r.manager.LogSessionActivity(id)
		return
	}
	// An M-SEARCH response and a NOTIFY alive for the same new device land
	// concurrently; only one sighting may build the session.
	if _, busy := r.creating[desc.UDN]; busy {
		r.mu.Unlock()
		return
	}
	r.creating[desc.UDN] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.creating, desc.UDN)
		r.mu.Unlock()
	}()

	if existing != nil {
		// Renderer came back on a different address; its control URLs are
		// stale, so the whole session gets rebuilt.
		r.logger.Printf("REGISTRY: %s moved from %s to %s",
			desc.FriendlyName, existing.desc.BaseURL, desc.BaseURL)
		r.remove(existing.id)
	}

	r.create(desc, location)
}

func (r *Registry) create(desc *upnp.DeviceDescription, location string) {
	id := uuid.NewString()

	callbackURL := ""
	if r.opts.ServerURL != "" {
		callbackURL = strings.TrimRight(r.opts.ServerURL, "/") + "/Dlna/Eventing/" + id
	}

	session := device.NewSession(id, desc, r.client, device.Options{
		QueueInterval: r.opts.QueueInterval,
		PollInterval:  r.opts.PollInterval,
		CacheTTL:      r.opts.CacheTTL,
		CallbackURL:   callbackURL,
		Logger:        r.logger,
		Debug:         r.opts.Debug,
	})

	infoCtx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
	sink, err := session.ProtocolInfo(infoCtx)
	cancel()
	if err != nil {
		// ConnectionManager is optional; generated profiles just lose their
		// seeded format list.
		r.debugf("GetProtocolInfo failed for %s: %v", desc.FriendlyName, err)
	}

	prof, err := r.profiles.GetProfile(r.ctx, profile.InfoFromDescription(desc), sink, r.opts.AutoCreateProfiles)
	if err != nil {
		r.logger.Printf("REGISTRY: profile resolution failed for %s: %v", desc.FriendlyName, err)
		return
	}

	builder := stream.NewBuilder(r.opts.MediaServerURL, desc.UDN, r.opts.APIKey)
	controller := playlist.NewController(session, r.source, builder, prof, playlist.Options{
		SessionID:     id,
		PhotoInterval: r.opts.PhotoInterval,
		MaxResumePct:  r.opts.MaxResumePct,
		Logger:        r.logger,
		Debug:         r.opts.Debug,
	})
	session.SetListener(controller)
	controller.SetReporter(r.manager)
	session.SetOnUnavailable(func(reason string) {
		r.logger.Printf("REGISTRY: %s unavailable: %s", desc.FriendlyName, reason)
		r.remove(id)
	})

	if err := session.Start(r.ctx); err != nil {
		r.logger.Printf("REGISTRY: session start failed for %s: %v", desc.FriendlyName, err)
		controller.Dispose()
		return
	}

	e := &entry{
		id:         id,
		udn:        desc.UDN,
		location:   location,
		desc:       desc,
		prof:       prof,
		session:    session,
		controller: controller,
	}

	r.mu.Lock()
	if r.closed || r.byUDN[desc.UDN] != nil {
		// Shut down or lost the race to another sighting; one session per
		// device UUID, so this one goes away.
		r.mu.Unlock()
		controller.Dispose()
		session.Dispose()
		return
	}
	r.byID[id] = e
	r.byUDN[desc.UDN] = e
	r.mu.Unlock()

	r.manager.RegisterSession(id, desc.FriendlyName)
	r.manager.ReportCapabilities(id, capabilitiesFor(prof))
	r.logger.Printf("REGISTRY: session %s created for %s (%s)", id, desc.FriendlyName, desc.BaseURL)
}

func capabilitiesFor(prof *profile.DeviceProfile) playsession.Capabilities {
	types := prof.SupportedMediaTypes
	if len(types) == 0 {
		types = []string{"Audio", "Video", "Photo"}
	}
	return playsession.Capabilities{
		PlayableMediaTypes:   types,
		SupportsMediaControl: true,
	}
}

// HandleEvent routes a GENA NOTIFY body to its session. Unknown ids are
// dropped; the HTTP layer answers 200 either way so renderers don't cancel
// their subscriptions.
func (r *Registry) HandleEvent(sessionID string, body []byte) bool {
	r.mu.Lock()
	e := r.byID[sessionID]
	r.mu.Unlock()
	if e == nil {
		return false
	}
	e.session.HandleEvent(body)
	return true
}

// OnByeBye tears down the session of a renderer announcing shutdown.
func (r *Registry) OnByeBye(usn string) {
	udn := udnFromUSN(usn)
	if udn == "" {
		return
	}
	r.mu.Lock()
	e := r.byUDN[udn]
	r.mu.Unlock()
	if e == nil {
		return
	}
	r.logger.Printf("REGISTRY: %s said goodbye", e.desc.FriendlyName)
	r.remove(e.id)
}

// udnFromUSN strips the uuid: prefix and the ::urn suffix from an SSDP USN.
func udnFromUSN(usn string) string {
	usn = strings.TrimPrefix(strings.TrimSpace(usn), "uuid:")
	if i := strings.Index(usn, "::"); i >= 0 {
		usn = usn[:i]
	}
	return usn
}

// Get returns the controller and session for an id.
func (r *Registry) Get(sessionID string) (*playlist.Controller, *device.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.byID[sessionID]
	if e == nil {
		return nil, nil, false
	}
	return e.controller, e.session, true
}

// Sessions lists every active session.
func (r *Registry) Sessions() []Info {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.byID))
	for _, e := range r.byID {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, Info{
			ID:             e.id,
			DeviceName:     e.desc.FriendlyName,
			Manufacturer:   e.desc.Manufacturer,
			ModelName:      e.desc.ModelName,
			BaseURL:        e.desc.BaseURL,
			TransportState: string(e.session.TransportState()),
			ProfileID:      e.prof.ID,
			ProfileName:    e.prof.Name,
		})
	}
	return infos
}

func (r *Registry) remove(sessionID string) {
	r.mu.Lock()
	e := r.byID[sessionID]
	if e == nil {
		r.mu.Unlock()
		return
	}
	delete(r.byID, sessionID)
	if r.byUDN[e.udn] == e {
		delete(r.byUDN, e.udn)
	}
	r.mu.Unlock()

	e.controller.Dispose()
	e.session.Dispose()
	// The cached resolution dies with the session; a device that rejoins may
	// have been reconfigured or re-profiled in the meantime.
	r.profiles.Evict(profile.InfoFromDescription(e.desc))
	r.manager.ReportSessionEnded(sessionID)
}

// Close tears down every session.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.remove(id)
	}
	r.cancel()
}

func (r *Registry) debugf(format string, args ...any) {
	if r.opts.Debug {
		r.logger.Printf("REGISTRY: "+format, args...)
	}
}
