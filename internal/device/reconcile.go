package device

import (
	"strconv"
	"time"

	"github.com/strefethen/dlna-hub-go/internal/upnp/soap"
)

// HandleEvent reconciles a GENA NOTIFY body into session state. Event bodies
// are propertysets whose LastChange value is an escaped Event document; the
// flattener unwraps both levels, so renderer state arrives as attribute keys
// like "TransportState.val". Events are advisory: anything they omit keeps
// its cached value until the next poll.
func (s *Session) HandleEvent(body []byte) {
	values, err := soap.FlattenResponse(body)
	if err != nil {
		s.debugf("event parse failed: %v", err)
		return
	}

	if v, ok := values["Mute.val"]; ok {
		s.mu.Lock()
		s.muted = v == "1"
		s.lastMute = time.Now()
		s.mu.Unlock()
	}

	if v, ok := values["Volume.val"]; ok {
		if vol, perr := strconv.Atoi(v); perr == nil {
			s.mu.Lock()
			s.volume = vol
			s.lastVolume = time.Now()
			if vol > s.volRange.Min {
				s.muteVol = vol
			}
			s.mu.Unlock()
		}
	}

	stateValue := values["TransportState.val"]
	if stateValue == "" {
		stateValue = values["CurrentTransportState.val"]
	}
	var reported TransportState
	if stateValue != "" {
		reported = ParseTransportState(stateValue)
		s.mu.Lock()
		guard := s.state == StateTransitioning && !reported.IsPlaying() && !reported.IsPaused()
		if !guard {
			s.state = reported
			s.lastTransport = time.Now()
		}
		s.mu.Unlock()
		if guard {
			reported = StateUnknown
		}
	}

	if v, ok := values["RelativeTimePosition.val"]; ok {
		if ticks, parsed := ParseHHMMSS(v); parsed {
			s.mu.Lock()
			s.positionTicks = ticks
			s.lastPosition = time.Now()
			s.mu.Unlock()
		}
	} else if reported.IsPlaying() {
		// The event told us playback state changed but not where; ask.
		if res, ierr := s.invoke(s.ctx, s.desc.AVTransport, "GetPositionInfo", nil, "", ""); ierr == nil {
			s.applyPositionResult(res)
		}
	}

	if v, ok := values["CurrentTrackDuration.val"]; ok {
		if ticks, parsed := ParseHHMMSS(v); parsed && ticks > 0 {
			s.mu.Lock()
			s.durationTicks = ticks
			s.mu.Unlock()
		}
	}

	if reported.IsStopped() || reported == StateNoMediaPresent {
		s.updateMediaInfo(nil)
		s.restartPoll(s.pollInterval)
	} else if media := mediaFromValues(values); !media.IsEmpty() {
		s.mu.Lock()
		s.lastMeta = time.Now()
		s.mu.Unlock()
		s.updateMediaInfo(media)
		s.restartPoll(s.pollInterval)
	} else if reported.IsPlaying() || reported.IsPaused() {
		// Playback is running but the event carried no DIDL-Lite; ask the
		// renderer what it has loaded so MediaChanged still fires.
		s.mu.Lock()
		stale := time.Since(s.lastMeta) >= s.cacheTTL
		if stale {
			s.lastMeta = time.Now()
		}
		s.mu.Unlock()
		if stale {
			if res, merr := s.invoke(s.ctx, s.desc.AVTransport, "GetMediaInfo", nil, "", ""); merr == nil {
				if media := mediaFromValues(res.Values); !media.IsEmpty() {
					s.updateMediaInfo(media)
				}
			}
			s.restartPoll(s.pollInterval)
		}
	}

	s.maybeRenew()
}

// maybeRenew re-subscribes before the 60-second GENA lease lapses. Events
// arrive far more often than leases expire during playback, so renewals are
// rate-limited rather than scheduled.
func (s *Session) maybeRenew() {
	s.mu.Lock()
	if s.disposed || time.Since(s.lastRenew) < 20*time.Second {
		s.mu.Unlock()
		return
	}
	s.lastRenew = time.Now()
	avtSID, rcSID := s.avtSID, s.rcSID
	s.mu.Unlock()

	if s.desc.AVTransport != nil && avtSID != "" {
		sid, _, err := s.client.Subscribe(s.ctx, serviceOf(s.desc.AVTransport), avtSID, s.callbackURL, nil)
		s.storeRenewal(&s.avtSID, sid, err)
	}
	if s.desc.RenderingControl != nil && rcSID != "" {
		sid, _, err := s.client.Subscribe(s.ctx, serviceOf(s.desc.RenderingControl), rcSID, s.callbackURL, nil)
		s.storeRenewal(&s.rcSID, sid, err)
	}
}

func (s *Session) storeRenewal(slot *string, sid string, err error) {
	if err == soap.ErrSubscriptionNotFound {
		// Device forgot us; start a fresh subscription next time around.
		s.mu.Lock()
		*slot = ""
		s.lastRenew = time.Time{}
		s.mu.Unlock()
		s.subscribeAll(s.ctx)
		return
	}
	if err != nil {
		s.debugf("subscription renewal failed: %v", err)
		return
	}
	s.mu.Lock()
	*slot = sid
	s.mu.Unlock()
}
