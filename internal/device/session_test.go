package device

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/dlna-hub-go/internal/upnp"
	"github.com/strefethen/dlna-hub-go/internal/upnp/soap"
)

const avtSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action><name>Play</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>Speed</name><direction>in</direction><relatedStateVariable>TransportPlaySpeed</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>Pause</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>Stop</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>Seek</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>Unit</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_SeekMode</relatedStateVariable></argument>
      <argument><name>Target</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_SeekTarget</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>SetAVTransportURI</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>CurrentURI</name><direction>in</direction><relatedStateVariable>AVTransportURI</relatedStateVariable></argument>
      <argument><name>CurrentURIMetaData</name><direction>in</direction><relatedStateVariable>AVTransportURIMetaData</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>SetNextAVTransportURI</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>NextURI</name><direction>in</direction><relatedStateVariable>AVTransportURI</relatedStateVariable></argument>
      <argument><name>NextURIMetaData</name><direction>in</direction><relatedStateVariable>AVTransportURIMetaData</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>GetTransportInfo</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>CurrentTransportState</name><direction>out</direction><relatedStateVariable>TransportState</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>GetPositionInfo</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>TrackDuration</name><direction>out</direction><relatedStateVariable>CurrentTrackDuration</relatedStateVariable></argument>
      <argument><name>TrackURI</name><direction>out</direction><relatedStateVariable>CurrentTrackURI</relatedStateVariable></argument>
      <argument><name>RelTime</name><direction>out</direction><relatedStateVariable>RelativeTimePosition</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>GetMediaInfo</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>CurrentURI</name><direction>out</direction><relatedStateVariable>AVTransportURI</relatedStateVariable></argument>
    </argumentList></action>
  </actionList>
  <serviceStateTable>
    <stateVariable><name>A_ARG_TYPE_InstanceID</name><dataType>ui4</dataType></stateVariable>
    <stateVariable><name>TransportPlaySpeed</name><dataType>string</dataType>
      <allowedValueList><allowedValue>1</allowedValue></allowedValueList></stateVariable>
    <stateVariable><name>A_ARG_TYPE_SeekMode</name><dataType>string</dataType>
      <allowedValueList><allowedValue>TRACK_NR</allowedValue><allowedValue>REL_TIME</allowedValue></allowedValueList></stateVariable>
    <stateVariable><name>A_ARG_TYPE_SeekTarget</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>AVTransportURI</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>AVTransportURIMetaData</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>TransportState</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>CurrentTrackDuration</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>CurrentTrackURI</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>RelativeTimePosition</name><dataType>string</dataType></stateVariable>
  </serviceStateTable>
</scpd>`

const rcSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action><name>SetVolume</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>Channel</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Channel</relatedStateVariable></argument>
      <argument><name>DesiredVolume</name><direction>in</direction><relatedStateVariable>Volume</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>GetVolume</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>Channel</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Channel</relatedStateVariable></argument>
      <argument><name>CurrentVolume</name><direction>out</direction><relatedStateVariable>Volume</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>SetMute</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>Channel</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Channel</relatedStateVariable></argument>
      <argument><name>DesiredMute</name><direction>in</direction><relatedStateVariable>Mute</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>GetMute</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>Channel</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Channel</relatedStateVariable></argument>
      <argument><name>CurrentMute</name><direction>out</direction><relatedStateVariable>Mute</relatedStateVariable></argument>
    </argumentList></action>
  </actionList>
  <serviceStateTable>
    <stateVariable><name>A_ARG_TYPE_InstanceID</name><dataType>ui4</dataType></stateVariable>
    <stateVariable><name>A_ARG_TYPE_Channel</name><dataType>string</dataType>
      <allowedValueList><allowedValue>Master</allowedValue></allowedValueList></stateVariable>
    <stateVariable><name>Volume</name><dataType>ui2</dataType>
      <allowedValueRange><minimum>0</minimum><maximum>100</maximum><step>1</step></allowedValueRange></stateVariable>
    <stateVariable><name>Mute</name><dataType>boolean</dataType></stateVariable>
  </serviceStateTable>
</scpd>`

// rcSCPDNoSetMute models renderers whose RenderingControl lacks the optional
// SetMute action; muting has to fall back to the volume floor.
const rcSCPDNoSetMute = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action><name>SetVolume</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>Channel</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Channel</relatedStateVariable></argument>
      <argument><name>DesiredVolume</name><direction>in</direction><relatedStateVariable>Volume</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>GetVolume</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>Channel</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Channel</relatedStateVariable></argument>
      <argument><name>CurrentVolume</name><direction>out</direction><relatedStateVariable>Volume</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>GetMute</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>Channel</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Channel</relatedStateVariable></argument>
      <argument><name>CurrentMute</name><direction>out</direction><relatedStateVariable>Mute</relatedStateVariable></argument>
    </argumentList></action>
  </actionList>
  <serviceStateTable>
    <stateVariable><name>A_ARG_TYPE_InstanceID</name><dataType>ui4</dataType></stateVariable>
    <stateVariable><name>A_ARG_TYPE_Channel</name><dataType>string</dataType>
      <allowedValueList><allowedValue>Master</allowedValue></allowedValueList></stateVariable>
    <stateVariable><name>Volume</name><dataType>ui2</dataType>
      <allowedValueRange><minimum>0</minimum><maximum>100</maximum><step>1</step></allowedValueRange></stateVariable>
    <stateVariable><name>Mute</name><dataType>boolean</dataType></stateVariable>
  </serviceStateTable>
</scpd>`

// fakeRenderer serves SCPD documents and a SOAP control endpoint, recording
// every action it receives. rcDoc may be swapped before the session starts
// to model renderers with sparser RenderingControl schemas.
type fakeRenderer struct {
	srv   *httptest.Server
	rcDoc string

	mu             sync.Mutex
	actions        []string
	bodies         map[string]string
	subscribes     int
	renewals       int
	eventsDown     bool
	transportState string
	relTime        string
	duration       string
	trackURI       string
	volume         int
	muted          bool
}

func newFakeRenderer(t *testing.T) *fakeRenderer {
	t.Helper()
	f := &fakeRenderer{
		rcDoc:          rcSCPD,
		bodies:         make(map[string]string),
		transportState: "STOPPED",
		relTime:        "0:00:00",
		duration:       "0:00:00",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/scpd/avt.xml", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, avtSCPD)
	})
	mux.HandleFunc("/scpd/rc.xml", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, f.rcDoc)
	})
	mux.HandleFunc("/control/", f.handleControl)
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.subscribes++
		if r.Header.Get("SID") != "" {
			f.renewals++
		}
		down := f.eventsDown
		f.mu.Unlock()
		if down {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("SID", "uuid:test-sid")
		w.Header().Set("TIMEOUT", "Second-60")
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRenderer) handleControl(w http.ResponseWriter, r *http.Request) {
	soapAction := strings.Trim(r.Header.Get("SOAPACTION"), `"`)
	parts := strings.SplitN(soapAction, "#", 2)
	action := parts[len(parts)-1]
	svcType := parts[0]

	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.actions = append(f.actions, action)
	f.bodies[action] = string(body)
	switch action {
	case "Play":
		f.transportState = "PLAYING"
	case "Pause":
		f.transportState = "PAUSED_PLAYBACK"
	case "Stop":
		f.transportState = "STOPPED"
	case "SetAVTransportURI":
		if uri := textBetween(string(body), "CurrentURI"); uri != "" {
			f.trackURI = uri
		}
	}
	state, relTime, duration, trackURI := f.transportState, f.relTime, f.duration, f.trackURI
	volume, muted := f.volume, f.muted
	f.mu.Unlock()

	args := map[string]string{}
	switch action {
	case "GetTransportInfo":
		args["CurrentTransportState"] = state
		args["CurrentTransportStatus"] = "OK"
	case "GetPositionInfo":
		args["Track"] = "1"
		args["TrackDuration"] = duration
		args["RelTime"] = relTime
		args["TrackURI"] = trackURI
	case "GetMediaInfo":
		args["CurrentURI"] = trackURI
	case "GetVolume":
		args["CurrentVolume"] = fmt.Sprintf("%d", volume)
	case "GetMute":
		mute := "0"
		if muted {
			mute = "1"
		}
		args["CurrentMute"] = mute
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>`)
	fmt.Fprintf(&b, `<u:%sResponse xmlns:u=%q>`, action, svcType)
	for k, v := range args {
		fmt.Fprintf(&b, "<%s>%s</%s>", k, v, k)
	}
	fmt.Fprintf(&b, `</u:%sResponse></s:Body></s:Envelope>`, action)
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	io.WriteString(w, b.String())
}

// textBetween pulls the text content of the first occurrence of an element,
// tolerating attributes on the start tag.
func textBetween(body, element string) string {
	start := strings.Index(body, "<"+element)
	if start < 0 {
		return ""
	}
	open := strings.Index(body[start:], ">")
	if open < 0 {
		return ""
	}
	rest := body[start+open+1:]
	end := strings.Index(rest, "</"+element+">")
	if end < 0 {
		return ""
	}
	return rest[:end]
}

func (f *fakeRenderer) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.actions {
		if a == action {
			n++
		}
	}
	return n
}

func (f *fakeRenderer) lastBody(action string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[action]
}

func (f *fakeRenderer) sequence(names ...string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var seq []string
	for _, a := range f.actions {
		if want[a] {
			seq = append(seq, a)
		}
	}
	return seq
}

func (f *fakeRenderer) description() *upnp.DeviceDescription {
	base := f.srv.URL
	return &upnp.DeviceDescription{
		UDN:          "test-udn",
		FriendlyName: "Test Renderer",
		DeviceType:   upnp.MediaRendererPrefix + "1",
		BaseURL:      base,
		AVTransport: &upnp.ServiceInfo{
			ServiceType: upnp.ServiceTypeAVTransport,
			ControlURL:  base + "/control/avt",
			EventSubURL: base + "/events",
			SCPDURL:     base + "/scpd/avt.xml",
		},
		RenderingControl: &upnp.ServiceInfo{
			ServiceType: upnp.ServiceTypeRenderingControl,
			ControlURL:  base + "/control/rc",
			EventSubURL: base + "/events",
			SCPDURL:     base + "/scpd/rc.xml",
		},
	}
}

func startTestSession(t *testing.T, f *fakeRenderer, opts Options) *Session {
	t.Helper()
	if opts.QueueInterval == 0 {
		opts.QueueInterval = 5 * time.Millisecond
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Hour
	}
	client := soap.NewClient(2*time.Second, "test-agent", "test-hub")
	session := NewSession("session-1", f.description(), client, opts)
	require.NoError(t, session.Start(context.Background()))
	t.Cleanup(session.Dispose)
	return session
}

func drain(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, func() bool { return s.PendingCommands() == 0 },
		2*time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
}

func TestSessionVolume(t *testing.T) {
	f := newFakeRenderer(t)
	f.volume = 30
	s := startTestSession(t, f, Options{})

	t.Run("dispatches desired volume", func(t *testing.T) {
		s.SetVolume(50)
		require.Eventually(t, func() bool { return f.count("SetVolume") == 1 },
			2*time.Second, 5*time.Millisecond)
		require.Contains(t, f.lastBody("SetVolume"), "<DesiredVolume")
		require.Contains(t, f.lastBody("SetVolume"), ">50<")
		require.Contains(t, f.lastBody("SetVolume"), ">Master<")
	})

	t.Run("suppresses when already at value", func(t *testing.T) {
		s.SetVolume(50)
		drain(t, s)
		require.Equal(t, 1, f.count("SetVolume"))
	})

	t.Run("reports user scale", func(t *testing.T) {
		require.Equal(t, 50, s.VolumeUser(context.Background()))
	})
}

func TestSessionMuteFallback(t *testing.T) {
	f := newFakeRenderer(t)
	f.rcDoc = rcSCPDNoSetMute
	f.volume = 30
	s := startTestSession(t, f, Options{})

	// No SetMute in the SCPD: muting drops the volume to the floor and
	// remembers where it was.
	s.ToggleMute()
	require.Eventually(t, func() bool { return f.count("SetVolume") == 1 },
		2*time.Second, 5*time.Millisecond)
	drain(t, s)
	require.Equal(t, "0", textBetween(f.lastBody("SetVolume"), "DesiredVolume"))
	require.True(t, s.IsMuted(context.Background()))

	s.ToggleMute()
	require.Eventually(t, func() bool { return f.count("SetVolume") == 2 },
		2*time.Second, 5*time.Millisecond)
	drain(t, s)
	require.Equal(t, "30", textBetween(f.lastBody("SetVolume"), "DesiredVolume"))
	require.False(t, s.IsMuted(context.Background()))
	require.Zero(t, f.count("SetMute"))
}

func TestSessionTransportSuppression(t *testing.T) {
	f := newFakeRenderer(t)
	f.transportState = "PLAYING"
	f.trackURI = "http://media/1.mp3"
	f.relTime = "0:01:00"
	f.duration = "0:03:00"
	s := startTestSession(t, f, Options{})

	require.Equal(t, StatePlaying, s.TransportState())

	s.Play()
	drain(t, s)
	require.Zero(t, f.count("Play"))

	s.Pause()
	require.Eventually(t, func() bool { return f.count("Pause") == 1 },
		2*time.Second, 5*time.Millisecond)
	require.True(t, s.TransportState().IsPaused())
}

func TestSessionSeek(t *testing.T) {
	f := newFakeRenderer(t)
	f.transportState = "PLAYING"
	f.trackURI = "http://media/1.mp3"
	s := startTestSession(t, f, Options{})

	s.Seek(90 * TicksPerSecond)
	require.Eventually(t, func() bool { return f.count("Seek") == 1 },
		2*time.Second, 5*time.Millisecond)

	body := f.lastBody("Seek")
	require.Contains(t, body, ">REL_TIME<")
	require.Contains(t, body, ">00:01:30<")
}

func TestSessionSeekDroppedWhenStopped(t *testing.T) {
	f := newFakeRenderer(t)
	s := startTestSession(t, f, Options{})

	s.Seek(10 * TicksPerSecond)
	drain(t, s)
	require.Zero(t, f.count("Seek"))
}

func TestSessionMediaChange(t *testing.T) {
	t.Run("stops old stream then loads and plays", func(t *testing.T) {
		f := newFakeRenderer(t)
		f.transportState = "PLAYING"
		f.trackURI = "http://media/old.mp4"
		s := startTestSession(t, f, Options{})

		s.SetMedia(&MediaData{
			URL:       "http://media/new.mp4",
			Metadata:  "<DIDL-Lite/>",
			Headers:   "DLNA.ORG_OP=01",
			MediaType: MediaTypeVideo,
		})
		require.Eventually(t, func() bool { return f.count("Play") == 1 },
			2*time.Second, 5*time.Millisecond)

		require.Equal(t, []string{"Stop", "SetAVTransportURI", "Play"},
			f.sequence("Stop", "SetAVTransportURI", "Play"))
		require.Contains(t, f.lastBody("SetAVTransportURI"), "http://media/new.mp4")
		require.Equal(t, MediaTypeVideo, s.CurrentMediaType())
	})

	t.Run("same url becomes a seek", func(t *testing.T) {
		f := newFakeRenderer(t)
		f.transportState = "PLAYING"
		f.trackURI = "http://media/same.mp4"
		s := startTestSession(t, f, Options{})

		s.SetMedia(&MediaData{
			URL:           "http://media/same.mp4",
			PositionTicks: 45 * TicksPerSecond,
		})
		require.Eventually(t, func() bool { return f.count("Seek") == 1 },
			2*time.Second, 5*time.Millisecond)
		require.Zero(t, f.count("SetAVTransportURI"))
		require.Contains(t, f.lastBody("Seek"), ">00:00:45<")
	})

	t.Run("stopped renderer skips the stop", func(t *testing.T) {
		f := newFakeRenderer(t)
		s := startTestSession(t, f, Options{})

		s.SetMedia(&MediaData{URL: "http://media/fresh.mp3", MediaType: MediaTypeAudio})
		require.Eventually(t, func() bool { return f.count("Play") == 1 },
			2*time.Second, 5*time.Millisecond)
		require.Zero(t, f.count("Stop"))
	})

	t.Run("new start offset stops and reloads the transcode", func(t *testing.T) {
		f := newFakeRenderer(t)
		f.transportState = "PLAYING"
		f.trackURI = "http://media/tc.mp4?Static=false&StartTimeTicks=0"
		s := startTestSession(t, f, Options{})

		s.SetMedia(&MediaData{
			URL:           "http://media/tc.mp4?Static=false&StartTimeTicks=50000000000",
			MediaType:     MediaTypeVideo,
			ResetPlayback: true,
		})
		require.Eventually(t, func() bool { return f.count("Play") == 1 },
			2*time.Second, 5*time.Millisecond)

		require.Equal(t, []string{"Stop", "SetAVTransportURI", "Play"},
			f.sequence("Stop", "SetAVTransportURI", "Play"))
		require.Zero(t, f.count("Seek"))
		require.Contains(t, f.lastBody("SetAVTransportURI"), "StartTimeTicks=50000000000")
	})
}

func TestSessionQueueNext(t *testing.T) {
	f := newFakeRenderer(t)
	f.transportState = "PLAYING"
	f.trackURI = "http://media/current.mp3"
	s := startTestSession(t, f, Options{})

	s.QueueNext(&MediaData{URL: "http://media/next.mp3", Metadata: "<DIDL-Lite/>"})
	require.Eventually(t, func() bool { return f.count("SetNextAVTransportURI") == 1 },
		2*time.Second, 5*time.Millisecond)
	require.Contains(t, f.lastBody("SetNextAVTransportURI"), "http://media/next.mp3")
}

func TestSessionSubscribesWhenCallbackConfigured(t *testing.T) {
	f := newFakeRenderer(t)
	s := startTestSession(t, f, Options{CallbackURL: "http://hub/Dlna/Eventing/session-1"})

	require.Equal(t, 2, f.subscribeCount())
	s.mu.Lock()
	avt, rc := s.avtSID, s.rcSID
	s.mu.Unlock()
	require.Equal(t, "uuid:test-sid", avt)
	require.Equal(t, "uuid:test-sid", rc)
}

func (f *fakeRenderer) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

func (f *fakeRenderer) renewalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renewals
}

func (f *fakeRenderer) setEventsDown(down bool) {
	f.mu.Lock()
	f.eventsDown = down
	f.mu.Unlock()
}

func TestSessionResubscribesAfterFailedSubscribe(t *testing.T) {
	f := newFakeRenderer(t)
	f.setEventsDown(true)
	s := startTestSession(t, f, Options{CallbackURL: "http://hub/Dlna/Eventing/session-1"})

	require.Equal(t, 2, f.subscribeCount())
	s.mu.Lock()
	avt, rc := s.avtSID, s.rcSID
	s.mu.Unlock()
	require.Empty(t, avt)
	require.Empty(t, rc)

	// The endpoint comes back; the next worker iteration re-subscribes before
	// dispatching its command.
	f.setEventsDown(false)
	s.SetVolume(40)
	drain(t, s)

	require.GreaterOrEqual(t, f.subscribeCount(), 4)
	s.mu.Lock()
	avt, rc = s.avtSID, s.rcSID
	s.mu.Unlock()
	require.Equal(t, "uuid:test-sid", avt)
	require.Equal(t, "uuid:test-sid", rc)
	require.Equal(t, 1, f.count("SetVolume"))
}

func TestSessionRenewsSubscriptionWhileStopped(t *testing.T) {
	f := newFakeRenderer(t)
	s := startTestSession(t, f, Options{
		CallbackURL:  "http://hub/Dlna/Eventing/session-1",
		PollInterval: 20 * time.Millisecond,
	})

	// The renderer stays STOPPED, yet the poll timer keeps ticking and each
	// pass renews the lease instead of letting it lapse.
	require.Eventually(t, func() bool { return f.renewalCount() >= 2 },
		2*time.Second, 5*time.Millisecond)
	polls := f.count("GetTransportInfo")
	require.Eventually(t, func() bool { return f.count("GetTransportInfo") > polls },
		2*time.Second, 5*time.Millisecond)

	s.mu.Lock()
	avt := s.avtSID
	s.mu.Unlock()
	require.Equal(t, "uuid:test-sid", avt)
}

func TestSessionLoadsVolumeRangeFromSCPD(t *testing.T) {
	f := newFakeRenderer(t)
	s := startTestSession(t, f, Options{})

	s.mu.Lock()
	r := s.volRange
	s.mu.Unlock()
	require.Equal(t, 0, r.Min)
	require.Equal(t, 100, r.Max)
	require.Equal(t, 5, r.Step())
}
