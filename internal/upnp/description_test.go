package upnp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const rendererDescription = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <device>
    <deviceType>urn:schemas-upnp-org:device:MediaRenderer:1</deviceType>
    <friendlyName>[TV] Samsung 7 Series (AA:BB:CC:DD:EE:FF)</friendlyName>
    <manufacturer>Samsung Electronics</manufacturer>
    <modelName>UE55MU7000</modelName>
    <UDN>uuid:renderer-42</UDN>
    <serviceList>
      <service>
        <serviceType>urn:schemas-upnp-org:service:AVTransport:1</serviceType>
        <serviceId>urn:upnp-org:serviceId:AVTransport</serviceId>
        <SCPDURL>/avt/scpd.xml</SCPDURL>
        <controlURL>/avt/control</controlURL>
        <eventSubURL>/avt/event</eventSubURL>
      </service>
      <service>
        <serviceType>urn:schemas-upnp-org:service:RenderingControl:1</serviceType>
        <serviceId>urn:upnp-org:serviceId:RenderingControl</serviceId>
        <SCPDURL>/rc/scpd.xml</SCPDURL>
        <controlURL>/rc/control</controlURL>
        <eventSubURL>/rc/event</eventSubURL>
      </service>
      <service>
        <serviceType>urn:schemas-upnp-org:service:ConnectionManager:1</serviceType>
        <serviceId>urn:upnp-org:serviceId:ConnectionManager</serviceId>
        <SCPDURL>/cm/scpd.xml</SCPDURL>
        <controlURL>/cm/control</controlURL>
        <eventSubURL>/cm/event</eventSubURL>
      </service>
    </serviceList>
  </device>
</root>`

const nestedRendererDescription = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <URLBase>http://10.0.0.7:8080/</URLBase>
  <device>
    <deviceType>urn:schemas-upnp-org:device:MediaServer:1</deviceType>
    <friendlyName>Combo Box</friendlyName>
    <UDN>uuid:outer-1</UDN>
    <deviceList>
      <device>
        <deviceType>urn:schemas-upnp-org:device:MediaRenderer:2</deviceType>
        <friendlyName>Combo Renderer</friendlyName>
        <UDN>uuid:inner-1</UDN>
        <serviceList>
          <service>
            <serviceType>urn:schemas-upnp-org:service:AVTransport:2</serviceType>
            <serviceId>urn:upnp-org:serviceId:AVTransport</serviceId>
            <SCPDURL>avt.xml</SCPDURL>
            <controlURL>avt/ctl</controlURL>
            <eventSubURL>avt/evt</eventSubURL>
          </service>
        </serviceList>
      </device>
    </deviceList>
  </device>
</root>`

func TestParseDeviceDescription(t *testing.T) {
	desc, err := ParseDeviceDescription([]byte(rendererDescription), "http://10.0.0.5:7676/desc.xml")
	require.NoError(t, err)

	require.True(t, desc.IsMediaRenderer())
	require.Equal(t, "renderer-42", desc.UDN)
	require.Equal(t, "[TV] Samsung 7 Series", desc.FriendlyName)
	require.Equal(t, "Samsung Electronics", desc.Manufacturer)
	require.Equal(t, "UE55MU7000", desc.ModelName)
	require.Equal(t, "http://10.0.0.5:7676", desc.BaseURL)

	require.NotNil(t, desc.AVTransport)
	require.Equal(t, "http://10.0.0.5:7676/avt/control", desc.AVTransport.ControlURL)
	require.Equal(t, "http://10.0.0.5:7676/avt/event", desc.AVTransport.EventSubURL)
	require.NotNil(t, desc.RenderingControl)
	require.NotNil(t, desc.ConnectionManager)
}

func TestParseDeviceDescriptionNestedRenderer(t *testing.T) {
	desc, err := ParseDeviceDescription([]byte(nestedRendererDescription), "http://10.0.0.7:8080/desc.xml")
	require.NoError(t, err)

	require.True(t, desc.IsMediaRenderer())
	require.Equal(t, "inner-1", desc.UDN)
	require.Equal(t, "Combo Renderer", desc.FriendlyName)
	require.NotNil(t, desc.AVTransport)
	require.Equal(t, "http://10.0.0.7:8080/avt/ctl", desc.AVTransport.ControlURL)
}

func TestParseDeviceDescriptionRejectsBadXML(t *testing.T) {
	_, err := ParseDeviceDescription([]byte("<root><device"), "http://10.0.0.5/desc.xml")
	require.Error(t, err)
}

func TestCleanFriendlyName(t *testing.T) {
	cases := map[string]string{
		"[TV] Samsung (AA:BB:CC:DD:EE:FF)": "[TV] Samsung",
		"Player aabbccddeeff":              "Player",
		"Living Room TV":                   "Living Room TV",
		"Bravia [ ]":                       "Bravia",
		"  spaced   out  ":                 "spaced out",
	}
	for input, want := range cases {
		require.Equal(t, want, CleanFriendlyName(input), "input %q", input)
	}
}
