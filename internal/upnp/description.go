// Package upnp parses renderer device descriptions into the three services
// the PlayTo engine drives.
package upnp

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// MediaRendererPrefix matches any MediaRenderer version.
	MediaRendererPrefix = "urn:schemas-upnp-org:device:MediaRenderer:"

	ServiceTypeConnectionManager = "urn:schemas-upnp-org:service:ConnectionManager:1"
	ServiceTypeRenderingControl  = "urn:schemas-upnp-org:service:RenderingControl:1"
	ServiceTypeAVTransport       = "urn:schemas-upnp-org:service:AVTransport:1"
)

// ServiceInfo is one advertised service with URLs resolved absolute.
type ServiceInfo struct {
	ServiceType string
	ServiceID   string
	SCPDURL     string
	ControlURL  string
	EventSubURL string
}

// DeviceDescription is the immutable identity of a renderer, replaced
// wholesale on refresh.
type DeviceDescription struct {
	UDN              string
	FriendlyName     string
	Manufacturer     string
	ManufacturerURL  string
	ModelDescription string
	ModelName        string
	ModelNumber      string
	ModelURL         string
	SerialNumber     string
	DeviceType       string
	BaseURL          string
	PresentationURL  string

	ConnectionManager *ServiceInfo
	RenderingControl  *ServiceInfo
	AVTransport       *ServiceInfo
}

// IsMediaRenderer reports whether the device advertises itself as a renderer.
func (d *DeviceDescription) IsMediaRenderer() bool {
	return strings.HasPrefix(d.DeviceType, MediaRendererPrefix)
}

type xmlRoot struct {
	XMLName xml.Name  `xml:"root"`
	URLBase string    `xml:"URLBase"`
	Device  xmlDevice `xml:"device"`
}

type xmlDevice struct {
	DeviceType       string       `xml:"deviceType"`
	FriendlyName     string       `xml:"friendlyName"`
	Manufacturer     string       `xml:"manufacturer"`
	ManufacturerURL  string       `xml:"manufacturerURL"`
	ModelDescription string       `xml:"modelDescription"`
	ModelName        string       `xml:"modelName"`
	ModelNumber      string       `xml:"modelNumber"`
	ModelURL         string       `xml:"modelURL"`
	SerialNumber     string       `xml:"serialNumber"`
	UDN              string       `xml:"UDN"`
	PresentationURL  string       `xml:"presentationURL"`
	Services         []xmlService `xml:"serviceList>service"`
	Devices          []xmlDevice  `xml:"deviceList>device"`
}

type xmlService struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	SCPDURL     string `xml:"SCPDURL"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
}

// ParseDeviceDescription parses a device root XML fetched from the SSDP
// location URL. Relative service URLs are resolved against URLBase when
// present, otherwise against the location.
func ParseDeviceDescription(payload []byte, location string) (*DeviceDescription, error) {
	var root xmlRoot
	if err := xml.Unmarshal(payload, &root); err != nil {
		return nil, fmt.Errorf("parse device description: %w", err)
	}

	base := strings.TrimSpace(root.URLBase)
	if base == "" {
		base = location
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", base, err)
	}

	// Renderers sometimes nest the MediaRenderer as a sub-device; take the
	// first device in the tree that advertises the type.
	device := findRenderer(&root.Device)
	if device == nil {
		device = &root.Device
	}

	desc := &DeviceDescription{
		UDN:              strings.TrimPrefix(strings.TrimSpace(device.UDN), "uuid:"),
		FriendlyName:     CleanFriendlyName(device.FriendlyName),
		Manufacturer:     strings.TrimSpace(device.Manufacturer),
		ManufacturerURL:  strings.TrimSpace(device.ManufacturerURL),
		ModelDescription: strings.TrimSpace(device.ModelDescription),
		ModelName:        strings.TrimSpace(device.ModelName),
		ModelNumber:      strings.TrimSpace(device.ModelNumber),
		ModelURL:         strings.TrimSpace(device.ModelURL),
		SerialNumber:     strings.TrimSpace(device.SerialNumber),
		DeviceType:       strings.TrimSpace(device.DeviceType),
		BaseURL:          baseURL.Scheme + "://" + baseURL.Host,
		PresentationURL:  strings.TrimSpace(device.PresentationURL),
	}

	for _, svc := range device.Services {
		info := &ServiceInfo{
			ServiceType: strings.TrimSpace(svc.ServiceType),
			ServiceID:   strings.TrimSpace(svc.ServiceID),
			SCPDURL:     resolveURL(baseURL, svc.SCPDURL),
			ControlURL:  resolveURL(baseURL, svc.ControlURL),
			EventSubURL: resolveURL(baseURL, svc.EventSubURL),
		}
		switch {
		case strings.HasPrefix(info.ServiceType, "urn:schemas-upnp-org:service:ConnectionManager:"):
			desc.ConnectionManager = info
		case strings.HasPrefix(info.ServiceType, "urn:schemas-upnp-org:service:RenderingControl:"):
			desc.RenderingControl = info
		case strings.HasPrefix(info.ServiceType, "urn:schemas-upnp-org:service:AVTransport:"):
			desc.AVTransport = info
		}
	}

	return desc, nil
}

func findRenderer(device *xmlDevice) *xmlDevice {
	if strings.HasPrefix(strings.TrimSpace(device.DeviceType), MediaRendererPrefix) {
		return device
	}
	for i := range device.Devices {
		if found := findRenderer(&device.Devices[i]); found != nil {
			return found
		}
	}
	return nil
}

func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

var (
	macAddressRe = regexp.MustCompile(`(?i)([0-9a-f]{2}[:\-]){5}[0-9a-f]{2}|\b[0-9a-f]{12}\b`)
	emptyBraceRe = regexp.MustCompile(`\(\s*\)|\[\s*\]`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
)

// CleanFriendlyName strips embedded MAC addresses and the empty brackets
// they leave behind. TVs love advertising themselves as
// "[TV] Samsung (AA:BB:CC:DD:EE:FF)".
func CleanFriendlyName(name string) string {
	name = macAddressRe.ReplaceAllString(name, "")
	name = emptyBraceRe.ReplaceAllString(name, "")
	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
