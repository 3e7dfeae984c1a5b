// Package profile resolves a device profile for each discovered renderer.
// User-defined profiles live in sqlite; built-in defaults ship embedded in
// the binary. Matching follows the renderer's self-reported identity fields.
package profile

import (
	"strings"
	"time"

	"github.com/strefethen/dlna-hub-go/internal/device"
	"github.com/strefethen/dlna-hub-go/internal/upnp"
)

// Identification is the set of fields a profile matches a device against.
type Identification struct {
	FriendlyName     string `yaml:"friendlyName"`
	Manufacturer     string `yaml:"manufacturer"`
	ManufacturerURL  string `yaml:"manufacturerUrl"`
	ModelDescription string `yaml:"modelDescription"`
	ModelName        string `yaml:"modelName"`
	ModelNumber      string `yaml:"modelNumber"`
	ModelURL         string `yaml:"modelUrl"`
	SerialNumber     string `yaml:"serialNumber"`
}

// DeviceProfile describes how to talk to one family of renderers.
type DeviceProfile struct {
	ID                  string         `yaml:"id"`
	Name                string         `yaml:"name"`
	Identification      Identification `yaml:"identification"`
	RequiresEncoding    bool           `yaml:"requiresEncoding"`
	SupportedMediaTypes []string       `yaml:"supportedMediaTypes"`
	ProtocolInfo        string         `yaml:"protocolInfo"`
	BuiltIn             bool           `yaml:"-"`
	CreatedAt           time.Time      `yaml:"-"`
	UpdatedAt           time.Time      `yaml:"-"`
}

// Supports reports whether the profile allows playing the media type.
func (p *DeviceProfile) Supports(mediaType device.MediaType) bool {
	if len(p.SupportedMediaTypes) == 0 {
		return true
	}
	for _, supported := range p.SupportedMediaTypes {
		if strings.EqualFold(supported, string(mediaType)) {
			return true
		}
	}
	return false
}

// DeviceInfo is the renderer identity used for matching.
type DeviceInfo struct {
	FriendlyName     string
	Manufacturer     string
	ManufacturerURL  string
	ModelDescription string
	ModelName        string
	ModelNumber      string
	ModelURL         string
	SerialNumber     string
}

// InfoFromDescription extracts matching fields from a device description.
func InfoFromDescription(desc *upnp.DeviceDescription) DeviceInfo {
	return DeviceInfo{
		FriendlyName:     desc.FriendlyName,
		Manufacturer:     desc.Manufacturer,
		ManufacturerURL:  desc.ManufacturerURL,
		ModelDescription: desc.ModelDescription,
		ModelName:        desc.ModelName,
		ModelNumber:      desc.ModelNumber,
		ModelURL:         desc.ModelURL,
		SerialNumber:     desc.SerialNumber,
	}
}

// signature is the cache key for a resolved profile lookup.
func (info DeviceInfo) signature() string {
	return strings.Join([]string{
		info.FriendlyName, info.Manufacturer, info.ManufacturerURL,
		info.ModelDescription, info.ModelName, info.ModelNumber,
		info.ModelURL, info.SerialNumber,
	}, "|")
}
