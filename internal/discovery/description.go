package discovery

import (
	"encoding/xml"
	"net/url"
	"strings"
)

// ServiceEndpoint is one <service> entry's resolved control and
// event-subscription URLs.
type ServiceEndpoint struct {
	ServiceType string
	ControlURL  string
	EventSubURL string
}

// DeviceDescription is what the daemon needs from a renderer's
// device-description XML: its identity and its service control URLs.
// Generalizes the teacher's Sonos-only DeviceDescription (which only
// ever read friendlyName/modelName/UDN) by also extracting the
// serviceList, since this daemon must invoke SOAP actions against
// whatever control URL the device actually publishes rather than a
// hardcoded Sonos path.
type DeviceDescription struct {
	UDN          string
	FriendlyName string
	ModelName    string
	Services     []ServiceEndpoint
}

// AVTransport returns the AVTransport service endpoint, if present.
func (d DeviceDescription) AVTransport() (ServiceEndpoint, bool) {
	return d.findService("AVTransport")
}

// ConnectionManager returns the ConnectionManager service endpoint, if present.
func (d DeviceDescription) ConnectionManager() (ServiceEndpoint, bool) {
	return d.findService("ConnectionManager")
}

func (d DeviceDescription) findService(kind string) (ServiceEndpoint, bool) {
	for _, svc := range d.Services {
		if strings.Contains(svc.ServiceType, ":"+kind+":") {
			return svc, true
		}
	}
	return ServiceEndpoint{}, false
}

type rawService struct {
	ServiceType string `xml:"serviceType"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
}

type rawServiceList struct {
	Services []rawService `xml:"service"`
}

type rawDevice struct {
	UDN          string         `xml:"UDN"`
	FriendlyName string         `xml:"friendlyName"`
	ModelName    string         `xml:"modelName"`
	ServiceList  rawServiceList `xml:"serviceList"`
}

type rawRoot struct {
	XMLName xml.Name  `xml:"root"`
	Device  rawDevice `xml:"device"`
}

// ParseDeviceDescription parses a UPnP device-description document,
// resolving every serviceList entry's control/event-sub URL against
// baseURL (the document's own Location).
func ParseDeviceDescription(xmlPayload []byte, baseURL string) (*DeviceDescription, error) {
	var root rawRoot
	if err := xml.Unmarshal(xmlPayload, &root); err != nil {
		return nil, err
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	desc := &DeviceDescription{
		UDN:          strings.TrimPrefix(strings.TrimSpace(root.Device.UDN), "uuid:"),
		FriendlyName: strings.TrimSpace(root.Device.FriendlyName),
		ModelName:    strings.TrimSpace(root.Device.ModelName),
	}

	for _, svc := range root.Device.ServiceList.Services {
		desc.Services = append(desc.Services, ServiceEndpoint{
			ServiceType: strings.TrimSpace(svc.ServiceType),
			ControlURL:  resolveRef(base, svc.ControlURL),
			EventSubURL: resolveRef(base, svc.EventSubURL),
		})
	}

	return desc, nil
}

func resolveRef(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}
