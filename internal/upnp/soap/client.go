package soap

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Service identifies one UPnP service endpoint on a renderer.
type Service struct {
	Type        string // serviceType URN, e.g. urn:schemas-upnp-org:service:AVTransport:1
	ControlURL  string
	EventSubURL string
	SCPDURL     string
}

// Result is a flattened SOAP reply plus the measured round-trip.
type Result struct {
	Values    map[string]string
	RoundTrip time.Duration
}

// PositionOffset is the correction added to later position reads so the UI
// slider does not jump backwards by the network latency. Half the round-trip
// is the right order of magnitude; 1.8 instead of 2 keeps a small margin.
func (r Result) PositionOffset() time.Duration {
	return time.Duration(float64(r.RoundTrip) / 1.8)
}

// Get returns a flattened value, or "" when absent.
func (r Result) Get(key string) string {
	if r.Values == nil {
		return ""
	}
	return r.Values[key]
}

// Client handles SOAP control requests and GENA subscriptions to renderers.
type Client struct {
	httpClient   *http.Client
	timeout      time.Duration
	userAgent    string
	friendlyName string
}

// NewClient creates a SOAP client with the given timeout.
// Uses connection pooling for better performance when making multiple requests.
func NewClient(timeout time.Duration, userAgent, friendlyName string) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		timeout:      timeout,
		userAgent:    userAgent,
		friendlyName: friendlyName,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// FetchXML performs a GET with UPnP-conforming headers and returns the body
// after verifying it parses as XML.
func (c *Client) FetchXML(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.setUPnPHeaders(req)
	req.Header.Set("Accept", "text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &RendererTimeoutError{Action: "FetchXML"}
		}
		return nil, &RendererUnreachableError{Action: "FetchXML", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RendererUnreachableError{Action: "FetchXML", Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &RendererUnreachableError{Action: "FetchXML", Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	if err := checkWellFormed(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Invoke posts a SOAP 1.1 action to the service control URL and returns the
// flattened reply. argsXML is the pre-rendered argument list (the action
// schema knows each renderer's expected data types).
func (c *Client) Invoke(ctx context.Context, svc Service, action, argsXML, contentFeatures string) (Result, error) {
	body := buildEnvelope(svc.Type, action, argsXML)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.ControlURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}

	c.setUPnPHeaders(req)
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", fmt.Sprintf("%q", svc.Type+"#"+action))
	if contentFeatures != "" {
		req.Header.Set("contentFeatures.dlna.org", contentFeatures)
		req.Header.Set("transferMode.dlna.org", "Streaming")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	rtt := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, &RendererTimeoutError{Action: action}
		}
		return Result{}, &RendererUnreachableError{Action: action, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &RendererUnreachableError{Action: action, Err: err}
	}

	if resp.StatusCode >= 400 {
		if fault := parseSoapFault(action, payload); fault != nil {
			return Result{}, fault
		}
		return Result{}, &RendererUnreachableError{Action: action, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	values, err := FlattenResponse(payload)
	if err != nil {
		return Result{}, err
	}
	return Result{Values: values, RoundTrip: rtt}, nil
}

func (c *Client) setUPnPHeaders(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.friendlyName != "" {
		req.Header.Set("FriendlyName.dlna.org", c.friendlyName)
	}
}

// buildEnvelope renders the SOAP 1.1 envelope the way renderers expect it:
// no whitespace between elements, action namespaced to the service type.
func buildEnvelope(serviceType, action, argsXML string) []byte {
	var buf strings.Builder
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	buf.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	buf.WriteString("<s:Body>")
	buf.WriteString("<m:")
	buf.WriteString(action)
	buf.WriteString(` xmlns:m="`)
	buf.WriteString(serviceType)
	buf.WriteString(`">`)
	buf.WriteString(argsXML)
	buf.WriteString("</m:")
	buf.WriteString(action)
	buf.WriteString(">")
	buf.WriteString("</s:Body>")
	buf.WriteString("</s:Envelope>")
	return []byte(buf.String())
}

// EscapeXML escapes a value for embedding in an XML text node.
func EscapeXML(input string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(input)); err != nil {
		return input
	}
	return b.String()
}

// FlattenResponse walks the reply and collects every text node keyed by its
// local element name; duplicate keys keep the last value. Attributes are
// stored as "element.attr". Values that themselves contain an escaped
// DIDL-Lite document (TrackMetaData, CurrentURIMetaData, Result) are unescaped
// and flattened into the same map, which is how "item.id" and "res" surface.
func FlattenResponse(body []byte) (map[string]string, error) {
	values := make(map[string]string)
	if err := flattenInto(values, body); err != nil {
		return nil, err
	}
	return values, nil
}

func flattenInto(values map[string]string, body []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.Strict = false

	var stack []string
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &MalformedXMLError{Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			for _, attr := range t.Attr {
				values[name+"."+attr.Name.Local] = attr.Value
				// Event documents stash whole DIDL-Lite payloads inside
				// attribute values (CurrentTrackMetaData val="...").
				if v := strings.TrimSpace(attr.Value); strings.HasPrefix(v, "<") {
					_ = flattenInto(values, []byte(v))
				} else if strings.Contains(v, "&lt;") {
					_ = flattenInto(values, []byte(html.UnescapeString(v)))
				}
			}
			stack = append(stack, name)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" || len(stack) == 0 {
				continue
			}
			name := stack[len(stack)-1]
			values[name] = text
			if len(stack) >= 2 {
				parent := stack[len(stack)-2]
				if parent == "item" || parent == "DIDL-Lite" {
					values[parent+"."+name] = text
				}
			}
			if strings.HasPrefix(text, "<") {
				// The decoder already unescaped one level; LastChange and
				// Result surface here as literal XML. Any metadata escaped
				// inside its attributes is handled by the recursive pass, so
				// unescaping here would corrupt those attribute values.
				_ = flattenInto(values, []byte(text))
			} else if strings.Contains(text, "&lt;") {
				// Double-encoded document embedded in a text node.
				_ = flattenInto(values, []byte(html.UnescapeString(text)))
			}
		}
	}
	return nil
}

func checkWellFormed(payload []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	decoder.Strict = false
	seen := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &MalformedXMLError{Err: err}
		}
		if _, ok := tok.(xml.StartElement); ok {
			seen = true
		}
	}
	if !seen {
		return &MalformedXMLError{Err: errors.New("no root element")}
	}
	return nil
}

func parseSoapFault(action string, payload []byte) *RendererRejectedError {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	decoder.Strict = false

	fault := &RendererRejectedError{Action: action}
	found := false
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "faultstring":
			var value string
			if err := decoder.DecodeElement(&value, &se); err == nil {
				fault.FaultString = strings.TrimSpace(value)
				found = true
			}
		case "errorCode":
			var value string
			if err := decoder.DecodeElement(&value, &se); err == nil {
				fault.Code = strings.TrimSpace(value)
				found = true
			}
		case "errorDescription":
			var value string
			if err := decoder.DecodeElement(&value, &se); err == nil {
				fault.Description = strings.TrimSpace(value)
				found = true
			}
		}
	}
	if !found {
		return nil
	}
	return fault
}
