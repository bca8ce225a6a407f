package soap

import "context"

const (
	// ServiceTypeAVTransport identifies the AVTransport service for
	// both the SOAPACTION header and the envelope's xmlns:u.
	ServiceTypeAVTransport = "urn:schemas-upnp-org:service:AVTransport:1"
	// ServiceTypeConnectionManager identifies the ConnectionManager
	// service.
	ServiceTypeConnectionManager = "urn:schemas-upnp-org:service:ConnectionManager:1"
)

const defaultInstanceID = "0"

func (c *Client) Play(ctx context.Context, controlURL string) error {
	_, err := c.ExecuteAction(ctx, controlURL, ServiceTypeAVTransport, "Play", map[string]string{
		"InstanceID": defaultInstanceID,
		"Speed":      "1",
	})
	return err
}

func (c *Client) Pause(ctx context.Context, controlURL string) error {
	_, err := c.ExecuteAction(ctx, controlURL, ServiceTypeAVTransport, "Pause", map[string]string{
		"InstanceID": defaultInstanceID,
	})
	return err
}

func (c *Client) Stop(ctx context.Context, controlURL string) error {
	_, err := c.ExecuteAction(ctx, controlURL, ServiceTypeAVTransport, "Stop", map[string]string{
		"InstanceID": defaultInstanceID,
	})
	return err
}

func (c *Client) Next(ctx context.Context, controlURL string) error {
	_, err := c.ExecuteAction(ctx, controlURL, ServiceTypeAVTransport, "Next", map[string]string{
		"InstanceID": defaultInstanceID,
	})
	return err
}

func (c *Client) Previous(ctx context.Context, controlURL string) error {
	_, err := c.ExecuteAction(ctx, controlURL, ServiceTypeAVTransport, "Previous", map[string]string{
		"InstanceID": defaultInstanceID,
	})
	return err
}

func (c *Client) SetAVTransportURI(ctx context.Context, controlURL, uri, metadata string) error {
	_, err := c.ExecuteAction(ctx, controlURL, ServiceTypeAVTransport, "SetAVTransportURI", map[string]string{
		"InstanceID":         defaultInstanceID,
		"CurrentURI":         uri,
		"CurrentURIMetaData": metadata,
	})
	return err
}

// Seek issues an AVTransport Seek. unit is a SeekMode value such as
// "REL_TIME" (target is a time within the current track) or
// "TRACK_NR" (target is a track number).
func (c *Client) Seek(ctx context.Context, controlURL, unit, target string) error {
	_, err := c.ExecuteAction(ctx, controlURL, ServiceTypeAVTransport, "Seek", map[string]string{
		"InstanceID": defaultInstanceID,
		"Unit":       unit,
		"Target":     target,
	})
	return err
}

func (c *Client) GetTransportInfo(ctx context.Context, controlURL string) (TransportInfo, error) {
	payload, err := c.ExecuteAction(ctx, controlURL, ServiceTypeAVTransport, "GetTransportInfo", map[string]string{
		"InstanceID": defaultInstanceID,
	})
	if err != nil {
		return TransportInfo{}, err
	}
	return parseTransportInfo(payload), nil
}

func (c *Client) GetPositionInfo(ctx context.Context, controlURL string) (PositionInfo, error) {
	payload, err := c.ExecuteAction(ctx, controlURL, ServiceTypeAVTransport, "GetPositionInfo", map[string]string{
		"InstanceID": defaultInstanceID,
	})
	if err != nil {
		return PositionInfo{}, err
	}
	return parsePositionInfo(payload), nil
}

func (c *Client) GetMediaInfo(ctx context.Context, controlURL string) (MediaInfo, error) {
	payload, err := c.ExecuteAction(ctx, controlURL, ServiceTypeAVTransport, "GetMediaInfo", map[string]string{
		"InstanceID": defaultInstanceID,
	})
	if err != nil {
		return MediaInfo{}, err
	}
	return parseMediaInfo(payload), nil
}
