// Package mediaserver resolves library items against the media server the
// renderers stream from.
package mediaserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/strefethen/dlna-hub-go/internal/device"
	"github.com/strefethen/dlna-hub-go/internal/playlist"
)

// itemPayload is the wire shape of one library item.
type itemPayload struct {
	ID            string `json:"Id"`
	Name          string `json:"Name"`
	MediaType     string `json:"MediaType"`
	Container     string `json:"Container"`
	AlbumArtist   string `json:"AlbumArtist"`
	Album         string `json:"Album"`
	MediaSourceID string `json:"MediaSourceId"`
	RunTimeTicks  int64  `json:"RunTimeTicks"`
}

// Client fetches item metadata over the media server's REST surface. Lookups
// repeat for every playlist build, so resolved items are cached briefly.
type Client struct {
	serverURL string
	apiKey    string
	http      *http.Client
	cache     *ttlcache.Cache[string, *playlist.BaseItem]
	logger    *log.Logger
}

// NewClient builds an item client for the given media server.
func NewClient(serverURL, apiKey string, timeout time.Duration, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	cache := ttlcache.New[string, *playlist.BaseItem](
		ttlcache.WithTTL[string, *playlist.BaseItem](30 * time.Second),
	)
	go cache.Start()
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		http:      &http.Client{Timeout: timeout},
		cache:     cache,
		logger:    logger,
	}
}

// Close stops the cache janitor.
func (c *Client) Close() {
	c.cache.Stop()
}

// GetItem implements the playlist media source contract.
func (c *Client) GetItem(ctx context.Context, id string) (*playlist.BaseItem, error) {
	if cached := c.cache.Get(id); cached != nil {
		return cached.Value(), nil
	}

	endpoint := c.serverURL + "/Items/" + url.PathEscape(id)
	if c.apiKey != "" {
		endpoint += "?api_key=" + url.QueryEscape(c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build item request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch item %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("item %s not found", id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch item %s: status %d", id, resp.StatusCode)
	}

	var payload itemPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", id, err)
	}
	if payload.ID == "" {
		payload.ID = id
	}

	item := &playlist.BaseItem{
		ID:            payload.ID,
		Name:          payload.Name,
		Artist:        payload.AlbumArtist,
		Album:         payload.Album,
		MediaType:     device.MediaType(payload.MediaType),
		Container:     strings.ToLower(payload.Container),
		MediaSourceID: payload.MediaSourceID,
		RunTimeTicks:  payload.RunTimeTicks,
	}
	c.cache.Set(id, item, ttlcache.DefaultTTL)
	return item, nil
}
