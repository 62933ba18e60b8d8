// Package catalog lists the tracks of a playlist through the Spotify Web
// API.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2/clientcredentials"

	"stream-tracker/config"
	"stream-tracker/models"
	"stream-tracker/utils"
)

// ErrNoCredentials is returned when no API client credentials are set.
var ErrNoCredentials = errors.New("catalog: spotify client credentials not configured")

// maxPages bounds pagination in case the API keeps returning a next link.
const maxPages = 200

// Provider supplies a collection's items.
type Provider interface {
	ListItems(ctx context.Context, playlistID string) ([]models.TrackRef, error)
	PlaylistName(ctx context.Context, playlistID string) (string, error)
}

// SpotifyCatalog is a Provider backed by the Spotify Web API using the
// client-credentials flow.
type SpotifyCatalog struct {
	baseURL string
	client  *http.Client
	logger  *utils.Logger
}

// NewSpotifyCatalog creates a catalog client from cfg. Tokens are fetched
// and refreshed on demand.
func NewSpotifyCatalog(cfg *config.Config, logger *utils.Logger) *SpotifyCatalog {
	c := &SpotifyCatalog{
		baseURL: strings.TrimRight(cfg.SpotifyAPIURL, "/"),
		logger:  logger,
	}
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.SpotifyClientID,
			ClientSecret: cfg.SpotifyClientSecret,
			TokenURL:     cfg.SpotifyTokenURL,
		}
		c.client = cc.Client(context.Background())
	}
	return c
}

type playlistPage struct {
	Items []struct {
		Track *struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			IsLocal bool   `json:"is_local"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			ExternalURLs struct {
				Spotify string `json:"spotify"`
			} `json:"external_urls"`
		} `json:"track"`
	} `json:"items"`
	Next *string `json:"next"`
}

// ListItems returns every track of the playlist, following pagination.
// Removed and local tracks are skipped.
func (c *SpotifyCatalog) ListItems(ctx context.Context, playlistID string) ([]models.TrackRef, error) {
	next := fmt.Sprintf("%s/playlists/%s/tracks?limit=100", c.baseURL, url.PathEscape(playlistID))

	var refs []models.TrackRef
	for page := 0; next != "" && page < maxPages; page++ {
		var p playlistPage
		if err := c.get(ctx, next, &p); err != nil {
			return nil, fmt.Errorf("catalog: list %s page %d: %w", playlistID, page+1, err)
		}

		for _, item := range p.Items {
			t := item.Track
			if t == nil || t.ID == "" || t.IsLocal {
				continue
			}
			ref := models.TrackRef{ExternalID: t.ID, Name: t.Name, URL: t.ExternalURLs.Spotify}
			if len(t.Artists) > 0 {
				ref.Artist = t.Artists[0].Name
			}
			refs = append(refs, ref)
		}

		next = ""
		if p.Next != nil {
			next = *p.Next
		}
	}

	c.logger.Info("[catalog] Playlist %s: %d tracks", playlistID, len(refs))
	return refs, nil
}

// PlaylistName returns the playlist's display name.
func (c *SpotifyCatalog) PlaylistName(ctx context.Context, playlistID string) (string, error) {
	var p struct {
		Name string `json:"name"`
	}
	endpoint := fmt.Sprintf("%s/playlists/%s?fields=name", c.baseURL, url.PathEscape(playlistID))
	if err := c.get(ctx, endpoint, &p); err != nil {
		return "", fmt.Errorf("catalog: playlist %s name: %w", playlistID, err)
	}
	return p.Name, nil
}

func (c *SpotifyCatalog) get(ctx context.Context, endpoint string, out any) error {
	if c.client == nil {
		return ErrNoCredentials
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
