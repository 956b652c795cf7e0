// Package youtube implements the provider for YouTube channels and playlists,
// driving yt-dlp for both enumeration and audio extraction.
package youtube

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/vrsandeep/beatvault/internal/models"
	"github.com/vrsandeep/beatvault/internal/ytdlp"
)

// Fetcher is the slice of the yt-dlp client the provider needs.
type Fetcher interface {
	FlatPlaylistJSON(ctx context.Context, sourceURL string) ([]byte, error)
	ExtractAudio(ctx context.Context, videoURL, destDir string) (string, error)
}

type YouTubeProvider struct {
	client Fetcher
}

func New(client Fetcher) *YouTubeProvider {
	return &YouTubeProvider{client: client}
}

func (p *YouTubeProvider) GetInfo() models.ProviderInfo {
	return models.ProviderInfo{
		ID:   "youtube",
		Name: "YouTube",
	}
}

var hosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

var channelPrefixes = []string{"/@", "/channel/", "/c/", "/user/"}

var channelTabs = map[string]bool{"videos": true, "shorts": true, "streams": true, "featured": true, "playlists": true}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

func parse(ref string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || u.Host == "" {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u, hosts[strings.ToLower(u.Hostname())]
}

func (p *YouTubeProvider) Matches(ref string) bool {
	_, ok := parse(ref)
	return ok
}

// DetectKind classifies a YouTube URL.
func DetectKind(ref string) (models.FetchKind, bool) {
	u, ok := parse(ref)
	if !ok {
		return "", false
	}
	if u.Query().Get("list") != "" {
		return models.FetchPlaylist, true
	}
	path := strings.ToLower(strings.TrimSuffix(u.Path, "/"))
	for _, prefix := range channelPrefixes {
		if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
			return models.FetchChannel, true
		}
	}
	if videoID(u) != "" {
		return models.FetchSingle, true
	}
	return "", false
}

func videoID(u *url.URL) string {
	if strings.EqualFold(u.Hostname(), "youtu.be") {
		id := strings.Trim(u.Path, "/")
		if videoIDPattern.MatchString(id) {
			return id
		}
		return ""
	}
	if strings.TrimSuffix(u.Path, "/") == "/watch" {
		if id := u.Query().Get("v"); videoIDPattern.MatchString(id) {
			return id
		}
	}
	return ""
}

func (p *YouTubeProvider) ValidateSource(ref string, kind models.FetchKind) error {
	detected, ok := DetectKind(ref)
	if !ok {
		return fmt.Errorf("not a recognised YouTube channel, playlist or video URL: %s", ref)
	}
	if detected != kind {
		return fmt.Errorf("URL looks like a %s, not a %s", detected, kind)
	}
	return nil
}

// NormalizeSourceURL points channel roots at their uploads tab and strips
// fragments, so enumeration lists videos rather than the channel's shelves.
func NormalizeSourceURL(ref string, kind models.FetchKind) string {
	u, ok := parse(ref)
	if !ok {
		return strings.TrimSpace(ref)
	}
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	if kind == models.FetchChannel {
		segments := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
		root := 1
		if !strings.HasPrefix(u.Path, "/@") {
			root = 2
		}
		if len(segments) == root {
			u.Path += "/videos"
		} else if len(segments) > root && !channelTabs[strings.ToLower(segments[root])] {
			u.Path = "/" + strings.Join(segments[:root], "/") + "/videos"
		}
	}
	return u.String()
}

func (p *YouTubeProvider) ListItems(ctx context.Context, ref string, kind models.FetchKind) ([]models.RemoteItem, error) {
	raw, err := p.client.FlatPlaylistJSON(ctx, NormalizeSourceURL(ref, kind))
	if err != nil {
		return nil, err
	}
	collection, err := ytdlp.ParseCollection(raw)
	if err != nil {
		return nil, err
	}

	fallbackArtist := firstNonEmpty(collection.Channel, collection.Uploader)
	items := make([]models.RemoteItem, 0, len(collection.Items()))
	for _, e := range collection.Items() {
		id := strings.TrimSpace(e.ID)
		if id == "" || isUnavailableTitle(e.Title) {
			continue
		}
		items = append(items, models.RemoteItem{
			ExternalID: id,
			Title:      strings.TrimSpace(e.Title),
			Artist:     firstNonEmpty(e.Channel, e.Uploader, fallbackArtist),
			URL:        resolveVideoURL(id, e.URL),
		})
	}
	return items, nil
}

func (p *YouTubeProvider) DownloadItem(ctx context.Context, item models.RemoteItem, destDir string) (*models.DownloadedFile, error) {
	target := item.URL
	if target == "" {
		target = resolveVideoURL(item.ExternalID, "")
	}
	path, err := p.client.ExtractAudio(ctx, target, destDir)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", item.ExternalID, err)
	}
	return &models.DownloadedFile{
		Path:       path,
		ExternalID: item.ExternalID,
		Title:      item.Title,
		Artist:     item.Artist,
	}, nil
}

func resolveVideoURL(videoID, maybeURL string) string {
	u := strings.TrimSpace(maybeURL)
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return "https://www.youtube.com/watch?v=" + strings.TrimSpace(videoID)
}

func isUnavailableTitle(title string) bool {
	switch strings.ToLower(strings.TrimSpace(title)) {
	case "[private video]", "[deleted video]", "[unavailable video]":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
