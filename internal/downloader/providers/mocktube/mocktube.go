// A mock provider for development and testing purposes. It simulates
// enumerating and downloading from a real site without making network calls.
//
// References look like https://mocktube.test/channel/<name> or
// https://mocktube.test/playlist/<name>. Query parameters shape the fake data:
//
//	items=N      number of items listed (default 3)
//	fail=I       item I (1-based) fails to download
//	same=1       every item downloads with identical content
//
// A name starting with "broken" makes enumeration fail.
package mocktube

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vrsandeep/beatvault/internal/models"
)

const Host = "mocktube.test"

type MockTubeProvider struct{}

func New() *MockTubeProvider {
	return &MockTubeProvider{}
}

func (p *MockTubeProvider) GetInfo() models.ProviderInfo {
	return models.ProviderInfo{
		ID:   "mocktube",
		Name: "MockTube",
	}
}

type reference struct {
	kind  models.FetchKind
	name  string
	items int
	fail  int
	same  bool
}

func parseRef(ref string) (*reference, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || !strings.EqualFold(u.Hostname(), Host) {
		return nil, fmt.Errorf("not a mocktube URL: %s", ref)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("mocktube URL must be /channel/<name> or /playlist/<name>: %s", ref)
	}
	r := &reference{name: parts[1], items: 3}
	switch parts[0] {
	case "channel":
		r.kind = models.FetchChannel
	case "playlist":
		r.kind = models.FetchPlaylist
	default:
		return nil, fmt.Errorf("unknown mocktube collection %q", parts[0])
	}
	q := u.Query()
	if v := q.Get("items"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			r.items = n
		}
	}
	if v := q.Get("fail"); v != "" {
		r.fail, _ = strconv.Atoi(v)
	}
	r.same = q.Get("same") == "1"
	return r, nil
}

func (p *MockTubeProvider) Matches(ref string) bool {
	u, err := url.Parse(strings.TrimSpace(ref))
	return err == nil && strings.EqualFold(u.Hostname(), Host)
}

func (p *MockTubeProvider) ValidateSource(ref string, kind models.FetchKind) error {
	r, err := parseRef(ref)
	if err != nil {
		return err
	}
	if r.kind != kind {
		return fmt.Errorf("URL looks like a %s, not a %s", r.kind, kind)
	}
	return nil
}

func (p *MockTubeProvider) ListItems(ctx context.Context, ref string, kind models.FetchKind) ([]models.RemoteItem, error) {
	r, err := parseRef(ref)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(r.name, "broken") {
		return nil, fmt.Errorf("mocktube: %s %q is unavailable", r.kind, r.name)
	}
	items := make([]models.RemoteItem, 0, r.items)
	// Newest first, like a real uploads tab.
	for i := r.items; i >= 1; i-- {
		q := url.Values{}
		if r.fail == i {
			q.Set("fail", "1")
		}
		if r.same {
			q.Set("same", "1")
		}
		itemURL := fmt.Sprintf("https://%s/watch/%s-%d", Host, r.name, i)
		if len(q) > 0 {
			itemURL += "?" + q.Encode()
		}
		items = append(items, models.RemoteItem{
			ExternalID: fmt.Sprintf("%s-%d", r.name, i),
			Title:      fmt.Sprintf("%s Beat %d", r.name, i),
			Artist:     "Mock Producer",
			URL:        itemURL,
		})
	}
	return items, nil
}

func (p *MockTubeProvider) DownloadItem(ctx context.Context, item models.RemoteItem, destDir string) (*models.DownloadedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := url.Parse(item.URL)
	if err != nil {
		return nil, fmt.Errorf("bad item URL: %w", err)
	}
	if u.Query().Get("fail") == "1" {
		return nil, fmt.Errorf("mocktube: download of %s failed", item.ExternalID)
	}
	content := "mocktube-audio:" + item.ExternalID
	if u.Query().Get("same") == "1" {
		content = "mocktube-audio:shared"
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(destDir, item.ExternalID+".mp3")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}
	return &models.DownloadedFile{
		Path:       path,
		ExternalID: item.ExternalID,
		Title:      item.Title,
		Artist:     item.Artist,
	}, nil
}
