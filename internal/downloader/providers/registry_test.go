package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vrsandeep/beatvault/internal/downloader/providers/mocktube"
	"github.com/vrsandeep/beatvault/internal/models"
)

func TestProviderRegistry(t *testing.T) {
	UnregisterAll()
	t.Cleanup(UnregisterAll)
	Register(mocktube.New())

	t.Run("Get All Providers", func(t *testing.T) {
		all := GetAll()
		if len(all) != 1 {
			t.Fatalf("Expected 1 provider, got %d", len(all))
		}
		if all[0].ID != "mocktube" {
			t.Errorf("Expected provider ID 'mocktube', got '%s'", all[0].ID)
		}
	})

	t.Run("Get Existing Provider", func(t *testing.T) {
		p, ok := Get("mocktube")
		if !ok {
			t.Fatal("Expected to find provider 'mocktube', but it was not found")
		}
		if p.GetInfo().Name != "MockTube" {
			t.Errorf("Expected provider name 'MockTube', got '%s'", p.GetInfo().Name)
		}
	})

	t.Run("Get Non-existent Provider", func(t *testing.T) {
		_, ok := Get("nonexistent")
		if ok {
			t.Fatal("Expected not to find provider 'nonexistent', but it was found")
		}
	})

	t.Run("Match By Reference", func(t *testing.T) {
		p, ok := Match("https://mocktube.test/channel/lofi")
		assert.True(t, ok)
		assert.Equal(t, "mocktube", p.GetInfo().ID)

		_, ok = Match("https://vimeo.com/123")
		assert.False(t, ok)
	})

	t.Run("Validate Source", func(t *testing.T) {
		assert.NoError(t, ValidateSource("https://mocktube.test/channel/lofi", models.SourceTypeChannel))
		assert.Error(t, ValidateSource("https://mocktube.test/channel/lofi", models.SourceTypePlaylist))
		assert.Error(t, ValidateSource("https://example.com/channel/lofi", models.SourceTypeChannel))
	})

	t.Run("Panic on Duplicate Registration", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected registration of a duplicate provider to panic, but it did not")
			}
		}()
		// This should cause a panic
		Register(mocktube.New())
	})
}
