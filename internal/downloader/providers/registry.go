package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vrsandeep/beatvault/internal/models"
)

var (
	mu       sync.RWMutex
	registry = make(map[string]models.Provider)
)

// Register adds a new provider to the registry. It's called at startup.
func Register(p models.Provider) {
	mu.Lock()
	defer mu.Unlock()
	info := p.GetInfo()
	if _, exists := registry[info.ID]; exists {
		// Panic is appropriate here as it's a developer error during setup.
		panic(fmt.Sprintf("provider with ID '%s' is already registered", info.ID))
	}
	registry[info.ID] = p
}

// Get returns a provider by its ID.
func Get(id string) (models.Provider, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[id]
	return p, ok
}

// GetAll returns a list of information for all registered providers, sorted by ID.
func GetAll() []models.ProviderInfo {
	mu.RLock()
	defer mu.RUnlock()
	providers := make([]models.ProviderInfo, 0, len(registry))
	for _, p := range registry {
		providers = append(providers, p.GetInfo())
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].ID < providers[j].ID })
	return providers
}

// Match returns the provider that recognises ref.
func Match(ref string) (models.Provider, bool) {
	mu.RLock()
	defer mu.RUnlock()
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if registry[id].Matches(ref) {
			return registry[id], true
		}
	}
	return nil, false
}

// ValidateSource checks that ref is a supported reference of the given type.
func ValidateSource(ref string, sourceType models.SourceType) error {
	ref = strings.TrimSpace(ref)
	p, ok := Match(ref)
	if !ok {
		return fmt.Errorf("unsupported source %q: no provider recognises it", ref)
	}
	return p.ValidateSource(ref, models.FetchKind(sourceType))
}

// UnregisterAll empties the registry. Tests use it to start clean.
func UnregisterAll() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]models.Provider)
}
