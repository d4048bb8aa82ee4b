package territory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ResultStore memoizes finished partition results keyed by an input
// fingerprint. Implementations must tolerate concurrent use. A lookup miss
// is (nil, false, nil), never an error.
type ResultStore interface {
	Load(key string) (*Result, bool, error)
	Save(key string, result *Result) error
}

// Fingerprint hashes (boundary, points, parameters) into a stable cache
// key. The point set is hashed in sorted order, so the key does not depend
// on input ordering, and coordinates are hashed at full float precision so
// any geometric change produces a new key.
func Fingerprint(boundary orb.Geometry, assets []AssetPoint, params Params) (string, error) {
	h := sha256.New()

	if boundary != nil {
		data, err := json.Marshal(geojson.NewGeometry(boundary))
		if err != nil {
			return "", fmt.Errorf("hashing boundary: %w", err)
		}
		h.Write(data)
	}

	sorted := make([]AssetPoint, len(assets))
	copy(sorted, assets)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].OwnerID != sorted[j].OwnerID {
			return sorted[i].OwnerID < sorted[j].OwnerID
		}
		return sorted[i].ID < sorted[j].ID
	})
	for _, a := range sorted {
		fmt.Fprintf(h, "%s|%s|%x|%x\n", a.ID, a.OwnerID, a.X, a.Y)
	}

	fmt.Fprintf(h, "%d|%x|%x|%x|%x|%s",
		params.MinAssetsPerOwner, params.CanvasMargin, params.DedupEpsilon,
		params.ContainmentEpsilon, params.SampleFraction, params.FragmentPolicy)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// MemoryStore is an in-process ResultStore for tests and single-shot runs.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]*Result
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]*Result)}
}

func (s *MemoryStore) Load(key string) (*Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[key]
	return result, ok, nil
}

func (s *MemoryStore) Save(key string, result *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = result
	return nil
}

// DirStore persists results as one JSON document per key under a
// directory, so repeated runs over unchanged inputs skip the geometry work.
type DirStore struct {
	dir string
}

// NewDirStore creates the cache directory if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *DirStore) Load(key string) (*Result, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cached result: %w", err)
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("parsing cached result: %w", err)
	}
	return &result, true, nil
}

func (s *DirStore) Save(key string, result *Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if err := os.WriteFile(s.path(key), data, 0644); err != nil {
		return fmt.Errorf("writing cached result: %w", err)
	}
	return nil
}
