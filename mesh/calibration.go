package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultRegistrationCachePath is the default path for the cached registration graph
const DefaultRegistrationCachePath = ".registration-cache.json"

// RegistrationData is the on-disk form of a registration graph.
// Alignments are keyed by the child scanner id as a decimal string.
type RegistrationData struct {
	RunID            string               `json:"runId,omitempty"`
	ReferenceScanner int                  `json:"referenceScanner"`
	Alignments       map[string]Alignment `json:"alignments"`
	LastUpdated      int64                `json:"lastUpdated"`
}

// NewRegistrationData captures the graph's alignments for caching.
func NewRegistrationData(g *RegistrationGraph, runID string) *RegistrationData {
	data := &RegistrationData{
		RunID:            runID,
		ReferenceScanner: g.Reference(),
		Alignments:       make(map[string]Alignment, len(g.alignments)),
	}
	for _, a := range g.Alignments() {
		data.Alignments[strconv.Itoa(a.Child)] = a
	}
	return data
}

// LoadRegistration loads a cached registration graph from a JSON file.
// A missing file is not an error and yields nil.
func LoadRegistration(path string) (*RegistrationData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No cache yet
		}
		return nil, fmt.Errorf("reading registration cache: %w", err)
	}

	var reg RegistrationData
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parsing registration cache: %w", err)
	}
	if reg.Alignments == nil {
		reg.Alignments = make(map[string]Alignment)
	}
	return &reg, nil
}

// SaveRegistration writes the cache to path, creating parent directories.
func SaveRegistration(path string, reg *RegistrationData) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating registration cache directory: %w", err)
	}

	reg.LastUpdated = time.Now().Unix()

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling registration cache: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing registration cache: %w", err)
	}
	return nil
}

// NewRegistrationGraphFromCache seeds a graph with the cached alignments
// that still hold for the given scanners. An alignment is kept only if its
// child and parent exist, the orientation is a proper rotation, it still
// brings at least OverlapThreshold probes together, and its parent chain
// reaches the reference through other kept alignments. Dropped scanners are
// left for Resolve to register again.
func NewRegistrationGraphFromCache(reg *RegistrationData, scanners []Scanner) *RegistrationGraph {
	g := NewRegistrationGraph()
	if reg == nil || reg.ReferenceScanner != g.reference {
		return g
	}

	byID, _, err := indexScanners(scanners)
	if err != nil {
		return g
	}

	candidates := make(map[int]Alignment)
	for key, a := range reg.Alignments {
		id, err := strconv.Atoi(key)
		if err != nil || id != a.Child || id == g.reference {
			log.Printf("[REGISTER] Dropping cached alignment %q: bad key", key)
			continue
		}
		child, okChild := byID[a.Child]
		parent, okParent := byID[a.Parent]
		if !okChild || !okParent || !a.Orientation.IsProper() {
			log.Printf("[REGISTER] Dropping cached alignment for scanner %d: unknown scanner or orientation", a.Child)
			continue
		}
		if !VerifyAlignment(a, parent.Probes, child.Probes) {
			log.Printf("[REGISTER] Dropping cached alignment for scanner %d: overlap below %d", a.Child, OverlapThreshold)
			continue
		}
		candidates[a.Child] = a
	}

	// Adopt alignments whose parent is already registered until no more
	// can be adopted; whatever remains has a broken or cyclic chain.
	for progress := true; progress; {
		progress = false
		for id, a := range candidates {
			if g.IsRegistered(a.Parent) {
				if err := g.record(a); err == nil {
					delete(candidates, id)
					progress = true
				}
			}
		}
	}
	for id := range candidates {
		log.Printf("[REGISTER] Dropping cached alignment for scanner %d: chain does not reach the reference", id)
	}
	return g
}

// SolveCached solves the scanners starting from the registration cache at
// cachePath and writes the resulting graph back. An empty cachePath solves
// from scratch. Cache read and write failures are logged, not returned.
func SolveCached(ctx context.Context, scanners []Scanner, cachePath string, opts RegisterOptions) (*GlobalFrame, *RegistrationGraph, error) {
	if cachePath == "" {
		return Solve(ctx, scanners, opts)
	}

	reg, err := LoadRegistration(cachePath)
	if err != nil {
		log.Printf("[REGISTER] Ignoring registration cache: %v", err)
	}
	g := NewRegistrationGraphFromCache(reg, scanners)
	if reg != nil {
		log.Printf("[REGISTER] Seeded %d of %d scanners from %s", g.Len(), len(scanners), cachePath)
	}

	frame, g, err := SolveFrom(ctx, g, scanners, opts)
	if err != nil {
		return nil, g, err
	}

	if err := SaveRegistration(cachePath, NewRegistrationData(g, frame.RunID)); err != nil {
		log.Printf("[REGISTER] Failed to save registration cache: %v", err)
	}
	return frame, g, nil
}
