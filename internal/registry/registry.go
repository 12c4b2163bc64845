package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
	"github.com/localmind-ai/ondevice-sdk/internal/httpclient"
	"github.com/localmind-ai/ondevice-sdk/internal/retry"
	"github.com/localmind-ai/ondevice-sdk/internal/semver"
)

const (
	catalogFileName = "registry.json"
	pinnedFileName  = "pinned_versions.json"
)

// Registry owns the on-disk local catalog and pinned-version map, and
// performs remote listing/filtering/recommendation reads.
type Registry struct {
	mu        sync.Mutex
	dir       string
	models    map[string]ModelInfo // keyed by versioned id
	pinned    map[string]string    // base_id -> version
	client    *httpclient.Client
	remoteURL string
}

// New loads the catalog (if present) from dir, cleans up any orphaned .tmp
// artifacts, and returns a ready Registry.
func New(dir, remoteURL string, client *httpclient.Client) (*Registry, error) {
	r := &Registry{
		dir:       dir,
		models:    make(map[string]ModelInfo),
		pinned:    make(map[string]string),
		client:    client,
		remoteURL: remoteURL,
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, aierr.New(aierr.InvalidInputConfiguration, "could not create model directory", err.Error())
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	r.cleanupIncompleteDownloads()
	return r, nil
}

func (r *Registry) catalogPath() string { return filepath.Join(r.dir, catalogFileName) }
func (r *Registry) pinnedPath() string  { return filepath.Join(r.dir, pinnedFileName) }

func (r *Registry) load() error {
	if data, err := os.ReadFile(r.catalogPath()); err == nil {
		var cf catalogFile
		if err := json.Unmarshal(data, &cf); err != nil {
			return aierr.New(aierr.ModelFileCorrupted, "local registry.json is malformed", err.Error())
		}
		for _, m := range cf.Models {
			r.models[m.ID] = m
		}
	}
	if data, err := os.ReadFile(r.pinnedPath()); err == nil {
		var p map[string]string
		if err := json.Unmarshal(data, &p); err != nil {
			return aierr.New(aierr.ModelFileCorrupted, "local pinned_versions.json is malformed", err.Error())
		}
		r.pinned = p
	}
	return nil
}

// cleanupIncompleteDownloads removes every *.tmp file in the model
// directory, as spec.md §4.10's construction-time cleanup.
func (r *Registry) cleanupIncompleteDownloads() {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		_ = os.Remove(filepath.Join(r.dir, e.Name()))
	}
}

func (r *Registry) persistLocked() error {
	models := make([]ModelInfo, 0, len(r.models))
	for _, m := range r.models {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	cf := catalogFile{Version: "1.0", Models: models}

	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return aierr.New(aierr.Unknown, "failed marshaling registry catalog", err.Error())
	}
	if err := os.WriteFile(r.catalogPath(), data, 0o644); err != nil {
		return aierr.New(aierr.StorageReadError, "failed writing registry.json", err.Error())
	}

	pinnedData, err := json.MarshalIndent(r.pinned, "", "  ")
	if err != nil {
		return aierr.New(aierr.Unknown, "failed marshaling pinned versions", err.Error())
	}
	if err := os.WriteFile(r.pinnedPath(), pinnedData, 0o644); err != nil {
		return aierr.New(aierr.StorageReadError, "failed writing pinned_versions.json", err.Error())
	}
	return nil
}

// SplitVersionedID splits "{base_id}-{version}" into its base id and
// version, using the trailing MAJOR.MINOR.PATCH as the anchor.
func SplitVersionedID(versionedID string) (baseID, version string, ok bool) {
	idx := strings.LastIndex(versionedID, "-")
	for idx >= 0 {
		candidate := versionedID[idx+1:]
		if semver.Valid(candidate) {
			return versionedID[:idx], candidate, true
		}
		idx = strings.LastIndex(versionedID[:idx], "-")
	}
	return "", "", false
}

// filterModels applies the type and device-compatibility predicate;
// pure, idempotent, order-preserving (testable property 15).
func filterModels(models []ModelInfo, typeFilter ModelType, device DeviceCapabilities) []ModelInfo {
	out := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		if typeFilter != "" && m.Type != typeFilter {
			continue
		}
		if !platformMatches(m.Requirements.SupportedPlatforms, device.Platform) {
			continue
		}
		if m.Requirements.MinRAMBytes != 0 && device.RAMBytes != 0 && m.Requirements.MinRAMBytes > device.RAMBytes {
			continue
		}
		if m.Requirements.MinStorageBytes != 0 && device.StorageBytes != 0 && m.Requirements.MinStorageBytes > device.StorageBytes {
			continue
		}
		out = append(out, m)
	}
	return out
}

func platformMatches(supported []string, platform string) bool {
	if len(supported) == 0 {
		return true
	}
	for _, p := range supported {
		if strings.EqualFold(p, "all") || strings.EqualFold(p, platform) {
			return true
		}
	}
	return false
}

// ListAvailableModels fetches the remote registry and returns entries
// matching typeFilter (empty = all) and device compatibility.
func (r *Registry) ListAvailableModels(ctx context.Context, typeFilter ModelType, device DeviceCapabilities) ([]ModelInfo, error) {
	remote, err := r.fetchRemote(ctx)
	if err != nil {
		return nil, err
	}
	return filterModels(remote, typeFilter, device), nil
}

func (r *Registry) fetchRemote(ctx context.Context) ([]ModelInfo, error) {
	body, err := retry.WithRetry(ctx, retry.DefaultConfig(), func() ([]byte, error) {
		return httpclient.Get(ctx, r.client, r.remoteURL)
	}, nil)
	if err != nil {
		return nil, err
	}
	var models []ModelInfo
	if err := json.Unmarshal(body, &models); err != nil {
		return nil, aierr.New(aierr.NetworkHTTPError, "remote registry returned malformed JSON", err.Error())
	}
	return models, nil
}

// score rewards smaller size among requirement-satisfying candidates,
// tie-broken by newer semantic version (spec.md §4.10 recommend_models).
func score(m ModelInfo) float64 {
	if m.SizeBytes <= 0 {
		return 0
	}
	return 1.0 / float64(m.SizeBytes)
}

// RecommendModels filters then ranks candidates, returning at most 10.
func (r *Registry) RecommendModels(ctx context.Context, typeFilter ModelType, device DeviceCapabilities) ([]ModelInfo, error) {
	filtered, err := r.ListAvailableModels(ctx, typeFilter, device)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		si, sj := score(filtered[i]), score(filtered[j])
		if si != sj {
			return si > sj
		}
		return semver.CompareStrings(filtered[i].Version, filtered[j].Version) == semver.Greater
	})
	if len(filtered) > 10 {
		filtered = filtered[:10]
	}
	return filtered, nil
}

// IsModelDownloaded reports whether versionedID exists in the local catalog.
func (r *Registry) IsModelDownloaded(versionedID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.models[versionedID]
	return ok
}

// GetModelInfo returns the local catalog entry for versionedID.
func (r *Registry) GetModelInfo(versionedID string) (ModelInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[versionedID]
	if !ok {
		return ModelInfo{}, aierr.New(aierr.ModelNotFoundInRegistry, "model not found in local registry", versionedID)
	}
	return m, nil
}

// GetModelPath returns the installed artifact path for versionedID.
func (r *Registry) GetModelPath(versionedID string) (string, error) {
	if !r.IsModelDownloaded(versionedID) {
		return "", aierr.New(aierr.ModelFileNotFound, "model artifact not installed", versionedID)
	}
	return filepath.Join(r.dir, versionedID), nil
}

// ListDownloadedModels returns every locally installed entry.
func (r *Registry) ListDownloadedModels() []ModelInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ModelInfo, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StorageInfo summarizes model-directory disk usage.
type StorageInfo struct {
	UsedBytes   int64
	ModelCount  int
}

// GetStorageInfo sums installed artifact sizes from the catalog.
func (r *Registry) GetStorageInfo() StorageInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var used int64
	for _, m := range r.models {
		used += m.SizeBytes
	}
	return StorageInfo{UsedBytes: used, ModelCount: len(r.models)}
}

// GetModelInfoByBaseID returns the pinned version's entry if baseID is
// pinned, otherwise the newest installed semver under that base id.
func (r *Registry) GetModelInfoByBaseID(baseID string) (ModelInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.pinned[baseID]; ok {
		if m, ok := r.models[baseID+"-"+v]; ok {
			return m, nil
		}
	}

	var best ModelInfo
	var bestVersion string
	found := false
	for id, m := range r.models {
		b, v, ok := SplitVersionedID(id)
		if !ok || b != baseID {
			continue
		}
		if !found || semver.CompareStrings(v, bestVersion) == semver.Greater {
			best, bestVersion, found = m, v, true
		}
	}
	if !found {
		return ModelInfo{}, aierr.New(aierr.ModelNotFoundInRegistry, "no installed version found for base id", baseID)
	}
	return best, nil
}

// PinModelVersion pins baseID to version; version must be valid semver and
// the versioned id must already exist in the catalog.
func (r *Registry) PinModelVersion(baseID, version string) error {
	if !semver.Valid(version) {
		return aierr.New(aierr.InvalidInputParameterValue, "pin version is not a valid semantic version", version)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	versionedID := baseID + "-" + version
	if _, ok := r.models[versionedID]; !ok {
		return aierr.New(aierr.ModelNotFoundInRegistry, "cannot pin a version that is not installed", versionedID)
	}
	r.pinned[baseID] = version
	return r.persistLocked()
}

// UnpinModelVersion removes baseID's pin; unpinning a non-pinned base id is an error.
func (r *Registry) UnpinModelVersion(baseID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pinned[baseID]; !ok {
		return aierr.New(aierr.InvalidInputParameterValue, "base id is not pinned", baseID)
	}
	delete(r.pinned, baseID)
	return r.persistLocked()
}

// IsModelVersionPinned reports whether baseID currently has a pin.
func (r *Registry) IsModelVersionPinned(baseID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pinned[baseID]
	return ok
}

// GetPinnedVersion returns baseID's pinned version, if any.
func (r *Registry) GetPinnedVersion(baseID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.pinned[baseID]
	return v, ok
}

// InstallFromDownload inserts a newly downloaded artifact's entry into the
// local catalog and stamps its download timestamp, called by the download
// engine on successful verification.
func (r *Registry) InstallFromDownload(m ModelInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata["download_timestamp"] = fmt.Sprintf("%d", time.Now().Unix())
	r.models[m.ID] = m
	return r.persistLocked()
}

// DeleteModel removes the installed artifact file and its catalog entry.
func (r *Registry) DeleteModel(versionedID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[versionedID]; !ok {
		return aierr.New(aierr.ModelNotFoundInRegistry, "model not found in local registry", versionedID)
	}
	path := filepath.Join(r.dir, versionedID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return aierr.New(aierr.StorageReadError, "failed deleting model artifact", err.Error())
	}
	delete(r.models, versionedID)
	return r.persistLocked()
}

// CheckForUpdates compares versionedID's installed version against the
// newest remote version sharing its base id.
func (r *Registry) CheckForUpdates(ctx context.Context, versionedID string) (latest string, hasUpdate bool, err error) {
	baseID, currentVersion, ok := SplitVersionedID(versionedID)
	if !ok {
		return "", false, aierr.New(aierr.InvalidInputParameterValue, "not a valid versioned model id", versionedID)
	}
	versions, err := r.GetAvailableVersions(ctx, baseID)
	if err != nil {
		return "", false, err
	}
	for _, v := range versions {
		if semver.CompareStrings(v, latest) == semver.Greater || latest == "" {
			latest = v
		}
	}
	return latest, latest != "" && semver.CompareStrings(latest, currentVersion) == semver.Greater, nil
}

// GetAvailableVersions lists every remote version sharing baseID.
func (r *Registry) GetAvailableVersions(ctx context.Context, baseID string) ([]string, error) {
	remote, err := r.fetchRemote(ctx)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, m := range remote {
		b, v, ok := SplitVersionedID(m.ID)
		if ok && b == baseID {
			versions = append(versions, v)
		}
	}
	return versions, nil
}
