package ondevicesdk

import (
	"context"
	"path/filepath"

	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
	"github.com/localmind-ai/ondevice-sdk/internal/download"
	"github.com/localmind-ai/ondevice-sdk/internal/httpclient"
	"github.com/localmind-ai/ondevice-sdk/internal/registry"
	"github.com/localmind-ai/ondevice-sdk/internal/semver"
)

// ModelRegistry is the public handle onto the façade-owned model registry.
type ModelRegistry struct {
	r *registry.Registry
}

// ListAvailableModels fetches the remote registry and returns entries
// matching typeFilter (empty string = all types) and device compatibility.
func (m *ModelRegistry) ListAvailableModels(ctx context.Context, typeFilter RegistryModelType, device DeviceCapabilities) ([]ModelInfo, error) {
	return m.r.ListAvailableModels(ctx, typeFilter, device)
}

// RecommendModels filters then ranks candidates, returning at most 10.
func (m *ModelRegistry) RecommendModels(ctx context.Context, typeFilter RegistryModelType, device DeviceCapabilities) ([]ModelInfo, error) {
	return m.r.RecommendModels(ctx, typeFilter, device)
}

// IsModelDownloaded reports whether versionedID exists in the local catalog.
func (m *ModelRegistry) IsModelDownloaded(versionedID string) bool {
	return m.r.IsModelDownloaded(versionedID)
}

// GetModelInfo returns the local catalog entry for versionedID.
func (m *ModelRegistry) GetModelInfo(versionedID string) (ModelInfo, error) {
	return m.r.GetModelInfo(versionedID)
}

// GetModelPath returns the installed artifact path for versionedID.
func (m *ModelRegistry) GetModelPath(versionedID string) (string, error) {
	return m.r.GetModelPath(versionedID)
}

// ListDownloadedModels returns every locally installed entry.
func (m *ModelRegistry) ListDownloadedModels() []ModelInfo {
	return m.r.ListDownloadedModels()
}

// GetStorageInfo summarizes model-directory disk usage.
func (m *ModelRegistry) GetStorageInfo() registry.StorageInfo {
	return m.r.GetStorageInfo()
}

// GetModelInfoByBaseID returns the pinned version's entry if baseID is
// pinned, otherwise the newest installed semver under that base id.
func (m *ModelRegistry) GetModelInfoByBaseID(baseID string) (ModelInfo, error) {
	return m.r.GetModelInfoByBaseID(baseID)
}

// PinModelVersion pins baseID to version.
func (m *ModelRegistry) PinModelVersion(baseID, version string) error {
	return m.r.PinModelVersion(baseID, version)
}

// UnpinModelVersion removes baseID's pin.
func (m *ModelRegistry) UnpinModelVersion(baseID string) error {
	return m.r.UnpinModelVersion(baseID)
}

// IsModelVersionPinned reports whether baseID currently has a pin.
func (m *ModelRegistry) IsModelVersionPinned(baseID string) bool {
	return m.r.IsModelVersionPinned(baseID)
}

// GetPinnedVersion returns baseID's pinned version, if any.
func (m *ModelRegistry) GetPinnedVersion(baseID string) (string, bool) {
	return m.r.GetPinnedVersion(baseID)
}

// CheckForUpdates compares versionedID's installed version against the
// newest remote version sharing its base id.
func (m *ModelRegistry) CheckForUpdates(ctx context.Context, versionedID string) (latest string, hasUpdate bool, err error) {
	return m.r.CheckForUpdates(ctx, versionedID)
}

// GetAvailableVersions lists every remote version sharing baseID.
func (m *ModelRegistry) GetAvailableVersions(ctx context.Context, baseID string) ([]string, error) {
	return m.r.GetAvailableVersions(ctx, baseID)
}

// DeleteModel removes the installed artifact file and its catalog entry.
func (m *ModelRegistry) DeleteModel(versionedID string) error {
	return m.r.DeleteModel(versionedID)
}

// ProgressFunc receives a fraction in [0,1] during a download.
type ProgressFunc = download.ProgressFunc

// DownloadModel resolves baseIDOrVersionedID to a specific remote
// ModelInfo (a bare base id resolves to the newest available semver),
// rejects an already-installed versioned id, preflight-checks storage,
// downloads, verifies, and installs into the local catalog (spec.md
// §4.10 download_model).
func (m *ModelRegistry) DownloadModel(ctx context.Context, modelDir string, client *httpclient.Client, baseIDOrVersionedID string, onProgress ProgressFunc) (ModelInfo, error) {
	target, err := m.resolveTarget(ctx, baseIDOrVersionedID)
	if err != nil {
		return ModelInfo{}, err
	}
	if m.r.IsModelDownloaded(target.ID) {
		return ModelInfo{}, aierr.New(aierr.InvalidInputParameterValue, "this exact model version is already installed", target.ID)
	}

	destPath := filepath.Join(modelDir, target.ID)
	dl := download.New(target.DownloadURL, destPath, target.SizeBytes, target.ChecksumSHA256)
	defer dl.Close()

	if err := dl.Run(ctx, client, onProgress); err != nil {
		return ModelInfo{}, err
	}
	if err := m.r.InstallFromDownload(target); err != nil {
		return ModelInfo{}, err
	}
	return target, nil
}

func (m *ModelRegistry) resolveTarget(ctx context.Context, baseIDOrVersionedID string) (ModelInfo, error) {
	if _, _, ok := registry.SplitVersionedID(baseIDOrVersionedID); ok {
		remote, err := m.r.ListAvailableModels(ctx, "", DeviceCapabilities{})
		if err != nil {
			return ModelInfo{}, err
		}
		for _, mi := range remote {
			if mi.ID == baseIDOrVersionedID {
				return mi, nil
			}
		}
		return ModelInfo{}, aierr.New(aierr.ModelNotFoundInRegistry, "versioned model id not found in remote registry", baseIDOrVersionedID)
	}

	versions, err := m.r.GetAvailableVersions(ctx, baseIDOrVersionedID)
	if err != nil {
		return ModelInfo{}, err
	}
	if len(versions) == 0 {
		return ModelInfo{}, aierr.New(aierr.ModelNotFoundInRegistry, "no remote versions found for base id", baseIDOrVersionedID)
	}
	newest := versions[0]
	for _, v := range versions[1:] {
		if semver.CompareStrings(v, newest) == semver.Greater {
			newest = v
		}
	}
	return m.resolveTarget(ctx, baseIDOrVersionedID+"-"+newest)
}
