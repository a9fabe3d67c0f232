package hypernet

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// LatestSentinel is the checkpoint-name marker that selects the most recent
// checkpoint in the parent directory instead of a fixed one.
const LatestSentinel = "__latest"

// ResolveCheckpoint resolves weightsPath to a concrete checkpoint directory.
// If its base name is the "__latest" sentinel, the newest entry of the parent
// directory is picked (by modification time, ties broken lexicographically).
func ResolveCheckpoint(weightsPath string) (string, error) {
	if filepath.Base(weightsPath) != LatestSentinel {
		return weightsPath, nil
	}
	return LatestCheckpoint(filepath.Dir(weightsPath))
}

// LatestCheckpoint returns the newest checkpoint entry in dir.
func LatestCheckpoint(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrapf(err, "failed to list checkpoint directory %q", dir)
	}
	type candidate struct {
		name    string
		modTime int64
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.Name() == LatestSentinel {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return "", errors.Wrapf(err, "failed to stat %q", entry.Name())
		}
		candidates = append(candidates, candidate{name: entry.Name(), modTime: info.ModTime().UnixNano()})
	}
	if len(candidates) == 0 {
		return "", errors.Errorf("no checkpoints found in %q", dir)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].modTime != candidates[j].modTime {
			return candidates[i].modTime > candidates[j].modTime
		}
		return candidates[i].name > candidates[j].name
	})
	return filepath.Join(dir, candidates[0].name), nil
}
