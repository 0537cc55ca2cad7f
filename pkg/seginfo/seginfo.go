// Package seginfo names, parses and discovers shard files in a directory.
package seginfo

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/iamBelugaa/segmux/pkg/filesys"
)

// Extension is the suffix of every shard file.
const Extension = ".seg"

// GenerateName returns the file name of shard id.
//
// Example: GenerateName("shard", 3) -> "shard_00000000000000000003.seg"
func GenerateName(prefix string, id uint64) string {
	return fmt.Sprintf("%s_%020d%s", prefix, id, Extension)
}

// ParseShardID extracts the shard id from a path produced by GenerateName.
func ParseShardID(fullPath, prefix string) (uint64, error) {
	_, filename := filepath.Split(fullPath)

	if !strings.HasPrefix(filename, prefix+"_") {
		return 0, fmt.Errorf("filename %s does not start with expected prefix %s", filename, prefix)
	}
	if !strings.HasSuffix(filename, Extension) {
		return 0, fmt.Errorf("filename %s does not end with %s", filename, Extension)
	}

	// Example: "shard_00000000000000000003.seg" -> "00000000000000000003"
	digits := strings.TrimSuffix(strings.TrimPrefix(filename, prefix+"_"), Extension)

	id, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse shard ID '%s' as integer: %w", digits, err)
	}

	return id, nil
}

// ListShards returns the ids of every shard file in dir, ascending. Files that match
// the pattern but do not parse are skipped.
func ListShards(dir, prefix string) ([]uint64, error) {
	if dir == "" || prefix == "" {
		return nil, fmt.Errorf("all parameters (dir, prefix) must be non-empty")
	}

	pattern := filepath.Join(dir, prefix+"_*"+Extension)
	matches, err := filesys.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to read shard directory with pattern %s: %w", pattern, err)
	}

	ids := make([]uint64, 0, len(matches))
	for _, match := range matches {
		id, err := ParseShardID(match, prefix)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	slices.Sort(ids)
	return ids, nil
}
