// Package manifest persists the layout of a shard directory: the file prefix, the
// shard size and which shards exist. The record is protobuf wire encoded and
// followed by a CRC32 trailer.
package manifest

import (
	stdErrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/iamBelugaa/segmux/pkg/checksum"
	"github.com/iamBelugaa/segmux/pkg/errors"
	"github.com/iamBelugaa/segmux/pkg/filesys"
)

const (
	// FileName is the manifest's name inside a shard directory.
	FileName = "MANIFEST"

	// Version is the newest format this package writes and reads.
	Version uint32 = 1
)

const (
	fieldVersion   protowire.Number = 1
	fieldPrefix    protowire.Number = 2
	fieldShardSize protowire.Number = 3
	fieldShards    protowire.Number = 4
)

var crc = checksum.NewCRC32Castagnoli()

type Manifest struct {
	Version   uint32   `json:"version"`
	Prefix    string   `json:"prefix"`
	ShardSize uint64   `json:"shardSize"`
	Shards    []uint64 `json:"shards"`
}

func New(prefix string, shardSize uint64) *Manifest {
	return &Manifest{Version: Version, Prefix: prefix, ShardSize: shardSize}
}

// AddShard records id, keeping Shards sorted. It reports whether id was new.
func (m *Manifest) AddShard(id uint64) bool {
	pos, found := slices.BinarySearch(m.Shards, id)
	if found {
		return false
	}
	m.Shards = slices.Insert(m.Shards, pos, id)
	return true
}

func (m *Manifest) HasShard(id uint64) bool {
	_, found := slices.BinarySearch(m.Shards, id)
	return found
}

// Check fails when the manifest describes a different layout than prefix and shardSize.
func (m *Manifest) Check(prefix string, shardSize uint64) error {
	if m.Prefix == prefix && m.ShardSize == shardSize {
		return nil
	}

	return errors.NewStorageError(
		nil, errors.ErrManifestMismatch,
		fmt.Sprintf(
			"manifest describes prefix %q with shard size %d, requested prefix %q with shard size %d",
			m.Prefix, m.ShardSize, prefix, shardSize,
		),
	).
		WithFileName(FileName).
		WithDetail("manifestPrefix", m.Prefix).
		WithDetail("manifestShardSize", m.ShardSize)
}

// Marshal encodes the manifest and seals it with a checksum.
func (m *Manifest) Marshal() []byte {
	var buf []byte

	buf = protowire.AppendTag(buf, fieldVersion, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.Version))

	buf = protowire.AppendTag(buf, fieldPrefix, protowire.BytesType)
	buf = protowire.AppendString(buf, m.Prefix)

	buf = protowire.AppendTag(buf, fieldShardSize, protowire.VarintType)
	buf = protowire.AppendVarint(buf, m.ShardSize)

	if len(m.Shards) > 0 {
		var packed []byte
		for _, id := range m.Shards {
			packed = protowire.AppendVarint(packed, id)
		}
		buf = protowire.AppendTag(buf, fieldShards, protowire.BytesType)
		buf = protowire.AppendBytes(buf, packed)
	}

	return crc.Seal(buf)
}

// Unmarshal decodes a buffer produced by Marshal. Unknown fields are skipped.
func Unmarshal(data []byte) (*Manifest, error) {
	buf, ok := crc.Open(data)
	if !ok {
		return nil, corrupt(nil, "manifest checksum mismatch")
	}

	m := &Manifest{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, corrupt(protowire.ParseError(n), "malformed manifest tag")
		}
		buf = buf[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n), "malformed manifest version")
			}
			m.Version, buf = uint32(v), buf[n:]

		case num == fieldPrefix && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(buf)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n), "malformed manifest prefix")
			}
			m.Prefix, buf = v, buf[n:]

		case num == fieldShardSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n), "malformed manifest shard size")
			}
			m.ShardSize, buf = v, buf[n:]

		case num == fieldShards && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n), "malformed manifest shard list")
			}
			buf = buf[n:]

			for len(packed) > 0 {
				id, n := protowire.ConsumeVarint(packed)
				if n < 0 {
					return nil, corrupt(protowire.ParseError(n), "malformed manifest shard id")
				}
				m.AddShard(id)
				packed = packed[n:]
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n), "malformed manifest field")
			}
			buf = buf[n:]
		}
	}

	if m.Version == 0 || m.Version > Version {
		return nil, errors.NewStorageError(
			nil, errors.ErrSystemUnsupportedVersion,
			fmt.Sprintf("unsupported manifest version %d, newest known is %d", m.Version, Version),
		).WithFileName(FileName)
	}

	return m, nil
}

// Load reads the manifest stored in dir. A missing manifest yields an error
// satisfying errors.Is(err, fs.ErrNotExist).
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)

	data, err := os.ReadFile(path)
	if err != nil {
		code := errors.ErrIOReadFailed
		if stdErrors.Is(err, fs.ErrNotExist) {
			code = errors.ErrIOOpenFailed
		}
		return nil, errors.NewStorageError(err, code, "failed to read manifest").
			WithFileName(FileName).
			WithPath(path)
	}

	m, err := Unmarshal(data)
	if err != nil {
		if se, ok := errors.AsStorageError(err); ok {
			se.WithPath(path)
		}
		return nil, err
	}
	return m, nil
}

// Save atomically replaces the manifest stored in dir.
func Save(dir string, m *Manifest) error {
	path := filepath.Join(dir, FileName)

	if err := filesys.WriteFileAtomic(path, m.Marshal(), 0o644); err != nil {
		return errors.NewStorageError(err, errors.ErrIOWriteFailed, "failed to write manifest").
			WithFileName(FileName).
			WithPath(path)
	}
	return nil
}

func corrupt(err error, msg string) error {
	return errors.NewStorageError(err, errors.ErrManifestCorrupt, msg).WithFileName(FileName)
}
