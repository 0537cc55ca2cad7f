package options

const (
	DefaultService  string = "segmux"
	DefaultLimit    int    = 0
	DefaultLogLevel string = "info"

	MinSegmentSize     uint64 = 4 * 1024
	MaxSegmentSize     uint64 = 4 * 1024 * 1024 * 1024
	DefaultSegmentSize uint64 = 64 * 1024 * 1024

	DefaultSegmentPrefix    string = "shard"
	DefaultSegmentDirectory string = "/var/lib/segmux/shards"
)

var defaultSegmentOptions = SegmentOptions{
	Size:      DefaultSegmentSize,
	Prefix:    DefaultSegmentPrefix,
	Directory: DefaultSegmentDirectory,
}

// DefaultOptions returns a fresh copy of the defaults; callers may mutate it freely.
func DefaultOptions() Options {
	segmentOptions := defaultSegmentOptions
	return Options{
		Service:        DefaultService,
		Limit:          DefaultLimit,
		LogLevel:       DefaultLogLevel,
		SegmentOptions: &segmentOptions,
	}
}
