package track

import (
	"github.com/rs/zerolog"

	"github.com/tetsuo/imaf"
)

// Layout selects the top-level box order of a muxed file.
type Layout int

const (
	// LayoutMdatMoov writes ftyp, mdat, album metadata, moov. Sample
	// offsets are known in a single pass.
	LayoutMdatMoov Layout = iota

	// LayoutMoovMdat writes ftyp, moov, mdat, album metadata. Offsets
	// depend on moov's own length, so moov is built twice.
	LayoutMoovMdat
)

type config struct {
	layout   Layout
	spec     *imaf.Spec
	songXML  []byte
	albumXML []byte
	log      zerolog.Logger
	limits   imaf.Limits
}

func newConfig(opts []Option) config {
	cfg := config{log: zerolog.Nop()}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// Option configures Mux or Demux. Options that do not apply to the called
// operation are ignored.
type Option func(*config)

// WithLayout sets the muxed file's top-level box order.
func WithLayout(l Layout) Option {
	return func(c *config) { c.layout = l }
}

// WithSpec supplies the interactive structure to write. Without it Mux
// generates a default spanning all audio tracks equally.
func WithSpec(s *imaf.Spec) Option {
	return func(c *config) { c.spec = s }
}

// WithSongXML supplies the song-level metadata document carried inside
// moov. The bytes are opaque to the muxer.
func WithSongXML(xml []byte) Option {
	return func(c *config) { c.songXML = xml }
}

// WithAlbumXML supplies the album-level metadata document carried in a
// top-level meta box.
func WithAlbumXML(xml []byte) Option {
	return func(c *config) { c.albumXML = xml }
}

// WithLogger sets the logger used for clamp warnings and skipped-track
// notices. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithLimits bounds table sizes accepted during demuxing.
func WithLimits(lim imaf.Limits) Option {
	return func(c *config) { c.limits = lim }
}
