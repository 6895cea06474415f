// Command imafdump reads an IMAF/MP4 file and prints its box structure,
// optionally with the demuxed track list and interactive layout.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/tetsuo/imaf"
	"github.com/tetsuo/imaf/track"
)

var cli struct {
	Format string `help:"Output format." enum:"text,json" default:"text"`
	Tracks bool   `help:"Also print the demuxed track list and interactive layout." short:"t"`
	File   string `arg:"" help:"Input file." type:"existingfile"`
}

// boxNode is a box in the printed tree.
type boxNode struct {
	Type     string    `json:"type"`
	Offset   int       `json:"offset"`
	Size     uint64    `json:"size"`
	Version  *uint8    `json:"version,omitempty"`
	Flags    *uint32   `json:"flags,omitempty"`
	Entries  *uint32   `json:"entries,omitempty"`
	Children []boxNode `json:"children,omitempty"`
}

func main() {
	kctx := kong.Parse(&cli, kong.Description("Dump the box structure of an IMAF/MP4 file."))

	buf, err := os.ReadFile(cli.File)
	kctx.FatalIfErrorf(err)

	r := imaf.NewReader(buf)
	root := buildTree(&r)

	switch cli.Format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		kctx.FatalIfErrorf(enc.Encode(root))
	default:
		for _, n := range root {
			printNode(n, 0)
		}
	}

	if cli.Tracks {
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		mov, err := track.Demux(buf, track.WithLogger(log))
		kctx.FatalIfErrorf(err)
		printMovie(mov)
	}
}

func buildTree(r *imaf.Reader) []boxNode {
	var nodes []boxNode
	for r.Next() {
		node := boxNode{
			Type:   r.Type().String(),
			Offset: r.Offset(),
			Size:   r.Size(),
		}
		if imaf.IsFullBox(r.Type()) {
			v, f := r.Version(), r.Flags()
			node.Version = &v
			node.Flags = &f
		}
		switch {
		case imaf.IsContainerBox(r.Type()):
			r.Enter()
			node.Children = buildTree(r)
			r.Exit()
		case r.Type() == imaf.TypeStsd || r.Type() == imaf.TypeDref:
			n := r.EntryCount()
			node.Entries = &n
			r.Enter()
			r.Skip(4) // entry count
			node.Children = buildTree(r)
			r.Exit()
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func printNode(n boxNode, depth int) {
	indent := strings.Repeat("  ", depth)
	extra := ""
	if n.Version != nil {
		extra = fmt.Sprintf(" version=%d flags=0x%06x", *n.Version, *n.Flags)
	}
	if n.Entries != nil {
		extra += fmt.Sprintf(" entries=%d", *n.Entries)
	}
	fmt.Printf("%s[%s] offset=%d size=%d%s\n", indent, n.Type, n.Offset, n.Size, extra)
	for _, c := range n.Children {
		printNode(c, depth+1)
	}
}

func printMovie(m *track.Movie) {
	fmt.Printf("\nmovie: timescale=%d duration=%d tracks=%d\n", m.Timescale, m.Duration, len(m.Tracks))
	for _, t := range m.Tracks {
		fmt.Printf("  track %d: %s codec=%s timescale=%d duration=%d lang=%s samples=%d\n",
			t.ID, kindString(t.Kind), t.Codec, t.Timescale, t.Duration, t.Language, len(t.Samples))
		if t.Kind == track.KindAudio {
			fmt.Printf("    channels=%d bits=%d rate=%d asc=%d bytes\n",
				t.ChannelCount, t.SampleSize, t.SampleRate, len(t.DecoderConfig))
		}
	}
	if len(m.SongXML) > 0 {
		fmt.Printf("  song metadata: %d bytes\n", len(m.SongXML))
	}
	if len(m.AlbumXML) > 0 {
		fmt.Printf("  album metadata: %d bytes\n", len(m.AlbumXML))
	}
	if m.Spec == nil {
		fmt.Println("  no interactive layout")
		return
	}
	for _, g := range m.Spec.Groups {
		fmt.Printf("  group %d %q: elements=%v mode=%d volume=%.2f\n",
			g.ID, g.Name, g.ElementIDs, g.ActivationMode, g.ReferenceVolume)
	}
	for _, p := range m.Spec.Presets {
		fmt.Printf("  preset %d %q: elements=%v global=%d/%d volumes=%v\n",
			p.ID, p.Name, p.ElementIDs, p.GlobalVolumeIndex, m.Spec.GlobalPresetSteps, p.ElementVolumeIndex)
	}
	for _, r := range m.Spec.SelectionRules {
		fmt.Printf("  selection rule type=%d element=%d\n", r.Type, r.ElementID)
	}
	for _, r := range m.Spec.MixingRules {
		fmt.Printf("  mixing rule type=%d element=%d\n", r.Type, r.ElementID)
	}
}

func kindString(k track.Kind) string {
	if k == track.KindTimedText {
		return "text"
	}
	return "audio"
}
