package cli

import (
	"fmt"
	"io"

	"github.com/Davincible/siliconsig/pkg/fingerprint"
	"github.com/Davincible/siliconsig/pkg/imagefile"
	"github.com/Davincible/siliconsig/pkg/lsb"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ChunkInfo summarizes one PNG chunk
type ChunkInfo struct {
	Type   string `json:"type"`
	Length int    `json:"length"`
	CRCOK  bool   `json:"crc_ok"`
}

// InspectResult is what inspect reports without verifying anything
type InspectResult struct {
	Image    string `json:"image"`
	Format   string `json:"format"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Capacity int    `json:"capacity_bits"`

	CodewordBits int  `json:"codeword_bits"`
	Required     int  `json:"required_bits"`
	Fits         bool `json:"fits"`

	Chunks   []ChunkInfo       `json:"chunks,omitempty"`
	Text     map[string]string `json:"text,omitempty"`
	Metadata *imagefile.Metadata `json:"metadata,omitempty"`

	Fingerprint string `json:"fingerprint,omitempty"`
	Tag         string `json:"tag,omitempty"`
}

func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [image]",
		Short: "Show image capacity, PNG chunks and recorded signature metadata",
		Long: `Inspect reads an image without verifying it: dimensions and LSB capacity,
the raw PNG chunk list with CRC checks, the text metadata and the
fingerprint of the recorded hash.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			img, err := s.loadImage(args[0])
			if err != nil {
				return err
			}

			opts, err := s.lsbOptions()
			if err != nil {
				return err
			}
			cw := lsb.CodewordBits(opts.Parity)
			layout := lsb.Layout{Base: opts.Base, CodewordBits: cw, Repeats: opts.Repeats}

			result := InspectResult{
				Image:        args[0],
				Format:       img.Format,
				Width:        img.Pixels.Width,
				Height:       img.Pixels.Height,
				Capacity:     img.Pixels.Capacity(),
				CodewordBits: cw,
				Required:     layout.End(),
				Fits:         layout.End() <= img.Pixels.Capacity(),
				Text:         img.Text,
			}
			for _, c := range img.Chunks {
				result.Chunks = append(result.Chunks, ChunkInfo{Type: c.Type, Length: c.Length, CRCOK: c.CRCOK})
			}

			if !img.Metadata.IsEmpty() {
				meta := img.Metadata
				result.Metadata = &meta
				if p, err := meta.Payload(); err == nil {
					if fp, err := fingerprint.FromHash(p.Hash); err == nil {
						result.Fingerprint = fp.Words()
						result.Tag, _ = fp.Tag()
					}
				}
			}

			return s.emit(result, func(w io.Writer) { displayInspect(w, result) })
		},
	}

	return cmd
}

func displayInspect(w io.Writer, r InspectResult) {
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan, color.Bold)
	red := color.New(color.FgRed)

	fmt.Fprintln(w)
	cyan.Fprintf(w, "%s\n", r.Image)
	fmt.Fprintf(w, "  Format:   %s %dx%d\n", r.Format, r.Width, r.Height)
	fmt.Fprintf(w, "  Capacity: %d bits (signature needs %d)", r.Capacity, r.Required)
	if !r.Fits {
		red.Fprint(w, " too small")
	}
	fmt.Fprintln(w)

	if len(r.Chunks) > 0 {
		fmt.Fprintln(w)
		yellow.Fprintln(w, "PNG chunks:")
		for _, c := range r.Chunks {
			status := "ok"
			if !c.CRCOK {
				status = "BAD CRC"
			}
			fmt.Fprintf(w, "  %-4s %8d bytes  %s\n", c.Type, c.Length, status)
		}
	}

	fmt.Fprintln(w)
	if r.Metadata == nil {
		fmt.Fprintln(w, "No signature metadata. The pixels may still carry a signature; run verify.")
		return
	}

	yellow.Fprintln(w, "Signature metadata:")
	for _, e := range r.Metadata.Entries() {
		fmt.Fprintf(w, "  %-26s %s\n", e.Key+":", e.Value)
	}

	if r.Fingerprint != "" {
		fmt.Fprintln(w)
		yellow.Fprintf(w, "Fingerprint (tag %s):\n", r.Tag)
		printWords(w, r.Fingerprint)
	}
}
