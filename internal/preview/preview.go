// Package preview renders the 1200x630 social card shown when a joke link is
// shared.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"sync"
	"unicode/utf8"

	"roast-machine/internal/config"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	Width     = 1200
	Height    = 630
	wrapWidth = 42
	textLeft  = 120
	textTop   = 140
)

var (
	accent  = color.RGBA{0xf5, 0x7c, 0x20, 0xff}
	quote   = color.NRGBA{0xf5, 0x7c, 0x20, 0x60}
	divider = color.RGBA{0x33, 0x33, 0x33, 0xff}
	muted   = color.RGBA{0x99, 0x99, 0x99, 0xff}
)

type faces struct {
	title  font.Face
	body   font.Face
	quote  font.Face
	footer font.Face
}

// Renderer draws preview cards and keeps the most recent ones in memory.
// font.Face values are not safe for concurrent use, so drawing is serialized.
type Renderer struct {
	title  string
	footer string
	cache  *lru.Cache[string, []byte]

	mu    sync.Mutex
	faces faces
}

func New(cfg config.PreviewConfig) (*Renderer, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 256
	}

	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}

	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bold font: %w", err)
	}

	var f faces
	for _, fc := range []struct {
		dst  *font.Face
		font *opentype.Font
		size float64
	}{
		{&f.title, bold, 42},
		{&f.body, regular, 34},
		{&f.quote, bold, 120},
		{&f.footer, regular, 22},
	} {
		face, err := opentype.NewFace(fc.font, &opentype.FaceOptions{
			Size:    fc.size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create font face: %w", err)
		}
		*fc.dst = face
	}

	return &Renderer{
		title:  cfg.Title,
		footer: cfg.Footer,
		cache:  cache,
		faces:  f,
	}, nil
}

// Render returns the PNG card for a joke, from cache when possible.
func (r *Renderer) Render(text string) ([]byte, error) {
	if cached, ok := r.cache.Get(text); ok {
		return cached, nil
	}

	img := r.draw(text)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	r.cache.Add(text, buf.Bytes())
	return buf.Bytes(), nil
}

func (r *Renderer) draw(text string) *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))

	for y := 0; y < Height; y++ {
		frac := float64(y) / Height
		row := color.RGBA{
			R: uint8(10 + frac*15),
			G: uint8(10 + frac*8),
			B: uint8(10 + frac*5),
			A: 0xff,
		}
		draw.Draw(img, image.Rect(0, y, Width, y+1), image.NewUniform(row), image.Point{}, draw.Src)
	}

	draw.Draw(img, image.Rect(0, 0, Width, 5), image.NewUniform(accent), image.Point{}, draw.Src)

	drawText(img, r.faces.quote, quote, 60, 80, "“")

	titleW := font.MeasureString(r.faces.title, r.title).Ceil()
	drawText(img, r.faces.title, accent, (Width-titleW)/2, 36, r.title)

	lines := Wrap(text, wrapWidth)
	lineH := r.faces.body.Metrics().Height.Ceil()
	top := max(textTop, (Height-lineH*len(lines))/2-10)
	for i, line := range lines {
		drawText(img, r.faces.body, color.White, textLeft, top+i*lineH, line)
	}

	draw.Draw(img, image.Rect(100, Height-80, Width-100, Height-79), image.NewUniform(divider), image.Point{}, draw.Src)

	footerW := font.MeasureString(r.faces.footer, r.footer).Ceil()
	drawText(img, r.faces.footer, muted, (Width-footerW)/2, Height-55, r.footer)

	return img
}

// drawText places s with its top-left corner at (x, top).
func drawText(dst draw.Image, face font.Face, c color.Color, x, top int, s string) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, top+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

// Wrap breaks text into lines of at most width runes on word boundaries.
// Words longer than width are split.
func Wrap(text string, width int) []string {
	var (
		lines []string
		line  strings.Builder
		n     int
	)

	flush := func() {
		if n > 0 {
			lines = append(lines, line.String())
			line.Reset()
			n = 0
		}
	}

	for _, word := range strings.Fields(text) {
		for utf8.RuneCountInString(word) > width {
			flush()
			r := []rune(word)
			lines = append(lines, string(r[:width]))
			word = string(r[width:])
		}

		wn := utf8.RuneCountInString(word)
		if n > 0 && n+1+wn > width {
			flush()
		}
		if n > 0 {
			line.WriteByte(' ')
			n++
		}
		line.WriteString(word)
		n += wn
	}
	flush()

	return lines
}
