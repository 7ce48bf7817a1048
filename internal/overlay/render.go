// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package overlay

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Telemetry is the live data drawn as badges over the preview.
type Telemetry struct {
	FPS        float64
	Shutter    time.Duration
	Resolution string
}

// Empty reports whether no badge would be drawn.
func (t Telemetry) Empty() bool {
	return t.FPS <= 0 && t.Shutter <= 0 && t.Resolution == ""
}

var (
	bannerColor = color.NRGBA{R: 0, G: 0, B: 0, A: 180}
	badgeColor  = color.NRGBA{R: 20, G: 20, B: 20, A: 160}
	titleColor  = color.NRGBA{R: 255, G: 200, B: 60, A: 255}
	textColor   = color.NRGBA{R: 240, G: 240, B: 240, A: 255}
)

const (
	titleScale = 4
	lineScale  = 2
	badgeScale = 2
	margin     = 12
	padding    = 6
)

// Renderer draws status screens and composes them with telemetry. Rendered
// screens are cached by name for the lifetime of the renderer.
type Renderer struct {
	width, height int
	cache         map[Screen]*image.RGBA
	renders       int
}

// NewRenderer returns a renderer for a width x height display.
func NewRenderer(width, height int) *Renderer {
	return &Renderer{width: width, height: height, cache: make(map[Screen]*image.RGBA)}
}

// Renders returns how many screens were rendered rather than served from the cache.
func (r *Renderer) Renders() int { return r.renders }

// Screen returns the bitmap for s, rendering it on first use. ScreenNone
// yields a transparent canvas that is not cached.
func (r *Renderer) Screen(s Screen) *image.RGBA {
	if s == ScreenNone {
		return image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	}
	if img, ok := r.cache[s]; ok {
		return img
	}
	img := r.render(s)
	r.cache[s] = img
	r.renders++
	return img
}

func (r *Renderer) render(s Screen) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	text, ok := screenTexts[s]
	if !ok {
		text = screenText{title: string(s)}
	}

	face := basicfont.Face7x13
	lineH := face.Height
	bannerH := lineH*titleScale + len(text.lines)*lineH*lineScale + 3*margin
	top := (r.height - bannerH) / 2
	banner := image.Rect(0, top, r.width, top+bannerH)
	draw.Draw(img, banner, image.NewUniform(bannerColor), image.Point{}, draw.Over)

	y := top + margin
	r.drawCentered(img, text.title, titleColor, titleScale, y)
	y += lineH*titleScale + margin
	for _, line := range text.lines {
		r.drawCentered(img, line, textColor, lineScale, y)
		y += lineH * lineScale
	}
	return img
}

func (r *Renderer) drawCentered(dst draw.Image, s string, c color.Color, scale, y int) {
	w := textWidth(s) * scale
	drawText(dst, s, c, scale, image.Pt((r.width-w)/2, y))
}

// Compose returns a fresh frame: the cached screen with telemetry badges.
func (r *Renderer) Compose(s Screen, t Telemetry) *image.RGBA {
	base := r.Screen(s)
	out := image.NewRGBA(base.Bounds())
	copy(out.Pix, base.Pix)

	if t.FPS > 0 {
		r.badge(out, fmt.Sprintf("%.1f fps", t.FPS), false, false)
	}
	if sh := FormatShutter(t.Shutter); sh != "" {
		r.badge(out, sh, true, false)
	}
	if t.Resolution != "" {
		r.badge(out, t.Resolution, false, true)
	}
	return out
}

// badge draws s in a corner: right selects the right edge, bottom the bottom.
func (r *Renderer) badge(dst *image.RGBA, s string, right, bottom bool) {
	w := textWidth(s)*badgeScale + 2*padding
	h := basicfont.Face7x13.Height*badgeScale + 2*padding
	x, y := margin, margin
	if right {
		x = r.width - margin - w
	}
	if bottom {
		y = r.height - margin - h
	}
	box := image.Rect(x, y, x+w, y+h)
	draw.Draw(dst, box, image.NewUniform(badgeColor), image.Point{}, draw.Over)
	drawText(dst, s, textColor, badgeScale, image.Pt(x+padding, y+padding))
}

func textWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Ceil()
}

// drawText renders s at 1x and scales it onto dst with its top-left at pt.
func drawText(dst draw.Image, s string, c color.Color, scale int, pt image.Point) {
	face := basicfont.Face7x13
	w, h := textWidth(s), face.Height
	if w == 0 {
		return
	}
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(s)
	target := image.Rect(pt.X, pt.Y, pt.X+w*scale, pt.Y+h*scale)
	draw.NearestNeighbor.Scale(dst, target, small, small.Bounds(), draw.Over, nil)
}
