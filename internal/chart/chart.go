// Package chart renders signal charts headlessly to PNG. The chart is
// the mandatory artifact for admission: candlesticks for the last 50
// base candles, EMA20/50 overlays, level lines for entry, TP1, TP2 and
// SL, and a volume subplot underneath.
package chart

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/fogleman/gg"
	"github.com/rs/zerolog"

	"pump-signal-bot/internal/market"
)

const (
	width       = 960
	height      = 640
	marginLeft  = 70
	marginRight = 20
	marginTop   = 40
	volumeShare = 0.22 // fraction of the plot height for volume bars
	maxCandles  = 50
)

var (
	colorBG     = color.RGBA{16, 20, 28, 255}
	colorGrid   = color.RGBA{40, 46, 58, 255}
	colorText   = color.RGBA{200, 205, 215, 255}
	colorUp     = color.RGBA{38, 166, 91, 255}
	colorDown   = color.RGBA{214, 69, 65, 255}
	colorEMA20  = color.RGBA{240, 180, 41, 255}
	colorEMA50  = color.RGBA{86, 156, 214, 255}
	colorTP     = color.RGBA{38, 166, 91, 255}
	colorSL     = color.RGBA{214, 69, 65, 255}
	colorLong   = color.RGBA{38, 166, 91, 255}
	colorShort  = color.RGBA{214, 69, 65, 255}
	colorVolume = color.RGBA{70, 80, 100, 255}
)

// Input carries everything one render needs.
type Input struct {
	Symbol  string
	Side    string // LONG or SHORT, colors the entry line
	Candles []market.Candle
	EMA20   []float64
	EMA50   []float64
	Entry   float64
	TP1     float64
	TP2     float64
	SL      float64
}

// Generator writes chart PNGs into a fixed directory.
type Generator struct {
	dir string
	log zerolog.Logger
}

// New creates the Generator, creating the directory if absent.
func New(dir string, log zerolog.Logger) (*Generator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create charts dir %s: %w", dir, err)
	}
	return &Generator{dir: dir, log: log.With().Str("component", "chart").Logger()}, nil
}

// Render draws the chart and returns the written file path. On any
// failure it returns an empty path and leaves nothing on disk.
func (g *Generator) Render(in Input) (string, error) {
	if len(in.Candles) == 0 {
		return "", fmt.Errorf("no candles for %s", in.Symbol)
	}

	candles := in.Candles
	ema20 := in.EMA20
	ema50 := in.EMA50
	if len(candles) > maxCandles {
		offset := len(candles) - maxCandles
		candles = candles[offset:]
		if len(ema20) > offset {
			ema20 = ema20[len(ema20)-len(candles):]
		}
		if len(ema50) > offset {
			ema50 = ema50[len(ema50)-len(candles):]
		}
	}

	dc := gg.NewContext(width, height)
	g.draw(dc, in, candles, ema20, ema50)

	path, err := g.targetPath(in.Symbol, time.Now().UTC())
	if err != nil {
		return "", err
	}

	// Write via a temp file so a failed render never leaves a partial
	// artifact behind.
	tmp, err := os.CreateTemp(g.dir, "chart-*.png.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp chart: %w", err)
	}
	tmpName := tmp.Name()
	if err := dc.EncodePNG(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("encode chart png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp chart: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("place chart file: %w", err)
	}

	g.log.Debug().Str("symbol", in.Symbol).Str("path", path).Msg("chart rendered")
	return path, nil
}

// targetPath builds chart_<SYMBOL>_<yyyymmdd_HHMMSS>.png, suffixing a
// counter when a same-second render already took the name.
func (g *Generator) targetPath(symbol string, now time.Time) (string, error) {
	stamp := now.Format("20060102_150405")
	base := fmt.Sprintf("chart_%s_%s", symbol, stamp)
	path := filepath.Join(g.dir, base+".png")
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		} else if err != nil && !os.IsExist(err) {
			return "", fmt.Errorf("stat chart path: %w", err)
		}
		path = filepath.Join(g.dir, fmt.Sprintf("%s_%d.png", base, i))
	}
}

func (g *Generator) draw(dc *gg.Context, in Input, candles []market.Candle, ema20, ema50 []float64) {
	dc.SetColor(colorBG)
	dc.Clear()

	plotW := float64(width - marginLeft - marginRight)
	plotH := float64(height-marginTop) * (1 - volumeShare)
	volTop := marginTop + plotH + 10
	volH := float64(height) - volTop - 20

	// Price scale covers candles and every level line.
	lo, hi := candles[0].Low, candles[0].High
	for _, c := range candles {
		if c.Low < lo {
			lo = c.Low
		}
		if c.High > hi {
			hi = c.High
		}
	}
	for _, lvl := range []float64{in.Entry, in.TP1, in.TP2, in.SL} {
		if lvl < lo {
			lo = lvl
		}
		if lvl > hi {
			hi = lvl
		}
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = 1
	}
	lo -= pad
	hi += pad

	priceY := func(p float64) float64 {
		return marginTop + plotH - (p-lo)/(hi-lo)*plotH
	}
	step := plotW / float64(len(candles))
	candleX := func(i int) float64 {
		return float64(marginLeft) + step*(float64(i)+0.5)
	}

	// Grid and price labels.
	dc.SetColor(colorGrid)
	dc.SetLineWidth(1)
	for i := 0; i <= 5; i++ {
		p := lo + (hi-lo)*float64(i)/5
		y := priceY(p)
		dc.DrawLine(marginLeft, y, float64(width-marginRight), y)
		dc.Stroke()
		dc.SetColor(colorText)
		dc.DrawStringAnchored(fmt.Sprintf("%.6g", p), marginLeft-6, y, 1, 0.35)
		dc.SetColor(colorGrid)
	}

	// Volume bars.
	maxVol := 0.0
	for _, c := range candles {
		if c.Volume > maxVol {
			maxVol = c.Volume
		}
	}
	if maxVol > 0 {
		dc.SetColor(colorVolume)
		for i, c := range candles {
			h := c.Volume / maxVol * volH
			dc.DrawRectangle(candleX(i)-step*0.3, volTop+volH-h, step*0.6, h)
			dc.Fill()
		}
	}

	// Candlesticks.
	for i, c := range candles {
		up := c.Close >= c.Open
		if up {
			dc.SetColor(colorUp)
		} else {
			dc.SetColor(colorDown)
		}
		x := candleX(i)
		dc.SetLineWidth(1)
		dc.DrawLine(x, priceY(c.High), x, priceY(c.Low))
		dc.Stroke()

		top, bot := c.Open, c.Close
		if c.Close > c.Open {
			top, bot = c.Close, c.Open
		}
		bodyH := priceY(bot) - priceY(top)
		if bodyH < 1 {
			bodyH = 1
		}
		dc.DrawRectangle(x-step*0.3, priceY(top), step*0.6, bodyH)
		dc.Fill()
	}

	drawEMA := func(vals []float64, col color.RGBA) {
		if len(vals) != len(candles) {
			return
		}
		dc.SetColor(col)
		dc.SetLineWidth(1.5)
		for i := 1; i < len(vals); i++ {
			dc.DrawLine(candleX(i-1), priceY(vals[i-1]), candleX(i), priceY(vals[i]))
		}
		dc.Stroke()
	}
	drawEMA(ema20, colorEMA20)
	drawEMA(ema50, colorEMA50)

	// Level lines.
	entryColor := colorLong
	if in.Side == "SHORT" {
		entryColor = colorShort
	}
	levels := []struct {
		price float64
		label string
		col   color.RGBA
	}{
		{in.Entry, "ENTRY", entryColor},
		{in.TP1, "TP1", colorTP},
		{in.TP2, "TP2", colorTP},
		{in.SL, "SL", colorSL},
	}
	for _, lvl := range levels {
		y := priceY(lvl.price)
		dc.SetColor(lvl.col)
		dc.SetLineWidth(1)
		dc.SetDash(6, 4)
		dc.DrawLine(marginLeft, y, float64(width-marginRight), y)
		dc.Stroke()
		dc.SetDash()
		dc.DrawStringAnchored(fmt.Sprintf("%s %.6g", lvl.label, lvl.price),
			float64(width-marginRight)-4, y-6, 1, 0)
	}

	// Title.
	dc.SetColor(colorText)
	dc.DrawStringAnchored(fmt.Sprintf("%s  %s", in.Symbol, in.Side), float64(width)/2, 20, 0.5, 0.5)
}
