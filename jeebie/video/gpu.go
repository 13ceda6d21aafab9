package video

import (
	"fmt"
	"log/slog"

	"github.com/valerio/go-jeebie/jeebie/addr"
	"github.com/valerio/go-jeebie/jeebie/bit"
	"github.com/valerio/go-jeebie/jeebie/memory"
)

// Mode identifies which of the four PPU states drives the current cycle
// budget. The numeric values match STAT register bits 1-0.
type Mode int

const (
	HBlank Mode = 0
	VBlank Mode = 1
	OAMScan Mode = 2
	VRAMRead Mode = 3
)

// Per-scanline cycle budget: 80 (OAM scan) + 172 (VRAM read) + 204 (HBlank).
const (
	oamScanCycles  = 80
	vramReadCycles = 172
	hblankCycles   = 204
	scanlineCycles = oamScanCycles + vramReadCycles + hblankCycles

	visibleScanlines = 144
	vblankScanlines  = 10
	totalScanlines   = visibleScanlines + vblankScanlines
	frameCycles      = scanlineCycles * totalScanlines
)

// GPU drives the LCD mode clock (OAM-scan -> VRAM-read -> HBlank, repeated
// for 144 visible lines, followed by a 10-line VBlank) and renders each
// scanline once, on entry to VRAM-read.
type GPU struct {
	memory      *memory.MMU
	framebuffer *FrameBuffer

	// backgroundIndex holds the raw (pre-palette) 2-bit color index written
	// by the background/window pass for each framebuffer pixel. Sprite
	// drawing consults it to resolve the BG-priority attribute.
	backgroundIndex []byte

	mode         Mode
	line         int // LY, 0-153
	clock        int // cycles elapsed in the current mode
	vblankClock  int // cycles elapsed in the current VBlank scanline
	vblankLine   int // which of the 10 VBlank lines we're on
	renderedLine bool
	windowLine   int // internal window line counter, 0-143
}

func NewGpu(mem *memory.MMU) *GPU {
	gpu := &GPU{
		framebuffer:     NewFrameBuffer(),
		memory:          mem,
		mode:            VBlank,
		backgroundIndex: make([]byte, FramebufferSize),
		line:            visibleScanlines,
	}

	lcdc := mem.Read(addr.LCDC)
	bgp := mem.Read(addr.BGP)
	slog.Debug("GPU initialized", "LCDC", fmt.Sprintf("0x%02X", lcdc), "LCD_enabled", (lcdc&0x80) != 0, "BGP", fmt.Sprintf("0x%02X", bgp))

	return gpu
}

func (g *GPU) GetFrameBuffer() *FrameBuffer {
	return g.framebuffer
}

// Tick advances the mode clock by cycles, rendering a scanline whenever the
// clock transitions into VRAMRead and raising VBlank/STAT interrupts on mode
// and LY/LYC transitions per the rules enabled in STAT bits 3-6.
func (g *GPU) Tick(cycles int) {
	g.clock += cycles

	switch g.mode {
	case OAMScan:
		g.tickOAMScan()
	case VRAMRead:
		g.tickVRAMRead()
	case HBlank:
		g.tickHBlank()
	case VBlank:
		g.tickVBlank(cycles)
	}

	if g.clock >= frameCycles {
		g.clock -= frameCycles
	}
}

func (g *GPU) tickOAMScan() {
	if g.clock < oamScanCycles {
		return
	}
	g.clock -= oamScanCycles
	g.renderedLine = false
	g.enterMode(VRAMRead)
}

func (g *GPU) tickVRAMRead() {
	if !g.renderedLine {
		if g.readLCDCVariable(lcdDisplayEnable) == 1 {
			g.drawScanline()
		}
		g.renderedLine = true
	}

	if g.clock < vramReadCycles {
		return
	}
	g.clock -= vramReadCycles
	g.enterMode(HBlank)
}

func (g *GPU) tickHBlank() {
	if g.clock < hblankCycles {
		return
	}
	g.clock -= hblankCycles
	g.setLY(g.line + 1)

	if g.line == visibleScanlines {
		g.vblankLine = 0
		g.vblankClock = g.clock
		g.windowLine = 0
		g.enterMode(VBlank)
		g.memory.RequestInterrupt(addr.VBlankInterrupt)
		return
	}
	g.enterMode(OAMScan)
}

func (g *GPU) tickVBlank(cycles int) {
	g.vblankClock += cycles

	if g.vblankClock >= scanlineCycles {
		g.vblankClock -= scanlineCycles
		g.vblankLine++
		if g.vblankLine < vblankScanlines {
			g.setLY(g.line + 1)
		}
	}

	if g.line == totalScanlines-1 && g.vblankClock >= hblankCycles {
		g.setLY(0)
	}

	if g.clock >= vblankScanlines*scanlineCycles {
		g.clock -= vblankScanlines * scanlineCycles
		g.enterMode(OAMScan)
	}
}

// enterMode updates the PPU mode, mirrors it into STAT bits 1-0, and raises
// the STAT interrupt if its source is enabled for the entered mode.
func (g *GPU) enterMode(mode Mode) {
	g.mode = mode
	stat := g.memory.Read(addr.STAT)
	g.memory.Write(addr.STAT, stat&0xFC|byte(mode))

	var source statFlag
	switch mode {
	case OAMScan:
		source = statOamIrq
	case VBlank:
		source = statVblankIrq
	case HBlank:
		source = statHblankIrq
	default:
		return
	}
	if g.memory.ReadBit(uint8(source), addr.STAT) {
		g.memory.RequestInterrupt(addr.LCDSTATInterrupt)
	}
}

// setLY updates LY and re-evaluates the LY==LYC coincidence, which can raise
// a STAT interrupt independent of the mode transition.
func (g *GPU) setLY(line int) {
	g.line = line
	g.memory.Write(addr.LY, byte(line))

	ly := g.memory.Read(addr.LY)
	lyc := g.memory.Read(addr.LYC)
	stat := g.memory.Read(addr.STAT)

	if ly == lyc {
		stat = bit.Set(statLycCondition, stat)
		if bit.IsSet(uint8(statLycIrq), stat) {
			g.memory.RequestInterrupt(addr.LCDSTATInterrupt)
		}
	} else {
		stat = bit.Reset(statLycCondition, stat)
	}
	g.memory.Write(addr.STAT, stat)
}

// drawScanline renders background, window and sprites for the current line,
// in that priority order, or blanks the line if the LCD is off.
func (g *GPU) drawScanline() {
	if g.readLCDCVariable(lcdDisplayEnable) == 0 {
		lineStart := g.line * FramebufferWidth
		for i := 0; i < FramebufferWidth; i++ {
			g.framebuffer.buffer[lineStart+i] = 0xFFFFFFFF
		}
		return
	}

	g.drawBackground()
	g.drawWindow()
	g.drawSprites()
}

// bgWindowTileAddr resolves the VRAM address of the tile named by
// tileValue, honoring LCDC.4's signed/unsigned tile-data addressing.
func bgWindowTileAddr(tileValue byte, signed bool) uint16 {
	if signed {
		return uint16(int(addr.TileData2) + int(int8(tileValue))*16)
	}
	return addr.TileData0 + uint16(tileValue)*16
}

func (g *GPU) drawBackground() {
	lineStart := g.line * FramebufferWidth

	if g.readLCDCVariable(bgDisplay) == 0 {
		color0 := uint32(ByteToColor(g.memory.Read(addr.BGP) & 0x03))
		for i := range FramebufferWidth {
			g.framebuffer.buffer[lineStart+i] = color0
			g.backgroundIndex[lineStart+i] = 0
		}
		return
	}

	signed := g.readLCDCVariable(bgWindowTileDataSelect) == 0
	tileMapAddr := addr.TileMap1
	if g.readLCDCVariable(bgTileMapDisplaySelect) == 0 {
		tileMapAddr = addr.TileMap0
	}

	scx := g.memory.Read(addr.SCX)
	scy := g.memory.Read(addr.SCY)
	bgY := (g.line + int(scy)) & 0xFF
	mapRow := (bgY / 8) * 32
	tileRow := bgY % 8

	for x := 0; x < FramebufferWidth; x++ {
		bgX := (x + int(scx)) & 0xFF
		tileValue := g.memory.Read(tileMapAddr + uint16(mapRow+bgX/8))

		tile := FetchTile(g.memory, bgWindowTileAddr(tileValue, signed))
		index := tile.Rows[tileRow].GetPixel(bgX % 8)

		pos := lineStart + x
		g.framebuffer.buffer[pos] = uint32(g.resolveColor(addr.BGP, index))
		g.backgroundIndex[pos] = byte(index)
	}
}

func (g *GPU) drawWindow() {
	if g.windowLine > 143 || g.readLCDCVariable(windowDisplayEnable) == 0 {
		return
	}

	wx := int(g.memory.Read(addr.WX)) - 7
	wy := int(g.memory.Read(addr.WY))
	if wx > 159 || wy > 143 || wy > g.line {
		return
	}

	signed := g.readLCDCVariable(bgWindowTileDataSelect) == 0
	tileMapAddr := addr.TileMap1
	if g.readLCDCVariable(windowTileMapSelect) == 0 {
		tileMapAddr = addr.TileMap0
	}

	mapRow := (g.windowLine / 8) * 32
	tileRow := g.windowLine % 8
	lineStart := g.line * FramebufferWidth

	tilesAcross := (FramebufferWidth - wx + 7) / 8
	if tilesAcross > 32 {
		tilesAcross = 32
	}

	for tx := 0; tx < tilesAcross; tx++ {
		tileValue := g.memory.Read(tileMapAddr + uint16(mapRow+tx))
		tile := FetchTile(g.memory, bgWindowTileAddr(tileValue, signed))

		for px := 0; px < 8; px++ {
			pos := wx + tx*8 + px
			if pos < wx || pos >= FramebufferWidth {
				continue
			}

			index := tile.Rows[tileRow].GetPixel(px)
			bufPos := lineStart + pos
			g.framebuffer.buffer[bufPos] = uint32(g.resolveColor(addr.BGP, index))
			g.backgroundIndex[bufPos] = byte(index)
		}
	}

	g.windowLine++
}

// resolveColor maps a raw 2-bit color index through the palette register
// (BGP/OBP0/OBP1) to a displayable shade.
func (g *GPU) resolveColor(paletteAddr uint16, index int) GBColor {
	palette := g.memory.Read(paletteAddr)
	shade := (palette >> (index * 2)) & 0x03
	return ByteToColor(shade)
}

// drawSprites scans OAM for sprites on the current line and draws the
// pixels each one won after cross-sprite priority resolution. Scanning and
// priority are delegated to OAM, which the debug tooling's sprite inspector
// also uses, so both agree on ownership by construction.
func (g *GPU) drawSprites() {
	if g.readLCDCVariable(spriteDisplayEnable) != 1 {
		return
	}

	oam := NewOAM(g.memory)
	lineStart := g.line * FramebufferWidth
	for _, sprite := range oam.GetSpritesForScanline(g.line) {
		g.drawSprite(sprite, lineStart)
	}
}

func (g *GPU) drawSprite(sprite Sprite, lineStart int) {
	if !sprite.HasPriorityForAnyPixel() {
		return
	}

	paletteAddr := spritePaletteAddr(sprite)
	tileRow := spriteTileRow(g.memory, sprite, g.line)

	for x := 0; x < 8; x++ {
		if !sprite.HasPriorityForPixel(x) {
			continue
		}

		index := spritePixelIndex(tileRow, sprite, x)
		if index == 0 {
			continue // transparent
		}

		pos := lineStart + int(sprite.X) + x
		if sprite.BehindBG && g.backgroundIndex[pos] != 0 {
			continue // background wins: sprite is behind a non-zero BG pixel
		}

		g.framebuffer.buffer[pos] = uint32(g.resolveColor(paletteAddr, index))
	}
}

func spritePaletteAddr(sprite Sprite) uint16 {
	if sprite.PaletteOBP1 {
		return addr.OBP1
	}
	return addr.OBP0
}

// spriteTileRow fetches the 8-pixel tile row of sprite that covers the
// given absolute scanline, accounting for Y-flip and 8x16 sprite mode.
func spriteTileRow(mem MemoryReader, sprite Sprite, line int) TileRow {
	row := line - int(sprite.Y)
	if sprite.FlipY {
		row = sprite.Height - 1 - row
	}

	tileMask := 0xFF
	if sprite.Height == 16 {
		tileMask = 0xFE
	}
	tileBase := addr.TileData0 + uint16(int(sprite.TileIndex)&tileMask)*16
	if row >= 8 {
		tileBase += 16
		row -= 8
	}

	return FetchTile(mem, tileBase).Rows[row]
}

func spritePixelIndex(tileRow TileRow, sprite Sprite, x int) int {
	if sprite.FlipX {
		return tileRow.GetPixelFlipped(x)
	}
	return tileRow.GetPixel(x)
}

// DebugLayers renders the full 32x32 background and window tilemaps, plus
// every currently-visible sprite, into separate framebuffers for the debug
// layer inspector. Unlike drawScanline it isn't scanline-incremental and
// isn't part of the real rendering path; it's recomputed on demand whenever
// the debug window is open.
func (g *GPU) DebugLayers() *RenderLayers {
	layers := NewRenderLayers()
	layers.Enabled = true

	signed := g.readLCDCVariable(bgWindowTileDataSelect) == 0

	bgTileMapAddr := addr.TileMap1
	if g.readLCDCVariable(bgTileMapDisplaySelect) == 0 {
		bgTileMapAddr = addr.TileMap0
	}
	g.renderTilemapLayer(layers.Background, bgTileMapAddr, signed)

	winTileMapAddr := addr.TileMap1
	if g.readLCDCVariable(windowTileMapSelect) == 0 {
		winTileMapAddr = addr.TileMap0
	}
	g.renderTilemapLayer(layers.Window, winTileMapAddr, signed)

	g.renderSpriteLayer(layers.Sprites)

	return layers
}

func (g *GPU) renderTilemapLayer(fb *LayerFramebuffer, tileMapAddr uint16, signed bool) {
	for ty := 0; ty < 32; ty++ {
		for tx := 0; tx < 32; tx++ {
			tileValue := g.memory.Read(tileMapAddr + uint16(ty*32+tx))
			tile := FetchTile(g.memory, bgWindowTileAddr(tileValue, signed))

			for py := 0; py < 8; py++ {
				for px := 0; px < 8; px++ {
					index := tile.Rows[py].GetPixel(px)
					x, y := tx*8+px, ty*8+py
					fb.Buffer[y*fb.Width+x] = uint32(g.resolveColor(addr.BGP, index))
				}
			}
		}
	}
}

// renderSpriteLayer draws every sprite visible on any scanline into fb,
// ignoring BG-priority occlusion (the debug view shows the full sprite
// layer as-is, not what would survive compositing).
func (g *GPU) renderSpriteLayer(fb *LayerFramebuffer) {
	oam := NewOAM(g.memory)
	for line := 0; line < FramebufferHeight; line++ {
		for _, sprite := range oam.GetSpritesForScanline(line) {
			if !sprite.HasPriorityForAnyPixel() {
				continue
			}
			paletteAddr := spritePaletteAddr(sprite)
			tileRow := spriteTileRow(g.memory, sprite, line)

			for x := 0; x < 8; x++ {
				if !sprite.HasPriorityForPixel(x) {
					continue
				}
				index := spritePixelIndex(tileRow, sprite, x)
				if index == 0 {
					continue
				}
				px := int(sprite.X) + x
				if px < 0 || px >= fb.Width {
					continue
				}
				fb.Buffer[line*fb.Width+px] = uint32(g.resolveColor(paletteAddr, index))
			}
		}
	}
}

// STAT register bit layout.
//
//	Bit 7 - unused
//	Bit 6 - LYC==LY interrupt source enable
//	Bit 5 - OAM-scan interrupt source enable
//	Bit 4 - VBlank interrupt source enable
//	Bit 3 - HBlank interrupt source enable
//	Bit 2 - LYC==LY coincidence flag (read-only)
//	Bit 1,0 - current mode
type statFlag uint8

const (
	statLycIrq       statFlag = 6
	statOamIrq                = 5
	statVblankIrq             = 4
	statHblankIrq             = 3
	statLycCondition          = 2
)

// LCDC register bit layout.
//
//	Bit 7 - LCD & PPU enable
//	Bit 6 - window tile map select
//	Bit 5 - window enable
//	Bit 4 - BG/window tile data select
//	Bit 3 - BG tile map select
//	Bit 2 - OBJ size (0=8x8, 1=8x16)
//	Bit 1 - OBJ enable
//	Bit 0 - BG/window enable (DMG)
type lcdcFlag uint8

const (
	lcdDisplayEnable       lcdcFlag = 7
	windowTileMapSelect             = 6
	windowDisplayEnable             = 5
	bgWindowTileDataSelect          = 4
	bgTileMapDisplaySelect          = 3
	spriteSize                      = 2
	spriteDisplayEnable             = 1
	bgDisplay                       = 0
)

func (g *GPU) readLCDCVariable(flag lcdcFlag) byte {
	if bit.IsSet(uint8(flag), g.memory.Read(addr.LCDC)) {
		return 1
	}
	return 0
}
