package video

import "github.com/valerio/go-jeebie/jeebie/bit"

// TileRow holds one 8-pixel row of a tile, stored as the two bit-planes the
// DMG uses: Low contributes bit 0 of each pixel's 2-bit color, High bit 1.
// Bit 7 of each byte is the leftmost pixel, bit 0 the rightmost.
//
// Reference: https://gbdev.io/pandocs/Tile_Data.html
type TileRow struct {
	Low  byte
	High byte
}

func (t TileRow) pixelAt(bitIndex uint8) int {
	index := 0
	if bit.IsSet(bitIndex, t.Low) {
		index |= 1
	}
	if bit.IsSet(bitIndex, t.High) {
		index |= 2
	}
	return index
}

// GetPixel returns the color index (0-3) at pixelX (0-7, 0 is leftmost).
func (t TileRow) GetPixel(pixelX int) int {
	return t.pixelAt(uint8(7 - pixelX))
}

// GetPixelFlipped returns the color index as if the row were drawn with the
// sprite X-flip attribute set, i.e. with pixelX counted from the right.
func (t TileRow) GetPixelFlipped(pixelX int) int {
	return t.pixelAt(uint8(pixelX))
}

// Tile is a complete 8x8 DMG tile: 8 rows of 2 bytes each, 16 bytes total.
type Tile struct {
	Index int // VRAM tile slot (0-383), unset unless fetched via FetchTileWithIndex
	Rows  [8]TileRow
}

// GetPixel returns the color index (0-3) at (x, y), or 0 if out of range.
func (t *Tile) GetPixel(x, y int) int {
	if y < 0 || y >= 8 || x < 0 || x >= 8 {
		return 0
	}
	return t.Rows[y].GetPixel(x)
}

// Pixels renders the tile as an 8x8 grid of shade indices, for debug display.
func (t *Tile) Pixels() [8][8]GBColor {
	var pixels [8][8]GBColor
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			pixels[y][x] = GBColor(t.Rows[y].GetPixel(x))
		}
	}
	return pixels
}

// MemoryReader is the minimal read access FetchTile needs.
type MemoryReader interface {
	Read(addr uint16) byte
}

// FetchTile reads the 16-byte tile at baseAddr. Its Index is left unset;
// use FetchTileWithIndex when the caller needs to track VRAM slot number.
func FetchTile(memory MemoryReader, baseAddr uint16) Tile {
	var tile Tile
	for row := 0; row < 8; row++ {
		addr := baseAddr + uint16(row*2)
		tile.Rows[row] = TileRow{
			Low:  memory.Read(addr),
			High: memory.Read(addr + 1),
		}
	}
	return tile
}

// FetchTileWithIndex is FetchTile plus the tile's VRAM slot number.
func FetchTileWithIndex(memory MemoryReader, baseAddr uint16, index int) Tile {
	tile := FetchTile(memory, baseAddr)
	tile.Index = index
	return tile
}
