package video

import "math/rand"

// GBColor is an RGBA8888 shade, one of the four values a DMG palette can
// resolve a 2-bit pixel index to.
type GBColor uint32

const (
	FramebufferWidth  = 160
	FramebufferHeight = 144
	FramebufferSize   = FramebufferWidth * FramebufferHeight
)

const (
	BlackColor     GBColor = 0x000000FF
	DarkGreyColor  GBColor = 0x4C4C4CFF
	LightGreyColor GBColor = 0x989898FF
	WhiteColor     GBColor = 0xFFFFFFFF
)

// shadesByIndex orders the four DMG shades from lightest to darkest, the
// same order palette registers (BGP/OBP0/OBP1) use for their 2-bit indices.
var shadesByIndex = [4]GBColor{WhiteColor, LightGreyColor, DarkGreyColor, BlackColor}

// ByteToColor maps a 2-bit shade index (the output of a BGP/OBP0/OBP1
// lookup) to its RGBA color. Values outside 0-3 return transparent black.
func ByteToColor(value byte) GBColor {
	if value > 3 {
		return 0
	}
	return shadesByIndex[value]
}

// FrameBuffer holds one rendered 160x144 DMG frame as RGBA8888 pixels.
type FrameBuffer struct {
	width  uint
	height uint
	buffer []uint32
}

func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{
		width:  FramebufferWidth,
		height: FramebufferHeight,
		buffer: make([]uint32, FramebufferSize),
	}
}

func (fb FrameBuffer) GetPixel(x, y uint) uint32 {
	return fb.buffer[y*fb.width+x]
}

func (fb *FrameBuffer) SetPixel(x, y uint, color GBColor) {
	fb.buffer[y*fb.width+x] = uint32(color)
}

// ToSlice exposes the raw pixel buffer, e.g. for a backend to blit directly.
func (fb *FrameBuffer) ToSlice() []uint32 {
	return fb.buffer
}

// Clear blanks the framebuffer to transparent black.
func (fb *FrameBuffer) Clear() {
	for i := range fb.buffer {
		fb.buffer[i] = 0
	}
}

// DrawNoise fills the framebuffer with a random DMG-palette pattern, used by
// the test-pattern renderer when no ROM is loaded.
func (fb *FrameBuffer) DrawNoise() {
	for i := range fb.buffer {
		fb.buffer[i] = uint32(shadesByIndex[rand.Uint32()%4])
	}
}

// ToBinaryData serializes the framebuffer as big-endian RGBA bytes, for
// byte-for-byte comparison against golden frame snapshots.
func (fb *FrameBuffer) ToBinaryData() []byte {
	data := make([]byte, len(fb.buffer)*4)
	for i, pixel := range fb.buffer {
		data[i*4] = byte(pixel >> 24)
		data[i*4+1] = byte(pixel >> 16)
		data[i*4+2] = byte(pixel >> 8)
		data[i*4+3] = byte(pixel)
	}
	return data
}

// ToGrayscale reduces the framebuffer to one grey-level byte per pixel,
// 0 for black up to 3 for white, for comparisons that don't care about the
// exact RGBA encoding.
func (fb *FrameBuffer) ToGrayscale() []byte {
	data := make([]byte, len(fb.buffer))
	for i, pixel := range fb.buffer {
		switch GBColor(pixel) {
		case DarkGreyColor:
			data[i] = 1
		case LightGreyColor:
			data[i] = 2
		case WhiteColor:
			data[i] = 3
		default:
			data[i] = 0
		}
	}
	return data
}
