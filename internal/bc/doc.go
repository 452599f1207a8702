// Package bc encodes and decodes the BC1-BC7 block-compressed texture
// formats.
//
// Every format works on 4x4 pixel blocks. The encoders favor a simple,
// predictable fit (bounding box with a small inset, nearest palette index,
// optional least-squares refinement) over compressor-grade search:
//
//	BC1  8 bytes  RGB565 endpoints, 2-bit indices
//	BC2 16 bytes  4-bit explicit alpha + BC1 color
//	BC3 16 bytes  interpolated alpha + BC1 color
//	BC4  8 bytes  one interpolated channel
//	BC5 16 bytes  two interpolated channels
//	BC6H 16 bytes mode 11: 10-bit unsigned half endpoints, 4-bit indices
//	BC7 16 bytes  mode 6: 7.7.7.7+p endpoints, 4-bit indices
//
// The decoders implement what the encoders emit plus the alternate BC1
// and BC3/BC4 palette modes. BC6H and BC7 blocks in other modes decode to
// zero.
package bc
