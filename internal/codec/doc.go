// Package codec implements the decode side of the coders that appear in 7z
// folders. Each coder is identified by a Method and decoded through a
// Registry, which validates input and output stream counts and the exact
// output sizes declared by the archive header.
//
// Compression codecs are thin adapters over the ecosystem decoders
// (ulikunitz/xz for LZMA and LZMA2, klauspost/compress for Deflate and
// Zstandard, pierrec/lz4 for LZ4). Branch converters (BCJ, BCJ2), the Delta
// filter and 7zAES are implemented here.
package codec
