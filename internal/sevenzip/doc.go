// Package sevenzip reads 7z archives.
//
// Open parses the signature header and the header database (decoding it
// first when it is stored compressed or encrypted), resolves which folder
// and substream hold each file, and answers metadata queries without
// decoding any file data. Folder contents are decoded on the first read of
// any file they contain and cached, so reading every file of a solid block
// decodes it once.
//
// Decoding is delegated to a Decoder, by default codec.Default(). Folders
// that contain a 7zAES coder need a password: without one reads fail with
// ErrNoPassword, and a password that produces undecodable data or a CRC
// mismatch fails with ErrWrongPassword.
package sevenzip
