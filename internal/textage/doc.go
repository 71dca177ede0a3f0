// Package textage retrieves and parses the three Textage score tables that
// feed the song master build:
//
//   - titletbl.js: version, textage id, genre, artist, title per song
//   - datatbl.js:  note counts per chart slot
//   - actbl.js:    availability bit flags and hex level digits per chart slot
//
// The tables are published as JavaScript object literals in legacy Japanese
// encodings. Fetching, decoding, and parsing are kept separate so the build
// pipeline can hash the raw bytes for change detection before committing to a
// full parse.
package textage
