// Package icy implements the ICY (Shoutcast) stream conventions used by the
// radio's listeners:
//   - In-band metadata: a StreamTitle block after every metaint audio bytes, for players that ask for it with "Icy-MetaData: 1"
//   - Metadata stripping: a reader that returns only the audio bytes of such a stream and reports title changes
//   - Playlists: .pls and .m3u files pointing players at the stream, and parsers that resolve them back to the stream URL
//
// The server only writes. Reader, ParsePLS and ParseM3U are the client halves
// of the same formats; the radio's tests use them to check what it serves.
package icy
