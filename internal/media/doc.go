// Package media holds the image helpers the artifact workers share: decoding
// frames piped out of ffmpeg, composing frame grids, encoding, and loading
// cover images (through libvips when it is running).
package media
