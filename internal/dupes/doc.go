// Package dupes finds near-duplicate videos by comparing 64-bit perceptual
// hashes. Two files are similar when their Hamming distance is within the
// configured threshold; similar files are merged transitively into clusters
// with union-find, so A and C share a cluster whenever both resemble B.
package dupes
