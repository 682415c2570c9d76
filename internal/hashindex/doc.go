/*
Package hashindex stores perceptual hashes of library videos in SQLite.

Each row keys a library-relative path to a 64-bit fingerprint, the algorithm
that produced it, and the identity of the file at hashing time: size, mtime
and a BLAKE3 signature over the size and the first and last 64 KiB. An entry
is current only while all three still match the file on disk; a rename that
keeps mtime, or an in-place edit that keeps size, is still caught by the
signature.

The phash worker calls Current before doing any ffmpeg work and writes a new
entry with Put. The duplicate finder reads entries with List.
*/
package hashindex
