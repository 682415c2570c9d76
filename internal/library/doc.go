/*
Package library lists the videos in the media directory.

The walk is split the same way as the indexer it descends from: a single
goroutine walks the tree and a small pool stats the entries, which keeps NFS
mounts responsive. Results are sorted by library-relative path, so coverage
scans see files in a stable order from one poll to the next.
*/
package library
