// Package inodes reserves the kernel-facing inode numbers for the
// synthetic control surface (.dibs and its children).
//
// Ordinary paths never go through this package: go-fuse's LoopbackNode
// assigns each of them a StableAttr built from the real backing
// stat() inode number, and the node tree itself (parent/child Inode
// links) is the path<->inode resolution mechanism, so there is no
// separate allocator or lookup table to keep in sync with the backing
// filesystem. This package only carves out a small range at the top of
// the 64-bit space for entries that have no backing inode at all.
package inodes
