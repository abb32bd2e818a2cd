// Package vfs is the in-memory filesystem tree presented to FUSE: an inode
// table bijecting each resident provider Item to a stable numeric inode, a
// node tree for path resolution, and the bookkeeping needed to stage a
// write-then-upload before an Item exists on the backend at all.
package vfs

import (
	"os"
	"sync"
	"time"

	"github.com/cloudkit/cloudkit"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Inode is the attribute-holding half of a resident filesystem entry: the
// provider Item it mirrors, plus the fuse.Attr wire representation derived
// from it. Every Node sharing an Inode is a hard link to the same Item.
type Inode struct {
	item     cloudkit.Item
	fuseAttr fuse.Attr
	hLinks   []*Node
	sLinks   []*Node
	mu       sync.RWMutex
}

// NewInode builds an Inode from a provider Item and the fuse ino number
// this session assigned it.
func NewInode(ino uint64, item cloudkit.Item) *Inode {
	return &Inode{
		item:     item,
		fuseAttr: attrFromItem(ino, item),
		hLinks:   make([]*Node, 0, 1),
		sLinks:   make([]*Node, 0),
	}
}

// attrFromItem computes the fuse.Attr wire representation of a provider
// Item. Providers rarely report uid/gid/mode; this process's identity and a
// conservative rwxr-xr-x/rw-r--r-- pair fill the gap, matching the
// teacher's newDefaultAttr.
func attrFromItem(ino uint64, item cloudkit.Item) fuse.Attr {
	now := time.Now()
	mtime := now
	if item.Timestamp != nil {
		mtime = *item.Timestamp
	}

	mode := uint32(0o644) | fuse.S_IFREG
	var size uint64
	if item.Size != nil {
		size = *item.Size
	}
	if item.Type == cloudkit.FileTypeDirectory {
		mode = uint32(0o755) | fuse.S_IFDIR
		size = 0
	}

	return fuse.Attr{
		Ino:   ino,
		Size:  size,
		Nlink: 1,
		Mode:  mode,
		Owner: fuse.Owner{
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		},
		Atime:   uint64(now.Unix()),
		Mtime:   uint64(mtime.Unix()),
		Ctime:   uint64(mtime.Unix()),
		Blksize: 4096,
	}
}

// Item returns a thread-safe copy of the inode's mirrored provider Item.
func (n *Inode) Item() cloudkit.Item {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.item
}

// RefreshItem replaces the mirrored Item (e.g. after a GetItemData refresh
// or a rename/move response) and recomputes the fuse attributes to match.
func (n *Inode) RefreshItem(item cloudkit.Item) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.item = item
	n.fuseAttr = attrFromItem(n.fuseAttr.Ino, item)
}

// addHardLinkLocked appends a new hard link to the inode.
// Caller must hold n.mu.Lock().
func (n *Inode) addHardLinkLocked(node *Node) {
	n.hLinks = append(n.hLinks, node)
	n.fuseAttr.Nlink++
}

// AddHardLink adds a new Node, including the initial, as a hard link.
func (n *Inode) AddHardLink(node *Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.addHardLinkLocked(node)
}

// CopyAttr returns a thread-safe copy of the inode's fuse attributes.
func (n *Inode) CopyAttr() fuse.Attr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fuseAttr
}

// SetSize updates the cached size, used after a write extends a
// pending-upload's CreatedNode before any Item exists to refresh from.
func (n *Inode) SetSize(size uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fuseAttr.Size = size
	n.item.Size = &size
}
