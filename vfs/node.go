package vfs

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// Node is one path-tree entry. Multiple Nodes may share an Inode (hard
// links); a Node's own identity is its position in the tree, not its data.
type Node struct {
	name     string                    // last path component; protected by mu
	parent   *Node                     // protected by mu
	mu       sync.RWMutex              // protects the fields above
	nodeID   atomic.Uint64             // FUSE-session registry ID; 0 if not yet allocated
	children *xsync.Map[string, *Node] // thread-safe map of child nodes by name
	isDel    atomic.Bool
	listed   atomic.Bool // whether a full provider listing has populated children
	*Inode
}

// NewNode creates a new Node and adds it as a hard link on inode.
//
// The caller is responsible for adding the returned Node as a child of its
// intended parent.
func NewNode(name string, inode *Inode) *Node {
	node := &Node{
		Inode:    inode,
		name:     name,
		children: xsync.NewMap[string, *Node](),
	}
	inode.AddHardLink(node)
	return node
}

// NodeID returns the node's FUSE registry ID; 0 if not yet allocated.
func (n *Node) NodeID() uint64 {
	return n.nodeID.Load()
}

// Path returns the node's path relative to the tree root ("" for root
// itself). Returns an error, along with the path resolved so far, if the
// node or an ancestor is detached or deleted.
func (n *Node) Path() (string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pathLocked()
}

func (n *Node) pathLocked() (string, error) {
	if n.isRootLocked() {
		return "", nil
	}
	if n.isDel.Load() {
		return "", fmt.Errorf("deleted node: %s", n.name)
	}
	p := n.parent
	if p == nil {
		return n.name, fmt.Errorf("detached node: %s", n.name)
	}

	pPath, err := p.Path()
	if pPath == "" {
		return pPath + n.name, err
	}
	return pPath + "/" + n.name, err
}

// AddChild adds a child node and sets the child's parent to this node.
func (n *Node) AddChild(child *Node) {
	n.children.Store(child.name, child)

	child.mu.Lock()
	defer child.mu.Unlock()
	child.parent = n
}

// GetChild returns a child node. Safe to call while n is already locked.
func (n *Node) GetChild(name string) (child *Node, ok bool) {
	return n.children.Load(name)
}

// RemoveChild detaches a child by name; reports whether one existed.
func (n *Node) RemoveChild(name string) bool {
	if child, exists := n.children.LoadAndDelete(name); exists {
		child.mu.Lock()
		defer child.mu.Unlock()
		child.parent = nil
		return true
	}
	return false
}

func (n *Node) nameLocked() string {
	return n.name
}

// Name returns the node's current name.
func (n *Node) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.nameLocked()
}

// SetName renames the node in place; the caller is responsible for
// re-keying it in the parent's children map.
func (n *Node) SetName(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.name = name
}

// IsDel reports whether Del has been called.
func (n *Node) IsDel() bool {
	return n.isDel.Load()
}

// Del marks the node deleted; existing path lookups through it will fail.
func (n *Node) Del() {
	n.isDel.Store(true)
}

// IsRoot reports whether this Node is the tree root.
func (n *Node) IsRoot() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.isRootLocked()
}

func (n *Node) isRootLocked() bool {
	if n.parent != nil {
		return false
	}
	n.Inode.mu.RLock()
	defer n.Inode.mu.RUnlock()
	return n.fuseAttr.Ino == fuse.FUSE_ROOT_ID
}

// IsListed reports whether a full provider directory listing has already
// populated this node's children.
func (n *Node) IsListed() bool {
	return n.listed.Load()
}

// MarkListed records that a full provider directory listing has completed.
func (n *Node) MarkListed() {
	n.listed.Store(true)
}

// InvalidateListing forces the next EnsureListed call to re-fetch from the
// provider, e.g. after this node's own mkdir/rmdir/create changed its
// children out from under the cache.
func (n *Node) InvalidateListing() {
	n.listed.Store(false)
}
