package vfs

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/cloudkit/cloudkit"
	"github.com/cloudkit/cloudkit/config"
	"github.com/cloudkit/cloudkit/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hashicorp/go-multierror"
	"github.com/oklog/run"
	"github.com/puzpuzpuz/xsync/v4"
)

// Tree is the in-memory filesystem a single mount presents: a node tree for
// FUSE path resolution, a registry from FUSE-session node IDs to Nodes, an
// index from provider Item ID to the Inode mirroring it (so a second
// listing of the same directory reuses inodes instead of duplicating
// them), and the request/pending-upload bookkeeping needed to run cleanly
// under concurrent FUSE ops.
type Tree struct {
	cfg      *config.Config
	provider cloudkit.Provider

	root         *Node
	lastIno      atomic.Uint64
	lastNodeID   atomic.Uint64
	nodeRegistry *xsync.Map[uint64, *Node]
	itemIndex    *xsync.Map[string, *Inode] // provider Item.ID -> Inode

	created  *xsync.Map[uint64, *CreatedNode] // nodeID -> pending upload
	Requests *RequestBookkeeper
}

// NewTree builds an empty tree rooted at the provider's root directory
// placeholder; the actual root Item is populated lazily on first lookup
// (see EnsureRoot) so construction never blocks on network I/O.
func NewTree(cfg *config.Config, provider cloudkit.Provider) *Tree {
	rootItem := cloudkit.Item{ID: "", Filename: "", Type: cloudkit.FileTypeDirectory}
	rootInode := NewInode(fuse.FUSE_ROOT_ID, rootItem)
	rootNode := NewNode("", rootInode)
	rootNode.nodeID.Store(fuse.FUSE_ROOT_ID)

	t := &Tree{
		cfg:          cfg,
		provider:     provider,
		root:         rootNode,
		nodeRegistry: xsync.NewMap[uint64, *Node](),
		itemIndex:    xsync.NewMap[string, *Inode](),
		created:      xsync.NewMap[uint64, *CreatedNode](),
		Requests:     NewRequestBookkeeper(0),
	}
	t.lastIno.Store(fuse.FUSE_ROOT_ID)
	t.lastNodeID.Store(fuse.FUSE_ROOT_ID)
	t.nodeRegistry.Store(fuse.FUSE_ROOT_ID, rootNode)
	t.itemIndex.Store(rootItem.ID, rootInode)
	return t
}

// Provider returns the tree's backing provider, for callers (fusebridge)
// that need to issue operations Tree itself doesn't wrap.
func (t *Tree) Provider() cloudkit.Provider {
	return t.provider
}

// Config returns the tree's mount configuration.
func (t *Tree) Config() *config.Config {
	return t.cfg
}

// RootCtx returns a locked context for the tree root.
func (t *Tree) RootCtx() *NodeContext {
	return NewNodeContext(t.root)
}

// EnsureRoot refreshes the root Item from the provider the first time it's
// needed; a zero-value Item.ID from NewTree signals "not yet fetched".
func (t *Tree) EnsureRoot(ctx context.Context) error {
	if t.root.Item().ID != "" {
		return nil
	}
	res := t.provider.RootDirectory(ctx).Result(ctx)
	if !res.IsOk() {
		return res.Err
	}
	t.root.RefreshItem(res.Value)
	t.itemIndex.Delete("")
	t.itemIndex.Store(res.Value.ID, t.root.Inode)
	return nil
}

// UpsertChild finds-or-creates the child node mirroring item under parent,
// reusing the existing Inode (via itemIndex) if this Item was already seen
// under a different listing.
func (t *Tree) UpsertChild(parent *Node, item cloudkit.Item) *Node {
	name := sanitize(item.Filename)

	if existing, ok := parent.GetChild(name); ok {
		existing.RefreshItem(item)
		return existing
	}

	inode, ok := t.itemIndex.Load(item.ID)
	if !ok {
		inode = NewInode(t.lastIno.Add(1), item)
		t.itemIndex.Store(item.ID, inode)
	} else {
		inode.RefreshItem(item)
	}

	node := NewNode(name, inode)
	parent.AddChild(node)
	return node
}

// MakeDirNode creates a purely local directory placeholder (used for
// create_directory before the provider round-trip returns, and for
// mkdir -p style ancestor creation).
func (t *Tree) MakeDirNode(parent *Node, name string) *Node {
	name = sanitize(name)
	if child, ok := parent.GetChild(name); ok {
		return child
	}
	item := cloudkit.Item{Type: cloudkit.FileTypeDirectory, Filename: name}
	inode := NewInode(t.lastIno.Add(1), item)
	node := NewNode(name, inode)
	parent.AddChild(node)
	return node
}

// GetNodeCtx returns a locked context for a registered node ID, or nil if
// unregistered.
func (t *Tree) GetNodeCtx(nodeID uint64) *NodeContext {
	logger := util.GetLogger("vfs.Tree")
	if node, ok := t.nodeRegistry.Load(nodeID); ok {
		return NewNodeContext(node)
	}
	logger.Debug().Uint64("nodeID", nodeID).Msg("no node registered")
	return nil
}

// ForgetNodeID drops the FUSE registry entry (FORGET); the node stays
// reachable through its parent's children map and itemIndex.
func (t *Tree) ForgetNodeID(id uint64) {
	t.nodeRegistry.Delete(id)
	t.created.Delete(id)
}

// GetChildCtx resolves a child by name under a registered parent,
// allocating the child a FUSE node ID if it doesn't have one yet.
func (t *Tree) GetChildCtx(parentID uint64, name string) *NodeContext {
	parent, ok := t.nodeRegistry.Load(parentID)
	if !ok {
		return nil
	}
	child, ok := parent.GetChild(name)
	if !ok {
		return nil
	}
	t.EnsureNodeID(child)
	return NewNodeContext(child)
}

// EnsureNodeID retrieves or allocates a node's FUSE registry ID.
func (t *Tree) EnsureNodeID(n *Node) uint64 {
	if id := n.nodeID.Load(); id != 0 {
		return id
	}
	newID := t.lastNodeID.Add(1)
	if n.nodeID.CompareAndSwap(0, newID) {
		t.nodeRegistry.Store(newID, n)
		return newID
	}
	return n.nodeID.Load()
}

// StageCreate registers a pending-upload placeholder for a newly created,
// not-yet-uploaded file (see CreatedNode).
func (t *Tree) StageCreate(nodeID uint64, c *CreatedNode) {
	t.created.Store(nodeID, c)
}

// LookupStagedCreate returns the pending-upload placeholder for nodeID, if
// the file hasn't been released (and thus uploaded) yet.
func (t *Tree) LookupStagedCreate(nodeID uint64) (*CreatedNode, bool) {
	return t.created.Load(nodeID)
}

// DropStagedCreate removes the pending-upload placeholder, e.g. after a
// successful upload replaces it with a real Item, or on error cleanup.
func (t *Tree) DropStagedCreate(nodeID uint64) {
	t.created.Delete(nodeID)
}

// EnsureListed populates parentID's children from a full provider directory
// listing, consuming every page (§4.7's "pagination is consumed fully"), the
// first time it's asked for; later calls are no-ops until InvalidateListing
// marks the node stale.
func (t *Tree) EnsureListed(ctx context.Context, parentID uint64) error {
	parent, ok := t.nodeRegistry.Load(parentID)
	if !ok {
		return fmt.Errorf("vfs: unknown node id %d", parentID)
	}
	if parent.IsListed() {
		return nil
	}

	item := parent.Item()
	token := ""
	for {
		res := t.provider.ListDirectoryPage(ctx, item, token).Result(ctx)
		if !res.IsOk() {
			return res.Err
		}
		for _, child := range res.Value.Items {
			t.UpsertChild(parent, child)
		}
		if res.Value.NextPageToken == "" {
			break
		}
		token = res.Value.NextPageToken
	}
	parent.MarkListed()
	return nil
}

// InvalidateListing marks a directory node's cached listing stale, e.g.
// after this process creates, removes, or renames one of its own children
// without the provider round-trip that would otherwise refresh it.
func (t *Tree) InvalidateListing(nodeID uint64) {
	if node, ok := t.nodeRegistry.Load(nodeID); ok {
		node.InvalidateListing()
	}
}

// ResolveChild is Lookup's core: return a locked context for name under
// parentID, fetching the parent's full listing first if it hasn't been
// fetched yet. The returned context is nil (with a nil error) if the
// provider genuinely has no such entry.
func (t *Tree) ResolveChild(ctx context.Context, parentID uint64, name string) (*NodeContext, error) {
	if err := t.EnsureListed(ctx, parentID); err != nil {
		return nil, err
	}
	return t.GetChildCtx(parentID, name), nil
}

// RemoveChild detaches name from parent's children and drops it from the
// item index so a later listing under the same ID starts fresh.
func (t *Tree) RemoveChild(parent *Node, name string) bool {
	child, ok := parent.GetChild(name)
	if !ok {
		return false
	}
	removed := parent.RemoveChild(name)
	if removed {
		child.Del()
		if id := child.Item().ID; id != "" {
			t.itemIndex.Delete(id)
		}
	}
	return removed
}

// UpsertChildByID is UpsertChild resolved from a registered parent node
// ID, returning the child's allocated FUSE node ID (0 if parentID is
// unregistered).
func (t *Tree) UpsertChildByID(parentID uint64, item cloudkit.Item) uint64 {
	parent, ok := t.nodeRegistry.Load(parentID)
	if !ok {
		return 0
	}
	child := t.UpsertChild(parent, item)
	return t.EnsureNodeID(child)
}

// MakeFileNode creates a purely local file placeholder for a not-yet-
// uploaded file (mknod/create, before any bytes exist on the provider),
// mirroring MakeDirNode's directory counterpart. Returns the node's
// allocated FUSE node ID.
func (t *Tree) MakeFileNode(parentID uint64, name string) (uint64, error) {
	parent, ok := t.nodeRegistry.Load(parentID)
	if !ok {
		return 0, fmt.Errorf("vfs: unknown node id %d", parentID)
	}
	name = sanitize(name)
	if child, ok := parent.GetChild(name); ok {
		return t.EnsureNodeID(child), nil
	}

	zero := uint64(0)
	item := cloudkit.Item{Type: cloudkit.FileTypeUnknown, Filename: name, Size: &zero}
	inode := NewInode(t.lastIno.Add(1), item)
	node := NewNode(name, inode)
	parent.AddChild(node)
	return t.EnsureNodeID(node), nil
}

// BindItem replaces nodeID's mirrored Item (after a provider round trip
// creates, renames, or uploads it) and, once the Item has a real ID,
// records it in the tree's item index so later listings dedup onto the
// same inode.
func (t *Tree) BindItem(nodeID uint64, item cloudkit.Item) {
	node, ok := t.nodeRegistry.Load(nodeID)
	if !ok {
		return
	}
	node.RefreshItem(item)
	if item.ID != "" {
		t.itemIndex.Store(item.ID, node.Inode)
	}
}

// SetNodeSize updates a node's cached size directly, used after a write
// extends a CreatedNode's staged bytes without a provider round trip to
// refresh from.
func (t *Tree) SetNodeSize(nodeID uint64, size uint64) {
	if node, ok := t.nodeRegistry.Load(nodeID); ok {
		node.SetSize(size)
	}
}

// RenameChild renames a child within the same parent, purely a tree
// metadata operation performed after the provider's rename_item call has
// already succeeded.
func (t *Tree) RenameChild(parentID uint64, oldName, newName string) error {
	parent, ok := t.nodeRegistry.Load(parentID)
	if !ok {
		return fmt.Errorf("vfs: unknown node id %d", parentID)
	}
	newName = sanitize(newName)
	child, ok := parent.GetChild(oldName)
	if !ok {
		return fmt.Errorf("vfs: no such child %q", oldName)
	}
	parent.RemoveChild(oldName)
	child.SetName(newName)
	parent.AddChild(child)
	parent.InvalidateListing()
	return nil
}

// ReparentChild moves a child from one parent to another (and optionally
// renames its leaf in the same step), performed after the provider's
// move_item (and, if the leaf name changed, rename_item) calls have
// already succeeded.
func (t *Tree) ReparentChild(oldParentID, newParentID uint64, oldName, newName string) error {
	oldParent, ok := t.nodeRegistry.Load(oldParentID)
	if !ok {
		return fmt.Errorf("vfs: unknown node id %d", oldParentID)
	}
	newParent, ok := t.nodeRegistry.Load(newParentID)
	if !ok {
		return fmt.Errorf("vfs: unknown node id %d", newParentID)
	}
	child, ok := oldParent.GetChild(oldName)
	if !ok {
		return fmt.Errorf("vfs: no such child %q", oldName)
	}
	oldParent.RemoveChild(oldName)
	child.SetName(sanitize(newName))
	newParent.AddChild(child)
	oldParent.InvalidateListing()
	newParent.InvalidateListing()
	return nil
}

// RemoveChildByID is RemoveChild resolved from a registered node ID,
// for callers (fusebridge) that only ever see FUSE node IDs.
func (t *Tree) RemoveChildByID(parentID uint64, name string) bool {
	parent, ok := t.nodeRegistry.Load(parentID)
	if !ok {
		return false
	}
	removed := t.RemoveChild(parent, name)
	if removed {
		parent.InvalidateListing()
	}
	return removed
}

// Run wires the tree's background workers (request sweep, staged-upload
// scratch-file cleanup) into an oklog/run.Group and blocks until ctx is
// cancelled or a worker fails; shutdown errors from every worker are
// aggregated via go-multierror rather than only the first one reported.
func (t *Tree) Run(ctx context.Context) error {
	var g run.Group

	runCtx, cancel := context.WithCancel(ctx)
	g.Add(func() error {
		return t.Requests.RunSweep(runCtx)
	}, func(error) {
		cancel()
	})

	g.Add(func() error {
		<-runCtx.Done()
		return nil
	}, func(error) {
		cancel()
	})

	runErr := g.Run()

	var result *multierror.Error
	if runErr != nil {
		result = multierror.Append(result, runErr)
	}
	if err := t.Requests.CancelAll(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := t.cleanupStaged(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// cleanupStaged removes any leftover scratch files for uploads that were
// never released (e.g. the mount was killed mid-write).
func (t *Tree) cleanupStaged() error {
	var result *multierror.Error
	t.created.Range(func(_ uint64, c *CreatedNode) bool {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		if c.CachePath != "" {
			if err := os.Remove(c.CachePath); err != nil && !os.IsNotExist(err) {
				result = multierror.Append(result, err)
			}
		}
		return true
	})
	return result.ErrorOrNil()
}
