package vfs

import (
	"github.com/cloudkit/cloudkit"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// NodeContext wraps a locked Node so callers can't forget to release it.
// Close() unwinds every acquired lock in reverse order; it is always safe
// to `defer ctx.Close()`, even on a nil context.
//
// NodeContext itself is not thread-safe: don't share one across goroutines.
type NodeContext struct {
	node     *Node
	closeFns []func()
}

// NewNodeContext RLocks node and returns a context wrapping it.
func NewNodeContext(node *Node) *NodeContext {
	node.mu.RLock()
	ctx := &NodeContext{node: node}
	ctx.AddClose(node.mu.RUnlock)
	return ctx
}

// Name returns the node's name.
func (ctx *NodeContext) Name() string {
	return ctx.node.name
}

// NodeID returns the node's FUSE registry ID.
func (ctx *NodeContext) NodeID() uint64 {
	return ctx.node.NodeID()
}

// Attr returns a snapshot of the node's fuse attributes.
func (ctx *NodeContext) Attr() fuse.Attr {
	return ctx.node.CopyAttr()
}

// Item returns a snapshot of the node's mirrored provider Item.
func (ctx *NodeContext) Item() cloudkit.Item {
	return ctx.node.Item()
}

// Children returns locked contexts for every child.
func (ctx *NodeContext) Children() []*NodeContext {
	children := make([]*NodeContext, 0, ctx.node.children.Size())
	ctx.node.children.Range(func(_ string, ch *Node) bool {
		children = append(children, NewNodeContext(ch))
		return true
	})
	return children
}

// UnsafeChildren returns the unlocked underlying child nodes; the caller
// takes over all lock/unlock responsibility.
func (ctx *NodeContext) UnsafeChildren() []*Node {
	children := make([]*Node, 0, ctx.node.children.Size())
	ctx.node.children.Range(func(_ string, ch *Node) bool {
		children = append(children, ch)
		return true
	})
	return children
}

// IterChildren invokes fn once per child, each under its own read lock.
func (ctx *NodeContext) IterChildren(fn func(ctx *NodeContext)) {
	ctx.node.children.Range(func(_ string, child *Node) bool {
		nc := NewNodeContext(child)
		fn(nc)
		nc.Close()
		return true
	})
}

// HardLinkCount returns the inode's Nlink.
func (ctx *NodeContext) HardLinkCount() uint64 {
	return uint64(ctx.Attr().Nlink)
}

// AddClose pushes a cleanup callback onto the unwind stack.
func (ctx *NodeContext) AddClose(fn func()) {
	ctx.closeFns = append(ctx.closeFns, fn)
}

// Close unwinds every cleanup callback in reverse order. Safe on nil.
func (ctx *NodeContext) Close() {
	if ctx == nil {
		return
	}
	for i := len(ctx.closeFns) - 1; i >= 0; i-- {
		ctx.closeFns[i]()
	}
	ctx.closeFns = nil
}
