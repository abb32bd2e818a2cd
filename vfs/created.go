package vfs

import "os"

// CreatedNode tracks a file that exists in the local tree but not yet on
// the provider: FUSE created it (open(O_CREAT)) before any bytes were
// written, so there's no Item to mirror until the writer closes and the
// staged bytes are uploaded. Grounded on original_source/src/Utility/
// FileSystem.h's CreatedNode (parent id, filename, temporary path, open
// file handle).
type CreatedNode struct {
	ParentNodeID uint64
	Filename     string
	CachePath    string
	OpenFile     *os.File
}

// Close releases the staged file's descriptor. Callers still need to
// os.Remove(CachePath) once its bytes are safely uploaded (or discarded).
func (c *CreatedNode) Close() error {
	if c.OpenFile == nil {
		return nil
	}
	return c.OpenFile.Close()
}
