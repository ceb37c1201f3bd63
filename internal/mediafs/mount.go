//go:build linux

package mediafs

import (
	"bytes"
	"context"
	"log"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/snapetech/tribute/internal/catalog"
	"github.com/snapetech/tribute/internal/mediacache"
)

const entryAttrTimeout = time.Second

// Serve mounts the cache read-only at dir and blocks until ctx is done.
// Every cached asset shows up as a regular file at the mount root.
func Serve(ctx context.Context, dir string, c *mediacache.Cache, allowOther bool) error {
	to := entryAttrTimeout
	root := &rootNode{cache: c}
	server, err := fs.Mount(dir, root, &fs.Options{
		EntryTimeout: &to,
		AttrTimeout:  &to,
		MountOptions: fuse.MountOptions{
			AllowOther: allowOther,
			FsName:     "tribute",
			Name:       "tribute",
			Options:    []string{"ro"},
		},
	})
	if err != nil {
		return err
	}
	log.Printf("mediafs: mounted %d assets at %s", len(c.Keys()), dir)
	go func() {
		<-ctx.Done()
		if err := server.Unmount(); err != nil {
			log.Printf("mediafs: unmount %s: %v", dir, err)
		}
	}()
	server.Wait()
	return nil
}

type rootNode struct {
	fs.Inode
	cache *mediacache.Cache
}

var _ fs.NodeGetattrer = (*rootNode)(nil)
var _ fs.NodeReaddirer = (*rootNode)(nil)
var _ fs.NodeLookuper = (*rootNode)(nil)

func (r *rootNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = fuse.S_IFDIR | 0555
	return 0
}

func (r *rootNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	for _, l := range listCached(r.cache) {
		entries = append(entries, fuse.DirEntry{
			Name: l.Name,
			Ino:  inoFromString("media:" + string(l.Key)),
			Mode: fuse.S_IFREG | 0444,
		})
	}
	return fs.NewListDirStream(entries), 0
}

func (r *rootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	for _, l := range listCached(r.cache) {
		if l.Name != name {
			continue
		}
		e, ok := r.cache.Lookup(l.Key)
		if !ok {
			return nil, syscall.ENOENT
		}
		out.Mode = fuse.S_IFREG | 0444
		out.Size = uint64(len(e.Data))
		out.SetEntryTimeout(entryAttrTimeout)
		out.SetAttrTimeout(entryAttrTimeout)
		ch := r.NewInode(ctx, &fileNode{key: l.Key, data: e.Data}, fs.StableAttr{
			Mode: fuse.S_IFREG,
			Ino:  inoFromString("media:" + string(l.Key)),
		})
		return ch, 0
	}
	return nil, syscall.ENOENT
}

// fileNode serves one cached asset from memory.
type fileNode struct {
	fs.Inode
	key  catalog.Key
	data []byte
}

var _ fs.NodeOpener = (*fileNode)(nil)
var _ fs.NodeGetattrer = (*fileNode)(nil)
var _ fs.NodeReader = (*fileNode)(nil)

func (n *fileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = fuse.S_IFREG | 0444
	out.Size = uint64(len(n.data))
	return 0
}

func (n *fileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *fileNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off >= int64(len(n.data)) {
		return fuse.ReadResultData(nil), 0
	}
	r := bytes.NewReader(n.data)
	k, _ := r.ReadAt(dest, off)
	return fuse.ReadResultData(dest[:k]), 0
}
