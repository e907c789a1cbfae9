package fs

import (
	"context"
	"path"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"

	"github.com/prologic/simbridgefs/simbridge"
)

// settingFile is one setting. Writes are buffered and stored on Flush, which
// also notifies every subscriber of the key.
type settingFile struct {
	fs.Inode
	key      string
	settings Settings

	rwMu    sync.RWMutex // Protect file content
	content []byte       // Internal buffer to hold the current file content
	dirty   bool
}

func (n *settingFile) path() string {
	return "/" + path.Join(settingsDirName, n.key)
}

// Callers should have lock held
func (n *settingFile) resizeUnlocked(sz uint64) {
	if sz > uint64(cap(n.content)) {
		buf := make([]byte, sz)
		copy(buf, n.content)
		n.content = buf
	} else {
		n.content = n.content[:sz]
	}
}

// Open loads the current value, unless unflushed writes are pending.
func (n *settingFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	n.rwMu.Lock()
	if !n.dirty {
		n.content = []byte(n.settings.Get(ctx, n.key, ""))
	}
	if flags&syscall.O_TRUNC != 0 {
		n.content = n.content[:0]
		n.dirty = true
	}
	size := len(n.content)
	n.rwMu.Unlock()

	log.WithField("path", n.path()).WithField("length", size).Debug("Node Open")
	return n, fuse.FOPEN_DIRECT_IO, fs.OK
}

// Read returns bytes from "content", which should be filled by a prior Open operation
func (n *settingFile) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n.rwMu.RLock()
	defer n.rwMu.RUnlock()
	log.WithField("path", n.path()).Debug("Node Read")

	if off >= int64(len(n.content)) {
		return fuse.ReadResultData(nil), fs.OK
	}
	end := int(off) + len(dest)
	if end > len(n.content) {
		end = len(n.content)
	}
	return fuse.ReadResultData(append([]byte(nil), n.content[off:end]...)), fs.OK
}

// Write saves to the internal "content" buffer
func (n *settingFile) Write(ctx context.Context, fh fs.FileHandle, buf []byte, off int64) (uint32, syscall.Errno) {
	n.rwMu.Lock()
	defer n.rwMu.Unlock()
	log.WithField("path", n.path()).WithField("length", len(buf)).Debug("Node Write")
	sz := int64(len(buf))
	if off+sz > int64(len(n.content)) {
		n.resizeUnlocked(uint64(off + sz))
	}
	copy(n.content[off:], buf)
	n.dirty = true
	return uint32(sz), fs.OK
}

// Flush stores pending writes in the settings store
func (n *settingFile) Flush(ctx context.Context, fh fs.FileHandle) syscall.Errno {
	n.rwMu.Lock()
	defer n.rwMu.Unlock()
	if !n.dirty {
		return fs.OK
	}
	log.WithField("path", n.path()).Debug("Node Flush")
	if err := n.settings.Set(ctx, n.key, string(n.content)); err != nil {
		log.WithError(err).WithField("path", n.path()).Errorf("Failed to store setting")
		return syscall.EIO
	}
	n.dirty = false
	return fs.OK
}

// Some editors (eg. Vim) need to call Fsync, so implement it here as a no-op
func (n *settingFile) Fsync(ctx context.Context, f fs.FileHandle, flags uint32) syscall.Errno {
	log.WithField("path", n.path()).Debug("Node Fsync")
	return fs.OK
}

// Implement Setattr to support truncation
func (n *settingFile) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if sz, ok := in.GetSize(); ok {
		n.rwMu.Lock()
		n.resizeUnlocked(sz)
		n.dirty = true
		n.rwMu.Unlock()
	}
	if errno := n.Flush(ctx, fh); errno != fs.OK {
		return errno
	}
	return n.Getattr(ctx, fh, out)
}

func (n *settingFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.rwMu.RLock()
	size := len(n.content)
	n.rwMu.RUnlock()
	fillAttr(&out.Attr, n.path(), true, size)
	return fs.OK
}

// remoteFile is a read-only file whose content is fetched from SimBridge when
// it is opened.
type remoteFile struct {
	fs.Inode
	filePath string
	fetch    func(ctx context.Context) (*simbridge.Blob, error)

	mu      sync.RWMutex
	content []byte
}

func (n *remoteFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	blob, err := n.fetch(ctx)
	if err != nil {
		log.WithError(err).WithField("path", n.filePath).Error("Failed to fetch file from SimBridge")
		return nil, 0, syscall.EIO
	}
	n.mu.Lock()
	n.content = blob.Data
	n.mu.Unlock()

	log.WithField("path", n.filePath).WithField("length", len(blob.Data)).Debug("Node Open")
	return n, fuse.FOPEN_DIRECT_IO, fs.OK
}

func (n *remoteFile) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if off >= int64(len(n.content)) {
		return fuse.ReadResultData(nil), fs.OK
	}
	end := int(off) + len(dest)
	if end > len(n.content) {
		end = len(n.content)
	}
	return fuse.ReadResultData(n.content[off:end]), fs.OK
}

func (n *remoteFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.mu.RLock()
	size := len(n.content)
	n.mu.RUnlock()
	fillAttr(&out.Attr, n.filePath, true, size)
	out.Mode = 0444 | uint32(syscall.S_IFREG)
	return fs.OK
}

var (
	_ fs.NodeOpener    = &settingFile{}
	_ fs.FileReader    = &settingFile{}
	_ fs.NodeWriter    = &settingFile{}
	_ fs.NodeFlusher   = &settingFile{}
	_ fs.NodeFsyncer   = &settingFile{}
	_ fs.NodeSetattrer = &settingFile{}
	_ fs.NodeGetattrer = &settingFile{}

	_ fs.NodeOpener    = &remoteFile{}
	_ fs.FileReader    = &remoteFile{}
	_ fs.NodeGetattrer = &remoteFile{}
)
