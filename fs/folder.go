package fs

import (
	"context"
	"fmt"
	"hash/fnv"
	"os/user"
	"path"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"

	"github.com/prologic/simbridgefs/simbridge"
)

// Set file owners to the current user,
// otherwise in OSX, we will fail to start.
var uid, gid uint32

func init() {
	u, err := user.Current()
	if err != nil {
		panic(err)
	}
	uid32, _ := strconv.ParseUint(u.Uid, 10, 32)
	gid32, _ := strconv.ParseUint(u.Gid, 10, 32)
	uid = uint32(uid32)
	gid = uint32(gid32)
}

// Settings is the settings store as seen by the filesystem.
type Settings interface {
	Get(ctx context.Context, key, defaultValue string) string
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Documents is the SimBridge viewer as seen by the filesystem.
type Documents interface {
	PDFList(ctx context.Context) ([]string, error)
	PDFPageCount(ctx context.Context, filename string) (int, error)
	PDFPage(ctx context.Context, filename string, page int) (*simbridge.Blob, error)
	ImageList(ctx context.Context) ([]string, error)
	Image(ctx context.Context, filename string) (*simbridge.Blob, error)
}

const (
	settingsDirName = "settings"
	pdfDirName      = "pdf"
	imagesDirName   = "images"
)

// Root is the top of the mounted tree:
//
//	/settings/<KEY>        read-write, one file per setting
//	/pdf/<file>/page-<n>.png
//	/images/<file>
type Root struct {
	fs.Inode
	settings Settings
	docs     Documents
}

// NewRoot returns the root directory node.
func NewRoot(settings Settings, docs Documents) *Root {
	return &Root{settings: settings, docs: docs}
}

// OnAdd builds the fixed top level directories.
func (r *Root) OnAdd(ctx context.Context) {
	dirs := map[string]fs.InodeEmbedder{
		settingsDirName: &settingsDir{settings: r.settings},
		pdfDirName:      &pdfDir{docs: r.docs},
		imagesDirName:   &imagesDir{docs: r.docs},
	}
	for name, node := range dirs {
		p := "/" + name
		ch := r.NewPersistentInode(ctx, node, fs.StableAttr{Mode: getMode(false), Ino: inodeHash(p)})
		r.AddChild(name, ch, false)
	}
}

func (r *Root) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fillAttr(&out.Attr, "/", false, 0)
	return fs.OK
}

// settingsDir lists the keys of the settings store.
type settingsDir struct {
	fs.Inode
	settings Settings
}

func (d *settingsDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	log.WithField("path", settingsDirName).Debug("Node Readdir")
	keys, err := d.settings.Keys(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list settings")
		return nil, syscall.EIO
	}
	return listEntries(settingsDirName, keys, true), fs.OK
}

func (d *settingsDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	log.WithField("path", path.Join(settingsDirName, name)).Debug("Node Lookup")
	keys, err := d.settings.Keys(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list settings")
		return nil, syscall.EIO
	}
	for _, k := range keys {
		if k == name {
			ch, _ := d.newSetting(ctx, name)
			return ch, fs.OK
		}
	}
	return nil, syscall.ENOENT
}

// Create adds an empty setting. It becomes visible to Get callers (who see
// their default) and is announced to subscribers.
func (d *settingsDir) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	log.WithField("path", path.Join(settingsDirName, name)).Debug("Node Create")
	if err := d.settings.Set(ctx, name, ""); err != nil {
		log.WithError(err).WithField("key", name).Error("Failed to create setting")
		return nil, nil, 0, syscall.EIO
	}
	ch, node := d.newSetting(ctx, name)
	node.content = []byte{}
	return ch, node, fuse.FOPEN_DIRECT_IO, fs.OK
}

func (d *settingsDir) Unlink(ctx context.Context, name string) syscall.Errno {
	log.WithField("path", path.Join(settingsDirName, name)).Debug("Node Unlink")
	if err := d.settings.Delete(ctx, name); err != nil {
		log.WithError(err).WithField("key", name).Error("Failed to delete setting")
		return syscall.EIO
	}
	return fs.OK
}

func (d *settingsDir) newSetting(ctx context.Context, key string) (*fs.Inode, *settingFile) {
	child := &settingFile{key: key, settings: d.settings}
	return d.NewInode(ctx, child, fs.StableAttr{Mode: getMode(true), Ino: inodeHash(child.path())}), child
}

func (d *settingsDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fillAttr(&out.Attr, "/"+settingsDirName, false, 0)
	return fs.OK
}

// pdfDir has one sub directory per PDF known to SimBridge.
type pdfDir struct {
	fs.Inode
	docs Documents
}

func (d *pdfDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, err := d.docs.PDFList(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list PDF files")
		return nil, syscall.EIO
	}
	return listEntries(pdfDirName, names, false), fs.OK
}

func (d *pdfDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	names, err := d.docs.PDFList(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list PDF files")
		return nil, syscall.EIO
	}
	if !contains(names, name) {
		return nil, syscall.ENOENT
	}
	child := &pdfDocDir{docs: d.docs, filename: name}
	return d.NewInode(ctx, child, fs.StableAttr{Mode: getMode(false), Ino: inodeHash(child.path())}), fs.OK
}

func (d *pdfDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fillAttr(&out.Attr, "/"+pdfDirName, false, 0)
	return fs.OK
}

// pdfDocDir exposes the pages of one PDF as images.
type pdfDocDir struct {
	fs.Inode
	docs     Documents
	filename string
}

func (d *pdfDocDir) path() string {
	return "/" + path.Join(pdfDirName, d.filename)
}

func pageName(n int) string {
	return fmt.Sprintf("page-%d.png", n)
}

// parsePage returns the page number of a pageName, or 0.
func parsePage(name string) int {
	if !strings.HasPrefix(name, "page-") || !strings.HasSuffix(name, ".png") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "page-"), ".png"))
	if err != nil || n < 1 {
		return 0
	}
	return n
}

func (d *pdfDocDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	count, err := d.docs.PDFPageCount(ctx, d.filename)
	if err != nil {
		log.WithError(err).WithField("file", d.filename).Error("Failed to count PDF pages")
		return nil, syscall.EIO
	}
	names := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		names = append(names, pageName(i))
	}
	return listEntries(d.path(), names, true), fs.OK
}

func (d *pdfDocDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	page := parsePage(name)
	if page == 0 {
		return nil, syscall.ENOENT
	}
	count, err := d.docs.PDFPageCount(ctx, d.filename)
	if err != nil {
		log.WithError(err).WithField("file", d.filename).Error("Failed to count PDF pages")
		return nil, syscall.EIO
	}
	if page > count {
		return nil, syscall.ENOENT
	}
	filename := d.filename
	child := &remoteFile{
		filePath: path.Join(d.path(), name),
		fetch: func(ctx context.Context) (*simbridge.Blob, error) {
			return d.docs.PDFPage(ctx, filename, page)
		},
	}
	return d.NewInode(ctx, child, fs.StableAttr{Mode: getMode(true), Ino: inodeHash(child.filePath)}), fs.OK
}

func (d *pdfDocDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fillAttr(&out.Attr, d.path(), false, 0)
	return fs.OK
}

// imagesDir exposes the SimBridge image folder.
type imagesDir struct {
	fs.Inode
	docs Documents
}

func (d *imagesDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, err := d.docs.ImageList(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list images")
		return nil, syscall.EIO
	}
	return listEntries(imagesDirName, names, true), fs.OK
}

func (d *imagesDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	names, err := d.docs.ImageList(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list images")
		return nil, syscall.EIO
	}
	if !contains(names, name) {
		return nil, syscall.ENOENT
	}
	child := &remoteFile{
		filePath: "/" + path.Join(imagesDirName, name),
		fetch: func(ctx context.Context) (*simbridge.Blob, error) {
			return d.docs.Image(ctx, name)
		},
	}
	return d.NewInode(ctx, child, fs.StableAttr{Mode: getMode(true), Ino: inodeHash(child.filePath)}), fs.OK
}

func (d *imagesDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fillAttr(&out.Attr, "/"+imagesDirName, false, 0)
	return fs.OK
}

func listEntries(parent string, names []string, leaves bool) fs.DirStream {
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, fuse.DirEntry{
			Mode: getMode(leaves),
			Name: name,
			Ino:  inodeHash(path.Join("/", parent, name)),
		})
	}
	return fs.NewListDirStream(entries)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func getMode(isLeaf bool) uint32 {
	if isLeaf {
		return 0644 | uint32(syscall.S_IFREG)
	}
	return 0755 | uint32(syscall.S_IFDIR)
}

func fillAttr(out *fuse.Attr, p string, isLeaf bool, size int) {
	out.Mode = getMode(isLeaf)
	out.Size = uint64(size)
	out.Ino = inodeHash(p)
	now := time.Now()
	out.SetTimes(&now, &now, &now)
	out.Uid = uid
	out.Gid = gid
}

// Hash file path into inode number, so we can ensure the same file always gets the same inode number
func inodeHash(p string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(p))
	return h.Sum64()
}

var (
	_ fs.NodeOnAdder   = &Root{}
	_ fs.NodeGetattrer = &Root{}

	_ fs.NodeReaddirer = &settingsDir{}
	_ fs.NodeLookuper  = &settingsDir{}
	_ fs.NodeCreater   = &settingsDir{}
	_ fs.NodeUnlinker  = &settingsDir{}
	_ fs.NodeGetattrer = &settingsDir{}

	_ fs.NodeReaddirer = &pdfDir{}
	_ fs.NodeLookuper  = &pdfDir{}
	_ fs.NodeReaddirer = &pdfDocDir{}
	_ fs.NodeLookuper  = &pdfDocDir{}
	_ fs.NodeReaddirer = &imagesDir{}
	_ fs.NodeLookuper  = &imagesDir{}
)
