package fs

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prologic/simbridgefs/datastore"
	"github.com/prologic/simbridgefs/notify"
	"github.com/prologic/simbridgefs/simbridge"
	"github.com/prologic/simbridgefs/store"
)

type fakeDocs struct {
	pdfs   map[string][][]byte
	images map[string][]byte
	err    error
}

func (f *fakeDocs) PDFList(ctx context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var names []string
	for name := range f.pdfs {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeDocs) PDFPageCount(ctx context.Context, filename string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(f.pdfs[filename]), nil
}

func (f *fakeDocs) PDFPage(ctx context.Context, filename string, page int) (*simbridge.Blob, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &simbridge.Blob{ContentType: "image/png", Data: f.pdfs[filename][page-1]}, nil
}

func (f *fakeDocs) ImageList(ctx context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var names []string
	for name := range f.images {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeDocs) Image(ctx context.Context, filename string) (*simbridge.Blob, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &simbridge.Blob{Data: f.images[filename]}, nil
}

func readAll(t *testing.T, r fs.FileReader) string {
	t.Helper()
	buf := make([]byte, 4096)
	res, errno := r.Read(context.Background(), buf, 0)
	require.Equal(t, fs.OK, errno)
	data, status := res.Bytes(buf)
	require.Equal(t, fuse.OK, status)
	return string(data)
}

func dirNames(t *testing.T, stream fs.DirStream) []string {
	t.Helper()
	var names []string
	for stream.HasNext() {
		e, errno := stream.Next()
		require.Equal(t, fs.OK, errno)
		names = append(names, e.Name)
	}
	return names
}

func newSettings(t *testing.T) *datastore.DataStore {
	t.Helper()
	return datastore.New(store.NewMemoryStore(), notify.NewBus())
}

func TestSettingFileReadWriteFlush(t *testing.T) {
	ctx := context.Background()
	ds := newSettings(t)
	require.NoError(t, ds.Set(ctx, "CONFIG_SIMBRIDGE_PORT", "8380"))

	var changes []string
	ds.Subscribe(datastore.Wildcard, func(k, v string) { changes = append(changes, k+"="+v) })

	f := &settingFile{key: "CONFIG_SIMBRIDGE_PORT", settings: ds}
	_, _, errno := f.Open(ctx, syscall.O_RDWR)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, "8380", readAll(t, f))

	n, errno := f.Write(ctx, f, []byte("9"), 3)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, uint32(1), n)
	assert.Equal(t, "8389", readAll(t, f))
	assert.Empty(t, changes, "nothing stored before flush")

	require.Equal(t, fs.OK, f.Flush(ctx, f))
	require.Equal(t, fs.OK, f.Flush(ctx, f))
	assert.Equal(t, []string{"CONFIG_SIMBRIDGE_PORT=8389"}, changes, "one notification per flushed write")
	assert.Equal(t, "8389", ds.Get(ctx, "CONFIG_SIMBRIDGE_PORT", ""))
}

func TestSettingFileReopenSeesNewValue(t *testing.T) {
	ctx := context.Background()
	ds := newSettings(t)
	require.NoError(t, ds.Set(ctx, "EFIS", "ARC"))

	f := &settingFile{key: "EFIS", settings: ds}
	_, _, errno := f.Open(ctx, 0)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, "ARC", readAll(t, f))

	require.NoError(t, ds.Set(ctx, "EFIS", "ROSE"))
	_, _, errno = f.Open(ctx, 0)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, "ROSE", readAll(t, f))
}

func TestSettingFileTruncate(t *testing.T) {
	ctx := context.Background()
	ds := newSettings(t)
	require.NoError(t, ds.Set(ctx, "UNITS", "1.000"))

	f := &settingFile{key: "UNITS", settings: ds}
	_, _, errno := f.Open(ctx, syscall.O_WRONLY|syscall.O_TRUNC)
	require.Equal(t, fs.OK, errno)
	_, errno = f.Write(ctx, f, []byte("0.4535"), 0)
	require.Equal(t, fs.OK, errno)
	require.Equal(t, fs.OK, f.Flush(ctx, f))
	assert.Equal(t, "0.4535", ds.Get(ctx, "UNITS", ""))

	in := &fuse.SetAttrIn{}
	in.Valid = fuse.FATTR_SIZE
	in.Size = 1
	out := &fuse.AttrOut{}
	require.Equal(t, fs.OK, f.Setattr(ctx, f, in, out))
	assert.Equal(t, "0", ds.Get(ctx, "UNITS", ""))
	assert.Equal(t, uint64(1), out.Size)
}

type brokenSettings struct {
	Settings
}

func (brokenSettings) Set(ctx context.Context, key, value string) error {
	return errors.New("write failed")
}

func (brokenSettings) Delete(ctx context.Context, key string) error {
	return errors.New("delete failed")
}

func (brokenSettings) Keys(ctx context.Context) ([]string, error) {
	return nil, errors.New("list failed")
}

func TestSettingFlushError(t *testing.T) {
	ctx := context.Background()
	f := &settingFile{key: "K", settings: brokenSettings{}}
	_, errno := f.Write(ctx, f, []byte("v"), 0)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, syscall.EIO, f.Flush(ctx, f))

	d := &settingsDir{settings: brokenSettings{}}
	_, errno = d.Readdir(ctx)
	assert.Equal(t, syscall.EIO, errno)
	assert.Equal(t, syscall.EIO, d.Unlink(ctx, "K"))
}

func TestSettingsDir(t *testing.T) {
	ctx := context.Background()
	ds := newSettings(t)
	require.NoError(t, ds.Set(ctx, "B", "2"))
	require.NoError(t, ds.Set(ctx, "A", "1"))

	d := &settingsDir{settings: ds}
	stream, errno := d.Readdir(ctx)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, []string{"A", "B"}, dirNames(t, stream))

	_, errno = d.Lookup(ctx, "C", &fuse.EntryOut{})
	assert.Equal(t, syscall.ENOENT, errno)

	require.Equal(t, fs.OK, d.Unlink(ctx, "A"))
	stream, errno = d.Readdir(ctx)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, []string{"B"}, dirNames(t, stream))
}

func TestDocumentDirs(t *testing.T) {
	ctx := context.Background()
	docs := &fakeDocs{
		pdfs:   map[string][][]byte{"qrh.pdf": {[]byte("p1"), []byte("p2")}},
		images: map[string][]byte{"taxi.png": []byte("img")},
	}

	stream, errno := (&pdfDir{docs: docs}).Readdir(ctx)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, []string{"qrh.pdf"}, dirNames(t, stream))

	stream, errno = (&pdfDocDir{docs: docs, filename: "qrh.pdf"}).Readdir(ctx)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, []string{"page-1.png", "page-2.png"}, dirNames(t, stream))

	_, errno = (&pdfDocDir{docs: docs, filename: "qrh.pdf"}).Lookup(ctx, "page-3.png", &fuse.EntryOut{})
	assert.Equal(t, syscall.ENOENT, errno)
	_, errno = (&pdfDir{docs: docs}).Lookup(ctx, "other.pdf", &fuse.EntryOut{})
	assert.Equal(t, syscall.ENOENT, errno)

	stream, errno = (&imagesDir{docs: docs}).Readdir(ctx)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, []string{"taxi.png"}, dirNames(t, stream))

	_, errno = (&imagesDir{docs: &fakeDocs{err: errors.New("down")}}).Readdir(ctx)
	assert.Equal(t, syscall.EIO, errno)
}

func TestRemoteFile(t *testing.T) {
	ctx := context.Background()
	calls := 0
	f := &remoteFile{
		filePath: "/images/taxi.png",
		fetch: func(ctx context.Context) (*simbridge.Blob, error) {
			calls++
			return &simbridge.Blob{Data: []byte("taxi-chart")}, nil
		},
	}

	_, _, errno := f.Open(ctx, syscall.O_WRONLY)
	assert.Equal(t, syscall.EROFS, errno)
	assert.Zero(t, calls)

	_, _, errno = f.Open(ctx, syscall.O_RDONLY)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, "taxi-chart", readAll(t, f))

	out := &fuse.AttrOut{}
	require.Equal(t, fs.OK, f.Getattr(ctx, nil, out))
	assert.Equal(t, uint64(len("taxi-chart")), out.Size)

	failing := &remoteFile{
		filePath: "/images/x.png",
		fetch: func(ctx context.Context) (*simbridge.Blob, error) {
			return nil, &simbridge.ServerError{Op: "utility.image", StatusCode: 404}
		},
	}
	_, _, errno = failing.Open(ctx, syscall.O_RDONLY)
	assert.Equal(t, syscall.EIO, errno)
}

func TestParsePage(t *testing.T) {
	assert.Equal(t, 3, parsePage(pageName(3)))
	assert.Equal(t, 0, parsePage("page-0.png"))
	assert.Equal(t, 0, parsePage("page-x.png"))
	assert.Equal(t, 0, parsePage("cover.png"))
}

func TestInodeHashStable(t *testing.T) {
	assert.Equal(t, inodeHash("/settings/A"), inodeHash("/settings/A"))
	assert.NotEqual(t, inodeHash("/settings/A"), inodeHash("/settings/B"))
}
