package simbridge

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prologic/simbridgefs/internal/httpx"
)

const utilityPath = "/api/v1/utility"

// Viewer retrieves documents and images for the cockpit file viewer.
type Viewer struct {
	client *httpx.Client
}

func (v *Viewer) get(ctx context.Context, op, path string, query []httpx.Param) (*http.Response, error) {
	resp, err := v.client.Do(ctx, &httpx.Request{
		Op:     op,
		Method: http.MethodGet,
		Path:   utilityPath + path,
		Query:  query,
	})
	if err != nil {
		return nil, asServerError(op, err)
	}
	if err := httpx.CheckStatus(resp); err != nil {
		return nil, asServerError(op, err)
	}
	return resp, nil
}

func (v *Viewer) blob(ctx context.Context, op, path string, query []httpx.Param) (*Blob, error) {
	resp, err := v.get(ctx, op, path, query)
	if err != nil {
		return nil, err
	}
	data, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, asServerError(op, err)
	}
	return &Blob{ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}

func (v *Viewer) json(ctx context.Context, op, path string, query []httpx.Param, out any) error {
	resp, err := v.get(ctx, op, path, query)
	if err != nil {
		return err
	}
	if err := httpx.DecodeJSON(resp, out); err != nil {
		return asServerError(op, err)
	}
	return nil
}

// PDFPage returns page (1-based) of filename rendered as an image.
func (v *Viewer) PDFPage(ctx context.Context, filename string, page int) (*Blob, error) {
	if filename == "" || page < 1 {
		return nil, missing("file name or page number missing")
	}
	return v.blob(ctx, "utility.pdf", "/pdf", []httpx.Param{
		{Key: "filename", Value: filename},
		{Key: "pagenumber", Value: strconv.Itoa(page)},
	})
}

// PDFPageCount returns the number of pages in filename.
func (v *Viewer) PDFPageCount(ctx context.Context, filename string) (int, error) {
	if filename == "" {
		return 0, missing("file name missing")
	}
	var n int
	if err := v.json(ctx, "utility.pdf.numpages", "/pdf/numpages", []httpx.Param{{Key: "filename", Value: filename}}, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// PDFList returns the file names in the PDF folder.
func (v *Viewer) PDFList(ctx context.Context) ([]string, error) {
	var names []string
	if err := v.json(ctx, "utility.pdf.list", "/pdf/list", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Image returns filename from the images folder.
func (v *Viewer) Image(ctx context.Context, filename string) (*Blob, error) {
	if filename == "" {
		return nil, missing("file name missing")
	}
	return v.blob(ctx, "utility.image", "/image", []httpx.Param{{Key: "filename", Value: filename}})
}

// ImageList returns the file names in the images folder.
func (v *Viewer) ImageList(ctx context.Context) ([]string, error) {
	var names []string
	if err := v.json(ctx, "utility.image.list", "/image/list", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}
