package echoapi

import (
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/extract"
)

const (
	orderingParam = "ordering"
	fileField     = "file"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// isMultipart reports whether the request carries a multipart form (i.e. a file upload).
func isMultipart(ctx echo.Context) bool {
	return strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// extractUpload extracts the text of the uploaded file of the multipart request.
func extractUpload(ctx echo.Context, ex *extract.Extractor) (extract.Result, error) {
	fh, err := ctx.FormFile(fileField)
	if err != nil {
		if errors.Cause(err) == http.ErrMissingFile {
			return extract.Result{}, core.NewFieldError(fileField, "this field is required")
		}
		return extract.Result{}, errors.Wrap(err, "reading uploaded file")
	}
	if fh.Size > ex.MaxBytes() {
		return extract.Result{}, extract.ErrTooLarge
	}
	return extractFile(fh, ex)
}

func extractFile(fh *multipart.FileHeader, ex *extract.Extractor) (extract.Result, error) {
	f, err := fh.Open()
	if err != nil {
		return extract.Result{}, errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = f.Close() }()
	return ex.Extract(f, fh.Filename)
}

// formTime parses the optional RFC 3339 date of form field name.
func formTime(ctx echo.Context, name string) (*time.Time, error) {
	val := strings.TrimSpace(ctx.FormValue(name))
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, core.NewFieldError(name, "must be an RFC 3339 date")
	}
	return &t, nil
}
