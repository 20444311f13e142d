package render

import (
	"context"
	"errors"

	"golang.org/x/sync/singleflight"
)

// htmlConverter turns markup into PDF bytes.
type htmlConverter interface {
	RenderHTML(ctx context.Context, html []byte) ([]byte, error)
}

// Renderer produces report documents. Concurrent PDF requests for the same
// report share one conversion.
type Renderer struct {
	pdf   htmlConverter
	group singleflight.Group
}

func NewRenderer(pdf htmlConverter) (*Renderer, error) {
	if pdf == nil {
		return nil, errors.New("pdf converter is required")
	}
	return &Renderer{pdf: pdf}, nil
}

// PDF renders the report through the HTML converter.
func (r *Renderer) PDF(ctx context.Context, view ReportView) ([]byte, error) {
	key := view.Report.ID.String()
	resultChan := r.group.DoChan(key, func() (interface{}, error) {
		markup, err := HTML(view)
		if err != nil {
			return nil, err
		}
		return r.pdf.RenderHTML(ctx, markup)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// XLSX renders the spreadsheet export.
func (r *Renderer) XLSX(_ context.Context, view ReportView) ([]byte, error) {
	return XLSX(view)
}
