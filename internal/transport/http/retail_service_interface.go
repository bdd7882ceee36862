package http

import (
	"context"

	"retailsales/internal/services"
)

// RetailServiceInterface defines the pipeline operations the handlers need
type RetailServiceInterface interface {
	Tables(ctx context.Context, req services.LoadRequest) ([]string, error)
	View(ctx context.Context, req services.ViewRequest) (*services.ViewModel, error)
	Export(ctx context.Context, req services.LoadRequest) (*services.Download, error)
	ExportTable(ctx context.Context, req services.LoadRequest, table string) (*services.Download, error)
}
