package sheetquery

import (
	"time"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/catalog"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/config"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/images"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/query"
	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/webhook"
	"github.com/sirupsen/logrus"
)

// Workbook is one configured spreadsheet and the services bound to it.
type Workbook struct {
	Name        string
	Description string
	Service     *query.Service
	Catalog     *catalog.Catalog

	close func()
}

// Close releases the workbook's worker pool.
func (w *Workbook) Close() {
	if w.close != nil {
		w.close()
	}
}

// OpenWorkbook wires a gateway, catalog, executor and batch coordinator for
// cfg. Extra gateway options are passed through, which tests use to point the
// gateway at a fake server.
func OpenWorkbook(cfg *config.Workbook, logger *logrus.Logger, opts ...webhook.Option) (*Workbook, error) {
	gw, err := webhook.New(cfg.GatewayConfig(), logger, opts...)
	if err != nil {
		return nil, err
	}
	return newWorkbook(cfg, gw, logger)
}

func newWorkbook(cfg *config.Workbook, caller webhook.Caller, logger *logrus.Logger) (*Workbook, error) {
	cat := catalog.New(caller, cfg.Actions.ListTables, cfg.CacheTTL(), logger)

	exec := query.NewExecutor(
		query.NewRemoteFetcher(caller, cfg.Actions.Search),
		logger,
		query.WithPageSize(cfg.PageSize),
		query.WithPageTimeout(time.Duration(cfg.Timeout)*time.Second),
	)
	batch, err := query.NewCoordinator(exec, cfg.BatchConcurrency, logger)
	if err != nil {
		return nil, err
	}

	svc := query.NewService(cat, exec, batch, images.NewLookup(caller, cfg.Actions.ImageURLs, logger), query.ServiceConfig{
		DefaultMaxRecords: cfg.MaxRecords,
		MaxRecordsLimit:   cfg.MaxRecordsLimit,
	}, logger)

	return &Workbook{
		Name:        cfg.Name,
		Description: cfg.Description,
		Service:     svc,
		Catalog:     cat,
		close:       batch.Close,
	}, nil
}

// OpenAll opens every workbook in cfg. On failure the workbooks opened so far
// are closed.
func OpenAll(cfg *config.Config, logger *logrus.Logger, opts ...webhook.Option) ([]*Workbook, error) {
	var out []*Workbook
	for _, name := range cfg.Names() {
		wb, err := OpenWorkbook(cfg.Workbooks[name], logger, opts...)
		if err != nil {
			for _, opened := range out {
				opened.Close()
			}
			return nil, err
		}
		out = append(out, wb)
	}
	return out, nil
}
