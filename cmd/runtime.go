package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"messageflow-backend/internal/config"
	"messageflow-backend/internal/database"
	"messageflow-backend/internal/logger"
	"messageflow-backend/internal/metrics"
	"messageflow-backend/internal/service"
	"messageflow-backend/internal/store"
)

// runtime holds what both the server and the license commands open.
type runtime struct {
	cfg       *config.Config
	db        *gorm.DB
	store     store.Store
	catalog   config.Catalog
	metrics   *metrics.Metrics
	audit     *service.AuditLog
	ledger    *service.SheetSyncService
	licenses  *service.LicenseService
	logCloser io.Closer
}

func openRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{
		cfg:       cfg,
		logCloser: logger.Setup(cfg.Logging, cfg.IsProduction()),
	}

	db, err := database.Open(database.Options{
		Engine:     cfg.DBEngine,
		SQLitePath: cfg.DBPath,
		DSN:        cfg.DBDSN,
	})
	if err != nil {
		rt.close(false)
		return nil, err
	}
	rt.db = db

	var licenseStore store.Store
	switch cfg.LicenseStore {
	case config.StoreDatabase:
		licenseStore = store.NewDBStore(db)
	default:
		licenseStore = store.NewFileStore(cfg.LicenseFile)
	}
	rt.store = licenseStore
	rt.metrics = metrics.New(licenseStore.Len)
	if fs, ok := licenseStore.(*store.FileStore); ok {
		fs.SetSaveErrorHook(func(error) { rt.metrics.SaveErrors.Inc() })
	}

	// A corrupt snapshot is logged and moved aside; the service starts empty.
	if err := licenseStore.Load(ctx); err != nil {
		log.Error().Err(err).Str("store", cfg.LicenseStore).Msg("Failed to load licenses, starting empty")
	}

	catalog, err := config.LoadCatalog(cfg.CatalogFile, cfg.Stripe)
	if err != nil {
		rt.close(false)
		return nil, err
	}
	rt.catalog = catalog

	ledger, err := service.NewSheetSyncService(ctx, cfg.Sheets)
	if err != nil {
		rt.close(false)
		return nil, fmt.Errorf("init sheets ledger: %w", err)
	}
	rt.ledger = ledger

	rt.audit = service.NewAuditLog(db)
	deps := service.LicenseServiceDeps{
		Store:    licenseStore,
		Catalog:  catalog,
		Renderer: service.NewRenderer(cfg.TemplatePath),
		Audit:    rt.audit,
		Metrics:  rt.metrics,
	}
	if ledger != nil {
		deps.Ledger = ledger
	}
	rt.licenses = service.NewLicenseService(deps)

	log.Info().
		Str("store", cfg.LicenseStore).
		Int("licenses", licenseStore.Len()).
		Strs("plans", catalog.Plans()).
		Bool("sheets", ledger != nil).
		Msg("License runtime ready")
	return rt, nil
}

// close waits for ledger writes and releases the database. With save set the
// store is written one last time first.
func (rt *runtime) close(save bool) {
	if rt.licenses != nil {
		rt.licenses.Wait()
	}
	if save && rt.store != nil {
		if err := rt.store.Save(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to save licenses on shutdown")
		}
	}
	if rt.db != nil {
		if err := database.Close(rt.db); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
	if rt.logCloser != nil {
		rt.logCloser.Close()
	}
}
