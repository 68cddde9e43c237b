package main

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/deckelo/internal/config"
	"github.com/MarcoPoloResearchLab/deckelo/internal/database"
	"github.com/MarcoPoloResearchLab/deckelo/internal/persistence"
	"github.com/MarcoPoloResearchLab/deckelo/internal/server"
	"github.com/MarcoPoloResearchLab/deckelo/internal/session"
	"github.com/MarcoPoloResearchLab/deckelo/internal/tracker"
	"go.uber.org/zap"
)

type application struct {
	session      *session.Service
	closeStorage func()
}

// shutdown writes pending changes and releases the storage.
func (a *application) shutdown(ctx context.Context) error {
	err := a.session.Close(ctx)
	a.closeStorage()
	return err
}

// openApplication wires storage, store and session. Storage that cannot be opened leaves
// the tracker in memory only. A nil dispatcher disables change events.
func openApplication(appConfig config.AppConfig, logger *zap.Logger, dispatcher *server.RealtimeDispatcher) (*application, error) {
	closeStorage := func() {}
	var gateway persistence.Gateway = persistence.Unavailable{}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		logger.Warn("storage unavailable", zap.String("path", appConfig.DatabasePath), zap.Error(err))
	} else {
		sqliteGateway, err := persistence.NewSQLiteGateway(persistence.GatewayConfig{Database: db, Logger: logger})
		if err != nil {
			return nil, err
		}
		gateway = sqliteGateway
		closeStorage = func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	}

	idProvider, err := tracker.NewIDProvider(appConfig.IDScheme)
	if err != nil {
		closeStorage()
		return nil, err
	}
	store, err := tracker.NewStore(tracker.StoreConfig{
		IDProvider: idProvider,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		closeStorage()
		return nil, err
	}

	cfg := session.ServiceConfig{
		Store:        store,
		Gateway:      gateway,
		Logger:       logger,
		SaveDelay:    appConfig.AutosaveDelay,
		ShareBaseURL: appConfig.ShareBaseURL,
		ShareLimit:   appConfig.ShareMaxLength,
		Clock:        time.Now,
	}
	var service *session.Service
	if dispatcher != nil {
		cfg.OnChange = func() {
			status := service.Status()
			dispatcher.PublishTrackerChange(status.Decks, status.Matches, time.Now())
		}
		cfg.OnSaveError = func(err error) {
			dispatcher.PublishSaveFailure(err, time.Now())
		}
	}
	service, err = session.NewService(cfg)
	if err != nil {
		closeStorage()
		return nil, err
	}

	return &application{session: service, closeStorage: closeStorage}, nil
}
