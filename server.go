package main

import (
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/uptrace/bunrouter"
)

// service singletons initialized by Server
var (
	store    *FileStore
	registry *Registry
	catalog  Catalog
	ledger   HistoryStore
	pipeline *Pipeline
)

// bunrouter implementation of the compatible (with net/http) router handlers
func bunRouter() *bunrouter.CompatRouter {
	router := bunrouter.New(
		bunrouter.Use(bunrouterLoggingMiddleware),
		bunrouter.Use(bunrouterLimitMiddleware),
	).Compat()
	base := Config.Base

	// auth end-points
	router.POST(base+"/register", RegisterHandler)
	router.POST(base+"/login", LoginHandler)
	router.GET(base+"/profile", authMiddleware(ProfileHandler))

	// pipeline APIs
	router.POST(base+"/predictions", authMiddleware(PredictHandler))
	router.GET(base+"/history", authMiddleware(HistoryHandler))
	router.GET(base+"/artists/:name", authMiddleware(ArtistHandler))

	// web APIs
	router.GET(base+"/status", StatusHandler)
	router.GET(base+"/docs", DocsHandler)

	// public blob addresses of uploaded images
	fpath := fmt.Sprintf("%s/files", base)
	hdlr := http.StripPrefix(fpath, http.FileServer(http.Dir(Config.StorageDir)))
	router.Router.GET(base+"/files/*path", bunrouter.HTTPHandler(hdlr))

	return router
}

// Server implements the artlens service
func Server() {

	// initialize server middleware
	initLimiter(Config.LimiterPeriod)

	// initialize service singletons
	publicURL := Config.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("http://localhost:%d%s", Config.Port, Config.Base)
	}
	timeout := time.Duration(Config.FetchTimeout) * time.Second
	store = &FileStore{Root: Config.StorageDir, PublicURL: publicURL}
	registry = NewRegistry(Config.ModelURL, timeout)
	catalog = &ArtistCatalog{DBName: Config.DBName, DBColl: Config.ArtistColl}
	ledger = &Ledger{DBName: Config.DBName, DBColl: Config.HistoryColl}

	var err error
	pipeline, err = NewPipeline(
		store, registry, catalog, ledger,
		Config.Labels, Config.InputHeight, Config.InputWidth,
		Config.MaxUploadSize, Config.Workers, timeout)
	if err != nil {
		log.Fatal("unable to create pipeline", err)
	}
	defer pipeline.Release()

	// setup server router
	router := bunRouter()

	// start HTTPs server
	if len(Config.DomainNames) > 0 {
		server := LetsEncryptServer(Config.DomainNames...)
		server.Handler = router
		log.Println("Start HTTPs server with LetsEncrypt", Config.DomainNames)
		log.Fatal(server.ListenAndServeTLS("", ""))
	} else if Config.ServerCrt != "" && Config.ServerKey != "" {
		tlsConfig := &tls.Config{
			RootCAs: RootCAs(),
		}
		server := &http.Server{
			Addr:      ":https",
			TLSConfig: tlsConfig,
			Handler:   router,
		}
		log.Printf("Start HTTPs server with %s and %s on :%d", Config.ServerCrt, Config.ServerKey, Config.Port)
		log.Fatal(server.ListenAndServeTLS(Config.ServerCrt, Config.ServerKey))
	} else {
		log.Printf("Start HTTP server on :%d", Config.Port)
		http.ListenAndServe(fmt.Sprintf(":%d", Config.Port), router)
	}
}
