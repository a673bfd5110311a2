package main

import (
	"log"
	"net/http"

	"scheda/internal/config"
	"scheda/internal/serverapp"
)

func main() {
	cfg, err := config.Load("scheda_config.yml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg = config.FromEnv(cfg)

	handler, app, err := serverapp.NewHandler(serverapp.Options{
		Config: cfg,
		Logger: log.Default(),
	})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}
	defer app.Close()

	log.Printf("listening on http://localhost%s (store backend %s)", cfg.Server.Addr, cfg.Store.Backend)
	log.Fatal(http.ListenAndServe(cfg.Server.Addr, handler))
}
