package main

import (
	"log"
	"math/rand"
	"net/http"
	"time"

	"studydeck/internal/ai"
	"studydeck/internal/analytics"
	"studydeck/internal/api"
	"studydeck/internal/config"
	"studydeck/internal/db"
	"studydeck/internal/decks"
	"studydeck/internal/quiz"
	"studydeck/internal/reader"
	"studydeck/internal/store"
)

func main() {
	cfg := config.Load()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer conn.Close()

	kv := store.NewSQLiteStore(conn)

	deckService := decks.NewService(cfg.DecksDir)
	if err := deckService.Load(); err != nil {
		log.Fatalf("load decks: %v", err)
	}

	readerService := reader.NewService(cfg.ContentDir)
	if err := readerService.Load(); err != nil {
		log.Fatalf("load chapters: %v", err)
	}

	completer := ai.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEndpoint)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	server := api.NewServer(
		deckService,
		decks.NewImporter(deckService, completer),
		quiz.NewGenerator(rng),
		ai.NewPipeline(completer, rng),
		ai.NewCache(kv),
		ai.NewExplainer(completer),
		readerService,
		reader.NewStudyStore(kv),
		analytics.NewService(kv),
		cfg.UploadDir,
	)

	log.Printf("listening on :%s", cfg.Port)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}
