package main

import (
	"context"
	"log"
	"net/http"

	"dealflow/activity"
	"dealflow/auth"
	"dealflow/blob"
	"dealflow/config"
	"dealflow/db"
	"dealflow/deal"
	"dealflow/dispatch"
	"dealflow/document"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	store, err := blob.NewMinioStore(ctx, blob.MinioConfig{
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		Bucket:    cfg.BlobBucket,
		UseSSL:    cfg.BlobUseSSL,
	})
	if err != nil {
		log.Fatalf("bootstrap object store: %v", err)
	}

	repo := deal.NewRepository()
	emitter := activity.NewEmitter()

	server := &Server{
		authService:     auth.NewService(auth.NewRepository(pool), cfg.JWTSecret),
		dealService:     deal.NewService(pool, repo, emitter, cfg.TaxRate),
		approvalService: deal.NewApprover(pool, repo, emitter, document.NewHTMLRenderer(), store),
		dispatchService: dispatch.NewService(pool, nil, repo),
		activityReader:  activity.NewRepository(pool),
	}

	log.Printf("dealflow api listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, server.routes()); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
