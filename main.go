package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/sflowg/sflowg-montecarlo/montecarlo"
	"github.com/sflowg/sflowg-montecarlo/runtime"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	app, err := runtime.NewApp("flows")
	if err != nil {
		log.Fatalf("Error initializing app: %v", err)
	}

	mc := &montecarlo.Plugin{}
	err = runtime.InitializeConfig(&mc.Config, map[string]any{
		"api_key_id": os.Getenv(montecarlo.EnvAPIKeyID),
		"api_token":  os.Getenv(montecarlo.EnvAPIToken),
	})
	if err != nil {
		log.Fatalf("Error configuring montecarlo plugin: %v", err)
	}

	if err := app.Container.RegisterPlugin("montecarlo", mc); err != nil {
		log.Fatalf("Error registering montecarlo plugin: %v", err)
	}

	ctx := context.Background()
	if err := app.Container.Initialize(ctx); err != nil {
		log.Fatalf("Error initializing plugins: %v", err)
	}
	defer app.Container.Shutdown(ctx)

	executor := runtime.NewExecutor(logger)

	g := gin.Default()

	for id := range app.Flows {
		flow := app.Flows[id]
		if flow.Entrypoint.Type != "http" {
			continue
		}
		if err := runtime.NewHttpHandler(&flow, app.Container, executor, nil, g); err != nil {
			log.Fatalf("Error registering flow %s: %v", id, err)
		}
	}

	if err := g.Run(":8080"); err != nil {
		log.Fatalf("Error running server: %v", err)
	}
}
