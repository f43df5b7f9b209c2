package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/config"
	"github.com/newtheatre/lumina/internal/di"
)

var (
	chiLambda *chiadapter.ChiLambdaV2
	logger    *zap.Logger
)

// init runs once per cold start.
func init() {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	configDir := os.Getenv("LUMINA_CONFIG_DIR")
	if configDir == "" {
		configDir = "config"
	}
	loader := config.NewLoader(configDir, nil)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// The container lives as long as the execution environment, so its
	// cleanup never runs.
	container, _, err := di.InitializeContainer(ctx, loader, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	logger = container.Logger
	chiLambda = chiadapter.NewV2(container.Router)

	logger.Info("Cold start complete",
		zap.Duration("duration", time.Since(start)),
		zap.String("table", cfg.Database.TableName(cfg.Environment)),
	)
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return chiLambda.ProxyWithContextV2(ctx, req)
}

func main() {
	lambda.Start(handler)
}
