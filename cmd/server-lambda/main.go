package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"

	"github.com/johnp2003/captify-ai/app"
	"github.com/johnp2003/captify-ai/app/config"
	"github.com/johnp2003/captify-ai/app/logger"
)

var ginLambda *ginadapter.GinLambda

// init runs once per Lambda container (cold start). Connections stay open for the
// lifetime of the container.
func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr := logger.NewStructured(cfg.Logs.Level, cfg.Logs.Format)

	srv, _, err := app.Bootstrap(context.Background(), cfg, logr)
	if err != nil {
		log.Fatalf("failed to initialize server: %v", err)
	}

	ginLambda = ginadapter.New(app.NewRouter(srv))
}

// Handler is the Lambda entrypoint for API Gateway REST/HTTP API (proxy integration)
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
