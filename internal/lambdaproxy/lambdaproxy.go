// Package lambdaproxy runs an http.Handler behind API Gateway HTTP API
// (payload format 2.0) events.
package lambdaproxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"github.com/n0madic/donachat/internal/types"
)

// HandlerFunc is the signature lambda.Start expects for HTTP API events.
type HandlerFunc func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// Wrap adapts h to API Gateway HTTP API events. An event that cannot be
// turned into a request (a bad base64 body, say) is answered with 400
// instead of a Lambda error, which the gateway would report as 502.
func Wrap(h http.Handler) HandlerFunc {
	adapter := httpadapter.NewV2(h)
	return func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		resp, err := adapter.ProxyWithContext(ctx, evt)
		if err != nil {
			slog.Warn("lambda.event.rejected", "path", evt.RawPath, "error", err)
			return invalidEvent(), nil
		}
		return resp, nil
	}
}

func invalidEvent() events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(types.ErrorEnvelope{Error: "invalid body"})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusBadRequest,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
