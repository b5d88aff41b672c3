package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// HTTPPinger expects GET <base>/health to answer 200 "OK".
type HTTPPinger struct {
	url  string
	http *http.Client
}

func NewHTTPPinger(baseURL string, httpClient *http.Client) *HTTPPinger {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPPinger{url: strings.TrimRight(baseURL, "/") + "/health", http: httpClient}
}

func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64))
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "OK" {
		return fmt.Errorf("%w: health status %d", common.ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// HealthPinger probes the gRPC health service of the backend.
type HealthPinger struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	service string
}

// NewHealthPinger connects lazily to target. service is the health service
// name to check; empty checks the server as a whole.
func NewHealthPinger(target, service string) (*HealthPinger, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &HealthPinger{conn: conn, client: healthpb.NewHealthClient(conn), service: service}, nil
}

func (p *HealthPinger) Ping(ctx context.Context) error {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return mapRPCError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: health %s", common.ErrUnavailable, resp.GetStatus())
	}
	return nil
}

func (p *HealthPinger) Close() error {
	return p.conn.Close()
}

func mapRPCError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return common.ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
