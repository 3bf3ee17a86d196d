package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"lavalink-stats/internal/model"
	"lavalink-stats/internal/version"
)

// Client calls a remote StatsService.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target. Extra options are appended after the
// insecure transport and JSON codec defaults.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) ListNodes(ctx context.Context) ([]string, error) {
	var out ListNodesResponse
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/ListNodes", &ListNodesRequest{}, &out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

func (c *Client) GetStats(ctx context.Context, id string) (model.NodeStats, error) {
	var out model.NodeStats
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/GetStats", &GetStatsRequest{ID: id}, &out); err != nil {
		return model.NodeStats{}, err
	}
	return out, nil
}

func (c *Client) GetVersion(ctx context.Context) (*version.GetVersionResponse, error) {
	out := new(version.GetVersionResponse)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/GetVersion", &version.GetVersionRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
