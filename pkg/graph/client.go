package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/colegio-ws/gestor/pkg/config"
)

// Querier abstracts the graph store so queries are testable without Neo4j.
type Querier interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	Close(ctx context.Context) error
}

// Neo4jClient is the production Querier.
type Neo4jClient struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jClient connects to the configured graph store and verifies
// connectivity.
func NewNeo4jClient(ctx context.Context, cfg *config.GraphConfig) (*Neo4jClient, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to reach neo4j: %w", err)
	}
	return &Neo4jClient{driver: driver}, nil
}

// Run executes a cypher statement and eagerly collects the records.
func (c *Neo4jClient) Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	result, err := neo4j.ExecuteQuery(ctx, c.driver, cypher, params,
		neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("cypher query failed: %w", err)
	}

	rows := make([]map[string]any, 0, len(result.Records))
	for _, record := range result.Records {
		row := make(map[string]any, len(record.Keys))
		for _, key := range record.Keys {
			value, _ := record.Get(key)
			row[key] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Close releases the driver.
func (c *Neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}
