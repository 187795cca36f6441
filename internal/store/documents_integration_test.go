//go:build integration

package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/triql/internal/harness"
	"github.com/roach88/triql/internal/parser"
	"github.com/roach88/triql/internal/querymem"
	"github.com/roach88/triql/internal/querypipe"
	"github.com/roach88/triql/internal/store"
)

func people() []map[string]any {
	return []map[string]any{
		{"name": "ada", "first": "Ada", "last": "Lovelace", "age": int64(36), "price": 2.5, "notes": "a\nz"},
		{"name": "bob", "first": "Bob", "last": nil, "age": int64(25), "price": -2.5, "notes": "az"},
		{"name": "cy", "first": "Cy", "last": "Young", "age": int64(5), "price": 1.25, "notes": nil},
		{"name": "dee", "first": nil, "last": "Dee", "age": nil, "price": 0.5, "notes": "b\nz"},
	}
}

// setupMongo starts a MongoDB container loaded with people() and returns
// an executor on it.
func setupMongo(t *testing.T) *store.Documents {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)
	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(ctx)
	docs := make([]any, 0, len(people()))
	for _, p := range people() {
		docs = append(docs, p)
	}
	_, err = client.Database("triql").Collection("people").InsertMany(ctx, docs)
	require.NoError(t, err)

	d, err := store.OpenDocuments(ctx, uri, "triql")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func TestDocuments_MatchesInterpreter(t *testing.T) {
	d := setupMongo(t)
	ctx := context.Background()

	queries := []string{
		"FROM(people) FETCH(UPPER(name) AS name) FILTER(name = 'bob')",
		"FROM(people) FETCH(name, CONCAT(first, ' ', last) AS full)",
		"FROM(people) FETCH(name) FILTER(age > '9')",
		"FROM(people) FETCH(name, ROUND(price) AS p, ROUND(price, 1) AS p1)",
		"FROM(people) FETCH(name) FILTER(age LIKE '2%')",
		"FROM(people) FETCH(name) FILTER(notes LIKE 'a%z')",
		"FROM(people) FETCH(name) FILTER(notes NOT CONTAINS 'b')",
		"FROM(people) FETCH(LENGTH(name) AS n) ORDERBY(n DESC) TAKE(2)",
	}

	rows := make([]querymem.Row, 0, len(people()))
	for _, p := range people() {
		rows = append(rows, querymem.Row(p))
	}

	for _, dsl := range queries {
		t.Run(dsl, func(t *testing.T) {
			q, err := parser.Parse(ctx, dsl, nil)
			require.NoError(t, err)

			want, err := querymem.Evaluate(ctx, q, rows)
			require.NoError(t, err)
			wantRecords := make([]map[string]any, len(want.Rows))
			for i, r := range want.Rows {
				wantRecords[i] = r
			}

			p, err := querypipe.Compile(q)
			require.NoError(t, err)
			got, err := d.Aggregate(ctx, p)
			require.NoError(t, err)

			assert.ElementsMatch(t, harness.RecordKeys(wantRecords), harness.RecordKeys(got))
		})
	}
}
