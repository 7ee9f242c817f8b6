package ddb

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/domain/shared"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

// fakeDynamoDB emulates the subset of DynamoDB behavior the repository
// uses: keyed puts and deletes with attribute_(not_)exists conditions,
// all-or-nothing transactions, and scans with one begins_with(PK, prefix)
// filter.
type fakeDynamoDB struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(item map[string]types.AttributeValue) string {
	pk := item["PK"].(*types.AttributeValueMemberS).Value
	sk := item["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (f *fakeDynamoDB) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.items[itemKey(params.Key)]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamoDB) TransactWriteItems(_ context.Context, params *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, item := range params.TransactItems {
		if item.Put == nil || item.Put.ConditionExpression == nil {
			continue
		}
		_, exists := f.items[itemKey(item.Put.Item)]
		switch *item.Put.ConditionExpression {
		case "attribute_not_exists(PK)":
			if exists {
				return nil, &types.TransactionCanceledException{}
			}
		case "attribute_exists(PK)":
			if !exists {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}

	for _, item := range params.TransactItems {
		if item.Put != nil {
			f.items[itemKey(item.Put.Item)] = item.Put.Item
		}
		if item.Delete != nil {
			delete(f.items, itemKey(item.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamoDB) Scan(_ context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := ""
	for _, v := range params.ExpressionAttributeValues {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			prefix = s.Value
		}
	}

	var out []map[string]types.AttributeValue
	for key, item := range f.items {
		pk := strings.SplitN(key, "|", 2)[0]
		if prefix == "" || strings.HasPrefix(pk, prefix) {
			out = append(out, item)
		}
	}
	return &dynamodb.ScanOutput{Items: out}, nil
}

func testNode(uuid, fid, title string) *node.Node {
	return node.New(node.Metadata{
		UUID:     uuid,
		FID:      fid,
		Title:    title,
		Parent:   shared.RootFolderUUID,
		Mimetype: "text/plain",
	}, "owner@example.com", "acme")
}

func TestAddAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepository(newFakeDynamoDB(), "antbox", "acme")

	n := testNode("node-000001", "report-q3", "Q3 Report")
	require.NoError(t, repo.Add(ctx, n))

	got, err := repo.GetByID(ctx, "node-000001")
	require.NoError(t, err)
	assert.Equal(t, "Q3 Report", got.Title)
	assert.Equal(t, "acme", got.Tenant)

	byFid, err := repo.GetByFid(ctx, "report-q3")
	require.NoError(t, err)
	assert.Equal(t, "node-000001", byFid.UUID)

	_, err = repo.GetByID(ctx, "node-missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestUniquenessViaTransactions(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepository(newFakeDynamoDB(), "antbox", "acme")

	require.NoError(t, repo.Add(ctx, testNode("node-000001", "report-q3", "Q3")))

	t.Run("duplicate uuid", func(t *testing.T) {
		err := repo.Add(ctx, testNode("node-000001", "", "Other"))
		assert.True(t, errors.IsConflict(err))
	})

	t.Run("duplicate fid", func(t *testing.T) {
		err := repo.Add(ctx, testNode("node-000002", "report-q3", "Other"))
		assert.True(t, errors.IsConflict(err))
	})

	t.Run("failed transaction leaves no partial state", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "node-000002")
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestUpdateRewiresFidGuard(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepository(newFakeDynamoDB(), "antbox", "acme")

	n := testNode("node-000001", "old-name", "Doc")
	require.NoError(t, repo.Add(ctx, n))

	n.FID = "new-name"
	require.NoError(t, repo.Update(ctx, n))

	_, err := repo.GetByFid(ctx, "old-name")
	assert.True(t, errors.IsNotFound(err))
	got, err := repo.GetByFid(ctx, "new-name")
	require.NoError(t, err)
	assert.Equal(t, "node-000001", got.UUID)

	t.Run("cannot take a fid owned by another node", func(t *testing.T) {
		other := testNode("node-000002", "taken-fid", "Other")
		require.NoError(t, repo.Add(ctx, other))

		n.FID = "taken-fid"
		assert.True(t, errors.IsConflict(repo.Update(ctx, n)))
	})
}

func TestDeleteRemovesGuard(t *testing.T) {
	ctx := context.Background()
	repo := NewNodeRepository(newFakeDynamoDB(), "antbox", "acme")

	require.NoError(t, repo.Add(ctx, testNode("node-000001", "doomed-doc", "Doc")))
	require.NoError(t, repo.Delete(ctx, "node-000001"))

	_, err := repo.GetByID(ctx, "node-000001")
	assert.True(t, errors.IsNotFound(err))
	_, err = repo.GetByFid(ctx, "doomed-doc")
	assert.True(t, errors.IsNotFound(err))
}

func TestFilterScansTenantPartition(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamoDB()
	acme := NewNodeRepository(fake, "antbox", "acme")
	other := NewNodeRepository(fake, "antbox", "globex")

	require.NoError(t, acme.Add(ctx, testNode("node-000001", "", "Alpha")))
	require.NoError(t, acme.Add(ctx, testNode("node-000002", "with-a-fid", "Beta")))
	require.NoError(t, other.Add(ctx, testNode("node-000003", "", "Gamma")))

	page, err := acme.Filter(ctx, filters.Filters{}, repository.NewPageRequest(10, 1))
	require.NoError(t, err)
	require.Len(t, page.Items, 2, "fid guards and other tenants stay out of results")
	assert.Equal(t, "Alpha", page.Items[0].Title)
	assert.Equal(t, "Beta", page.Items[1].Title)

	byTitle := filters.NewFilters(filters.Filter{Field: "title", Operator: filters.OpEqual, Value: "Beta"})
	page, err = acme.Filter(ctx, byTitle, repository.NewPageRequest(10, 1))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "node-000002", page.Items[0].UUID)
}
