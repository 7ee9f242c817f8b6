// Package ddb implements the node repository on a DynamoDB single-table
// layout. This is the only package that knows DynamoDB specifics.
//
// Key scheme: the node item lives at PK=TENANT#<tenant>#NODE#<uuid>,
// SK=METADATA. When a node carries a fid, a guard item at
// PK=TENANT#<tenant>#FID#<fid>, SK=FID points back to the uuid; writing
// both items in one transaction with existence conditions enforces
// per-tenant uniqueness of both identifiers.
package ddb

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"antbox-backend/internal/domain/filters"
	"antbox-backend/internal/domain/node"
	"antbox-backend/internal/repository"
	"antbox-backend/pkg/errors"
)

// API is the slice of the DynamoDB client the repository needs. The
// concrete *dynamodb.Client satisfies it.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// ddbNode is the stored row. The full node travels as a JSON document in
// Data; the projected attributes exist for the key scheme and debugging.
type ddbNode struct {
	PK       string `dynamodbav:"PK"`
	SK       string `dynamodbav:"SK"`
	NodeUUID string `dynamodbav:"NodeUUID"`
	NodeFID  string `dynamodbav:"NodeFID,omitempty"`
	Parent   string `dynamodbav:"Parent"`
	Mimetype string `dynamodbav:"Mimetype"`
	Data     string `dynamodbav:"Data"`
}

// ddbFidGuard reserves a fid for its owning node.
type ddbFidGuard struct {
	PK       string `dynamodbav:"PK"`
	SK       string `dynamodbav:"SK"`
	NodeUUID string `dynamodbav:"NodeUUID"`
}

const (
	skMetadata = "METADATA"
	skFid      = "FID"
)

// NodeRepository is the DynamoDB-backed node store for one tenant.
type NodeRepository struct {
	client    API
	tableName string
	tenant    string
}

// NewNodeRepository creates a repository bound to a table and tenant.
func NewNodeRepository(client API, tableName, tenant string) *NodeRepository {
	return &NodeRepository{client: client, tableName: tableName, tenant: tenant}
}

func (r *NodeRepository) nodePK(uuid string) string {
	return fmt.Sprintf("TENANT#%s#NODE#%s", r.tenant, uuid)
}

func (r *NodeRepository) fidPK(fid string) string {
	return fmt.Sprintf("TENANT#%s#FID#%s", r.tenant, fid)
}

func (r *NodeRepository) nodeKey(uuid string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: r.nodePK(uuid)},
		"SK": &types.AttributeValueMemberS{Value: skMetadata},
	}
}

func (r *NodeRepository) fidKey(fid string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: r.fidPK(fid)},
		"SK": &types.AttributeValueMemberS{Value: skFid},
	}
}

func (r *NodeRepository) marshalNode(n *node.Node) (map[string]types.AttributeValue, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, errors.NewUnknownError("encode node", err)
	}
	return attributevalue.MarshalMap(ddbNode{
		PK:       r.nodePK(n.UUID),
		SK:       skMetadata,
		NodeUUID: n.UUID,
		NodeFID:  n.FID,
		Parent:   n.Parent,
		Mimetype: n.Mimetype,
		Data:     string(data),
	})
}

// Add writes the node item, plus the fid guard when a fid is present, in a
// single transaction conditioned on neither existing yet.
func (r *NodeRepository) Add(ctx context.Context, n *node.Node) error {
	nodeItem, err := r.marshalNode(n)
	if err != nil {
		return err
	}

	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                nodeItem,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		},
	}}
	if n.FID != "" {
		guard, err := attributevalue.MarshalMap(ddbFidGuard{PK: r.fidPK(n.FID), SK: skFid, NodeUUID: n.UUID})
		if err != nil {
			return errors.NewUnknownError("encode fid guard", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                guard,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			},
		})
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if stderrors.As(err, &canceled) {
			return errors.NewConflictError("node or fid already exists: " + n.UUID)
		}
		return errors.NewUnknownError("create node", err)
	}
	return nil
}

// Update replaces the node item and reconciles the fid guard in one
// transaction.
func (r *NodeRepository) Update(ctx context.Context, n *node.Node) error {
	current, err := r.GetByID(ctx, n.UUID)
	if err != nil {
		return err
	}

	nodeItem, err := r.marshalNode(n)
	if err != nil {
		return err
	}

	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                nodeItem,
			ConditionExpression: aws.String("attribute_exists(PK)"),
		},
	}}
	if current.FID != "" && current.FID != n.FID {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{TableName: aws.String(r.tableName), Key: r.fidKey(current.FID)},
		})
	}
	if n.FID != "" && current.FID != n.FID {
		guard, err := attributevalue.MarshalMap(ddbFidGuard{PK: r.fidPK(n.FID), SK: skFid, NodeUUID: n.UUID})
		if err != nil {
			return errors.NewUnknownError("encode fid guard", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                guard,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			},
		})
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if stderrors.As(err, &canceled) {
			return errors.NewConflictError("fid already in use: " + n.FID)
		}
		return errors.NewUnknownError("update node", err)
	}
	return nil
}

// Delete removes the node item and its fid guard.
func (r *NodeRepository) Delete(ctx context.Context, uuid string) error {
	current, err := r.GetByID(ctx, uuid)
	if err != nil {
		return err
	}

	items := []types.TransactWriteItem{{
		Delete: &types.Delete{TableName: aws.String(r.tableName), Key: r.nodeKey(uuid)},
	}}
	if current.FID != "" {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{TableName: aws.String(r.tableName), Key: r.fidKey(current.FID)},
		})
	}

	if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return errors.NewUnknownError("delete node", err)
	}
	return nil
}

// GetByID fetches the node item by primary key.
func (r *NodeRepository) GetByID(ctx context.Context, uuid string) (*node.Node, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       r.nodeKey(uuid),
	})
	if err != nil {
		return nil, errors.NewUnknownError("get node", err)
	}
	if out.Item == nil {
		return nil, errors.NewNodeNotFoundError(uuid)
	}
	return unmarshalNode(out.Item)
}

// GetByFid resolves the fid guard item, then fetches the node.
func (r *NodeRepository) GetByFid(ctx context.Context, fid string) (*node.Node, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       r.fidKey(fid),
	})
	if err != nil {
		return nil, errors.NewUnknownError("get fid", err)
	}
	if out.Item == nil {
		return nil, errors.NewNodeNotFoundError(fid)
	}
	var guard ddbFidGuard
	if err := attributevalue.UnmarshalMap(out.Item, &guard); err != nil {
		return nil, errors.NewUnknownError("decode fid guard", err)
	}
	return r.GetByID(ctx, guard.NodeUUID)
}

// Filter scans the tenant's node partition and evaluates the filters in
// memory. The filter vocabulary does not map onto DynamoDB expressions, so
// selectivity comes from the PK prefix only.
func (r *NodeRepository) Filter(ctx context.Context, f filters.Filters, page repository.PageRequest) (*repository.NodePage, error) {
	expr, err := expression.NewBuilder().
		WithFilter(expression.Name("PK").BeginsWith(fmt.Sprintf("TENANT#%s#NODE#", r.tenant))).
		Build()
	if err != nil {
		return nil, errors.NewUnknownError("build scan expression", err)
	}

	var matched []*node.Node
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.NewUnknownError("scan nodes", err)
		}
		for _, item := range out.Items {
			n, err := unmarshalNode(item)
			if err != nil {
				return nil, err
			}
			ok, err := f.IsSatisfiedBy(n)
			if err != nil {
				return nil, err
			}
			if ok {
				matched = append(matched, n)
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Title != matched[j].Title {
			return matched[i].Title < matched[j].Title
		}
		return matched[i].UUID < matched[j].UUID
	})
	return repository.PageOf(matched, page), nil
}

func unmarshalNode(item map[string]types.AttributeValue) (*node.Node, error) {
	var row ddbNode
	if err := attributevalue.UnmarshalMap(item, &row); err != nil {
		return nil, errors.NewUnknownError("decode node row", err)
	}
	var n node.Node
	if err := json.Unmarshal([]byte(row.Data), &n); err != nil {
		return nil, errors.NewUnknownError("decode node document", err)
	}
	return &n, nil
}

var _ repository.NodeRepository = (*NodeRepository)(nil)
