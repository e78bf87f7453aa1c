package dynamodb

import (
	"context"
	"fmt"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	logger "github.com/Financial-Times/go-logger"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
)

type cachedConcept struct {
	ConceptID string `dynamodbav:"conceptId"`
	Payload   string `dynamodbav:"payload"`
	CachedAt  string `dynamodbav:"cachedAt"`
}

// DynamoClient keeps concept payloads in a table keyed by conceptId.
type DynamoClient struct {
	table string
	svc   dynamodbiface.DynamoDBAPI
	now   func() time.Time
}

func NewClient(table string, awsRegion string) (*DynamoClient, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(awsRegion)})
	if err != nil {
		return nil, err
	}
	return newClient(dynamodb.New(sess), table), nil
}

func newClient(svc dynamodbiface.DynamoDBAPI, table string) *DynamoClient {
	return &DynamoClient{table: table, svc: svc, now: time.Now}
}

func (c *DynamoClient) Get(ctx context.Context, code string) ([]byte, bool, error) {
	result, err := c.svc.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		Key: map[string]*dynamodb.AttributeValue{
			"conceptId": {
				S: aws.String(code),
			},
		},
		TableName: aws.String(c.table),
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading %s from table %s", code, c.table)
	}
	if result.Item == nil {
		return nil, false, nil
	}

	var item cachedConcept
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return nil, false, errors.Wrapf(err, "decoding %s from table %s", code, c.table)
	}
	return []byte(item.Payload), true, nil
}

func (c *DynamoClient) Put(ctx context.Context, code string, data []byte) error {
	item, err := dynamodbattribute.MarshalMap(cachedConcept{
		ConceptID: code,
		Payload:   string(data),
		CachedAt:  c.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errors.Wrapf(err, "encoding %s", code)
	}
	_, err = c.svc.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		Item:      item,
		TableName: aws.String(c.table),
	})
	return errors.Wrapf(err, "writing %s to table %s", code, c.table)
}

func (c *DynamoClient) Healthcheck() fthealth.Check {
	return fthealth.Check{
		ID:               "check-dynamodb-table",
		BusinessImpact:   "Concepts will be re-read from EVS, slowing the extraction down",
		Name:             "Check connectivity to the DynamoDB concept cache",
		PanicGuide:       "https://dewey.in.ft.com/view/system/thesaurus-mapping-extractor",
		Severity:         3,
		TechnicalSummary: fmt.Sprintf("Cannot describe the DynamoDB table %s", c.table),
		Checker: func() (string, error) {
			_, err := c.svc.DescribeTable(&dynamodb.DescribeTableInput{TableName: aws.String(c.table)})
			if err != nil {
				logger.WithError(err).Error("Got error running DynamoDB health check")
				return "Cannot describe DynamoDB table", err
			}
			return "", nil
		},
	}
}
