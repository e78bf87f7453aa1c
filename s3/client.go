package s3

import (
	"bytes"
	"context"
	"io/ioutil"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	logger "github.com/Financial-Times/go-logger"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

const (
	conceptPrefix = "concepts"
	jsonType      = "application/json"
	textType      = "text/plain; charset=utf-8"
)

// Client stores concept payloads in a bucket and publishes mapping files to it.
type Client struct {
	s3         s3iface.S3API
	bucketName string
	prefix     string
}

func NewClient(bucketName string, prefix string, awsRegion string) (*Client, error) {
	hc := http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   20,
			TLSHandshakeTimeout:   3 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	sess, err := session.NewSession(
		&aws.Config{
			Region:     aws.String(awsRegion),
			MaxRetries: aws.Int(1),
			HTTPClient: &hc,
		})
	if err != nil {
		return nil, err
	}
	return newClient(s3.New(sess), bucketName, prefix), nil
}

func newClient(api s3iface.S3API, bucketName string, prefix string) *Client {
	return &Client{
		s3:         api,
		bucketName: bucketName,
		prefix:     strings.Trim(prefix, "/"),
	}
}

// Get reads a cached concept payload. A missing key is a miss, not an error.
func (c *Client) Get(ctx context.Context, code string) ([]byte, bool, error) {
	resp, err := c.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(c.conceptKey(code)),
	})
	if err != nil {
		if e, ok := err.(awserr.Error); ok && e.Code() == s3.ErrCodeNoSuchKey {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "reading %s from bucket %s", code, c.bucketName)
	}
	defer resp.Body.Close()

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading %s from bucket %s", code, c.bucketName)
	}
	return data, true, nil
}

func (c *Client) Put(ctx context.Context, code string, data []byte) error {
	_, err := c.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(c.conceptKey(code)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(jsonType),
	})
	return errors.Wrapf(err, "writing %s to bucket %s", code, c.bucketName)
}

// Publish uploads a produced mapping file under the client's prefix, keyed by its
// base name.
func (c *Client) Publish(ctx context.Context, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", filePath)
	}
	defer f.Close()

	key := c.key(filepath.Base(filePath))
	_, err = c.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(textType),
	})
	if err != nil {
		return errors.Wrapf(err, "publishing %s to bucket %s", key, c.bucketName)
	}
	logger.WithField("bucket", c.bucketName).WithField("key", key).Info("Published mapping file")
	return nil
}

func (c *Client) Healthcheck() fthealth.Check {
	return fthealth.Check{
		ID:               "check-s3-bucket",
		BusinessImpact:   "Mapping files cannot be published and concepts cannot be cached",
		Name:             "Check connectivity to the S3 bucket",
		PanicGuide:       "https://dewey.in.ft.com/view/system/thesaurus-mapping-extractor",
		Severity:         2,
		TechnicalSummary: "Cannot connect to the S3 bucket. If this check fails, check that Amazon S3 is available",
		Checker: func() (string, error) {
			_, err := c.s3.HeadBucket(&s3.HeadBucketInput{
				Bucket: aws.String(c.bucketName),
			})
			if err != nil {
				logger.WithError(err).Error("Got error running S3 health check")
				return "Can not perform check on S3 bucket", err
			}
			return "Access to S3 bucket ok", nil
		},
	}
}

func (c *Client) conceptKey(code string) string {
	return c.key(path.Join(conceptPrefix, code+".json"))
}

func (c *Client) key(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + "/" + name
}
