package termcache

import (
	"context"
	"fmt"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	logger "github.com/Financial-Times/go-logger"
	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

const DefaultBucket = "concepts"

// BoltCache keeps concept payloads in a single bolt database file.
type BoltCache struct {
	db     *bolt.DB
	bucket []byte
}

func OpenBoltCache(path string, bucket string) (*BoltCache, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	logger.Infof("Opening concept cache '%v'.", path)
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening cache file %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "creating cache bucket %s", bucket)
	}
	return &BoltCache{db: db, bucket: []byte(bucket)}, nil
}

func (c *BoltCache) Get(ctx context.Context, code string) ([]byte, bool, error) {
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return fmt.Errorf("cache bucket %s not found", c.bucket)
		}
		// values are only valid for the life of the transaction
		if v := b.Get([]byte(code)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, data != nil, nil
}

func (c *BoltCache) Put(ctx context.Context, code string, data []byte) error {
	return c.db.Batch(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return fmt.Errorf("cache bucket %s not found", c.bucket)
		}
		return b.Put([]byte(code), data)
	})
}

func (c *BoltCache) Count() (int, error) {
	var n int
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return fmt.Errorf("cache bucket %s not found", c.bucket)
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

func (c *BoltCache) Close() error {
	return c.db.Close()
}

func (c *BoltCache) Healthcheck() fthealth.Check {
	return fthealth.Check{
		ID:               "check-concept-cache-file",
		BusinessImpact:   "Concepts will be re-read from EVS, slowing the extraction down",
		Name:             "Check concept cache file",
		PanicGuide:       "https://dewey.in.ft.com/view/system/thesaurus-mapping-extractor",
		Severity:         3,
		TechnicalSummary: fmt.Sprintf("Cannot read the %s bucket of the concept cache file", c.bucket),
		Checker: func() (string, error) {
			n, err := c.Count()
			if err != nil {
				return "Concept cache file is not readable", err
			}
			return fmt.Sprintf("%d concepts cached", n), nil
		},
	}
}
