package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	logger "github.com/Financial-Times/go-logger"
	cli "github.com/jawher/mow.cli"
	_ "github.com/joho/godotenv/autoload"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/sethgrid/pester"

	"github.com/Financial-Times/thesaurus-mapping-extractor/crawler"
	"github.com/Financial-Times/thesaurus-mapping-extractor/dynamodb"
	"github.com/Financial-Times/thesaurus-mapping-extractor/evs"
	"github.com/Financial-Times/thesaurus-mapping-extractor/health"
	"github.com/Financial-Times/thesaurus-mapping-extractor/mapping"
	"github.com/Financial-Times/thesaurus-mapping-extractor/output"
	"github.com/Financial-Times/thesaurus-mapping-extractor/pipeline"
	"github.com/Financial-Times/thesaurus-mapping-extractor/s3"
	"github.com/Financial-Times/thesaurus-mapping-extractor/termcache"
)

const (
	appSystemCode     = "thesaurus-mapping-extractor"
	appName           = "Thesaurus Mapping Extractor"
	appDescription    = "Extracts display name and friendly URL mappings from the NCI Thesaurus"
	healthConceptCode = "C7057"
	cachePrefix       = "thesaurus-cache"
)

func main() {
	app := cli.App(appSystemCode, appDescription)

	evsBaseURL := app.String(cli.StringOpt{
		Name:   "evs-base-url",
		Value:  "https://evsrestapi.nci.nih.gov",
		Desc:   "Base URL of the EVS REST API",
		EnvVar: "EVS_BASE_URL",
	})
	treeSpec := app.String(cli.StringOpt{
		Name:   "trees",
		Value:  "diseases:C7057:disease",
		Desc:   "Comma separated name:rootCode:domain subtrees to extract, domain is disease or intervention",
		EnvVar: "TREES",
	})
	outputDir := app.String(cli.StringOpt{
		Name:   "output-dir",
		Value:  ".",
		Desc:   "Directory the mapping files are written to",
		EnvVar: "OUTPUT_DIR",
	})
	cacheDir := app.String(cli.StringOpt{
		Name:   "cache-dir",
		Value:  "",
		Desc:   "Directory of per-concept JSON files used as a lookaside cache",
		EnvVar: "CACHE_DIR",
	})
	cacheBoltFile := app.String(cli.StringOpt{
		Name:   "cache-bolt-file",
		Value:  "",
		Desc:   "Bolt database file used as a lookaside cache",
		EnvVar: "CACHE_BOLT_FILE",
	})
	cacheBucket := app.String(cli.StringOpt{
		Name:   "cache-bucket",
		Value:  "",
		Desc:   "S3 bucket used as a lookaside cache",
		EnvVar: "CACHE_BUCKET",
	})
	cacheTable := app.String(cli.StringOpt{
		Name:   "cache-table",
		Value:  "",
		Desc:   "DynamoDB table used as a lookaside cache",
		EnvVar: "CACHE_TABLE",
	})
	awsRegion := app.String(cli.StringOpt{
		Name:   "aws-region",
		Value:  "eu-west-1",
		Desc:   "AWS Region to connect to",
		EnvVar: "AWS_REGION",
	})
	publishBucket := app.String(cli.StringOpt{
		Name:   "publish-bucket",
		Value:  "",
		Desc:   "S3 bucket the mapping files are uploaded to. Leave empty to only write locally",
		EnvVar: "PUBLISH_BUCKET",
	})
	publishPrefix := app.String(cli.StringOpt{
		Name:   "publish-prefix",
		Value:  "mappings",
		Desc:   "Key prefix for published mapping files",
		EnvVar: "PUBLISH_PREFIX",
	})
	maxConcurrentFetches := app.Int(cli.IntOpt{
		Name:   "max-concurrent-fetches",
		Value:  16,
		Desc:   "Maximum number of concurrent EVS requests, 0 for no limit",
		EnvVar: "MAX_CONCURRENT_FETCHES",
	})
	maxURLLength := app.Int(cli.IntOpt{
		Name:   "max-url-length",
		Value:  mapping.DefaultMaxURLLength,
		Desc:   "Friendly URLs longer than this are written to the too-long file",
		EnvVar: "MAX_URL_LENGTH",
	})
	httpTimeout := app.Int(cli.IntOpt{
		Name:   "http-timeout",
		Value:  30,
		Desc:   "Timeout in seconds for a single EVS request",
		EnvVar: "HTTP_TIMEOUT",
	})
	httpRetries := app.Int(cli.IntOpt{
		Name:   "http-retries",
		Value:  5,
		Desc:   "Retries for failed EVS requests",
		EnvVar: "HTTP_RETRIES",
	})
	adminPort := app.Int(cli.IntOpt{
		Name:   "admin-port",
		Value:  0,
		Desc:   "Port for the admin endpoints while the extraction runs, 0 to disable",
		EnvVar: "ADMIN_PORT",
	})
	requestLoggingEnabled := app.Bool(cli.BoolOpt{
		Name:   "requestLoggingEnabled",
		Value:  false,
		Desc:   "Whether to log admin requests",
		EnvVar: "REQUEST_LOGGING_ENABLED",
	})
	logMetrics := app.Bool(cli.BoolOpt{
		Name:   "log-metrics",
		Value:  false,
		Desc:   "Whether to print the fetch metrics when the run finishes",
		EnvVar: "LOG_METRICS",
	})
	logLevel := app.String(cli.StringOpt{
		Name:   "log-level",
		Value:  "INFO",
		Desc:   "Log level",
		EnvVar: "LOG_LEVEL",
	})
	glossaryDir := app.String(cli.StringOpt{
		Name:   "glossary-dir",
		Value:  "source",
		Desc:   "Directory holding {name}.txt glossary exports",
		EnvVar: "GLOSSARY_DIR",
	})
	glossaries := app.String(cli.StringOpt{
		Name:   "glossaries",
		Value:  "",
		Desc:   "Comma separated glossaries to build URL mappings for, e.g. englishGlossary,SpanishGlossary,englishGenetic",
		EnvVar: "GLOSSARIES",
	})
	terms := app.String(cli.StringOpt{
		Name:   "terms",
		Value:  "",
		Desc:   "Comma separated term lists to build URL mappings for and check against EVS, e.g. drugs",
		EnvVar: "TERMS",
	})

	logger.InitDefaultLogger(appSystemCode)

	app.Action = func() {
		logger.InitLogger(appSystemCode, *logLevel)

		trees, err := pipeline.ParseTrees(*treeSpec)
		if err != nil {
			logger.WithError(err).Error("Invalid tree configuration")
			cli.Exit(1)
		}

		evsClient, err := evs.NewClient(*evsBaseURL, getResilientClient(*httpTimeout, *httpRetries), healthConceptCode)
		if err != nil {
			logger.WithError(err).Error("Error creating EVS client")
			cli.Exit(1)
		}
		checks := []fthealth.Check{evsClient.Healthcheck()}

		lookaside, lookasideChecks, closer, err := newLookaside(*cacheTable, *cacheBucket, *cacheBoltFile, *cacheDir, *awsRegion)
		if err != nil {
			logger.WithError(err).Error("Error creating lookaside cache")
			cli.Exit(1)
		}
		// cli.Exit skips deferred calls
		exit := func(code int) {
			if closer != nil {
				if err := closer.Close(); err != nil {
					logger.WithError(err).Warn("Could not close lookaside cache")
				}
			}
			cli.Exit(code)
		}
		checks = append(checks, lookasideChecks...)

		var publisher pipeline.Publisher
		if *publishBucket != "" {
			s3Client, err := s3.NewClient(*publishBucket, *publishPrefix, *awsRegion)
			if err != nil {
				logger.WithError(err).Error("Error creating S3 client")
				exit(1)
			}
			publisher = s3Client
			checks = append(checks, s3Client.Healthcheck())
		}

		store := evs.NewStore(evsClient, evs.StoreOptions{
			MaxConcurrentFetches: int64(*maxConcurrentFetches),
			Lookaside:            lookaside,
			Registry:             metrics.DefaultRegistry,
		})

		writer, err := output.NewWriter(*outputDir)
		if err != nil {
			logger.WithError(err).Error("Error creating output writer")
			exit(1)
		}

		svc := pipeline.NewService(store, crawler.New(store, crawler.Options{}), writer, publisher, pipeline.Config{
			Filter: mapping.Filter{
				MaxURLLength: *maxURLLength,
				Denylist:     mapping.DefaultDenylist,
			},
			GlossaryDir: *glossaryDir,
			Glossaries:  splitList(*glossaries),
			Terms:       splitList(*terms),
		})

		if *adminPort > 0 {
			healthService := health.NewHealthService(appSystemCode, appName, appDescription, checks...)
			serveMux := health.RegisterHandlers(healthService, store, metrics.DefaultRegistry, *requestLoggingEnabled)
			go func() {
				logger.Infof("Admin endpoints listening on %d", *adminPort)
				if err := http.ListenAndServe(fmt.Sprintf(":%d", *adminPort), serveMux); err != nil {
					logger.WithError(err).Error("Admin server stopped")
				}
			}()
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
			<-ch
			logger.Warn("Received termination signal, cancelling extraction")
			cancel()
		}()

		start := time.Now()
		summary, err := svc.Run(ctx, trees)
		if *logMetrics {
			metrics.WriteOnce(metrics.DefaultRegistry, os.Stdout)
		}
		if err != nil {
			logger.WithTransactionID(summary.TransactionID).WithError(err).Error("Thesaurus mapping extraction failed")
			exit(1)
		}
		if !summary.OK() {
			logger.WithTransactionID(summary.TransactionID).Error("Thesaurus mapping extraction finished with invalid mappings")
			exit(1)
		}
		logger.WithTransactionID(summary.TransactionID).Infof("Thesaurus mapping extraction finished in %v", time.Since(start))
		exit(0)
	}

	if err := app.Run(os.Args); err != nil {
		logger.WithError(err).Error("Could not start the application")
		cli.Exit(1)
	}
}

// newLookaside picks at most one lookaside cache, preferring shared stores over
// local ones.
func newLookaside(table, bucket, boltFile, dir, awsRegion string) (evs.Lookaside, []fthealth.Check, io.Closer, error) {
	switch {
	case table != "":
		c, err := dynamodb.NewClient(table, awsRegion)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.WithField("table", table).Info("Using DynamoDB lookaside cache")
		return c, []fthealth.Check{c.Healthcheck()}, nil, nil
	case bucket != "":
		c, err := s3.NewClient(bucket, cachePrefix, awsRegion)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.WithField("bucket", bucket).Info("Using S3 lookaside cache")
		return c, []fthealth.Check{c.Healthcheck()}, nil, nil
	case boltFile != "":
		c, err := termcache.OpenBoltCache(boltFile, termcache.DefaultBucket)
		if err != nil {
			return nil, nil, nil, err
		}
		return c, []fthealth.Check{c.Healthcheck()}, c, nil
	case dir != "":
		c, err := termcache.NewDirCache(dir)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.WithField("dir", dir).Info("Using directory lookaside cache")
		return c, nil, nil, nil
	}
	return nil, nil, nil, nil
}

func getResilientClient(timeoutSeconds int, retries int) *pester.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 32,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	c := &http.Client{
		Transport: tr,
		Timeout:   time.Duration(timeoutSeconds) * time.Second,
	}
	client := pester.NewExtendedClient(c)
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = retries
	client.Concurrency = 1

	return client
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
