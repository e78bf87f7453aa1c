package pipeline

import (
	"context"
	"path/filepath"

	logger "github.com/Financial-Times/go-logger"
	transactionidutils "github.com/Financial-Times/transactionid-utils-go"
	"github.com/pkg/errors"

	"github.com/Financial-Times/thesaurus-mapping-extractor/evs"
	"github.com/Financial-Times/thesaurus-mapping-extractor/glossary"
	"github.com/Financial-Times/thesaurus-mapping-extractor/mapping"
)

type Crawler interface {
	Crawl(ctx context.Context, rootCode string) ([]*evs.Concept, error)
}

type Writer interface {
	WriteNameMappings(name string, entries []*mapping.Mapping) (string, error)
	WriteURLMappings(name string, entries []*mapping.Mapping) (string, error)
	WriteTooLong(name string, entries []*mapping.Mapping) (string, error)
}

// Publisher copies a written file somewhere else, e.g. an S3 bucket.
type Publisher interface {
	Publish(ctx context.Context, path string) error
}

type Config struct {
	Filter mapping.Filter
	// GlossaryDir holds {name}.txt glossary exports.
	GlossaryDir string
	Glossaries  []string
	// Terms are glossaries whose entries are also checked against EVS.
	Terms []string
}

type Service struct {
	store     *evs.Store
	crawler   Crawler
	writer    Writer
	publisher Publisher
	config    Config
}

func NewService(store *evs.Store, crawler Crawler, writer Writer, publisher Publisher, config Config) *Service {
	return &Service{
		store:     store,
		crawler:   crawler,
		writer:    writer,
		publisher: publisher,
		config:    config,
	}
}

// Run extracts every tree and then every configured glossary. Invalid mappings are
// recorded in the summary and nothing is written for them; crawl, IO and publish
// failures stop the run.
func (s *Service) Run(ctx context.Context, trees []Tree) (Summary, error) {
	summary := Summary{
		TransactionID: transactionidutils.NewTransactionID(),
		Terms:         map[string]glossary.TermReport{},
	}
	log := logger.WithTransactionID(summary.TransactionID)
	log.WithField("trees", len(trees)).Info("Starting thesaurus mapping extraction")

	err := s.run(ctx, trees, &summary)
	summary.Fetches = s.store.Stats()
	if err != nil {
		return summary, err
	}

	log.WithField("remoteReads", summary.Fetches.RemoteReads).
		WithField("cacheHits", summary.Fetches.CacheHits).
		WithField("lookasideHits", summary.Fetches.LookasideHits).
		WithField("ok", summary.OK()).
		Info("Finished thesaurus mapping extraction")
	return summary, nil
}

func (s *Service) run(ctx context.Context, trees []Tree, summary *Summary) error {
	for _, tree := range trees {
		res, err := s.runTree(ctx, summary.TransactionID, tree)
		summary.Trees = append(summary.Trees, res)
		if err != nil {
			return errors.Wrapf(err, "extracting %s", tree.Name)
		}
	}

	for _, name := range s.config.Glossaries {
		terms, err := s.readGlossary(name)
		if err != nil {
			return err
		}
		res, err := s.processGlossary(ctx, name, terms)
		summary.Glossaries = append(summary.Glossaries, res)
		if err != nil {
			return errors.Wrapf(err, "processing glossary %s", name)
		}
	}

	for _, name := range s.config.Terms {
		terms, err := s.readGlossary(name)
		if err != nil {
			return err
		}
		report, err := glossary.CheckTerms(ctx, s.store, terms)
		if err != nil {
			return errors.Wrapf(err, "checking terms %s", name)
		}
		summary.Terms[name] = report

		res, err := s.processGlossary(ctx, name, terms)
		summary.Glossaries = append(summary.Glossaries, res)
		if err != nil {
			return errors.Wrapf(err, "processing terms %s", name)
		}
	}
	return nil
}

func (s *Service) runTree(ctx context.Context, tid string, tree Tree) (TreeResult, error) {
	res := TreeResult{Tree: tree}
	log := logger.WithTransactionID(tid).WithField("tree", tree.Name)

	concepts, err := s.crawler.Crawl(ctx, tree.RootCode)
	if err != nil {
		return res, err
	}
	res.Concepts = len(concepts)

	table := mapping.Rollup(concepts, tree.Domain)
	res.Mappings = table.Len()

	accepted, tooLong := s.config.Filter.Apply(table.Entries())
	res.Accepted = len(accepted)
	res.TooLong = len(tooLong)

	res.Valid, res.Problems = mapping.Validate(accepted)
	if !res.Valid {
		log.WithField("problems", len(res.Problems)).Error("Mappings failed validation, nothing written")
		return res, nil
	}

	for _, write := range []func() (string, error){
		func() (string, error) { return s.writer.WriteNameMappings(tree.Name, accepted) },
		func() (string, error) { return s.writer.WriteURLMappings(tree.Name, accepted) },
		func() (string, error) { return s.writer.WriteTooLong(tree.Name, tooLong) },
	} {
		path, err := write()
		if err != nil {
			return res, err
		}
		res.Files = append(res.Files, path)
	}

	if err := s.publish(ctx, res.Files); err != nil {
		return res, err
	}

	log.WithField("concepts", res.Concepts).
		WithField("mappings", res.Mappings).
		WithField("tooLong", res.TooLong).
		Infof("Extracted %s from %s", tree.Name, tree.RootCode)
	return res, nil
}

func (s *Service) readGlossary(name string) ([]glossary.Term, error) {
	return glossary.ReadFile(filepath.Join(s.config.GlossaryDir, name+".txt"))
}

func (s *Service) processGlossary(ctx context.Context, name string, terms []glossary.Term) (glossary.Result, error) {
	res, err := glossary.ProcessGlossary(name, terms, s.config.Filter, s.writer)
	if err != nil {
		return res, err
	}
	return res, s.publish(ctx, res.Files)
}

func (s *Service) publish(ctx context.Context, files []string) error {
	if s.publisher == nil {
		return nil
	}
	for _, f := range files {
		if err := s.publisher.Publish(ctx, f); err != nil {
			return err
		}
	}
	return nil
}
