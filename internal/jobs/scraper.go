package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"harvest/internal/dedupe"
	"harvest/internal/extract"
	"harvest/internal/metrics"
	"harvest/internal/normalize"
	"harvest/internal/output"
)

// Fixed output keys; every run replaces them.
const (
	LinksKey     = "links/links_all_all.jsonl"
	RawKey       = "raw/raw_all_all.jsonl"
	ExtractedKey = "extracted/extracted_all_all.jsonl"
)

// Link is one matched posting URL.
type Link struct {
	Source string `json:"source"`
	URL    string `json:"url"`
}

// Scraper walks company boards, keeps the postings that pass Filter and
// writes links, raw postings and extracted summaries.
type Scraper struct {
	Getter Getter
	// API switches listing and download to the board JSON API.
	API  *APIClient
	Sink output.Sink
	Norm *normalize.Normalizer
	Log  logrus.FieldLogger
	// Model, when set, extracts each posting with a language model. A
	// posting the model fails on keeps its heuristic summary.
	Model *ModelExtractor

	Filter    Filter
	Companies []string
	// Limit caps the number of postings; <= 0 means no cap.
	Limit int

	BoardDelay   time.Duration
	PostingDelay time.Duration

	sleep func(ctx context.Context, d time.Duration) bool
}

// Result summarises a run.
type Result struct {
	Links     []string
	Raw       []RawJob
	Extracted []Extracted
	Boards    int
	Failed    int
}

// Run scans the companies in order and writes the three outputs.
func (s *Scraper) Run(ctx context.Context) (Result, error) {
	if s.Norm == nil {
		s.Norm = normalize.New(nil)
	}
	companies := s.Companies
	if len(companies) == 0 {
		companies = DefaultCompanies
	}

	var res Result
	var seen dedupe.Set[string]
	for _, comp := range companies {
		if s.full(len(res.Raw)) {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var jobs []RawJob
		if s.API != nil {
			jobs = s.viaAPI(ctx, comp, &res)
		} else {
			jobs = s.viaBoard(ctx, comp, &res)
		}
		for _, j := range jobs {
			if !s.full(len(res.Raw)) && seen.Add(j.URL) {
				res.Links = append(res.Links, j.URL)
				res.Raw = append(res.Raw, j)
			}
		}
		s.Log.WithFields(logrus.Fields{"company": comp, "matches": len(jobs)}).Info("board scanned")
		if !s.pause(ctx, s.BoardDelay) {
			return res, ctx.Err()
		}
	}

	links := make([]Link, 0, len(res.Links))
	for _, u := range res.Links {
		links = append(links, Link{Source: "greenhouse", URL: u})
	}
	if err := output.WriteJSONL(ctx, s.Sink, LinksKey, links); err != nil {
		return res, err
	}
	if err := output.WriteJSONL(ctx, s.Sink, RawKey, res.Raw); err != nil {
		return res, err
	}

	res.Extracted = make([]Extracted, 0, len(res.Raw))
	for _, raw := range res.Raw {
		res.Extracted = append(res.Extracted, s.extract(ctx, raw))
	}
	if err := output.WriteJSONL(ctx, s.Sink, ExtractedKey, res.Extracted); err != nil {
		return res, err
	}
	metrics.RecordRecords("job_posting", len(res.Extracted))
	return res, nil
}

func (s *Scraper) extract(ctx context.Context, raw RawJob) Extracted {
	log := s.Log.WithField("url", raw.URL)
	if s.Model == nil {
		ex, amb := Heuristic(s.Norm, raw)
		extract.LogAmbiguities(log, amb)
		return ex
	}

	if s.Model.Norm == nil {
		s.Model.Norm = s.Norm
	}
	ex, err := s.Model.Extract(ctx, raw)
	if err != nil {
		metrics.RecordDocument("jobs_model", "error")
		log.WithField("reason", err).Warn("model extraction failed, using heuristic")
		return ex
	}
	metrics.RecordDocument("jobs_model", "ok")
	return ex
}

func (s *Scraper) full(n int) bool { return s.Limit > 0 && n >= s.Limit }

func (s *Scraper) viaBoard(ctx context.Context, comp string, res *Result) []RawJob {
	boardURL, doc, err := ResolveBoard(ctx, s.Getter, comp)
	if err != nil {
		s.Log.WithFields(logrus.Fields{"company": comp, "reason": err}).Info("no board found")
		return nil
	}
	res.Boards++

	var out []RawJob
	for _, u := range ExtractLinks(doc, boardURL) {
		if s.full(len(res.Raw) + len(out)) {
			break
		}
		page, err := s.Getter.Get(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return out
			}
			res.Failed++
			metrics.RecordDocument("jobs", "fetch_error")
			s.Log.WithFields(logrus.Fields{"url": u, "reason": err}).Warn("skip posting")
			continue
		}
		pdoc, err := extract.ParseDocument(page.Body, page.ContentType)
		if err != nil {
			res.Failed++
			metrics.RecordDocument("jobs", "unparseable")
			s.Log.WithFields(logrus.Fields{"url": u, "reason": err}).Warn("skip posting")
			continue
		}
		if !s.Filter.Match(pdoc) {
			metrics.RecordDocument("jobs", "filtered")
			continue
		}
		metrics.RecordDocument("jobs", "ok")
		out = append(out, ParsePosting(pdoc, u, string(page.Body)))
		if !s.pause(ctx, s.PostingDelay) {
			return out
		}
	}
	return out
}

func (s *Scraper) viaAPI(ctx context.Context, comp string, res *Result) []RawJob {
	jobs, err := s.API.Jobs(ctx, comp)
	if err != nil {
		s.Log.WithFields(logrus.Fields{"company": comp, "reason": err}).Info("no board found")
		return nil
	}
	res.Boards++

	var out []RawJob
	for _, j := range jobs {
		if !s.Filter.MatchAPI(j) || !strings.Contains(j.AbsoluteURL, "greenhouse.io") {
			continue
		}
		metrics.RecordDocument("jobs", "ok")
		out = append(out, j.Raw(comp))
	}
	return out
}

func (s *Scraper) pause(ctx context.Context, d time.Duration) bool {
	if s.sleep != nil {
		return s.sleep(ctx, d)
	}
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
