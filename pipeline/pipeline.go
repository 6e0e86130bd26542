// Package pipeline runs the analysis end to end: load, recode, build the
// design, filter, tabulate, fit and write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"workreq/config"
	"workreq/extract"
	"workreq/logger"
	"workreq/output"
	"workreq/regress"
	"workreq/store"
	"workreq/survey"
)

// Pipeline holds the configuration of one run.
type Pipeline struct {
	cfg *config.Config
	log *logger.Logger
}

func New(cfg *config.Config, log *logger.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, log: log}
}

// Run processes every variant that has an extract path, writes the
// results under the output directory and, when configured, saves the
// run to PostgreSQL.
//
// A design error aborts the whole run. A reshape error only skips its
// variant. Model failures are reported, never fatal.
func (p *Pipeline) Run(ctx context.Context) (*store.Run, error) {
	run := store.NewRun(time.Now().UTC())
	log := p.log.With("run", run.ID.String())

	if dump, err := p.cfg.Dump(); err == nil {
		run.Config = dump
	}

	for _, v := range p.cfg.Variants() {
		if v.Path == "" {
			log.Debug("variant skipped, no extract", "variant", v.Name)
			continue
		}
		vlog := log.With("variant", v.Name)

		start := time.Now()
		rows, err := extract.ReadFile(v.Path)
		if err != nil {
			return nil, fmt.Errorf("%s: load extract: %w", v.Name, err)
		}
		vlog.Info("extract loaded", "path", v.Path, "rows", len(rows), "columns", len(extract.ColumnNames(rows)))

		res, err := p.RunVariant(ctx, v, rows)
		if errors.Is(err, survey.ErrReshape) {
			vlog.Error("variant aborted", "error", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.Name, err)
		}

		if err := output.Write(p.cfg.OutputDir, res); err != nil {
			return nil, fmt.Errorf("%s: %w", v.Name, err)
		}
		vlog.Info("variant complete",
			"coefficients", len(res.Models),
			"tabulations", len(res.Tabs),
			"failures", len(res.Failures),
			"elapsed", time.Since(start).Round(time.Millisecond).String(),
		)
		run.Variants = append(run.Variants, res)
	}
	run.FinishedAt = time.Now().UTC()

	if p.cfg.Postgres != "" {
		if err := p.save(ctx, run); err != nil {
			return nil, err
		}
		log.Info("run saved to postgres")
	}
	return run, nil
}

func (p *Pipeline) save(ctx context.Context, run *store.Run) error {
	s, err := store.Open(ctx, p.cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	if err := s.Migrate(ctx); err != nil {
		return err
	}
	return s.SaveRun(ctx, run)
}

// RunVariant analyses one dataset variant from its raw rows.
func (p *Pipeline) RunVariant(ctx context.Context, v config.Variant, rows []survey.Row) (*output.Results, error) {
	log := p.log.With("variant", v.Name)

	if v.Reshape != nil {
		wide := len(rows)
		long, err := survey.Reshape(rows, *v.Reshape)
		if err != nil {
			return nil, fmt.Errorf("reshape: %w", err)
		}
		rows = long
		log.Info("panel reshaped", "wide", wide, "long", len(rows))
	}

	recoder := survey.NewRecoder(v.Columns, v.Rules(p.cfg.Rules))
	records := recoder.RecodeAll(rows)

	design, err := survey.NewDesign(records, v.Design)
	if err != nil {
		return nil, fmt.Errorf("build design: %w", err)
	}
	if n := design.LonelyStrata(); n > 0 {
		log.Info("strata with a single PSU", "count", n, "policy", string(design.Options().Singleton))
	}
	log.Debug("design built",
		"records", design.Len(),
		"psus", design.NumPSU(),
		"strata", design.NumStrata(),
	)

	elig := p.cfg.Eligibility
	eligible := design.Subset(elig.Predicate())
	counts := survey.CrossTab(survey.FilterRecords(records, elig.Eligible), v.Columns.State, v.Columns.Year)
	log.Info("eligible sample", "records", eligible.Len(), "weighted", eligible.TotalWeight())

	res := &output.Results{
		Variant: v.Name,
		Counts:  output.CountRows(v.Name, counts),
	}

	for _, outcome := range p.cfg.Outcomes {
		cells, err := survey.Tabulate(eligible, survey.TabSpec{
			Outcome: outcome,
			Group:   survey.VarIntervention,
			Period:  v.Columns.Year,
		})
		if err != nil {
			log.Warn("tabulation skipped", "outcome", outcome, "error", err)
			continue
		}
		res.Tabs = append(res.Tabs, output.TabRows(v.Name, cells)...)
	}

	specs, err := regress.ModelTable(p.cfg.Outcomes, regress.Families)
	if err != nil {
		return nil, err
	}
	report, err := regress.FitAll(ctx, eligible, specs, p.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("fit models: %w", err)
	}
	for _, f := range report.Failures {
		log.Warn("model not fitted", "outcome", f.Outcome, "family", string(f.Family), "error", f.Err)
	}
	for _, r := range report.Results {
		if c, ok := r.Coefficient(regress.InteractionTerm(r.Family)); ok {
			log.Debug("model fitted",
				"outcome", r.Outcome, "family", string(r.Family),
				"estimate", c.Estimate, "se", c.SE, "p", c.P, "n", r.N,
			)
		}
	}

	res.Models = output.ModelRows(v.Name, report.Results)
	res.Failures = output.FailureRows(v.Name, report.Failures)
	return res, nil
}
