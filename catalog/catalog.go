// Package catalog builds the derived Job -> Category -> File tree from the
// reports bucket and the address annotation. Nothing here is persisted;
// every view re-aggregates from scratch.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bbnconsulting/report-portal/annotation"
	"github.com/bbnconsulting/report-portal/models"
	"github.com/bbnconsulting/report-portal/storage"
)

// listConcurrency bounds the per-job listing fan-out so a large bucket does
// not hammer the store with one request per folder at once.
const listConcurrency = 4

// placeholderName is the zero byte marker some stores create for otherwise
// empty folders. It is never a report.
const placeholderName = ".emptyFolderPlaceholder"

// Aggregator composes storage listings with the address annotation.
type Aggregator struct {
	objects     storage.ObjectStore
	annotations *annotation.Store
	logger      *zap.Logger
}

func NewAggregator(objects storage.ObjectStore, annotations *annotation.Store, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		objects:     objects,
		annotations: annotations,
		logger:      logger,
	}
}

// Build aggregates the full catalog: every top level key matching the job
// code pattern, with its category folders and their files. Categories with
// no files are omitted from the full view. A listing failure below the top
// level degrades to an empty scope and the build continues.
func (a *Aggregator) Build(ctx context.Context) ([]models.CatalogEntry, error) {
	top, err := a.objects.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var jobs []string

	for _, item := range top {
		if models.IsJobCode(item.Name) {
			jobs = append(jobs, item.Name)
		}
	}

	addresses := a.annotations.Load(ctx)

	entries := make([]models.CatalogEntry, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)

	for i, job := range jobs {
		g.Go(func() error {
			entries[i] = models.CatalogEntry{
				Job:     job,
				Address: addresses[job],
				Groups:  a.listJobGroups(gctx, job, false),
			}

			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Keep only jobs that still have files after dropping empty groups.
	out := entries[:0]

	for i := range entries {
		if len(entries[i].Groups) > 0 {
			out = append(out, entries[i])
		}
	}

	return out, nil
}

// BuildJob aggregates the scoped view of one job. Unlike the full catalog it
// probes exactly the fixed category set and keeps empty groups, so the
// caller always sees all four categories.
func (a *Aggregator) BuildJob(ctx context.Context, jobCode string) (models.CatalogEntry, error) {
	if err := models.ValidateJobCode(jobCode); err != nil {
		return models.CatalogEntry{}, err
	}

	addresses := a.annotations.Load(ctx)

	entry := models.CatalogEntry{
		Job:     jobCode,
		Address: addresses[jobCode],
	}

	groups := make([]models.CategoryGroup, len(models.Categories()))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)

	for i, category := range models.Categories() {
		g.Go(func() error {
			groups[i] = models.CategoryGroup{
				Category: category,
				Files:    a.listCategoryFiles(gctx, jobCode, category),
			}

			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return models.CatalogEntry{}, err
	}

	entry.Groups = groups

	return entry, nil
}

// listJobGroups lists the category folders actually present under a job.
// When includeEmpty is false, categories without files are dropped.
func (a *Aggregator) listJobGroups(ctx context.Context, job string, includeEmpty bool) []models.CategoryGroup {
	cats, err := a.objects.List(ctx, job)
	if err != nil {
		a.logger.Warn("category listing failed, treating job as empty",
			zap.String("job", job), zap.Error(err))

		return nil
	}

	var groups []models.CategoryGroup

	for _, cat := range cats {
		if !cat.IsFolder {
			continue
		}

		files := a.listFiles(ctx, job+"/"+cat.Name, labelForFolder(cat.Name))
		if len(files) == 0 && !includeEmpty {
			continue
		}

		groups = append(groups, models.CategoryGroup{
			Category: labelForFolder(cat.Name),
			Files:    files,
		})
	}

	return groups
}

// listCategoryFiles probes both physical folder forms of a category: the
// space separated label and the slugified legacy form. Results are unioned;
// duplicates by name keep the labelled form.
func (a *Aggregator) listCategoryFiles(ctx context.Context, job, category string) []models.FileRecord {
	files := a.listFiles(ctx, job+"/"+category, category)

	slug := models.CategorySlug(category)
	if slug == category {
		return files
	}

	seen := make(map[string]struct{}, len(files))
	for i := range files {
		seen[files[i].Name] = struct{}{}
	}

	for _, f := range a.listFiles(ctx, job+"/"+slug, category) {
		if _, ok := seen[f.Name]; ok {
			continue
		}

		files = append(files, f)
	}

	return files
}

// listFiles lists the leaf objects under one folder, dropping pseudo-folder
// markers, and derives the public URL of each file. A listing failure
// degrades to an empty scope.
func (a *Aggregator) listFiles(ctx context.Context, prefix, category string) []models.FileRecord {
	items, err := a.objects.List(ctx, prefix)
	if err != nil {
		a.logger.Warn("file listing failed, treating folder as empty",
			zap.String("prefix", prefix), zap.Error(err))

		return nil
	}

	var files []models.FileRecord

	for _, item := range items {
		if item.IsFolder || strings.HasSuffix(item.Name, "/") || item.Name == placeholderName {
			continue
		}

		path := prefix + "/" + item.Name

		files = append(files, models.FileRecord{
			Name:     item.Name,
			Path:     path,
			URL:      a.objects.PublicURL(path),
			Category: category,
		})
	}

	return files
}

// labelForFolder maps a physical folder name back to its category label when
// the folder uses the legacy slug form.
func labelForFolder(folder string) string {
	for _, c := range models.Categories() {
		if folder == c || folder == models.CategorySlug(c) {
			return c
		}
	}

	return folder
}

// Search filters an aggregated tree case-insensitively: files survive when
// their name or category contains needle, and a job whose code or address
// matches is retained unfiltered. Jobs left with no files and no job match
// are dropped entirely.
func Search(tree []models.CatalogEntry, needle string) []models.CatalogEntry {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return tree
	}

	var out []models.CatalogEntry

	for i := range tree {
		entry := tree[i]

		jobMatches := strings.Contains(strings.ToLower(entry.Job), needle) ||
			strings.Contains(strings.ToLower(entry.Address), needle)

		if jobMatches {
			out = append(out, entry)

			continue
		}

		var groups []models.CategoryGroup

		for _, group := range entry.Groups {
			catMatches := strings.Contains(strings.ToLower(group.Category), needle)

			var files []models.FileRecord

			for _, f := range group.Files {
				if catMatches || strings.Contains(strings.ToLower(f.Name), needle) {
					files = append(files, f)
				}
			}

			if len(files) > 0 {
				groups = append(groups, models.CategoryGroup{Category: group.Category, Files: files})
			}
		}

		if len(groups) > 0 {
			out = append(out, models.CatalogEntry{Job: entry.Job, Address: entry.Address, Groups: groups})
		}
	}

	return out
}
