package corpus

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LoadOptions configures directory based corpus assembly.
type LoadOptions struct {
	Source   TextSource
	Workers  int
	Logger   *zap.Logger
	Progress func(message string)
}

// LoadDirectory assembles a corpus from root, where every sub-directory is a
// profession and every supported file within it is a résumé. Files the source
// cannot read, or that yield no text, become Failed samples.
func LoadDirectory(ctx context.Context, fs afero.Fs, root string, opts LoadOptions) (*Corpus, error) {
	if opts.Source == nil {
		opts.Source = NewPlainText(fs)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, fmt.Errorf("read corpus directory: %w", err)
	}

	var professions []string
	for _, entry := range entries {
		if entry.IsDir() {
			professions = append(professions, entry.Name())
		}
	}

	perProfession := make([][]Sample, len(professions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, profession := range professions {
		g.Go(func() error {
			if opts.Progress != nil {
				opts.Progress(fmt.Sprintf("processing profession %s", profession))
			}
			samples, err := loadProfession(ctx, fs, filepath.Join(root, profession), profession, opts)
			if err != nil {
				return err
			}
			perProfession[i] = samples
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c := &Corpus{Professions: professions}
	for _, samples := range perProfession {
		c.Samples = append(c.Samples, samples...)
	}
	return c, nil
}

func loadProfession(ctx context.Context, fs afero.Fs, dir, profession string, opts LoadOptions) ([]Sample, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read profession %s: %w", profession, err)
	}

	var samples []Sample
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() || !opts.Source.Supports(path) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sample := Sample{Name: entry.Name(), Profession: profession, Status: Success}
		text, err := opts.Source.ExtractAndClean(ctx, path)
		switch {
		case err != nil:
			opts.Logger.Warn("text extraction failed",
				zap.String("profession", profession),
				zap.String("file", entry.Name()),
				zap.Error(err),
			)
			sample.Status = Failed
		case text == "":
			sample.Status = Failed
		default:
			sample.Text = text
		}

		opts.Logger.Debug("sample processed",
			zap.String("profession", profession),
			zap.String("file", entry.Name()),
			zap.String("status", string(sample.Status)),
		)
		samples = append(samples, sample)
	}

	return samples, nil
}
