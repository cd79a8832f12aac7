package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-classifier/internal/classifier"
	"github.com/spigell/cv-classifier/internal/corpus"
	"github.com/spigell/cv-classifier/internal/history"
	"github.com/spigell/cv-classifier/internal/model"
	"github.com/spigell/cv-classifier/internal/registry"
	"github.com/spigell/cv-classifier/internal/training"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var trainCmd = &cobra.Command{
	Use:   "train <corpus-dir>",
	Short: "Train a model on a directory with one sub-directory of résumés per profession",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		train(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringP("algorithm", "a", "", "classical algorithm: random_forest, logistic_regression, svm or naive_bayes")
	trainCmd.Flags().Bool("deep", false, "train a deep-learning model with the configured backend")
	trainCmd.Flags().StringP("name", "n", "", "save the trained model under this name")
	trainCmd.Flags().StringSliceP("professions", "p", nil, "train only on these professions (default is every sub-directory)")
	trainCmd.Flags().BoolP("yes", "y", false, "overwrite an existing model without confirmation")
	addOutputFlag(trainCmd)

	viper.BindPFlag("training.algorithm", trainCmd.Flags().Lookup("algorithm"))
}

func train(cmd *cobra.Command, dir string) {
	ctx := context.Background()
	config, logger, backend, reg := setup(ctx)

	deepFamily, _ := cmd.Flags().GetBool("deep")
	name, _ := cmd.Flags().GetString("name")
	yes, _ := cmd.Flags().GetBool("yes")
	professions, _ := cmd.Flags().GetStringSlice("professions")

	family := model.Classical
	var algorithm classifier.Algorithm
	if deepFamily {
		family = model.DeepLearning
		if backend == nil {
			logger.Fatal("deep-learning backend is not configured",
				zap.String("hint", "set deep.enabled and the deep.gemini section in the configuration file"))
		}
	} else {
		var err error
		if algorithm, err = classifier.ParseAlgorithm(config.Training.Algorithm); err != nil {
			logger.Fatal("choosing an algorithm", zap.Error(err))
		}
	}

	if name != "" {
		if err := registry.ValidateName(name); err != nil {
			logger.Fatal("checking the model name", zap.Error(err))
		}
		ok, err := confirmOverwrite(reg, name, family, yes)
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if !ok {
			logger.Info("exiting", zap.String("reason", "overwrite declined"))
			return
		}
	}

	fs := afero.NewOsFs()
	c, err := corpus.LoadDirectory(ctx, fs, dir, corpus.LoadOptions{
		Source:   corpus.NewPlainText(fs),
		Workers:  config.Training.Workers,
		Logger:   logger,
		Progress: func(msg string) { logger.Info(msg) },
	})
	if err != nil {
		logger.Fatal("loading the corpus", zap.Error(err))
	}
	if len(professions) > 0 {
		c = c.Restrict(professions)
	}
	logger.Info("corpus loaded", zap.Int("samples", c.Len()), zap.Strings("professions", c.Professions))

	job := training.Start(ctx, func(ctx context.Context, progress func(string)) (*training.Report, error) {
		t := training.New(logger,
			training.WithTestSize(config.Training.TestSize),
			training.WithSeed(config.Training.Seed),
			training.WithProgress(progress),
		)
		if deepFamily {
			return t.TrainDeep(ctx, c, backend)
		}
		return t.Train(ctx, c, algorithm)
	})

	var report *training.Report
	for ev := range job.Events() {
		if ev.Done {
			report, err = ev.Report, ev.Err
			continue
		}
		logger.Info(ev.Message)
	}
	if err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}

	store := historyStore(config, logger)
	if store != nil {
		defer store.Close()
	}
	run := recordRun(ctx, store, logger, report)

	if name != "" {
		meta, err := reg.Save(report.Model, name)
		if err != nil {
			logger.Fatal("saving the model", zap.Error(err))
		}
		if run != nil {
			if err := store.MarkSaved(ctx, run.ID, meta.Name); err != nil {
				logger.Warn("updating the training run", zap.Error(err))
			}
		}
	}

	if err := render(cmd, report, func(w io.Writer) { printReport(w, report) }); err != nil {
		logger.Fatal("printing the report", zap.Error(err))
	}
}

// confirmOverwrite asks before replacing an existing model unless yes is set.
func confirmOverwrite(reg *registry.Registry, name string, family model.Family, yes bool) (bool, error) {
	models, err := reg.List()
	if err != nil {
		return false, err
	}
	exists := false
	for _, m := range models {
		if m.Name == name && m.Family() == family {
			exists = true
			break
		}
	}
	if !exists || yes {
		return true, nil
	}
	return confirm(fmt.Sprintf("A %s model %q already exists. Overwrite it?", family, name))
}

func confirm(label string) (bool, error) {
	prompt := promptui.Select{Label: label, Items: []string{PromptNo, PromptYes}}
	_, answer, err := prompt.Run()
	if err != nil {
		return false, err
	}
	return answer == PromptYes, nil
}

// historyStore returns nil when the training log is disabled or unusable.
func historyStore(config *Config, logger *zap.Logger) *history.Store {
	store, err := openHistory(config)
	if err != nil {
		logger.Warn("training history is unavailable", zap.Error(err))
		return nil
	}
	return store
}

func recordRun(ctx context.Context, store *history.Store, logger *zap.Logger, report *training.Report) *history.Run {
	if store == nil {
		return nil
	}
	run, err := store.Record(ctx, history.FromReport(report))
	if err != nil {
		logger.Warn("recording the training run", zap.Error(err))
		return nil
	}
	logger.Debug("training run recorded", zap.String("run_id", run.ID))
	return &run
}

func printReport(w io.Writer, r *training.Report) {
	fmt.Fprintf(w, "Model type:\t%s\n", r.ModelType)
	fmt.Fprintf(w, "Accuracy:\t%.2f%%\n", r.Accuracy*100)
	fmt.Fprintf(w, "Training samples:\t%d\n", r.TrainCount)
	fmt.Fprintf(w, "Test samples:\t%d\n", r.TestCount)
	fmt.Fprintf(w, "Features:\t%d\n", r.FeatureCount)
	fmt.Fprintf(w, "Professions:\t%s\n", strings.Join(r.Professions, ", "))
	if r.Degraded {
		fmt.Fprintf(w, "Note:\t%s\n", "too few samples, accuracy measured on the training data")
	}
	if len(r.Classes) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "PROFESSION\tPRECISION\tRECALL\tF1\tSUPPORT")
	for _, c := range r.Classes {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%d\n", c.Profession, c.Precision, c.Recall, c.F1, c.Support)
	}
}
