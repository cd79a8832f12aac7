package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-classifier/internal/corpus"
	"github.com/spigell/cv-classifier/internal/model"
	"github.com/spigell/cv-classifier/internal/registry"
	"github.com/spigell/cv-classifier/internal/session"
)

const (
	PromptChooseModel  = "Choose a model"
	PromptClassifyFile = "Classify a file"
	PromptClassifyText = "Classify text"
	PromptDeleteModel  = "Delete a model"
	PromptExit         = "Exit"
	PromptBack         = "back"
)

var errExit = errors.New("exit requested")

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Pick a saved model and classify résumés one after another",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		interactive(cmd)
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

func interactive(cmd *cobra.Command) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config, logger, _, reg := setup(ctx)

	sess, err := session.New(reg, config.CacheSize, logger)
	if err != nil {
		logger.Fatal("creating a session", zap.Error(err))
	}

	for _, dir := range []string{config.ModelsDir, config.DeepModelsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("creating the model directory", zap.String("dir", dir), zap.Error(err))
		}
	}
	if err := sess.Watch(ctx); err != nil {
		logger.Warn("models deleted outside this session will not be noticed", zap.Error(err))
	}

	for {
		label := "No active model"
		if _, key := sess.Active(); key != nil {
			label = fmt.Sprintf("Active model: %s", key)
		}

		prompt := promptui.Select{
			Label: label,
			Items: []string{PromptChooseModel, PromptClassifyFile, PromptClassifyText, PromptDeleteModel, PromptExit},
		}
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(ctx, cmd, action, sess, reg, logger); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Error("action failed", zap.String("action", action), zap.Error(err))
		}
	}
}

func handleAction(ctx context.Context, cmd *cobra.Command, action string, sess *session.Session, reg *registry.Registry, logger *zap.Logger) error {
	switch action {
	case PromptChooseModel:
		key, err := chooseModel(reg, "Choose a model and press ENTER")
		if err != nil || key == nil {
			return err
		}
		m, err := sess.Activate(*key)
		if err != nil {
			return err
		}
		info := model.Describe(m)
		logger.Info("model ready",
			zap.String("type", info.ModelType),
			zap.Strings("professions", info.Professions),
			zap.Int("features", info.NumFeatures),
		)
		return nil
	case PromptClassifyFile:
		path, err := (&promptui.Prompt{Label: "Path to the résumé (.txt)"}).Run()
		if err != nil {
			return err
		}
		text, err := extract(ctx, path)
		if err != nil {
			return err
		}
		return classify(ctx, cmd, sess, text)
	case PromptClassifyText:
		text, err := (&promptui.Prompt{Label: "Résumé text"}).Run()
		if err != nil {
			return err
		}
		return classify(ctx, cmd, sess, corpus.Clean(text))
	case PromptDeleteModel:
		key, err := chooseModel(reg, "Choose a model to delete")
		if err != nil || key == nil {
			return err
		}
		ok, err := confirm(fmt.Sprintf("Delete %s?", key))
		if err != nil || !ok {
			return err
		}
		if err := sess.Delete(*key); err != nil {
			return err
		}
		logger.Info("model deleted", zap.String("model", key.String()))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// chooseModel returns nil when the user goes back.
func chooseModel(reg *registry.Registry, label string) (*session.Key, error) {
	models, err := reg.List()
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no saved models, train one with the train command")
	}

	items := make([]string, 0, len(models)+1)
	for _, m := range models {
		items = append(items, fmt.Sprintf("%s [%s] %s, %d professions, %s",
			m.Name, m.Family(), m.ModelType, m.NumProfessions, m.CreationDate))
	}
	prompt := promptui.Select{Label: label, Items: append(items, PromptBack)}
	idx, _, err := prompt.Run()
	if err != nil {
		return nil, err
	}
	if idx == len(models) {
		return nil, nil
	}
	return &session.Key{Name: models[idx].Name, Family: models[idx].Family()}, nil
}

func classify(ctx context.Context, cmd *cobra.Command, sess *session.Session, text string) error {
	res, err := sess.Predict(ctx, text)
	if err != nil {
		return err
	}
	if res.Error {
		return fmt.Errorf("%s: %w", res.Message, res.Cause)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	printResult(w, res)
	return w.Flush()
}
