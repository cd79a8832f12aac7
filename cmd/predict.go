package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-classifier/internal/corpus"
	"github.com/spigell/cv-classifier/internal/model"
	"github.com/spigell/cv-classifier/internal/prediction"
)

var predictCmd = &cobra.Command{
	Use:   "predict [resume.txt]",
	Short: "Classify a résumé with a saved model",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		predict(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringP("model", "m", "", "name of the saved model")
	predictCmd.Flags().StringP("family", "f", string(model.Classical), "model family: classical or deep_learning")
	predictCmd.Flags().StringP("text", "t", "", "classify this text instead of a file")
	addOutputFlag(predictCmd)

	predictCmd.MarkFlagRequired("model")
}

func predict(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	_, logger, _, reg := setup(ctx)

	name, _ := cmd.Flags().GetString("model")
	familyFlag, _ := cmd.Flags().GetString("family")
	family, err := model.ParseFamily(familyFlag)
	if err != nil {
		logger.Fatal("choosing a model family", zap.Error(err))
	}

	text, err := documentText(ctx, cmd, args)
	if err != nil {
		logger.Fatal("reading the document", zap.Error(err))
	}

	m, err := reg.Load(name, family)
	if err != nil {
		logger.Fatal("loading the model", zap.Error(err))
	}

	res := prediction.Predict(ctx, m, text)
	if res.Error {
		logger.Fatal("prediction failed", zap.String("reason", res.Message))
	}

	if err := render(cmd, res, func(w io.Writer) { printResult(w, res) }); err != nil {
		logger.Fatal("printing the prediction", zap.Error(err))
	}
}

// documentText returns the cleaned text given with --text or read from the
// file argument.
func documentText(ctx context.Context, cmd *cobra.Command, args []string) (string, error) {
	if text, _ := cmd.Flags().GetString("text"); text != "" {
		return corpus.Clean(text), nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("a file or --text is required")
	}
	return extract(ctx, args[0])
}

func extract(ctx context.Context, path string) (string, error) {
	source := corpus.NewPlainText(afero.NewOsFs())
	if !source.Supports(path) {
		return "", fmt.Errorf("unsupported document %q: only plain text files are supported", path)
	}
	return source.ExtractAndClean(ctx, path)
}

func printResult(w io.Writer, res *prediction.Result) {
	fmt.Fprintf(w, "Predicted profession:\t%s\n", res.PredictedProfession)
	fmt.Fprintf(w, "Confidence:\t%s (%s)\n", res.ConfidencePercentage, res.ConfidenceLevel)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "PROFESSION\tPROBABILITY")
	for _, e := range res.Ranking {
		fmt.Fprintf(w, "%s\t%s\n", e.Profession, e.Percentage)
	}
}
