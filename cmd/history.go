package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-classifier/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past training runs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		showHistory(cmd)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "l", 20, "number of runs to show (0 shows all)")
	addOutputFlag(historyCmd)
}

func showHistory(cmd *cobra.Command) {
	ctx := context.Background()
	config, logger := bootstrap()

	store, err := openHistory(config)
	if err != nil {
		logger.Fatal("opening the training history", zap.Error(err))
	}
	if store == nil {
		logger.Fatal("training history is disabled", zap.String("hint", "set history-db in the configuration file"))
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.List(ctx, limit)
	if err != nil {
		logger.Fatal("reading the training history", zap.Error(err))
	}
	if runs == nil {
		runs = []history.Run{}
	}

	err = render(cmd, runs, func(w io.Writer) {
		fmt.Fprintln(w, "TRAINED\tTYPE\tACCURACY\tTRAIN\tTEST\tPROFESSIONS\tSAVED AS")
		for _, r := range runs {
			accuracy := fmt.Sprintf("%.2f%%", r.Accuracy*100)
			if r.Degraded {
				accuracy += " (degraded)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				r.TrainedAt.Local().Format("2006-01-02 15:04:05"), r.ModelType, accuracy,
				r.TrainCount, r.TestCount, len(r.Professions), r.ModelName)
		}
	})
	if err != nil {
		logger.Fatal("printing the training history", zap.Error(err))
	}
}
