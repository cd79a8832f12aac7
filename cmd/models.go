package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-classifier/internal/model"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage saved models",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved models, newest first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		listModels(cmd)
	},
}

var modelsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved model",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		deleteModel(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsListCmd, modelsDeleteCmd)

	addOutputFlag(modelsListCmd)
	modelsDeleteCmd.Flags().StringP("family", "f", string(model.Classical), "model family: classical or deep_learning")
	modelsDeleteCmd.Flags().BoolP("yes", "y", false, "delete without confirmation")
}

func listModels(cmd *cobra.Command) {
	_, logger, _, reg := setup(context.Background())

	models, err := reg.List()
	if err != nil {
		logger.Fatal("listing models", zap.Error(err))
	}
	if models == nil {
		models = []model.Metadata{}
	}

	err = render(cmd, models, func(w io.Writer) {
		fmt.Fprintln(w, "NAME\tFAMILY\tTYPE\tPROFESSIONS\tFEATURES\tCREATED")
		for _, m := range models {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				m.Name, m.Family(), m.ModelType, m.NumProfessions, m.NumFeatures, m.CreationDate)
		}
	})
	if err != nil {
		logger.Fatal("printing models", zap.Error(err))
	}
}

func deleteModel(cmd *cobra.Command, name string) {
	_, logger, _, reg := setup(context.Background())

	familyFlag, _ := cmd.Flags().GetString("family")
	family, err := model.ParseFamily(familyFlag)
	if err != nil {
		logger.Fatal("choosing a model family", zap.Error(err))
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		ok, err := confirm(fmt.Sprintf("Delete the %s model %q?", family, name))
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if !ok {
			logger.Info("exiting", zap.String("reason", "deletion declined"))
			return
		}
	}

	if err := reg.Delete(name, family); err != nil {
		logger.Fatal("deleting the model", zap.Error(err))
	}
}
