package bertgo

import (
	"os"

	"github.com/spf13/cobra"
)

var runConfig RunConfig

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bertgo pretrained_dir output_dir",
	Short: "Fine-tune a pretrained BERT model for sentence classification",
	Long: `
		This tool fine-tunes a pretrained BERT checkpoint for sentence and
		sentence-pair classification on the cola, mnli, mrpc and xnli benchmark
		datasets. Training, evaluation and prediction are independent stages:
		enable any combination with --do_train, --do_eval and --do_predict.
	`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		runConfig.PretrainedDir = args[0]
		runConfig.OutputDir = args[1]
		return Run(runConfig, cmd.OutOrStdout())
	},
	SilenceUsage: true,
}

func InitializeCommand() {
	rootCmd.Flags().StringVar(&runConfig.Problem, "problem", "", "problem type: one of cola, mnli, mrpc, xnli")
	rootCmd.Flags().StringVar(&runConfig.DataDir, "data_dir", "", "directory with the dataset files")
	rootCmd.Flags().BoolVar(&runConfig.DoTrain, "do_train", false, "set this flag to run training")
	rootCmd.Flags().BoolVar(&runConfig.DoEval, "do_eval", false, "set this flag to run evaluation")
	rootCmd.Flags().BoolVar(&runConfig.DoPredict, "do_predict", false, "set this flag to run prediction")
	rootCmd.Flags().IntVar(&runConfig.BatchSize, "batch_size", 32, "batch size")
	rootCmd.Flags().IntVar(&runConfig.MaxSeqLength, "max_seq_length", 128, "sequence size limit after tokenization")
	rootCmd.Flags().BoolVar(&runConfig.DoLowerCase, "do_lower_case", true, "set to false to retain case-sensitive information")
	rootCmd.Flags().Float32Var(&runConfig.LearningRate, "learning_rate", 2e-5, "learning rate for training")
	rootCmd.Flags().IntVar(&runConfig.NumTrainEpochs, "num_train_epochs", 3, "number of epochs to train")
	rootCmd.Flags().IntVar(&runConfig.MacroBatch, "macro_batch", 1, "number of batches to accumulate gradients before the optimizer updates")
	cobra.CheckErr(rootCmd.MarkFlagRequired("problem"))
	cobra.CheckErr(rootCmd.MarkFlagRequired("data_dir"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
