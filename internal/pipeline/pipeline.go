// Package pipeline wires loading, preprocessing, splitting, scaling,
// training and evaluation into a single training run.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/theblitlabs/parity-ids/internal/artifact"
	"github.com/theblitlabs/parity-ids/internal/dataset"
	"github.com/theblitlabs/parity-ids/internal/evaluation"
	"github.com/theblitlabs/parity-ids/internal/execution/training"
	"github.com/theblitlabs/parity-ids/internal/inference"
	"github.com/theblitlabs/parity-ids/internal/monitoring/metrics"
	"github.com/theblitlabs/parity-ids/internal/preprocess"
	"github.com/theblitlabs/parity-ids/internal/scaler"
	"github.com/theblitlabs/parity-ids/pkg/logger"
)

// Options configures one training run.
type Options struct {
	DatasetPath  string
	ModelType    string
	TargetColumn string
	TestSize     float64
	Seed         int64
	Model        training.Config

	// Metrics receives stage timings and scores. A private recorder is
	// used when nil.
	Metrics *metrics.Recorder
}

// DefaultOptions returns the documented run defaults for a model type.
func DefaultOptions(datasetPath, modelType string) Options {
	return Options{
		DatasetPath:  datasetPath,
		ModelType:    modelType,
		TargetColumn: preprocess.DefaultTargetColumn,
		TestSize:     0.2,
		Seed:         42,
		Model:        training.DefaultConfig(),
	}
}

// Engine is the immutable outcome of a training run.
type Engine struct {
	set     *artifact.Set
	classes []string
}

// ArtifactSet returns the trained model, scaler and encoders.
func (e *Engine) ArtifactSet() *artifact.Set { return e.set }

// RunID identifies the training run.
func (e *Engine) RunID() string { return e.set.RunID }

// Features returns the ordered feature names.
func (e *Engine) Features() []string { return append([]string(nil), e.set.Features()...) }

// Classes returns the class labels in index order.
func (e *Engine) Classes() []string { return append([]string(nil), e.classes...) }

// Save persists the artifact set under prefix.
func (e *Engine) Save(prefix string) error {
	return artifact.Save(e.set, prefix)
}

// Predictor returns an inference facade over the in-memory artifact set.
func (e *Engine) Predictor() *inference.Predictor {
	return inference.NewPredictor(e.set)
}

// Train runs the full pipeline on the CSV at opts.DatasetPath. The model
// type is validated before the dataset is read.
func Train(ctx context.Context, opts Options) (*Engine, *evaluation.Report, error) {
	if _, err := training.ParseModelType(opts.ModelType); err != nil {
		log := logger.WithComponent("pipeline")
		log.Error().Err(err).Msg("Unsupported model type")
		return nil, nil, err
	}
	rec := recorder(&opts)

	stop := rec.StartStage("load")
	ds, err := dataset.LoadCSV(opts.DatasetPath)
	stop()
	if err != nil {
		rec.IncError("load", err)
		return nil, nil, err
	}
	return TrainDataset(ctx, ds, opts)
}

// TrainDataset runs the pipeline on an already loaded dataset.
func TrainDataset(ctx context.Context, ds *dataset.Dataset, opts Options) (*Engine, *evaluation.Report, error) {
	log := logger.WithComponent("pipeline")

	modelType, err := training.ParseModelType(opts.ModelType)
	if err != nil {
		log.Error().Err(err).Msg("Unsupported model type")
		return nil, nil, err
	}
	rec := recorder(&opts)
	rec.SetModelType(string(modelType))
	if opts.TargetColumn == "" {
		opts.TargetColumn = preprocess.DefaultTargetColumn
	}

	stop := rec.StartStage("preprocess")
	prep, err := preprocess.Preprocess(ds, opts.TargetColumn)
	stop()
	if err != nil {
		rec.IncError("preprocess", err)
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	stop = rec.StartStage("split")
	split, err := preprocess.StratifiedSplit(prep.Y, prep.NumClasses(), opts.TestSize, opts.Seed)
	stop()
	if err != nil {
		rec.IncError("split", err)
		log.Error().Err(err).Msg("Failed to split dataset")
		return nil, nil, err
	}
	trainX, trainY := subset(prep.X, prep.Y, split.Train)
	testX, testY := subset(prep.X, prep.Y, split.Test)
	log.Info().Int("train", len(trainY)).Int("test", len(testY)).Msg("Dataset split")

	stop = rec.StartStage("scale")
	sc := scaler.New(prep.Features)
	trainScaled, err := sc.FitTransform(trainX)
	if err == nil {
		testX, err = sc.Transform(testX)
	}
	stop()
	if err != nil {
		rec.IncError("scale", err)
		return nil, nil, fmt.Errorf("failed to scale features: %w", err)
	}
	log.Info().Int("features", len(prep.Features)).Msg("Features standardised")

	clf, err := training.NewClassifier(string(modelType), opts.Model.WithSeed(opts.Seed))
	if err != nil {
		return nil, nil, err
	}
	trainingTime, err := training.Train(ctx, clf, trainScaled, trainY, prep.NumClasses())
	rec.ObserveStage("train", trainingTime)
	if err != nil {
		rec.IncError("train", err)
		log.Error().Err(err).Str("model_type", string(modelType)).Msg("Training failed")
		return nil, nil, err
	}
	log.Info().
		Str("model_type", string(modelType)).
		Dur("training_time", trainingTime).
		Msg("Model trained")

	stop = rec.StartStage("evaluate")
	report, err := evaluation.Evaluate(clf, testX, testY, prep.Classes)
	stop()
	if err != nil {
		rec.IncError("evaluate", err)
		return nil, nil, fmt.Errorf("failed to evaluate model: %w", err)
	}

	runID := uuid.NewString()
	report.RunID = runID
	report.TrainingTime = math.Round(trainingTime.Seconds()*100) / 100
	report.TotalRecords = len(prep.Y)
	report.TrainRecords = len(trainY)
	report.TestRecords = len(testY)
	if ranker, ok := clf.(training.ImportanceReporter); ok {
		report.FeatureImportances = evaluation.RankFeatures(prep.Features, ranker.FeatureImportances())
	}

	rec.SetRecords(report.TotalRecords, report.TrainRecords, report.TestRecords)
	rec.SetScore("accuracy", report.Accuracy)
	rec.SetScore("precision", report.Precision)
	rec.SetScore("recall", report.Recall)
	rec.SetScore("f1_score", report.F1Score)
	if report.AUC != nil {
		rec.SetScore("auc", *report.AUC)
	}

	engine := &Engine{
		set: &artifact.Set{
			RunID:     runID,
			CreatedAt: time.Now().UTC(),
			Model:     clf,
			Scaler:    sc,
			Encoders:  prep.Encoders,
		},
		classes: prep.Classes,
	}
	return engine, report, nil
}

func recorder(opts *Options) *metrics.Recorder {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRecorder(opts.ModelType)
	}
	return opts.Metrics
}

func subset(X [][]float64, y []int, indices []int) ([][]float64, []int) {
	outX := make([][]float64, len(indices))
	outY := make([]int, len(indices))
	for i, idx := range indices {
		outX[i] = X[idx]
		outY[i] = y[idx]
	}
	return outX, outY
}
