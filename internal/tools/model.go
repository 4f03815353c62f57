package tools

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/orbital-ai/orbital/internal/registry"
	"github.com/orbital-ai/orbital/internal/types"
)

const (
	minTrainingRows     = 10
	maxClassCardinality = 20
	maxOneHotValues     = 10
	maxReportedFeatures = 10
)

// ModelExecutor implements train_model: fit a regression or classification
// model on a table and materialize predictions as a derived table so the
// model can keep analyzing residuals with plain SQL.
type ModelExecutor struct{}

func (e *ModelExecutor) Name() string   { return registry.ToolTrainModel }
func (e *ModelExecutor) Mutating() bool { return true }

// feature is one model input. A one-hot feature has match set to the source
// value it encodes.
type feature struct {
	name   string
	source string
	match  string
}

func (e *ModelExecutor) Execute(ctx context.Context, env *Env, args map[string]any) (*Result, error) {
	table := argString(args, "table", "")
	target := argString(args, "target", "")
	algorithm := argString(args, "algorithm", "random_forest")
	splitBy := argString(args, "split_by", "")
	seed := int64(argInt(args, "random_state", 42))

	testSize := argFloat(args, "test_size", 0.2)
	if testSize <= 0 || testSize >= 0.9 {
		testSize = 0.2
	}

	rows, cols, err := env.Loader.GetRows(ctx, table, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) < minTrainingRows {
		return nil, fmt.Errorf("table %q has %d rows; need at least %d to train", table, len(rows), minTrainingRows)
	}

	present := columnSet(cols)
	if _, ok := present[target]; !ok {
		return nil, fmt.Errorf("target column %q not found in table %q", target, table)
	}
	if splitBy != "" {
		if _, ok := present[splitBy]; !ok {
			return nil, fmt.Errorf("split_by column %q not found in table %q", splitBy, table)
		}
	}

	classification := false
	switch argString(args, "model_type", "auto") {
	case "classification":
		classification = true
	case "regression":
		classification = false
	default:
		classification = detectClassification(rows, target)
	}

	features, err := selectFeatures(rows, cols, target, splitBy, argStringSlice(args, "features"))
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("no usable feature columns in table %q; pass features explicitly", table)
	}

	X, kept, err := encodeRows(rows, features, target, classification, splitBy)
	if err != nil {
		return nil, err
	}
	if len(kept) < minTrainingRows {
		return nil, fmt.Errorf("only %d rows remain after dropping rows with missing values; need at least %d", len(kept), minTrainingRows)
	}

	// Targets.
	var yReg []float64
	var yCls []int
	var classes []string
	if classification {
		yCls, classes = encodeLabels(rows, kept, target)
		if len(classes) < 2 {
			return nil, fmt.Errorf("target %q has a single class; nothing to classify", target)
		}
	} else {
		yReg = make([]float64, len(kept))
		for i, idx := range kept {
			f, ok := asFloat(rows[idx][target])
			if !ok {
				return nil, fmt.Errorf("target %q is not numeric; use model_type classification", target)
			}
			yReg[i] = f
		}
	}

	trainIdx, testIdx, err := splitIndices(rows, kept, splitBy, testSize, seed)
	if err != nil {
		return nil, err
	}

	metrics := map[string]float64{}
	importance := make([]float64, len(features))
	predLabel := make([]string, len(kept))
	predValue := make([]float64, len(kept))

	if classification {
		// One-vs-rest: a regressor per class, argmax of scores.
		scores := make([][]float64, len(classes))
		for c := range classes {
			binary := make([]float64, len(trainIdx))
			for i, idx := range trainIdx {
				if yCls[idx] == c {
					binary[i] = 1
				}
			}
			model := newLearner(algorithm, true, seed+int64(c))
			model.fit(gather(X, trainIdx), binary)
			scores[c] = make([]float64, len(kept))
			for i := range kept {
				scores[c][i] = model.predict(X[i])
			}
			for j, imp := range model.featureImportance() {
				importance[j] += imp / float64(len(classes))
			}
		}
		predCls := make([]int, len(kept))
		for i := range kept {
			best := 0
			for c := 1; c < len(classes); c++ {
				if scores[c][i] > scores[best][i] {
					best = c
				}
			}
			predCls[i] = best
			predLabel[i] = classes[best]
		}
		actualTest := gatherInts(yCls, testIdx)
		predTest := gatherInts(predCls, testIdx)
		metrics["accuracy"] = accuracy(actualTest, predTest)
		metrics["f1"] = macroF1(actualTest, predTest, len(classes))
	} else {
		model := newLearner(algorithm, false, seed)
		model.fit(gather(X, trainIdx), gatherFloats(yReg, trainIdx))
		for i := range kept {
			predValue[i] = model.predict(X[i])
		}
		importance = model.featureImportance()
		actualTest := gatherFloats(yReg, testIdx)
		predTest := gatherFloats(predValue, testIdx)
		metrics["r2"] = rSquared(actualTest, predTest)
		metrics["mae"] = meanAbsoluteError(actualTest, predTest)
		metrics["rmse"] = rootMeanSquaredError(actualTest, predTest)
	}

	predTable := target + "_predictions"
	if err := savePredictions(ctx, env, predTable, rows, kept, testIdx, features, splitBy, target, classification, yReg, yCls, classes, predValue, predLabel); err != nil {
		return nil, fmt.Errorf("save predictions: %w", err)
	}

	modelType := "regression"
	if classification {
		modelType = "classification"
	}
	return &Result{Output: jsonOutput(map[string]any{
		"model_type":          modelType,
		"algorithm":           algorithm,
		"n_rows":              len(kept),
		"n_train":             len(trainIdx),
		"n_test":              len(testIdx),
		"metrics":             metrics,
		"feature_importances": topImportances(features, importance),
		"predictions_table":   predTable,
		"message": fmt.Sprintf(
			"Trained %s %s model on %d rows (%d train, %d test). Predictions saved to table '%s'.",
			algorithm, modelType, len(kept), len(trainIdx), len(testIdx), predTable,
		),
	})}, nil
}

// detectClassification inspects the target column: text or boolean values
// mean classification, as does a low-cardinality integer column.
func detectClassification(rows []map[string]any, target string) bool {
	distinct := map[string]struct{}{}
	for _, row := range rows {
		v := row[target]
		if v == nil {
			continue
		}
		switch v.(type) {
		case string, bool:
			return true
		}
		f, _ := asFloat(v)
		if f != float64(int64(f)) {
			return false
		}
		distinct[fmt.Sprint(v)] = struct{}{}
	}
	return len(distinct) > 0 && len(distinct) <= maxClassCardinality
}

// selectFeatures builds the encoded feature list. Numeric columns pass
// through; low-cardinality text columns are one-hot encoded. An explicit
// features list restricts the candidates but uses the same encoding.
func selectFeatures(rows []map[string]any, cols []string, target, splitBy string, requested []string) ([]feature, error) {
	candidates := cols
	if len(requested) > 0 {
		present := columnSet(cols)
		for _, r := range requested {
			if _, ok := present[r]; !ok {
				return nil, fmt.Errorf("feature column %q not found", r)
			}
		}
		candidates = requested
	}

	var out []feature
	for _, col := range candidates {
		if col == target || col == splitBy {
			continue
		}
		numeric := true
		distinct := map[string]struct{}{}
		hasValue := false
		for _, row := range rows {
			v := row[col]
			if v == nil {
				continue
			}
			hasValue = true
			if _, ok := asFloat(v); !ok {
				numeric = false
			}
			if len(distinct) <= maxOneHotValues {
				distinct[fmt.Sprint(v)] = struct{}{}
			}
		}
		if !hasValue {
			continue
		}
		if numeric {
			out = append(out, feature{name: col, source: col})
			continue
		}
		if len(distinct) > maxOneHotValues {
			if len(requested) > 0 {
				return nil, fmt.Errorf("feature column %q has too many distinct values to encode (max %d)", col, maxOneHotValues)
			}
			continue
		}
		values := make([]string, 0, len(distinct))
		for v := range distinct {
			values = append(values, v)
		}
		sort.Strings(values)
		for _, v := range values {
			out = append(out, feature{name: col + "=" + v, source: col, match: v})
		}
	}
	return out, nil
}

// encodeRows builds the feature matrix, dropping rows with a missing target,
// a missing numeric feature, or a missing split column.
func encodeRows(rows []map[string]any, features []feature, target string, classification bool, splitBy string) ([][]float64, []int, error) {
	var X [][]float64
	var kept []int
rowLoop:
	for i, row := range rows {
		if row[target] == nil {
			continue
		}
		if !classification {
			if _, ok := asFloat(row[target]); !ok {
				return nil, nil, fmt.Errorf("target %q has non-numeric value in row %d; use model_type classification", target, i+1)
			}
		}
		if splitBy != "" {
			if _, ok := asFloat(row[splitBy]); !ok {
				continue
			}
		}
		vec := make([]float64, len(features))
		for j, f := range features {
			v := row[f.source]
			if f.match != "" {
				if v != nil && fmt.Sprint(v) == f.match {
					vec[j] = 1
				}
				continue
			}
			num, ok := asFloat(v)
			if !ok {
				continue rowLoop
			}
			vec[j] = num
		}
		X = append(X, vec)
		kept = append(kept, i)
	}
	return X, kept, nil
}

func encodeLabels(rows []map[string]any, kept []int, target string) ([]int, []string) {
	index := map[string]int{}
	var classes []string
	y := make([]int, len(kept))
	for i, idx := range kept {
		label := fmt.Sprint(rows[idx][target])
		c, ok := index[label]
		if !ok {
			c = len(classes)
			index[label] = c
			classes = append(classes, label)
		}
		y[i] = c
	}
	return y, classes
}

// splitIndices returns train/test positions into the kept slice. With
// splitBy the rows are ordered by that column and split chronologically;
// otherwise the split is a seeded shuffle.
func splitIndices(rows []map[string]any, kept []int, splitBy string, testSize float64, seed int64) ([]int, []int, error) {
	order := allIndices(len(kept))
	if splitBy != "" {
		sort.SliceStable(order, func(a, b int) bool {
			fa, _ := asFloat(rows[kept[order[a]]][splitBy])
			fb, _ := asFloat(rows[kept[order[b]]][splitBy])
			return fa < fb
		})
	} else {
		rand.New(rand.NewSource(seed)).Shuffle(len(order), func(a, b int) {
			order[a], order[b] = order[b], order[a]
		})
	}

	trainN := int(float64(len(order)) * (1 - testSize))
	if trainN < 1 {
		trainN = 1
	}
	if trainN >= len(order) {
		trainN = len(order) - 1
	}
	return order[:trainN], order[trainN:], nil
}

func savePredictions(
	ctx context.Context, env *Env, name string,
	rows []map[string]any, kept, testIdx []int,
	features []feature, splitBy, target string, classification bool,
	yReg []float64, yCls []int, classes []string,
	predValue []float64, predLabel []string,
) error {
	inTest := map[int]struct{}{}
	for _, i := range testIdx {
		inTest[i] = struct{}{}
	}

	// One column per distinct source, in feature order.
	var sources []string
	seen := map[string]struct{}{}
	for _, f := range features {
		if _, ok := seen[f.source]; ok {
			continue
		}
		seen[f.source] = struct{}{}
		sources = append(sources, f.source)
	}

	var cols []types.ColumnInfo
	for _, src := range sources {
		cols = append(cols, types.ColumnInfo{Name: src, Type: sqliteTypeOf(rows, kept, src)})
	}
	if splitBy != "" {
		cols = append(cols, types.ColumnInfo{Name: splitBy, Type: sqliteTypeOf(rows, kept, splitBy)})
	}
	targetType := "REAL"
	if classification {
		targetType = "TEXT"
	}
	cols = append(cols,
		types.ColumnInfo{Name: target, Type: targetType},
		types.ColumnInfo{Name: "predicted", Type: targetType},
	)
	if classification {
		cols = append(cols, types.ColumnInfo{Name: "correct", Type: "INTEGER"})
	} else {
		cols = append(cols, types.ColumnInfo{Name: "residual", Type: "REAL"})
	}
	cols = append(cols, types.ColumnInfo{Name: "split", Type: "TEXT"})

	out := make([][]any, 0, len(kept))
	for i, idx := range kept {
		row := make([]any, 0, len(cols))
		for _, src := range sources {
			row = append(row, rows[idx][src])
		}
		if splitBy != "" {
			row = append(row, rows[idx][splitBy])
		}
		if classification {
			actual := classes[yCls[i]]
			correct := 0
			if predLabel[i] == actual {
				correct = 1
			}
			row = append(row, actual, predLabel[i], correct)
		} else {
			row = append(row, yReg[i], predValue[i], yReg[i]-predValue[i])
		}
		split := "train"
		if _, ok := inTest[i]; ok {
			split = "test"
		}
		row = append(row, split)
		out = append(out, row)
	}

	return env.Loader.RegisterRows(ctx, name, cols, out)
}

func sqliteTypeOf(rows []map[string]any, kept []int, col string) string {
	for _, idx := range kept {
		switch rows[idx][col].(type) {
		case nil:
			continue
		case int64, int, bool:
			return "INTEGER"
		case float64:
			return "REAL"
		default:
			return "TEXT"
		}
	}
	return "TEXT"
}

type featureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

func topImportances(features []feature, importance []float64) []featureImportance {
	out := make([]featureImportance, 0, len(features))
	for i, f := range features {
		out = append(out, featureImportance{Feature: f.name, Importance: importance[i]})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Importance > out[b].Importance })
	if len(out) > maxReportedFeatures {
		out = out[:maxReportedFeatures]
	}
	return out
}

func gather(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func gatherFloats(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}

func gatherInts(v []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}
