package tools

import (
	"math"
	"math/rand"
	"sort"
)

// The learners below are deliberately small: a linear model fit by gradient
// descent and two stump-ensemble variants. They run in-process on tables
// that already fit in SQLite, so training time is dominated by the SQL that
// produced the table, not the fit.

type learner interface {
	fit(X [][]float64, y []float64)
	predict(x []float64) float64
	featureImportance() []float64
}

func newLearner(algorithm string, logistic bool, seed int64) learner {
	switch algorithm {
	case "linear":
		return &linearModel{logistic: logistic}
	case "gradient_boosting":
		return &stumpEnsemble{rounds: 100, learningRate: 0.1, boosted: true, rng: rand.New(rand.NewSource(seed))}
	default: // random_forest
		return &stumpEnsemble{rounds: 100, bagging: true, rng: rand.New(rand.NewSource(seed))}
	}
}

// linearModel fits least squares (or logistic loss when logistic is set) by
// full-batch gradient descent on standardized features.
type linearModel struct {
	logistic bool
	weights  []float64
	bias     float64
	means    []float64
	stds     []float64
}

func (m *linearModel) fit(X [][]float64, y []float64) {
	n, d := len(X), 0
	if n > 0 {
		d = len(X[0])
	}
	m.weights = make([]float64, d)
	m.means = make([]float64, d)
	m.stds = make([]float64, d)

	for j := 0; j < d; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += X[i][j]
		}
		m.means[j] = sum / float64(n)
		var sq float64
		for i := 0; i < n; i++ {
			diff := X[i][j] - m.means[j]
			sq += diff * diff
		}
		m.stds[j] = math.Sqrt(sq / float64(n))
		if m.stds[j] == 0 {
			m.stds[j] = 1
		}
	}

	scaled := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, d)
		for j := 0; j < d; j++ {
			row[j] = (X[i][j] - m.means[j]) / m.stds[j]
		}
		scaled[i] = row
	}

	const epochs = 500
	const lr = 0.1
	for epoch := 0; epoch < epochs; epoch++ {
		gradW := make([]float64, d)
		var gradB float64
		for i := 0; i < n; i++ {
			pred := m.rawScore(scaled[i])
			if m.logistic {
				pred = sigmoid(pred)
			}
			err := pred - y[i]
			for j := 0; j < d; j++ {
				gradW[j] += err * scaled[i][j]
			}
			gradB += err
		}
		for j := 0; j < d; j++ {
			m.weights[j] -= lr * gradW[j] / float64(n)
		}
		m.bias -= lr * gradB / float64(n)
	}
}

func (m *linearModel) rawScore(scaled []float64) float64 {
	score := m.bias
	for j, w := range m.weights {
		score += w * scaled[j]
	}
	return score
}

func (m *linearModel) predict(x []float64) float64 {
	scaled := make([]float64, len(x))
	for j := range x {
		scaled[j] = (x[j] - m.means[j]) / m.stds[j]
	}
	score := m.rawScore(scaled)
	if m.logistic {
		return sigmoid(score)
	}
	return score
}

// featureImportance for a linear model is the absolute standardized weight.
func (m *linearModel) featureImportance() []float64 {
	out := make([]float64, len(m.weights))
	for j, w := range m.weights {
		out[j] = math.Abs(w)
	}
	return normalizeImportance(out)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// stump is a depth-1 regression tree.
type stump struct {
	feature   int
	threshold float64
	left      float64
	right     float64
	gain      float64
}

func (s *stump) score(x []float64) float64 {
	if x[s.feature] <= s.threshold {
		return s.left
	}
	return s.right
}

// stumpEnsemble covers both tree algorithms: bagging averages stumps fit on
// bootstrap samples with random feature subsets, boosting fits each stump to
// the running residual and adds it scaled by the learning rate.
type stumpEnsemble struct {
	rounds       int
	learningRate float64
	boosted      bool
	bagging      bool
	rng          *rand.Rand

	base       float64
	stumps     []stump
	nFeatures  int
}

func (m *stumpEnsemble) fit(X [][]float64, y []float64) {
	n := len(X)
	if n == 0 {
		return
	}
	m.nFeatures = len(X[0])

	var sum float64
	for _, v := range y {
		sum += v
	}
	m.base = sum / float64(n)

	if m.boosted {
		residual := make([]float64, n)
		for i := range y {
			residual[i] = y[i] - m.base
		}
		for round := 0; round < m.rounds; round++ {
			s := bestStump(X, residual, allIndices(n), allIndices(m.nFeatures))
			if s == nil {
				break
			}
			m.stumps = append(m.stumps, *s)
			for i := range residual {
				residual[i] -= m.learningRate * s.score(X[i])
			}
		}
		return
	}

	// Bagging: each stump sees a bootstrap sample and sqrt(d) features.
	target := make([]float64, n)
	for i := range y {
		target[i] = y[i] - m.base
	}
	subset := int(math.Ceil(math.Sqrt(float64(m.nFeatures))))
	for round := 0; round < m.rounds; round++ {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = m.rng.Intn(n)
		}
		feats := m.rng.Perm(m.nFeatures)[:subset]
		if s := bestStump(X, target, sample, feats); s != nil {
			m.stumps = append(m.stumps, *s)
		}
	}
}

func (m *stumpEnsemble) predict(x []float64) float64 {
	pred := m.base
	if m.boosted {
		for i := range m.stumps {
			pred += m.learningRate * m.stumps[i].score(x)
		}
		return pred
	}
	if len(m.stumps) == 0 {
		return pred
	}
	var sum float64
	for i := range m.stumps {
		sum += m.stumps[i].score(x)
	}
	return pred + sum/float64(len(m.stumps))
}

// featureImportance accumulates each stump's variance reduction onto the
// feature it split on.
func (m *stumpEnsemble) featureImportance() []float64 {
	out := make([]float64, m.nFeatures)
	for i := range m.stumps {
		out[m.stumps[i].feature] += m.stumps[i].gain
	}
	return normalizeImportance(out)
}

// bestStump finds the split minimizing squared error over the sample rows
// and candidate features. Thresholds are taken at up to 16 quantiles per
// feature.
func bestStump(X [][]float64, y []float64, sample []int, features []int) *stump {
	var total, totalSq float64
	for _, i := range sample {
		total += y[i]
		totalSq += y[i] * y[i]
	}
	n := float64(len(sample))
	if n == 0 {
		return nil
	}
	baseSSE := totalSq - total*total/n

	var best *stump
	for _, f := range features {
		vals := make([]float64, 0, len(sample))
		for _, i := range sample {
			vals = append(vals, X[i][f])
		}
		for _, threshold := range quantileThresholds(vals, 16) {
			var leftSum, leftSq, leftN float64
			for _, i := range sample {
				if X[i][f] <= threshold {
					leftSum += y[i]
					leftSq += y[i] * y[i]
					leftN++
				}
			}
			rightN := n - leftN
			if leftN == 0 || rightN == 0 {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/leftN) + (rightSq - rightSum*rightSum/rightN)
			gain := baseSSE - sse
			if best == nil || gain > best.gain {
				best = &stump{
					feature:   f,
					threshold: threshold,
					left:      leftSum / leftN,
					right:     rightSum / rightN,
					gain:      gain,
				}
			}
		}
	}
	if best == nil || best.gain <= 0 {
		return nil
	}
	return best
}

func quantileThresholds(vals []float64, max int) []float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	uniq := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != uniq[len(uniq)-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) < 2 {
		return nil
	}
	if len(uniq)-1 <= max {
		// Midpoints between consecutive distinct values.
		out := make([]float64, 0, len(uniq)-1)
		for i := 0; i < len(uniq)-1; i++ {
			out = append(out, (uniq[i]+uniq[i+1])/2)
		}
		return out
	}
	out := make([]float64, 0, max)
	for i := 1; i <= max; i++ {
		idx := i * (len(uniq) - 1) / (max + 1)
		out = append(out, uniq[idx])
	}
	return out
}

func normalizeImportance(raw []float64) []float64 {
	var total float64
	for _, v := range raw {
		total += v
	}
	if total == 0 {
		return raw
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = v / total
	}
	return out
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Regression metrics.

func rSquared(actual, predicted []float64) float64 {
	var mean float64
	for _, v := range actual {
		mean += v
	}
	mean /= float64(len(actual))

	var ssRes, ssTot float64
	for i := range actual {
		ssRes += (actual[i] - predicted[i]) * (actual[i] - predicted[i])
		ssTot += (actual[i] - mean) * (actual[i] - mean)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

func meanAbsoluteError(actual, predicted []float64) float64 {
	var sum float64
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

func rootMeanSquaredError(actual, predicted []float64) float64 {
	var sum float64
	for i := range actual {
		diff := actual[i] - predicted[i]
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(actual)))
}

// Classification metrics over label indices.

func accuracy(actual, predicted []int) float64 {
	if len(actual) == 0 {
		return 0
	}
	correct := 0
	for i := range actual {
		if actual[i] == predicted[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(actual))
}

// macroF1 averages the per-class F1 scores, treating absent classes as 0.
func macroF1(actual, predicted []int, classes int) float64 {
	if classes == 0 {
		return 0
	}
	var total float64
	for c := 0; c < classes; c++ {
		var tp, fp, fn float64
		for i := range actual {
			switch {
			case predicted[i] == c && actual[i] == c:
				tp++
			case predicted[i] == c:
				fp++
			case actual[i] == c:
				fn++
			}
		}
		if tp == 0 {
			continue
		}
		precision := tp / (tp + fp)
		recall := tp / (tp + fn)
		total += 2 * precision * recall / (precision + recall)
	}
	return total / float64(classes)
}
