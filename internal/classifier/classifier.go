// Package classifier labels free text with an operator-defined intent using
// a bag-of-words Naive Bayes model trained from labeled example phrases.
package classifier

import (
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pbaille/osintdeck/internal/domain"
	"github.com/pbaille/osintdeck/internal/metrics"
	"github.com/pbaille/osintdeck/internal/store"
)

const (
	keySamples = "classifier.samples"
	keyModel   = "classifier.model"
)

var (
	// ErrNoSamples is returned by Train when there is nothing to learn from
	ErrNoSamples = errors.New("no training data")
	// ErrEmptySample is returned when a sample has no text or no category
	ErrEmptySample = errors.New("sample text and category are required")
	// ErrInvalidSamples is returned when an import document cannot be decoded
	ErrInvalidSamples = errors.New("invalid samples document")

	// errUnchanged aborts a stored-list update that has nothing to write
	errUnchanged = errors.New("unchanged")
)

//go:embed defaults.json
var defaultSamples []byte

// Classifier owns the labeled samples and the trained model.
// Predict reads the current model without locking; all writers are serialized.
type Classifier struct {
	kv     store.KV
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	model atomic.Pointer[Model]
}

// New creates a Classifier, restoring a previously trained model from kv
func New(ctx context.Context, kv store.KV, logger *slog.Logger) (*Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{kv: kv, logger: logger, now: time.Now}

	if _, err := c.Sync(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Sync reloads the model from the store when another process has trained or
// cleared it since the last load. It reports whether the model changed.
func (c *Classifier) Sync(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var m Model
	found, err := store.GetJSON(ctx, c.kv, keyModel, &m)
	if err != nil {
		return false, fmt.Errorf("load model: %w", err)
	}

	cur := c.model.Load()
	switch {
	case !found && cur == nil:
		return false, nil
	case !found:
		c.model.Store(nil)
	case cur != nil && cur.TrainedAt.Equal(m.TrainedAt) && cur.SampleCount == m.SampleCount:
		return false, nil
	default:
		c.model.Store(&m)
	}
	c.logger.Info("classifier model reloaded from store", "present", found)
	return true, nil
}

// Samples returns the stored samples in insertion order
func (c *Classifier) Samples(ctx context.Context) ([]domain.LabeledSample, error) {
	var samples []domain.LabeledSample
	if _, err := store.GetJSON(ctx, c.kv, keySamples, &samples); err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}
	return samples, nil
}

// AddSample appends a labeled phrase. It does not retrain.
func (c *Classifier) AddSample(ctx context.Context, text, category string) (domain.LabeledSample, error) {
	text, category = strings.TrimSpace(text), strings.TrimSpace(category)
	if text == "" || category == "" {
		return domain.LabeledSample{}, ErrEmptySample
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.newSample(text, category)
	err := store.UpdateJSON(ctx, c.kv, keySamples, func(samples *[]domain.LabeledSample) error {
		*samples = append(*samples, s)
		return nil
	})
	if err != nil {
		return domain.LabeledSample{}, fmt.Errorf("save samples: %w", err)
	}
	return s, nil
}

// DeleteSample removes the sample at index. It reports false when index is
// out of range.
func (c *Classifier) DeleteSample(ctx context.Context, index int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := store.UpdateJSON(ctx, c.kv, keySamples, func(samples *[]domain.LabeledSample) error {
		if index < 0 || index >= len(*samples) {
			return errUnchanged
		}
		*samples = append((*samples)[:index], (*samples)[index+1:]...)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("save samples: %w", err)
	}
	return true, nil
}

// Stats summarises a trained model
type Stats struct {
	SampleCount   int       `json:"sample_count"`
	CategoryCount int       `json:"category_count"`
	VocabSize     int       `json:"vocab_size"`
	TrainedAt     time.Time `json:"trained_at"`
}

func statsOf(m *Model) Stats {
	return Stats{
		SampleCount:   m.SampleCount,
		CategoryCount: len(m.Categories),
		VocabSize:     m.VocabSize,
		TrainedAt:     m.TrainedAt,
	}
}

// Train rebuilds the model from every stored sample and replaces the current
// one. With no samples it returns ErrNoSamples and leaves the model alone.
func (c *Classifier) Train(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	samples, err := c.Samples(ctx)
	if err != nil {
		return Stats{}, err
	}
	m, err := Build(samples, c.now().UTC())
	if err != nil {
		return Stats{}, err
	}
	if err := store.PutJSON(ctx, c.kv, keyModel, m); err != nil {
		return Stats{}, fmt.Errorf("save model: %w", err)
	}
	c.model.Store(m)
	metrics.TrainingDuration.Observe(time.Since(start).Seconds())

	st := statsOf(m)
	c.logger.Info("classifier trained",
		"samples", st.SampleCount,
		"categories", st.CategoryCount,
		"vocab", st.VocabSize,
	)
	return st, nil
}

// Predict returns the best category for text. The boolean is false when no
// model has been trained yet.
func (c *Classifier) Predict(text string) (domain.Intent, bool) {
	m := c.model.Load()
	if m == nil {
		return domain.Intent{}, false
	}
	intent := m.Predict(text)
	metrics.PredictionsTotal.WithLabelValues(intent.Category).Inc()
	return intent, true
}

// ModelInfo describes the current model, if any
func (c *Classifier) ModelInfo() (Stats, bool) {
	m := c.model.Load()
	if m == nil {
		return Stats{}, false
	}
	return statsOf(m), true
}

// CategoryCount is the number of samples labeled with a category
type CategoryCount struct {
	Category string `json:"category"`
	Samples  int    `json:"samples"`
}

// Categories counts stored samples per category, in first-seen order
func (c *Classifier) Categories(ctx context.Context) ([]CategoryCount, error) {
	samples, err := c.Samples(ctx)
	if err != nil {
		return nil, err
	}
	var out []CategoryCount
	idx := make(map[string]int)
	for _, s := range samples {
		i, ok := idx[s.Category]
		if !ok {
			i = len(out)
			idx[s.Category] = i
			out = append(out, CategoryCount{Category: s.Category})
		}
		out[i].Samples++
	}
	return out, nil
}

// ImportResult reports what a bulk import did
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

type importSample struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// ImportJSON appends samples from a JSON document, either an array of
// {text, category} objects or an object with a "samples" array. Samples whose
// (text, category) pair is already stored are skipped. It does not retrain.
func (c *Classifier) ImportJSON(ctx context.Context, r io.Reader) (ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read samples: %w", err)
	}
	incoming, err := decodeSamples(data)
	if err != nil {
		return ImportResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var res ImportResult
	err = store.UpdateJSON(ctx, c.kv, keySamples, func(samples *[]domain.LabeledSample) error {
		res = ImportResult{}
		seen := make(map[string]bool, len(*samples))
		for _, s := range *samples {
			seen[contentHash(s.Text, s.Category)] = true
		}
		for _, in := range incoming {
			text, category := strings.TrimSpace(in.Text), strings.TrimSpace(in.Category)
			h := contentHash(text, category)
			if text == "" || category == "" || seen[h] {
				res.Skipped++
				continue
			}
			seen[h] = true
			*samples = append(*samples, c.newSample(text, category))
			res.Imported++
		}
		if res.Imported == 0 {
			return errUnchanged
		}
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return ImportResult{}, fmt.Errorf("save samples: %w", err)
	}
	return res, nil
}

// LoadDefaults imports the built-in sample set
func (c *Classifier) LoadDefaults(ctx context.Context) (ImportResult, error) {
	return c.ImportJSON(ctx, bytes.NewReader(defaultSamples))
}

// ClearAll discards every sample and the trained model
func (c *Classifier) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.kv.Delete(ctx, keySamples); err != nil {
		return fmt.Errorf("clear samples: %w", err)
	}
	if err := c.kv.Delete(ctx, keyModel); err != nil {
		return fmt.Errorf("clear model: %w", err)
	}
	c.model.Store(nil)
	return nil
}

func (c *Classifier) newSample(text, category string) domain.LabeledSample {
	return domain.LabeledSample{
		ID:        uuid.New().String(),
		Text:      text,
		Category:  category,
		CreatedAt: c.now().UTC(),
	}
}

func decodeSamples(data []byte) ([]importSample, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []importSample
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSamples, err)
		}
		return list, nil
	}
	var wrapped struct {
		Samples []importSample `json:"samples"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSamples, err)
	}
	return wrapped.Samples, nil
}

func contentHash(text, category string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + category))
	return hex.EncodeToString(sum[:])
}
