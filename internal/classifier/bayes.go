package classifier

import (
	"math"
	"time"

	"github.com/pbaille/osintdeck/internal/domain"
)

// CategoryModel holds the log-probabilities learned for one category
type CategoryModel struct {
	Name     string  `json:"name"`
	LogPrior float64 `json:"log_prior"`
	// Unseen is the smoothed log-likelihood of a token never seen in this category
	Unseen     float64            `json:"unseen"`
	Likelihood map[string]float64 `json:"likelihood"`
	Samples    int                `json:"samples"`
	Tokens     int                `json:"tokens"`
}

// Model is a multinomial Naive Bayes model. Categories keep the order in
// which they first appeared in the training samples; Predict breaks ties
// in that order.
type Model struct {
	Categories  []CategoryModel `json:"categories"`
	VocabSize   int             `json:"vocab_size"`
	SampleCount int             `json:"sample_count"`
	TrainedAt   time.Time       `json:"trained_at"`
}

// Build trains a model from scratch with add-one smoothing
func Build(samples []domain.LabeledSample, now time.Time) (*Model, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	type counts struct {
		samples int
		tokens  int
		words   map[string]int
	}

	var order []string
	byCategory := make(map[string]*counts)
	vocab := make(map[string]struct{})

	for _, s := range samples {
		c, ok := byCategory[s.Category]
		if !ok {
			c = &counts{words: make(map[string]int)}
			byCategory[s.Category] = c
			order = append(order, s.Category)
		}
		c.samples++
		for _, tok := range Tokenize(s.Text) {
			c.words[tok]++
			c.tokens++
			vocab[tok] = struct{}{}
		}
	}

	total := float64(len(samples))
	v := float64(len(vocab))

	m := &Model{
		Categories:  make([]CategoryModel, 0, len(order)),
		VocabSize:   len(vocab),
		SampleCount: len(samples),
		TrainedAt:   now,
	}
	for _, name := range order {
		c := byCategory[name]
		denom := float64(c.tokens) + v
		if denom == 0 {
			// every sample was stopwords only
			denom = 1
		}
		cm := CategoryModel{
			Name:       name,
			LogPrior:   math.Log(float64(c.samples) / total),
			Unseen:     math.Log(1 / denom),
			Likelihood: make(map[string]float64, len(c.words)),
			Samples:    c.samples,
			Tokens:     c.tokens,
		}
		for w, n := range c.words {
			cm.Likelihood[w] = math.Log(float64(n+1) / denom)
		}
		m.Categories = append(m.Categories, cm)
	}
	return m, nil
}

// Predict scores text against every category and returns the best one
func (m *Model) Predict(text string) domain.Intent {
	tokens := Tokenize(text)
	intent := domain.Intent{Scores: make(map[string]float64, len(m.Categories))}

	best := math.Inf(-1)
	for _, c := range m.Categories {
		score := c.LogPrior
		for _, tok := range tokens {
			if l, ok := c.Likelihood[tok]; ok {
				score += l
			} else {
				score += c.Unseen
			}
		}
		intent.Scores[c.Name] = score
		if score > best {
			best = score
			intent.Category = c.Name
		}
	}
	return intent
}
