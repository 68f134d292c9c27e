package evolution

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

// Population is the ordered set of genomes alive in one generation.
// It is owned by a single engine instance; the engine is the only
// writer, so methods take no internal locks.
type Population struct {
	runID            string
	generationNumber int
	genomes          []*Genome
}

// NewPopulation creates an empty population for one generation.
func NewPopulation(runID string, generationNumber int) *Population {
	return &Population{runID: runID, generationNumber: generationNumber}
}

func (p *Population) RunID() string         { return p.runID }
func (p *Population) GenerationNumber() int { return p.generationNumber }
func (p *Population) Size() int             { return len(p.genomes) }

// Genomes returns the live genomes in insertion order.
func (p *Population) Genomes() []*Genome {
	return append([]*Genome(nil), p.genomes...)
}

// SetPopulation replaces the genome list.
func (p *Population) SetPopulation(genomes []*Genome) {
	p.genomes = append([]*Genome(nil), genomes...)
}

// AddGenome appends one genome.
func (p *Population) AddGenome(genome *Genome) {
	if genome != nil {
		p.genomes = append(p.genomes, genome)
	}
}

// RemoveGenome removes the genome with the given version id, reporting
// whether it was present.
func (p *Population) RemoveGenome(workflowVersionID string) bool {
	for i, g := range p.genomes {
		if g.WorkflowVersionID() == workflowVersionID {
			p.genomes = append(p.genomes[:i], p.genomes[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Population) emptyErr(op string) error {
	return errors.WithFields(
		errors.New(errors.EmptyPopulation, "cannot call "+op+" on an empty population"),
		errors.Fields{"run_id": p.runID, "generation": p.generationNumber})
}

// Best returns the highest-scoring genome; ties go to the earliest
// inserted. Calling Best on an empty population is a contract
// violation and fails loudly.
func (p *Population) Best() (*Genome, error) {
	if len(p.genomes) == 0 {
		return nil, p.emptyErr("Best")
	}
	best := p.genomes[0]
	for _, g := range p.genomes[1:] {
		if g.FitnessScore() > best.FitnessScore() {
			best = g
		}
	}
	return best, nil
}

// Worst returns the lowest-scoring genome, with the same fail-fast
// contract as Best.
func (p *Population) Worst() (*Genome, error) {
	if len(p.genomes) == 0 {
		return nil, p.emptyErr("Worst")
	}
	worst := p.genomes[0]
	for _, g := range p.genomes[1:] {
		if g.FitnessScore() < worst.FitnessScore() {
			worst = g
		}
	}
	return worst, nil
}

// Top returns the k highest-scoring genomes, descending; ties keep
// insertion order. An empty population yields an empty slice.
func (p *Population) Top(k int) []*Genome {
	if k <= 0 {
		return nil
	}
	sorted := append([]*Genome(nil), p.genomes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FitnessScore() > sorted[j].FitnessScore()
	})
	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[:k]
}

// ValidGenomes returns evaluated genomes whose fitness is valid.
func (p *Population) ValidGenomes() []*Genome {
	var valid []*Genome
	for _, g := range p.genomes {
		if f := g.Fitness(); f != nil && f.Valid {
			valid = append(valid, g)
		}
	}
	return valid
}

// Unevaluated returns genomes without attached fitness.
func (p *Population) Unevaluated() []*Genome {
	var pending []*Genome
	for _, g := range p.genomes {
		if !g.IsEvaluated() {
			pending = append(pending, g)
		}
	}
	return pending
}

// Stats summarizes the population's fitness distribution.
type Stats struct {
	AvgFitness   float64 `json:"avgFitness"`
	BestFitness  float64 `json:"bestFitness"`
	WorstFitness float64 `json:"worstFitness"`
	StdDev       float64 `json:"stdDev"`

	// Diversity is one minus the mean pairwise prompt similarity, in
	// [0,1]; a population of identical genomes has diversity zero.
	Diversity float64 `json:"diversity"`

	Size int `json:"size"`
}

// GetStats computes the distribution summary, failing fast on an empty
// population.
func (p *Population) GetStats() (*Stats, error) {
	if len(p.genomes) == 0 {
		return nil, p.emptyErr("GetStats")
	}

	stats := &Stats{
		BestFitness:  p.genomes[0].FitnessScore(),
		WorstFitness: p.genomes[0].FitnessScore(),
		Size:         len(p.genomes),
	}

	var sum float64
	for _, g := range p.genomes {
		score := g.FitnessScore()
		sum += score
		if score > stats.BestFitness {
			stats.BestFitness = score
		}
		if score < stats.WorstFitness {
			stats.WorstFitness = score
		}
	}
	stats.AvgFitness = sum / float64(len(p.genomes))

	var variance float64
	for _, g := range p.genomes {
		d := g.FitnessScore() - stats.AvgFitness
		variance += d * d
	}
	stats.StdDev = math.Sqrt(variance / float64(len(p.genomes)))

	stats.Diversity = p.diversity()
	return stats, nil
}

// SimilarPair is one pair of near-duplicate genomes.
type SimilarPair struct {
	A, B       *Genome
	Similarity float64
}

// FindSimilarGenomes returns every genome pair whose prompt similarity
// meets the threshold.
func (p *Population) FindSimilarGenomes(threshold float64) []SimilarPair {
	var pairs []SimilarPair
	for i := 0; i < len(p.genomes); i++ {
		for j := i + 1; j < len(p.genomes); j++ {
			sim := genomeSimilarity(p.genomes[i], p.genomes[j])
			if sim >= threshold {
				pairs = append(pairs, SimilarPair{A: p.genomes[i], B: p.genomes[j], Similarity: sim})
			}
		}
	}
	return pairs
}

// PruneSimilar removes near-duplicates, keeping the higher-scoring
// genome of each similar pair. Returns how many were removed.
func (p *Population) PruneSimilar(threshold float64) int {
	removed := 0
	for i := 0; i < len(p.genomes); i++ {
		for j := i + 1; j < len(p.genomes); {
			if genomeSimilarity(p.genomes[i], p.genomes[j]) >= threshold {
				// Keep the fitter of the two in slot i.
				if p.genomes[j].FitnessScore() > p.genomes[i].FitnessScore() {
					p.genomes[i], p.genomes[j] = p.genomes[j], p.genomes[i]
				}
				p.genomes = append(p.genomes[:j], p.genomes[j+1:]...)
				removed++
			} else {
				j++
			}
		}
	}
	return removed
}

func (p *Population) diversity() float64 {
	n := len(p.genomes)
	if n < 2 {
		return 0
	}
	var sum float64
	pairs := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += genomeSimilarity(p.genomes[i], p.genomes[j])
			pairs++
		}
	}
	return 1 - sum/float64(pairs)
}

var promptFolder = cases.Fold()

// genomeSimilarity is the Jaccard overlap of the two genomes' prompt
// token sets, after Unicode NFC normalization and case folding so that
// trivially restyled prompts count as duplicates.
func genomeSimilarity(a, b *Genome) float64 {
	ta := promptTokens(a)
	tb := promptTokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for token := range ta {
		if tb[token] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func promptTokens(g *Genome) map[string]bool {
	tokens := make(map[string]bool)
	for _, node := range g.graph.Nodes {
		text := promptFolder.String(norm.NFC.String(node.SystemPrompt))
		for _, token := range strings.Fields(text) {
			tokens[token] = true
		}
	}
	return tokens
}
