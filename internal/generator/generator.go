// Package generator produces synthetic events.new traffic for exercising a
// running alert engine. Generation is deterministic when seeded.
package generator

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/afikmenashe/alert-engine/internal/alerts"
	"github.com/afikmenashe/alert-engine/internal/consumer"
)

// DefaultKindDist spreads traffic over drift and job failure events.
const DefaultKindDist = "data_drift_detected:30,data_drift_suspected:20,model_performance_detected:15,concept_drift_detected:15,failed:20"

var entityKinds = []string{alerts.EntityModelEndpointResult, alerts.EntityModel, alerts.EntityJob}

// Config controls what the generator emits.
type Config struct {
	Projects   []string
	KindDist   string
	EntityPool int
	Seed       int64
}

// Generator creates events according to a weighted event kind distribution.
type Generator struct {
	rng        *rand.Rand
	projects   []string
	kinds      []weightedValue
	entityPool int
}

type weightedValue struct {
	value  string
	weight int
}

// New creates a generator. It fails when the distribution cannot be parsed.
func New(cfg Config) (*Generator, error) {
	if len(cfg.Projects) == 0 {
		return nil, fmt.Errorf("at least one project is required")
	}
	dist, err := ParseDistribution(cfg.KindDist)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	pool := cfg.EntityPool
	if pool <= 0 {
		pool = 1
	}

	// Map order is random; sort so a seed always yields the same sequence.
	kinds := make([]weightedValue, 0, len(dist))
	for k, w := range dist {
		kinds = append(kinds, weightedValue{value: k, weight: w})
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].value < kinds[j].value })

	return &Generator{
		rng:        rand.New(rand.NewSource(seed)),
		projects:   cfg.Projects,
		kinds:      kinds,
		entityPool: pool,
	}, nil
}

// ParseDistribution parses "kind:weight,kind:weight". Weights are 0-100 and
// must add up to 100.
func ParseDistribution(dist string) (map[string]int, error) {
	if strings.TrimSpace(dist) == "" {
		return nil, fmt.Errorf("distribution string cannot be empty")
	}

	result := make(map[string]int)
	total := 0
	for _, part := range strings.Split(dist, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, raw, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid distribution format: %s (expected KIND:PERCENT)", part)
		}
		weight, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid percentage in %s: %w", part, err)
		}
		if weight < 0 || weight > 100 {
			return nil, fmt.Errorf("percentage must be 0-100, got %d in %s", weight, part)
		}
		result[strings.TrimSpace(key)] += weight
		total += weight
	}

	if total != 100 {
		return nil, fmt.Errorf("distribution percentages must sum to 100, got %d", total)
	}
	return result, nil
}

// Generate returns the next event. The entity kind is always one that may
// emit the chosen event kind, so the engine accepts every generated event.
func (g *Generator) Generate() *consumer.EventMessage {
	project := g.projects[g.rng.Intn(len(g.projects))]
	kind := g.selectWeighted()

	allowed := alerts.EntityKindsFor(kind)
	if len(allowed) == 0 {
		allowed = entityKinds
	}
	entityKind := allowed[g.rng.Intn(len(allowed))]

	return &consumer.EventMessage{
		Project: project,
		Kind:    kind,
		Entity: alerts.Entity{
			Kind:    entityKind,
			Project: project,
			ID:      fmt.Sprintf("%s-%d", entityKind, g.rng.Intn(g.entityPool)),
		},
		Value: float64(g.rng.Intn(10000)) / 10000,
	}
}

func (g *Generator) selectWeighted() string {
	total := 0
	for _, c := range g.kinds {
		total += c.weight
	}
	if total == 0 {
		return g.kinds[len(g.kinds)-1].value
	}

	r := g.rng.Intn(total)
	cumulative := 0
	for _, c := range g.kinds {
		cumulative += c.weight
		if r < cumulative {
			return c.value
		}
	}
	return g.kinds[len(g.kinds)-1].value
}
