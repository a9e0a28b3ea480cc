// Package generator produces well-formed raw news items for the ingestion
// loop. It is a stand-in for any upstream feed; the pipeline only depends
// on the Generator interface.
package generator

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/yanzhidev/windsurf-rtnews/item"
)

// Generator supplies the next raw item. Implementations must not block
// indefinitely; the ingestion loop calls Next at the configured rate.
type Generator interface {
	Next() item.Raw
}

var (
	sources = []string{
		"TechCrunch", "Wired", "Ars Technica", "The Verge",
		"Engadget", "ZDNet", "CNET", "VentureBeat",
	}

	companies = []string{
		"OpenAI", "Google", "Microsoft", "Apple", "Meta",
		"Tesla", "Amazon", "NVIDIA", "AMD", "Intel",
	}

	categories = []string{
		"Artificial Intelligence", "Machine Learning", "Cloud Computing",
		"Cybersecurity", "Mobile Technology", "Web Development",
		"Data Science", "Blockchain", "IoT", "Quantum Computing",
	}

	headlineTemplates = []string{
		"%s Announces Revolutionary %s Breakthrough",
		"New %s Technology Discovered by %s",
		"%s Launches Innovative %s Platform",
		"Industry Experts: %s Will Transform Tech Landscape",
		"%s's Latest %s Innovation Sets New Standards",
	}
)

// Mock generates random tech news items
type Mock struct {
	rng *rand.Rand
}

// NewMock creates a mock generator with a time-based seed
func NewMock() *Mock {
	return &Mock{
		rng: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
}

// Next returns one random, well-formed raw item
func (m *Mock) Next() item.Raw {
	company := companies[m.rng.IntN(len(companies))]
	category := categories[m.rng.IntN(len(categories))]
	source := sources[m.rng.IntN(len(sources))]

	var title string
	switch tmpl := headlineTemplates[m.rng.IntN(len(headlineTemplates))]; tmpl {
	case "Industry Experts: %s Will Transform Tech Landscape":
		title = fmt.Sprintf(tmpl, category)
	case "New %s Technology Discovered by %s":
		title = fmt.Sprintf(tmpl, category, company)
	default:
		title = fmt.Sprintf(tmpl, company, category)
	}

	id := uuid.NewString()
	return item.Raw{
		ID:        "news_" + id,
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Source:    source,
		Title:     title,
		Summary: fmt.Sprintf(
			"Latest developments in %s as %s continues to push boundaries in technology innovation.",
			category, company),
		Category:    category,
		Company:     company,
		ImpactScore: float64(int(m.rng.Float64()*900+100)) / 100,
		URL:         "https://example.com/news/" + id,
	}
}
