// Package e2e exercises the full ask pipeline over a corpus of factual
// documents with question test cases.
package e2e

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chitose/kotae/internal/models"
)

// Document is an entry in the e2e corpus. The ID is the corpus-relative path
// the ingestion pipeline would derive for it.
type Document struct {
	ID   string
	Text string
}

// QuestionCase defines a question, the document that answers it, and a phrase
// from that document that must reach the prompt context.
type QuestionCase struct {
	Question       string
	ExpectedDoc    string
	ExpectedPhrase string
	Description    string
}

// Corpus holds documents and question test cases.
type Corpus struct {
	Documents []Document
	Cases     []QuestionCase
}

// BuildCorpus returns a corpus of short factual documents. Each document has
// distinctive vocabulary so a question about it ranks its passage first.
func BuildCorpus() *Corpus {
	docs := []Document{
		{"astronomy/sun.txt", "The sun is a yellow dwarf star at the center of the solar system. Its surface temperature is about 5500 degrees Celsius. Sunlight takes roughly eight minutes to reach Earth."},
		{"astronomy/mars.txt", "Mars is called the red planet because iron oxide dust covers its surface. Olympus Mons on Mars is the tallest volcano in the solar system."},
		{"cooking/miso.txt", "Miso is a fermented soybean paste used in Japanese cooking. Fermentation of miso can take from a few months to several years. Darker miso has a stronger and saltier taste."},
		{"cooking/sourdough.txt", "Sourdough bread rises with a wild yeast starter instead of commercial yeast. A sourdough starter must be fed with flour and water regularly to stay active."},
		{"animals/octopus.txt", "An octopus has three hearts and blue blood. Two hearts pump blood to the gills while the third serves the rest of the body."},
		{"animals/penguin.txt", "Penguins are flightless birds that live mostly in the southern hemisphere. Emperor penguins breed during the Antarctic winter and the males incubate the egg."},
		{"geography/everest.txt", "Mount Everest is the highest mountain above sea level at 8849 metres. The peak sits on the border between Nepal and Tibet."},
		{"geography/amazon.txt", "The Amazon river carries more water than any other river on Earth. Its basin covers about forty percent of South America."},
		{"history/printing.txt", "Johannes Gutenberg introduced the movable type printing press in Europe around 1440. The printing press made books far cheaper and spread literacy."},
		{"history/rosetta.txt", "The Rosetta Stone carries the same decree in three scripts. It allowed scholars to decipher Egyptian hieroglyphs."},
		{"science/photosynthesis.txt", "Photosynthesis converts carbon dioxide and water into glucose using sunlight. The reaction releases oxygen as a byproduct."},
		{"science/dna.txt", "DNA stores genetic instructions in sequences of four bases. The double helix structure of DNA was described by Watson and Crick in 1953."},
		{"music/violin.txt", "A violin has four strings tuned in perfect fifths. The strings are tuned G, D, A and E from lowest to highest."},
		{"music/gamelan.txt", "Gamelan is a traditional Indonesian ensemble built around gongs and metallophones. Each gamelan set is tuned to itself, so instruments are not interchangeable between sets."},
		{"tech/qwerty.txt", "The QWERTY keyboard layout was designed for early typewriters to reduce jamming of the mechanical arms. It remains the dominant layout today."},
		{"tech/transistor.txt", "The transistor was invented at Bell Labs in 1947 and replaced vacuum tubes in electronics. Modern chips contain billions of transistors."},
		{"weather/monsoon.txt", "A monsoon is a seasonal reversal of wind that brings heavy rain. The Indian monsoon arrives around June and waters most of the subcontinent's crops."},
		{"weather/lightning.txt", "Lightning heats the surrounding air to about thirty thousand kelvin. Thunder is the shockwave from that sudden heating of the air."},
		{"ocean/tides.txt", "Tides are caused mainly by the gravitational pull of the moon on the oceans. Most coastlines see two high tides and two low tides each day."},
		{"ocean/trench.txt", "The Mariana Trench is the deepest part of the ocean, reaching almost eleven kilometres below the surface at Challenger Deep."},
	}

	cases := []QuestionCase{
		{"How long does sunlight take to reach Earth?", "astronomy/sun.txt", "eight minutes", "sunlight travel time"},
		{"Why is Mars called the red planet?", "astronomy/mars.txt", "iron oxide", "mars color"},
		{"How long does miso fermentation take?", "cooking/miso.txt", "several years", "miso fermentation"},
		{"What makes sourdough bread rise?", "cooking/sourdough.txt", "wild yeast starter", "sourdough rise"},
		{"How many hearts does an octopus have?", "animals/octopus.txt", "three hearts", "octopus hearts"},
		{"When do emperor penguins breed?", "animals/penguin.txt", "Antarctic winter", "penguin breeding"},
		{"How tall is Mount Everest?", "geography/everest.txt", "8849 metres", "everest height"},
		{"Which river carries the most water on Earth?", "geography/amazon.txt", "more water than any other river", "amazon volume"},
		{"Who introduced the movable type printing press?", "history/printing.txt", "Gutenberg", "printing press"},
		{"What allowed scholars to decipher Egyptian hieroglyphs?", "history/rosetta.txt", "Rosetta Stone", "rosetta stone"},
		{"What does photosynthesis release as a byproduct?", "science/photosynthesis.txt", "oxygen", "photosynthesis byproduct"},
		{"Who described the double helix structure of DNA?", "science/dna.txt", "Watson and Crick", "dna double helix"},
		{"How many strings does a violin have?", "music/violin.txt", "four strings", "violin strings"},
		{"What instruments make up a gamelan ensemble?", "music/gamelan.txt", "gongs and metallophones", "gamelan instruments"},
		{"Why was the QWERTY keyboard layout designed?", "tech/qwerty.txt", "reduce jamming", "qwerty origin"},
		{"Where was the transistor invented?", "tech/transistor.txt", "Bell Labs", "transistor origin"},
		{"When does the Indian monsoon arrive?", "weather/monsoon.txt", "around June", "monsoon timing"},
		{"What causes thunder during lightning?", "weather/lightning.txt", "shockwave", "thunder cause"},
		{"What causes the tides in the ocean?", "ocean/tides.txt", "gravitational pull of the moon", "tide cause"},
		{"What is the deepest part of the ocean?", "ocean/trench.txt", "Mariana Trench", "deepest ocean"},
	}

	return &Corpus{Documents: docs, Cases: cases}
}

// ToCorpusDocuments converts the corpus entries into the pipeline's document
// type with content hashes filled in.
func (c *Corpus) ToCorpusDocuments() []*models.CorpusDocument {
	out := make([]*models.CorpusDocument, len(c.Documents))
	now := time.Now()
	for i, d := range c.Documents {
		sum := sha256.Sum256([]byte(d.Text))
		out[i] = &models.CorpusDocument{
			ID:          d.ID,
			Path:        d.ID,
			Text:        d.Text,
			SizeBytes:   int64(len(d.Text)),
			ModTime:     now,
			ContentHash: hex.EncodeToString(sum[:]),
		}
	}
	return out
}

// WriteFiles writes every corpus document under dir, with the document ID as
// the relative path.
func (c *Corpus) WriteFiles(dir string) error {
	for _, d := range c.Documents {
		path := filepath.Join(dir, filepath.FromSlash(d.ID))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("mkdir for %s: %w", d.ID, err)
		}
		if err := os.WriteFile(path, []byte(d.Text), 0644); err != nil {
			return fmt.Errorf("write %s: %w", d.ID, err)
		}
	}
	return nil
}

// FindDocument returns the corpus document with the given ID.
func (c *Corpus) FindDocument(id string) (Document, bool) {
	for _, d := range c.Documents {
		if d.ID == id {
			return d, true
		}
	}
	return Document{}, false
}
