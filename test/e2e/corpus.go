package e2e

import "strings"

// Document is one knowledge-base file in the test corpus. Each document
// sticks to its own vocabulary so retrieval quality is observable: a query
// about espresso has no business citing the telescope notes.
type Document struct {
	Filename   string
	Paragraphs []string
}

// FileBytes renders the document in the format its extension implies.
func (d Document) FileBytes() []byte {
	if strings.HasSuffix(d.Filename, ".docx") {
		return MinimalDocx(d.Paragraphs...)
	}
	return []byte(strings.Join(d.Paragraphs, "\n\n"))
}

// QueryCase pairs a question with the document its answer must cite.
type QueryCase struct {
	Description string
	Query       string
	WantSource  string
}

// Corpus returns the knowledge-base documents used by the end-to-end tests.
func Corpus() []Document {
	return []Document{
		{
			Filename: "espresso.txt",
			Paragraphs: []string{
				"Pulling good espresso starts with the grind: espresso needs a fine, even grind dosed into the portafilter.",
				"Tamping the portafilter level matters more than tamping hard. An uneven tamp lets water channel past the espresso puck and the crema turns thin and pale.",
				"Healthy crema is dense and hazel colored. If the crema vanishes in seconds, the beans are stale or the grind is too coarse.",
			},
		},
		{
			Filename: "orchids.txt",
			Paragraphs: []string{
				"Orchids grown indoors want bright indirect light and steady humidity. Most orchids fail from overwatering, not neglect.",
				"Repotting is due every two years: fresh bark drains freely, old bark breaks down and suffocates the roots. After repotting, hold water for a week so damaged roots heal.",
			},
		},
		{
			Filename: "sourdough.docx",
			Paragraphs: []string{
				"A sourdough starter is flour and water fermented by wild yeast. Feed the starter daily at room temperature and it doubles within eight hours.",
				"Dough hydration drives the crumb: higher hydration opens the crumb but makes shaping harder. Begin around seventy percent hydration.",
				"Proofing sourdough in the refrigerator overnight deepens flavor and stiffens the dough for scoring.",
			},
		},
		{
			Filename: "telescope.txt",
			Paragraphs: []string{
				"A telescope gathers light in proportion to its aperture; aperture beats magnification every time.",
				"Collimation aligns the mirrors. Check collimation whenever the telescope travels, and recheck with a star test before observing.",
				"Start each session with the lowest power eyepiece, center the target, then step the eyepiece up.",
			},
		},
	}
}

// QueryCases returns questions whose answers live in exactly one corpus
// document.
func QueryCases() []QueryCase {
	return []QueryCase{
		{
			Description: "espresso question cites the espresso notes",
			Query:       "Why does my espresso crema go thin after tamping?",
			WantSource:  "espresso.txt",
		},
		{
			Description: "orchid question cites the orchid notes",
			Query:       "When should orchids be repotted into fresh bark?",
			WantSource:  "orchids.txt",
		},
		{
			Description: "sourdough question cites the docx document",
			Query:       "What hydration should a sourdough starter dough have?",
			WantSource:  "sourdough.docx",
		},
		{
			Description: "telescope question cites the telescope notes",
			Query:       "How do I check collimation of a telescope aperture?",
			WantSource:  "telescope.txt",
		},
	}
}
