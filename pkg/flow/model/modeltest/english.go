package modeltest

// Fixture bundles the services of a small English setup.
type Fixture struct {
	LM       *LM
	Tagger   *Tagger
	Embedder *BagOfWords
	Entailer *Entailer
}

const bond = 10.0

var scenarioWords = []string{
	"The", "the", "utilize", "of", "technology", "is", "important", ".",
	"This", "this", "a", "very", "clear", "and", "simple", "sentence",
	"use", "We", "we", "leverage", "tools", "to", "data",
	"Paris", "London", "lovely", ",",
}

// fillerWords keep ranks meaningful: every filler outranks a penalized word.
var fillerWords = []string{
	"time", "people", "way", "day", "man", "thing", "woman", "life",
	"child", "world", "school", "state", "family", "student", "group",
	"country", "problem", "hand", "part", "place", "case", "week",
	"company", "system", "program", "question", "work", "government",
	"number", "night", "point", "home", "water", "room", "mother",
	"area", "money", "story", "fact", "month",
}

// fixtureBigrams are the natural word pairs of the scenario sentences:
//
//	The use of technology is important.
//	This is a very clear and simple sentence.
//	We use tools to use data.
//	Paris is lovely.
var fixtureBigrams = [][2]string{
	{"<s>", "the"}, {"the", "use"}, {"use", "of"}, {"of", "technology"},
	{"technology", "is"}, {"is", "important"}, {"important", "."}, {".", "</s>"},
	{"<s>", "this"}, {"this", "is"}, {"is", "a"}, {"a", "very"}, {"very", "clear"},
	{"clear", "and"}, {"and", "simple"}, {"simple", "sentence"}, {"sentence", "."},
	{"<s>", "we"}, {"we", "use"}, {"use", "tools"}, {"tools", "to"}, {"to", "use"},
	{"use", "data"}, {"data", "."},
	{"<s>", "paris"}, {"paris", "is"}, {"is", "lovely"}, {"lovely", "."},
}

var fixturePOS = map[string]string{
	"the": "DET", "this": "DET", "a": "DET",
	"utilize": "NOUN", "use": "NOUN", "leverage": "NOUN",
	"technology": "NOUN", "tools": "NOUN", "data": "NOUN", "sentence": "NOUN",
	"of": "ADP", "to": "PART", "and": "CCONJ",
	"is":        "AUX",
	"important": "ADJ", "clear": "ADJ", "simple": "ADJ", "lovely": "ADJ",
	"very": "ADV",
	"we":   "PRON",
	"paris": "PROPN", "london": "PROPN",
}

var fixtureNumber = map[string]string{
	"utilize": "Sing", "use": "Sing", "leverage": "Sing", "technology": "Sing",
	"sentence": "Sing", "tools": "Plur", "data": "Plur",
	"paris": "Sing", "london": "Sing",
}

// English builds the fixture used across package tests: "utilize" and
// "leverage" are penalized and "use" is the natural fill in their contexts;
// every word of the natural sentences is a confident prediction.
func English() *Fixture {
	lm := NewLM(append(append([]string{}, scenarioWords...), fillerWords...)...)
	lm.SetPrior("utilize", -5)
	lm.SetPrior("leverage", -5)
	for _, bg := range fixtureBigrams {
		lm.SetPair(bg[0], bg[1], bond)
	}

	tagger := NewTagger()
	for word, pos := range fixturePOS {
		morph := map[string]string{}
		if n, ok := fixtureNumber[word]; ok {
			morph["Number"] = n
		}
		tagger.Add(word, pos, morph)
	}
	for _, w := range fillerWords {
		tagger.Add(w, "NOUN", map[string]string{"Number": "Sing"})
	}

	emb := NewBagOfWords()
	emb.AddSynonym("utilize", "use")
	emb.AddSynonym("leverage", "use")

	return &Fixture{
		LM:       lm,
		Tagger:   tagger,
		Embedder: emb,
		Entailer: NewEntailer(),
	}
}
