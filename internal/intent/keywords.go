package intent

import "regexp"

// trivialChat matches greetings, thanks, and bare acknowledgments.
// Punctuation is stripped before matching.
var trivialChat = regexp.MustCompile(`(?i)^(hi+|hello+|hey+|yo|thanks?( you)?|thank you|thx|ty|bye|goodbye|ok(ay)?|yes|no|yeah|nope|cool|great|nice|awesome|perfect|got ?it|i see|understood|sure|lol|haha|wow|oh|hmm+)$`)

var nonWord = regexp.MustCompile(`[^\w\s]`)

// medicalKeywords are strong research indicators: conditions, drugs,
// clinical and research vocabulary, body systems.
var medicalKeywords = []string{
	// conditions
	"diabetes", "cancer", "tumor", "asthma", "alzheimer", "parkinson",
	"arthritis", "hypertension", "stroke", "heart disease", "covid",
	"coronavirus", "influenza", "pneumonia", "hepatitis", "hiv", "aids",
	"depression", "anxiety", "schizophrenia", "bipolar", "adhd", "autism",
	"epilepsy", "migraine", "obesity", "anemia", "leukemia", "lymphoma",
	"melanoma", "cirrhosis", "fibrosis", "thrombosis", "embolism",
	// treatments and drugs
	"treatment", "therapy", "medication", "drug", "medicine", "vaccine",
	"antibiotic", "chemotherapy", "radiation", "surgery", "transplant",
	"metformin", "insulin", "ibuprofen", "aspirin", "statin", "steroid",
	"antidepressant", "antipsychotic", "painkiller", "opioid",
	// clinical vocabulary
	"symptom", "diagnosis", "prognosis", "etiology", "pathology",
	"clinical", "patient", "disease", "disorder", "syndrome", "condition",
	"chronic", "acute", "benign", "malignant", "remission", "relapse",
	"dosage", "side effect", "adverse effect", "contraindication",
	// research vocabulary
	"study", "trial", "rct", "randomized", "placebo", "efficacy",
	"mortality", "morbidity", "incidence", "prevalence", "meta-analysis",
	"systematic review", "pubmed", "clinical trial",
	// body systems
	"blood", "liver", "kidney", "lung", "brain", "heart", "bone",
	"muscle", "nerve", "artery", "vein", "immune", "hormone",
}

// systemKeywords mark questions about the assistant itself.
var systemKeywords = []string{
	"who are you", "what are you", "your name", "about yourself",
	"what can you do", "how do you work", "how does this work",
	"are you a bot", "are you ai", "are you real", "are you human",
	"can i chat", "can we chat", "can i talk", "can we talk",
	"how long can", "is this free", "do you remember", "your purpose",
	"help me understand", "what is aesop", "what is this",
}

// followupKeywords reference previously retrieved content.
var followupKeywords = []string{
	"these studies", "those studies", "the studies", "the papers",
	"these papers", "those papers", "these results", "those results",
	"the findings", "these findings", "first paper", "second paper",
	"first study", "second study", "compare them", "compare these",
	"which one", "which study", "tell me more", "more details",
	"elaborate", "explain more", "go deeper",
}

// utilityKeywords are reformatting requests over prior output.
var utilityKeywords = []string{
	"make it shorter", "make it simpler", "make it longer",
	"bullet points", "numbered list", "summarize it", "simplify it",
	"convert to", "reformat", "just the conclusion", "just the summary",
	"key points only", "shorter version", "simpler version",
}
