package models

const (
	ContextSeparator = "\n\n"
	ThinkTag         = `(?s)<think>.*?</think>`
	NotFoundPhrase   = "I don't see that information in the resume."
)

var (
	// GroundedPromptTemplate takes the joined context passages and the question.
	GroundedPromptTemplate = `You are an expert career coach and resume analyst.

Use ONLY the following context from the resume to answer the question.
If the information is not in the context provided, say "` + NotFoundPhrase + `"
Do not make up or assume information that isn't explicitly in the resume.

Be specific and actionable in your feedback.
Reference specific sections, skills, or experiences from the resume when relevant.

Context from resume:
%s

Question: %s

Detailed Answer:`

	ComparisonPromptTemplate = `Answer this question about a resume: %s

Note: You don't have access to the actual resume content.
Answer as best you can based on general knowledge only.`

	SuggestedQuestions = []string{
		"What are my strongest technical skills?",
		"What skills am I missing for a Machine Learning Engineer role?",
		"How strong is my work experience section?",
		"What projects do I have and how impressive are they?",
		"What should I improve to be more competitive for Data Science roles?",
		"How does my education background support my target roles?",
		"What keywords am I missing that recruiters look for?",
		"What is my biggest weakness as a candidate based on this resume?",
		"What roles am I best qualified for right now?",
		"Write me a 3-sentence professional summary based on this resume",
	}
)
