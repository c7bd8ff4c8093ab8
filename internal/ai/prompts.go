package ai

const ocrSystemPrompt = `You digitize primary and secondary school homework, notes and exam papers.
Read the page in four layers:
1. Printed source: question text, figure descriptions, formulas in LaTeX.
2. Teacher feedback: red ink comments, ticks, crosses and scores.
3. Student answers: the original handwritten answers.
4. Corrections: any "corrected" marks or rewritten answers. Use them to decide each problem status.
The markdown must separate question, answer, feedback and correction for every problem.
Return structured JSON including the problems array.`

const ocrUserPrompt = `Analyze this page. Recognize printed questions, handwritten answers, red ink feedback and corrections. Mark every wrong problem.`

const bookMetadataPrompt = `You extract bibliographic metadata from textbooks.

File name: %s

Text sample:
%s

Detected table of contents:
%s

Rules:
- title: prefer the cover or copyright page, fall back to the file name without extension.
- author, publisher: empty string when absent.
- subject: the school subject of the book.
- grade: the grade and term, for example "Grade 3 Vol.1", empty when unknown.
- category: one of textbook, training, reference, reading. Default textbook.
- publishDate: YYYY-MM when found, else empty.
- tags: up to 5 short keywords.
- tableOfContents: refine the detected table of contents, keep chapter titles verbatim.
Use the same language as the book.`

const coursewareSystemPrompt = `You are an experienced subject teacher. Write high quality markdown courseware suited to the student's level.`

const coursewarePrompt = `Student: %s
Textbook: %s
Chapter: %s
Generate personalized markdown courseware for this chapter.`

const assessmentSystemPrompt = `You are an experienced exam writer. Write a targeted quiz with moderate difficulty that covers the chapter's key points.`

const assessmentInstructions = `
Write a markdown quiz for this chapter:
1. Two basic questions and one advanced question per key point.
2. When previous mistakes are listed, add variants that target those weak spots.
3. About 70% basic and 30% advanced questions.
4. Include answers with explanations.`

var ocrSchema = &Schema{
	Type: TypeObject,
	Properties: map[string]*Schema{
		"type": {
			Type: TypeString,
			Enum: []string{"textbook", "note", "wrong_problem", "exam_paper", "homework"},
		},
		"subject":          {Type: TypeString},
		"chapter_hint":     {Type: TypeString},
		"content_markdown": {Type: TypeString},
		"problems": {
			Type: TypeArray,
			Items: &Schema{
				Type: TypeObject,
				Properties: map[string]*Schema{
					"id":             {Type: TypeString},
					"questionNumber": {Type: TypeString},
					"content":        {Type: TypeString},
					"studentAnswer":  {Type: TypeString},
					"teacherComment": {Type: TypeString},
					"correction":     {Type: TypeString},
					"status": {
						Type: TypeString,
						Enum: []string{"correct", "wrong", "corrected"},
					},
				},
				Required: []string{"content", "status"},
			},
		},
	},
	Required: []string{"type", "subject", "content_markdown", "problems"},
}

var chapterSchema = &Schema{
	Type: TypeObject,
	Properties: map[string]*Schema{
		"id":    {Type: TypeString},
		"title": {Type: TypeString},
		"level": {Type: TypeInteger},
	},
	Required: []string{"title", "level"},
}

var bookMetadataSchema = &Schema{
	Type: TypeObject,
	Properties: map[string]*Schema{
		"title":           {Type: TypeString},
		"author":          {Type: TypeString},
		"subject":         {Type: TypeString},
		"category":        {Type: TypeString},
		"grade":           {Type: TypeString},
		"publisher":       {Type: TypeString},
		"publishDate":     {Type: TypeString},
		"tags":            {Type: TypeArray, Items: &Schema{Type: TypeString}},
		"tableOfContents": {Type: TypeArray, Items: chapterSchema},
	},
	Required: []string{"title", "subject", "category"},
}
