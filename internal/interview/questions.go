package interview

// questionBank is the built-in catalog, keyed by category. Each list is
// ordered by how the questions should be asked.
var questionBank = map[Category][]string{
	CategoryGeneral: {
		"Tell me about yourself and what draws you to this role.",
		"Describe a recent project you are proud of and your part in it.",
		"What is the hardest problem you solved in the last year, and how did you approach it?",
		"Tell me about a time you received difficult feedback. What did you do with it?",
		"Where do you want to grow over the next two years?",
		"What kind of team environment brings out your best work?",
	},
	CategoryTechnical: {
		"Walk me through the architecture of a system you built or significantly changed.",
		"Describe a production incident you debugged. How did you find the root cause?",
		"Tell me about a performance problem you measured and fixed.",
		"How do you decide when code needs a test, and what do you test first?",
		"Describe a technical decision you reversed later. What changed your mind?",
		"Tell me about a piece of technical debt you paid down and what it unlocked.",
	},
	CategoryBehavioral: {
		"Tell me about a time you disagreed with a teammate. How was it resolved?",
		"Describe a situation where you had to deliver under a tight deadline.",
		"Tell me about a time you made a mistake that affected others. What happened next?",
		"Describe a moment when you had to push back on a request from above.",
		"Tell me about a time you helped a struggling colleague.",
		"Describe a situation where requirements changed late. How did you adapt?",
	},
	CategoryLeadership: {
		"Tell me about a time you led a project without formal authority.",
		"How have you handled an underperforming team member?",
		"Describe a decision you made with incomplete information. How did it turn out?",
		"Tell me about a time you had to align stakeholders with conflicting goals.",
		"How do you delegate work you would rather do yourself?",
		"Describe how you have grown someone on your team.",
	},
	CategorySystemDesign: {
		"Design a rate limiter for a public API. What are the trade-offs?",
		"How would you design a notification system that reaches millions of users?",
		"Walk me through how you would shard a relational database under write pressure.",
		"Design a file upload service with resumable uploads. Where does it break first?",
		"How would you add caching to a read-heavy service without serving stale data?",
	},
}

// SelectQuestions returns up to n questions for the given category, in
// catalog order. Unknown categories fall back to the general set and a
// request larger than the catalog returns the whole set; neither case is an
// error.
func SelectQuestions(category Category, n int) []string {
	bank, ok := questionBank[category]
	if !ok {
		bank = questionBank[CategoryGeneral]
	}
	if n < 1 {
		n = 1
	}
	if n > len(bank) {
		n = len(bank)
	}
	out := make([]string, n)
	copy(out, bank[:n])
	return out
}

// Categories lists the catalog categories in a stable order.
func Categories() []Category {
	return []Category{
		CategoryGeneral,
		CategoryTechnical,
		CategoryBehavioral,
		CategoryLeadership,
		CategorySystemDesign,
	}
}
