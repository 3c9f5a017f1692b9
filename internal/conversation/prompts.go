package conversation

import "fmt"

// Default prompt fragments. A deployment may override any of these
// through configuration; these are the fallback values.
const (
	DefaultSystemPrefix = "You are a helpful assistant with web search and URL retrieval capabilities. " +
		"Use get_date_time for current date/time if needed (e.g., for 'today' or 'recently'). "

	DefaultForceSearchPrompt = "Unless you are asked to use a specific URL, always use web_search, never try to answer without using web_search. "

	// DefaultSystemSuffix carries a "%d" slot for the turn budget.
	DefaultSystemSuffix = "Then use get_url_content for details of the search results. " +
		"You can pass a list of URLs to get_url_content to fetch multiple pages efficiently at once. " +
		"Use tools, don't say you can't." +
		"You have %d turns to complete your task, if you reach the limit, process will be terminated." +
		"You should finish your task before reaching %%100 of your token limit."

	// DefaultDeepResearchTemplate must have "%d" in place of {n}.
	DefaultDeepResearchTemplate = "\nYou are in DEEP RESEARCH mode. You MUST perform at least %d " +
		"distinct web searches, or make %d get_url_content calls to gather comprehensive information before providing a final answer." +
		"If you need to get links from a URL, use get_url_details. If you just need to get content from a URL, use get_url_content."

	DefaultDeepDivePrompt = "\nYou are in DEEP DIVE mode. Follow these instructions:\n" +
		"1. Use 'get_url_details' for the INITIAL page to retrieve content and links.\n" +
		"2. Follow up to 25 relevant links within the same domain to gather comprehensive information.\n" +
		"3. IMPORTANT: Use 'get_url_details' ONLY for the first page. Use 'get_url_content' for all subsequent links.\n" +
		"4. Do not rely on your internal knowledge; base your answer strictly on the retrieved content." +
		"5. Do not use web_search in deep dive mode."

	DefaultSummarizeSessionPrompt = "Summarize the following conversation transcript in plain prose, in at most %d characters, preserving facts, decisions, and open threads a continuation would need.\n\n%s"
)

// PromptSet holds the configured prompt fragments a deployment may
// override; zero-valued fields fall back to the Default* constants.
type PromptSet struct {
	SystemPrefix         string
	ForceSearch          string
	SystemSuffix         string // %d placeholder for the turn budget
	DeepResearchTemplate string // %d placeholder for n, twice
	DeepDivePrompt       string
}

// ConstructSystemPrompt builds the system prompt for one query, composing
// fragments in a fixed order: prefix [+ force-search] + suffix [+
// deep-research(n)] [+ deep-dive].
func (p PromptSet) ConstructSystemPrompt(maxTurns, deepResearchN int, deepDive, forceSearch bool) string {
	prefix := p.SystemPrefix
	if prefix == "" {
		prefix = DefaultSystemPrefix
	}
	forceSearchPrompt := p.ForceSearch
	if forceSearchPrompt == "" {
		forceSearchPrompt = DefaultForceSearchPrompt
	}
	suffixTemplate := p.SystemSuffix
	if suffixTemplate == "" {
		suffixTemplate = DefaultSystemSuffix
	}
	deepResearchTemplate := p.DeepResearchTemplate
	if deepResearchTemplate == "" {
		deepResearchTemplate = DefaultDeepResearchTemplate
	}
	deepDivePrompt := p.DeepDivePrompt
	if deepDivePrompt == "" {
		deepDivePrompt = DefaultDeepDivePrompt
	}

	content := prefix
	if forceSearch {
		content += forceSearchPrompt
	}
	content += fmt.Sprintf(suffixTemplate, maxTurns)

	if deepResearchN > 0 {
		content += fmt.Sprintf(deepResearchTemplate, deepResearchN, deepResearchN)
	}
	if deepDive {
		content += deepDivePrompt
	}
	return content
}
